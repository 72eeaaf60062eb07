package main

import (
	"github.com/rs/zerolog"

	"github.com/snarg/speaker-align/internal/align"
	"github.com/snarg/speaker-align/internal/config"
	"github.com/snarg/speaker-align/internal/diarize"
	"github.com/snarg/speaker-align/internal/transcribe"
)

// buildPipeline wires the ASR and diarization collaborators that are
// configured. Without them the pipeline still serves file jobs.
func buildPipeline(cfg *config.Config, log zerolog.Logger) *transcribe.Pipeline {
	opts := transcribe.PipelineOptions{
		Transcribe: transcribe.TranscribeOpts{
			Language:     cfg.Whisper.Language,
			Temperature:  cfg.Whisper.Temperature,
			BeamSize:     cfg.Whisper.BeamSize,
			VADFilter:    cfg.Whisper.VADFilter,
			MinSilenceMs: cfg.Whisper.MinSilenceMs,
			Prompt:       cfg.Whisper.Prompt,
		},
		Speakers: diarize.Options{
			NumSpeakers: cfg.Diarize.NumSpeakers,
			MinSpeakers: cfg.Diarize.MinSpeakers,
			MaxSpeakers: cfg.Diarize.MaxSpeakers,
		},
		TrimSeconds: cfg.Preproc.TrimSeconds,
		Align: align.Options{
			UnknownSpeaker: cfg.UnknownSpeaker,
			Merge:          align.MergeOptions{Terminators: cfg.Terminators},
		},
		Log: log.With().Str("component", "pipeline").Logger(),
	}

	if cfg.Whisper.URL != "" {
		opts.ASR = transcribe.NewWhisperClient(cfg.Whisper.URL, cfg.Whisper.Model, cfg.Whisper.Timeout, cfg.Whisper.MaxRetries, log)
		log.Info().Str("url", cfg.Whisper.URL).Str("model", cfg.Whisper.Model).Msg("whisper provider configured")
	}
	if cfg.Diarize.URL != "" {
		opts.Diarizer = diarize.NewClient(cfg.Diarize.URL, cfg.Diarize.Timeout, cfg.Diarize.MaxRetries, log)
		log.Info().Str("url", cfg.Diarize.URL).Msg("diarization service configured")
	}
	if cfg.Preproc.Enabled {
		if transcribe.CheckSox() {
			opts.Preprocess = true
		} else {
			log.Warn().Msg("sox not found in PATH, audio is sent to collaborators unconverted")
		}
	}
	return transcribe.NewPipeline(opts)
}
