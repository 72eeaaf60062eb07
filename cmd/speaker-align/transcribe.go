package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/snarg/speaker-align/internal/config"
	"github.com/snarg/speaker-align/internal/render"
	"github.com/snarg/speaker-align/internal/transcribe"
)

type transcribeFlags struct {
	format      string
	output      string
	language    string
	numSpeakers int
	minSpeakers int
	maxSpeakers int
	names       string
	trim        float64
	timeout     time.Duration
}

func newTranscribeCmd(root *rootFlags) *cobra.Command {
	var f transcribeFlags
	cmd := &cobra.Command{
		Use:   "transcribe AUDIO",
		Short: "Transcribe and diarize an audio file, then align the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, config.Overrides{SpeakerNames: f.names})
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("trim") {
				cfg.Preproc.TrimSeconds = f.trim
			}
			log := newLogger(cfg)

			outFmt, err := render.ParseFormat(f.format)
			if err != nil {
				return err
			}
			names, err := render.LoadSpeakerNames(cfg.SpeakerNames)
			if err != nil {
				return err
			}
			if _, err := os.Stat(args[0]); err != nil {
				return err
			}

			req := transcribe.JobRequest{
				ID:          uuid.NewString(),
				AudioPath:   args[0],
				Language:    f.language,
				NumSpeakers: f.numSpeakers,
				MinSpeakers: f.minSpeakers,
				MaxSpeakers: f.maxSpeakers,
			}
			if err := req.Validate(); err != nil {
				return err
			}
			job, err := req.Job("cli")
			if err != nil {
				return err
			}

			pipeline := buildPipeline(cfg, log)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			start := time.Now()
			out, err := pipeline.Run(ctx, job)
			if err != nil {
				return fmt.Errorf("job %s: %w", job.ID, err)
			}

			doc := render.Document{Utterances: out.Result.Utterances, Warnings: len(out.Result.Warnings), Names: names}
			err = writeOutput(cmd.OutOrStdout(), f.output, func(w io.Writer) error {
				return render.Render(w, outFmt, doc)
			})
			if err != nil {
				return err
			}

			log.Info().
				Str("job_id", job.ID).
				Str("language", out.Language).
				Str("model", out.Model).
				Int("utterances", len(out.Result.Utterances)).
				Strs("speakers", out.Result.Speakers).
				Int("unknown_segments", out.Unknown).
				Dur("elapsed", time.Since(start)).
				Msg("transcription complete")
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.format, "format", "f", "txt", "output format: txt, srt, vtt, csv, csv-semicolon, md, json")
	fl.StringVarP(&f.output, "output", "o", "", "output file (default stdout)")
	fl.StringVar(&f.language, "language", "", "spoken language hint passed to ASR")
	fl.IntVar(&f.numSpeakers, "num-speakers", 0, "exact number of speakers, 0 to let diarization decide")
	fl.IntVar(&f.minSpeakers, "min-speakers", 0, "lower bound on speakers")
	fl.IntVar(&f.maxSpeakers, "max-speakers", 0, "upper bound on speakers")
	fl.StringVar(&f.names, "names", "", "YAML file mapping speaker labels to display names")
	fl.Float64Var(&f.trim, "trim", 0, "only process the first N seconds of audio (needs sox)")
	fl.DurationVar(&f.timeout, "timeout", 30*time.Minute, "give up after this long")
	return cmd
}
