package transcribe

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/snarg/speaker-align/internal/align"
	"github.com/snarg/speaker-align/internal/diarize"
	"github.com/snarg/speaker-align/internal/metrics"
	"github.com/snarg/speaker-align/internal/transcript"
)

// ErrNoCollaborator is returned for audio jobs when no ASR or diarization
// service is configured.
var ErrNoCollaborator = errors.New("audio jobs need both WHISPER_URL and DIARIZE_URL")

// Job is one alignment request. Audio jobs set AudioPath; file jobs set
// SegmentsPath and TurnsPath.
type Job struct {
	ID           string     `json:"id"`
	Source       string     `json:"source"` // "api", "mqtt", "watch", "cli"
	AudioPath    string     `json:"audio_path,omitempty"`
	SegmentsPath string     `json:"segments_path,omitempty"`
	TurnsPath    string     `json:"turns_path,omitempty"`
	Options      JobOptions `json:"options"`
}

// JobOptions override the configured collaborator options for one job.
type JobOptions struct {
	Speakers       diarize.Options   `json:"speakers"`
	Language       string            `json:"language,omitempty"`
	SegmentsFormat transcript.Format `json:"segments_format,omitempty"`
	TurnsFormat    transcript.Format `json:"turns_format,omitempty"`
}

// Kind is "audio" or "files".
func (j Job) Kind() string {
	if j.AudioPath != "" {
		return "audio"
	}
	return "files"
}

// Base is the output file name stem.
func (j Job) Base() string {
	p := j.AudioPath
	if p == "" {
		p = j.SegmentsPath
	}
	base := filepath.Base(p)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(base, ".segments")
}

// Outcome is the product of one pipeline run.
type Outcome struct {
	Result   *align.Result
	Language string
	Model    string
	Unknown  int // segments no turn covered, one per warning
}

// PipelineOptions configures a Pipeline. ASR and Diarizer may be nil when
// only file jobs are processed.
type PipelineOptions struct {
	ASR         Provider
	Diarizer    Diarizer
	Transcribe  TranscribeOpts
	Speakers    diarize.Options
	Preprocess  bool
	TrimSeconds float64
	Align       align.Options
	Log         zerolog.Logger
}

// Pipeline turns a Job into aligned utterances.
type Pipeline struct {
	opts PipelineOptions
	log  zerolog.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Align.UnknownSpeaker == "" {
		opts.Align.UnknownSpeaker = align.UnknownSpeaker
	}
	return &Pipeline{opts: opts, log: opts.Log}
}

// Model returns the ASR model name, or "" without an ASR provider.
func (p *Pipeline) Model() string {
	if p.opts.ASR == nil {
		return ""
	}
	return p.opts.ASR.Model()
}

// Run executes the job and aligns the results.
func (p *Pipeline) Run(ctx context.Context, job Job) (*Outcome, error) {
	var (
		raw   []align.RawSegment
		turns []align.Turn
		out   = &Outcome{}
		err   error
	)
	if job.AudioPath != "" {
		raw, turns, err = p.collect(ctx, job, out)
	} else {
		raw, turns, err = p.load(job)
	}
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := align.Align(raw, turns, p.opts.Align)
	if err != nil {
		metrics.ObserveAlignment(job.Source, time.Since(start), 0, 0, 0, err)
		return nil, fmt.Errorf("align: %w", err)
	}
	out.Unknown = len(res.Warnings)
	metrics.ObserveAlignment(job.Source, time.Since(start), len(res.Tagged), out.Unknown, len(res.Utterances), nil)
	for _, w := range res.Warnings {
		p.log.Debug().Int("segment", w.Index).Float64("start", w.Interval.Start).Float64("end", w.Interval.End).Msg("segment has no speaker overlap")
	}
	out.Result = res
	return out, nil
}

func (p *Pipeline) load(job Job) ([]align.RawSegment, []align.Turn, error) {
	if job.SegmentsPath == "" || job.TurnsPath == "" {
		return nil, nil, errors.New("file job needs both a segments and a turns file")
	}
	raw, err := transcript.LoadSegments(job.SegmentsPath, job.Options.SegmentsFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("load segments: %w", err)
	}
	turns, err := transcript.LoadTurns(job.TurnsPath, job.Options.TurnsFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("load turns: %w", err)
	}
	return raw, turns, nil
}

// collect runs ASR and diarization concurrently over the same audio.
func (p *Pipeline) collect(ctx context.Context, job Job, out *Outcome) ([]align.RawSegment, []align.Turn, error) {
	if p.opts.ASR == nil || p.opts.Diarizer == nil {
		return nil, nil, ErrNoCollaborator
	}

	audioPath := job.AudioPath
	if p.opts.Preprocess {
		processed, cleanup, err := Preprocess(ctx, audioPath, p.opts.TrimSeconds)
		if err != nil {
			p.log.Warn().Err(err).Msg("preprocessing failed, using original audio")
		} else {
			audioPath = processed
			defer cleanup()
		}
	}

	topts := p.opts.Transcribe
	if job.Options.Language != "" {
		topts.Language = job.Options.Language
	}
	speakers := p.opts.Speakers
	if job.Options.Speakers != (diarize.Options{}) {
		speakers = job.Options.Speakers
	}

	var (
		resp  *Response
		turns []align.Turn
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := p.opts.ASR.Transcribe(gctx, audioPath, topts)
		if err != nil {
			return fmt.Errorf("transcribe: %w", err)
		}
		resp = r
		return nil
	})
	g.Go(func() error {
		t, err := p.opts.Diarizer.Diarize(gctx, audioPath, speakers)
		if err != nil {
			return fmt.Errorf("diarize: %w", err)
		}
		turns = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out.Language = resp.Language
	out.Model = p.opts.ASR.Model()
	return resp.Segments, turns, nil
}
