package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/speaker-align/internal/database"
	"github.com/snarg/speaker-align/internal/metrics"
	"github.com/snarg/speaker-align/internal/render"
	"github.com/snarg/speaker-align/internal/storage"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer has no room.
	ErrQueueFull = errors.New("job queue is full")
	// ErrPoolStopped is returned by Enqueue after Stop.
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// QueueStats reports the current state of the job queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Active    int   `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Workers   int   `json:"workers"`
	QueueSize int   `json:"queue_size"`
}

// JobResult is reported to OnComplete after every job.
type JobResult struct {
	Job        Job               `json:"job"`
	Status     string            `json:"status"` // "completed" or "failed"
	Error      string            `json:"error,omitempty"`
	Speakers   []string          `json:"speakers,omitempty"`
	Utterances int               `json:"utterances"`
	Warnings   int               `json:"warnings"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

// WorkerPoolOptions configures the worker pool.
type WorkerPoolOptions struct {
	Pipeline   *Pipeline
	Store      storage.Store       // nil skips saving outputs
	DB         *database.DB        // nil skips persistence
	Formats    []render.Format
	Names      render.SpeakerNames
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	OnComplete func(JobResult)
	Log        zerolog.Logger
}

// WorkerPool runs jobs on a fixed number of goroutines fed by a buffered channel.
type WorkerPool struct {
	jobs   chan Job
	opts   WorkerPoolOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(opts WorkerPoolOptions) *WorkerPool {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 15 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobs:   make(chan Job, opts.QueueSize),
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().Int("workers", wp.opts.Workers).Int("queue_size", wp.opts.QueueSize).Msg("worker pool started")
}

// Stop signals workers to drain and waits for completion.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.cancel()
	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Msg("worker pool stopped")
}

// Enqueue adds a job to the queue without blocking.
func (wp *WorkerPool) Enqueue(j Job) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return ErrPoolStopped
	}
	select {
	case wp.jobs <- j:
		metrics.JobsTotal.WithLabelValues(j.Kind(), "queued").Inc()
		return nil
	default:
		metrics.JobsTotal.WithLabelValues(j.Kind(), "rejected").Inc()
		return ErrQueueFull
	}
}

// Stats returns current queue statistics.
func (wp *WorkerPool) Stats() QueueStats {
	return QueueStats{
		Pending:   wp.Pending(),
		Active:    wp.Active(),
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
		Workers:   wp.opts.Workers,
		QueueSize: cap(wp.jobs),
	}
}

// Pending is the number of queued jobs.
func (wp *WorkerPool) Pending() int { return len(wp.jobs) }

// Active is the number of jobs being processed.
func (wp *WorkerPool) Active() int { return int(wp.active.Load()) }

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()

	for job := range wp.jobs {
		wp.active.Add(1)
		res := wp.processJob(log, job)
		wp.active.Add(-1)

		if res.Status == "failed" {
			wp.failed.Add(1)
			log.Warn().Str("job_id", job.ID).Str("kind", job.Kind()).Str("error", res.Error).Msg("job failed")
		} else {
			wp.completed.Add(1)
		}
		metrics.JobsTotal.WithLabelValues(job.Kind(), res.Status).Inc()
		metrics.JobDuration.WithLabelValues(job.Kind()).Observe(float64(res.DurationMs) / 1000)

		if wp.opts.OnComplete != nil {
			wp.opts.OnComplete(res)
		}
	}
}

func (wp *WorkerPool) processJob(log zerolog.Logger, job Job) JobResult {
	start := time.Now()
	res := JobResult{Job: job, Status: "completed"}
	fail := func(err error) JobResult {
		res.Status = "failed"
		res.Error = err.Error()
		res.DurationMs = time.Since(start).Milliseconds()
		return res
	}

	ctx, cancel := context.WithTimeout(wp.ctx, wp.opts.JobTimeout)
	defer cancel()

	// 1. Collect inputs and align
	out, err := wp.opts.Pipeline.Run(ctx, job)
	if err != nil {
		return fail(err)
	}
	utts := out.Result.Utterances
	res.Speakers = out.Result.Speakers
	res.Utterances = len(utts)
	res.Warnings = len(out.Result.Warnings)

	// 2. Render and save outputs
	if wp.opts.Store != nil {
		outputs, err := wp.saveOutputs(ctx, job, out)
		if err != nil {
			return fail(err)
		}
		res.Outputs = outputs
	}

	res.DurationMs = time.Since(start).Milliseconds()

	// 3. Store in DB
	if wp.opts.DB != nil {
		uttJSON, err := json.Marshal(utts)
		if err != nil {
			return fail(fmt.Errorf("marshal utterances: %w", err))
		}
		row := &database.TranscriptRow{
			ID:             job.ID,
			Source:         job.Source,
			Language:       out.Language,
			Model:          out.Model,
			Speakers:       out.Result.Speakers,
			UtteranceCount: len(utts),
			WarningCount:   len(out.Result.Warnings),
			DurationMs:     int(res.DurationMs),
			Utterances:     uttJSON,
			Outputs:        res.Outputs,
		}
		if err := wp.opts.DB.InsertTranscript(ctx, row); err != nil {
			return fail(fmt.Errorf("db insert: %w", err))
		}
	}

	log.Debug().
		Str("job_id", job.ID).
		Str("kind", job.Kind()).
		Int("utterances", len(utts)).
		Int("speakers", len(out.Result.Speakers)).
		Int("unknown_segments", out.Unknown).
		Int64("duration_ms", res.DurationMs).
		Msg("job complete")
	return res
}

func (wp *WorkerPool) saveOutputs(ctx context.Context, job Job, out *Outcome) (map[string]string, error) {
	doc := render.Document{
		Utterances: out.Result.Utterances,
		Warnings:   len(out.Result.Warnings),
		Names:      wp.opts.Names,
	}
	now := time.Now()
	outputs := make(map[string]string, len(wp.opts.Formats))
	for _, f := range wp.opts.Formats {
		var buf bytes.Buffer
		if err := render.Render(&buf, f, doc); err != nil {
			return nil, fmt.Errorf("render %s: %w", f, err)
		}
		key := storage.OutputKey(now, job.ID, OutputBase(job.Base(), f), f.Extension())
		if err := wp.opts.Store.Save(ctx, key, buf.Bytes(), f.ContentType()); err != nil {
			return nil, fmt.Errorf("save %s: %w", key, err)
		}
		outputs[string(f)] = key
	}
	return outputs, nil
}

// OutputBase keeps formats that share an extension from overwriting each other.
func OutputBase(base string, f render.Format) string {
	if f == render.CSVSemicolon {
		return base + "-semicolon"
	}
	return base
}
