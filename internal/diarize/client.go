// Package diarize calls a pyannote-style diarization sidecar over HTTP.
package diarize

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/speaker-align/internal/align"
	"github.com/snarg/speaker-align/internal/httpretry"
	"github.com/snarg/speaker-align/internal/metrics"
	"github.com/snarg/speaker-align/internal/transcript"
)

// Options constrain the speaker count. Zero fields are left to the service.
type Options struct {
	NumSpeakers int `json:"num_speakers,omitempty" validate:"gte=0,lte=64"`
	MinSpeakers int `json:"min_speakers,omitempty" validate:"gte=0,lte=64"`
	MaxSpeakers int `json:"max_speakers,omitempty" validate:"gte=0,lte=64"`
}

// Client posts audio to the diarization service and returns speaker turns.
type Client struct {
	url    string
	client *http.Client
	policy httpretry.Policy
	log    zerolog.Logger
}

// NewClient creates a diarization client. timeout bounds a single attempt.
func NewClient(url string, timeout time.Duration, maxRetries uint64, log zerolog.Logger) *Client {
	policy := httpretry.DefaultPolicy()
	policy.MaxRetries = maxRetries
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
		policy: policy,
		log:    log.With().Str("component", "diarize").Logger(),
	}
}

// Name identifies the collaborator in logs and metrics.
func (c *Client) Name() string { return "diarize" }

// Diarize uploads the audio file and parses the returned turns.
func (c *Client) Diarize(ctx context.Context, audioPath string, opts Options) ([]align.Turn, error) {
	var form httpretry.Form
	if opts.NumSpeakers > 0 {
		form.Add("num_speakers", strconv.Itoa(opts.NumSpeakers))
	}
	if opts.MinSpeakers > 0 {
		form.Add("min_speakers", strconv.Itoa(opts.MinSpeakers))
	}
	if opts.MaxSpeakers > 0 {
		form.Add("max_speakers", strconv.Itoa(opts.MaxSpeakers))
	}
	body, contentType, err := httpretry.EncodeFile(audioPath, form)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := httpretry.Post(ctx, c.client, "diarize", c.url, contentType, body, c.policy, c.observe)
	if err != nil {
		return nil, fmt.Errorf("diarization: %w", err)
	}

	turns, err := transcript.ParseTurns(data, transcript.FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("diarization: %w", err)
	}
	c.log.Debug().
		Str("file", audioPath).
		Int("turns", len(turns)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("diarization complete")
	return turns, nil
}

func (c *Client) observe(a httpretry.Attempt) {
	outcome := "ok"
	if a.Err != nil {
		outcome = "error"
		c.log.Warn().Err(a.Err).Int("attempt", a.N).Msg("diarization attempt failed")
	}
	metrics.CollaboratorRequestsTotal.WithLabelValues("diarize", outcome).Inc()
}
