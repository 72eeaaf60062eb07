package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/speaker-align/internal/align"
	"github.com/snarg/speaker-align/internal/httpretry"
	"github.com/snarg/speaker-align/internal/metrics"
)

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions endpoint.
type WhisperClient struct {
	url    string
	model  string
	client *http.Client
	policy httpretry.Policy
	log    zerolog.Logger
}

// TranscribeOpts are per-request options for the Whisper API.
// Zero-value fields are omitted from the request, so servers that ignore
// unknown form fields keep working.
type TranscribeOpts struct {
	Language     string  `json:"language,omitempty" validate:"omitempty,min=2,max=8"`
	Temperature  float64 `json:"temperature,omitempty" validate:"gte=0,lte=1"`
	BeamSize     int     `json:"beam_size,omitempty" validate:"gte=0,lte=20"`
	VADFilter    bool    `json:"vad_filter,omitempty"`
	MinSilenceMs int     `json:"min_silence_duration_ms,omitempty" validate:"gte=0"`
	Prompt       string  `json:"prompt,omitempty"` // initial_prompt / domain vocabulary
}

// WhisperResponse is the parsed response from the Whisper API (verbose_json format).
type WhisperResponse struct {
	Text     string             `json:"text"`
	Language string             `json:"language"`
	Duration float64            `json:"duration"`
	Segments []align.RawSegment `json:"segments"`
}

// NewWhisperClient creates a new Whisper HTTP client. timeout bounds one attempt.
func NewWhisperClient(url, model string, timeout time.Duration, maxRetries uint64, log zerolog.Logger) *WhisperClient {
	policy := httpretry.DefaultPolicy()
	policy.MaxRetries = maxRetries
	return &WhisperClient{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: timeout},
		policy: policy,
		log:    log.With().Str("component", "whisper").Logger(),
	}
}

func (wc *WhisperClient) Name() string  { return "whisper" }
func (wc *WhisperClient) Model() string { return wc.model }

// Transcribe sends an audio file to the Whisper API and returns its segments.
// Only non-default parameters are sent.
func (wc *WhisperClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	var form httpretry.Form
	if wc.model != "" {
		form.Add("model", wc.model)
	}
	if opts.Language != "" {
		form.Add("language", opts.Language)
	}
	form.Add("temperature", strconv.FormatFloat(opts.Temperature, 'f', 2, 64))
	form.Add("response_format", "verbose_json")
	form.Add("timestamp_granularities[]", "segment")

	if opts.Prompt != "" {
		form.Add("prompt", opts.Prompt)
	}
	if opts.BeamSize > 0 {
		form.Add("beam_size", strconv.Itoa(opts.BeamSize))
	}
	if opts.VADFilter {
		form.Add("vad_filter", "true")
		if opts.MinSilenceMs > 0 {
			form.Add("min_silence_duration_ms", strconv.Itoa(opts.MinSilenceMs))
		}
	}

	body, contentType, err := httpretry.EncodeFile(audioPath, form)
	if err != nil {
		return nil, err
	}

	data, err := httpretry.Post(ctx, wc.client, "whisper", wc.url, contentType, body, wc.policy, wc.observe)
	if err != nil {
		return nil, err
	}

	var result WhisperResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &Response{
		Text:     result.Text,
		Language: result.Language,
		Duration: result.Duration,
		Segments: result.Segments,
	}, nil
}

func (wc *WhisperClient) observe(a httpretry.Attempt) {
	outcome := "ok"
	if a.Err != nil {
		outcome = "error"
		wc.log.Warn().Err(a.Err).Int("attempt", a.N).Msg("whisper attempt failed")
	}
	metrics.CollaboratorRequestsTotal.WithLabelValues("whisper", outcome).Inc()
}
