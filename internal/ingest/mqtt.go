package ingest

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog"

	"github.com/snarg/speaker-align/internal/metrics"
	"github.com/snarg/speaker-align/internal/transcribe"
)

// NewJobHandler returns an MQTT message handler that decodes job requests
// and enqueues them. Invalid messages are logged and dropped.
func NewJobHandler(queue Enqueuer, log zerolog.Logger) func(topic string, payload []byte) {
	log = log.With().Str("component", "mqtt-jobs").Logger()
	return func(topic string, payload []byte) {
		outcome := handleJobMessage(queue, log, topic, payload)
		metrics.MQTTMessagesTotal.WithLabelValues(outcome).Inc()
	}
}

func handleJobMessage(queue Enqueuer, log zerolog.Logger, topic string, payload []byte) string {
	var req transcribe.JobRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("malformed job message")
		return "malformed"
	}
	if err := req.Validate(); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("invalid job message")
		return "invalid"
	}
	for _, p := range []string{req.AudioPath, req.SegmentsPath, req.TurnsPath} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("job input not readable")
			return "invalid"
		}
	}
	job, err := req.Job("mqtt")
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("invalid job message")
		return "invalid"
	}
	if err := queue.Enqueue(job); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("job rejected")
		return "rejected"
	}
	log.Info().Str("job_id", job.ID).Str("kind", job.Kind()).Msg("job enqueued from mqtt")
	return "enqueued"
}
