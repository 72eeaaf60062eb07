package transcribe

import (
	"context"

	"github.com/snarg/speaker-align/internal/align"
	"github.com/snarg/speaker-align/internal/diarize"
)

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error)
	Name() string  // "whisper"
	Model() string // model identifier for DB/logs
}

// Diarizer labels who spoke when.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string, opts diarize.Options) ([]align.Turn, error)
}

// Response is the common transcription result from any provider.
type Response struct {
	Text     string
	Language string
	Duration float64 // audio duration in seconds
	// Segments keep optional fields so missing timestamps surface as
	// format errors during alignment.
	Segments []align.RawSegment
}
