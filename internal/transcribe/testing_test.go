package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/snarg/speaker-align/internal/align"
	"github.com/snarg/speaker-align/internal/diarize"
)

func fp(v float64) *float64 { return &v }
func sp(v string) *string   { return &v }

// fakeASR returns canned segments and records the options it saw.
type fakeASR struct {
	mu   sync.Mutex
	segs []align.RawSegment
	err  error
	seen []TranscribeOpts
}

func (f *fakeASR) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	f.mu.Lock()
	f.seen = append(f.seen, opts)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Language: "en", Segments: f.segs}, nil
}
func (f *fakeASR) Name() string  { return "fake" }
func (f *fakeASR) Model() string { return "fake-model" }

type fakeDiarizer struct {
	turns []align.Turn
	err   error
	seen  []diarize.Options
}

func (f *fakeDiarizer) Diarize(ctx context.Context, audioPath string, opts diarize.Options) ([]align.Turn, error) {
	f.seen = append(f.seen, opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.turns, nil
}

func sampleSegments() []align.RawSegment {
	return []align.RawSegment{
		{Start: fp(0), End: fp(2), Text: sp(" Hello")},
		{Start: fp(2), End: fp(4), Text: sp(" there.")},
		{Start: fp(4), End: fp(6), Text: sp(" Hi.")},
	}
}

func sampleTurns() []align.Turn {
	return []align.Turn{
		{Interval: align.Interval{Start: 0, End: 4}, Speaker: "A"},
		{Interval: align.Interval{Start: 4, End: 6}, Speaker: "B"},
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

var errBoom = errors.New("boom")
