package transcribe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

var (
	soxOnce      sync.Once
	soxAvailable bool
)

// CheckSox reports whether sox is in PATH. The lookup runs once.
func CheckSox() bool {
	soxOnce.Do(func() {
		_, err := exec.LookPath("sox")
		soxAvailable = err == nil
	})
	return soxAvailable
}

// Preprocess converts audio for the ASR and diarization services using sox:
//   - Resample to 16kHz mono WAV
//   - Keep only the first trimSeconds when trimSeconds > 0
//
// Returns the path to a temporary WAV file and a cleanup function.
// If sox is unavailable, returns the original path with a no-op cleanup.
func Preprocess(ctx context.Context, inputPath string, trimSeconds float64) (string, func(), error) {
	noop := func() {}

	if !CheckSox() {
		return inputPath, noop, nil
	}

	tmp, err := os.CreateTemp("", "speaker-align-*.wav")
	if err != nil {
		return inputPath, noop, fmt.Errorf("create temp file: %w", err)
	}
	outPath := tmp.Name()
	tmp.Close()

	args := []string{inputPath, "-r", "16000", "-c", "1", outPath}
	if trimSeconds > 0 {
		args = append(args, "trim", "0", strconv.FormatFloat(trimSeconds, 'f', -1, 64))
	}
	cmd := exec.CommandContext(ctx, "sox", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(outPath)
		return inputPath, noop, fmt.Errorf("audio conversion: sox: %w: %s", err, out)
	}

	cleanup := func() {
		os.Remove(outPath)
	}
	return outPath, cleanup, nil
}
