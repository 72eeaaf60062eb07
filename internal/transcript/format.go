// Package transcript decodes ASR segment files and diarization turn files
// into the inputs of the alignment engine.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/snarg/speaker-align/internal/align"
)

// Format identifies an input encoding.
type Format string

const (
	FormatAuto Format = ""
	FormatJSON Format = "json" // whisper verbose_json, bare array or NDJSON
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatRTTM Format = "rttm"
)

// ParseFormat validates a user-supplied format name. Empty means auto-detect.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatAuto, FormatJSON, FormatSRT, FormatVTT, FormatRTTM:
		return f, nil
	case "ndjson", "jsonl":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown input format %q", s)
	}
}

// DetectFormat picks a format from the file extension, defaulting to JSON.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".srt":
		return FormatSRT
	case ".vtt":
		return FormatVTT
	case ".rttm":
		return FormatRTTM
	default:
		return FormatJSON
	}
}

// LoadSegments reads an ASR segment file. FormatAuto detects from the extension.
func LoadSegments(path string, format Format) ([]align.RawSegment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if format == FormatAuto {
		format = DetectFormat(path)
	}
	segs, err := ParseSegments(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return segs, nil
}

// LoadTurns reads a diarization file. FormatAuto detects from the extension.
func LoadTurns(path string, format Format) ([]align.Turn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if format == FormatAuto {
		format = DetectFormat(path)
	}
	turns, err := ParseTurns(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return turns, nil
}
