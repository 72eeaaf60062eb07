package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/snarg/speaker-align/internal/align"
)

// rawTurn is one diarization entry as emitted by a pyannote-style sidecar.
type rawTurn struct {
	Start   *float64 `json:"start"`
	End     *float64 `json:"end"`
	Speaker *string  `json:"speaker"`
	Label   *string  `json:"label"`
}

// TurnsDocument is the JSON envelope returned by diarization services.
type TurnsDocument struct {
	Segments []rawTurn `json:"segments"`
	Error    string    `json:"error,omitempty"`
}

// ParseTurns decodes diarization turns from JSON ({"segments": [...]} or a
// bare array) or RTTM.
func ParseTurns(data []byte, format Format) ([]align.Turn, error) {
	switch format {
	case FormatJSON, FormatAuto:
		return parseTurnsJSON(data)
	case FormatRTTM:
		return parseRTTM(data)
	default:
		return nil, fmt.Errorf("format %q cannot carry speaker turns", format)
	}
}

func parseTurnsJSON(data []byte) ([]align.Turn, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty diarization document")
	}

	var raws []rawTurn
	if data[0] == '[' {
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("decode turn array: %w", err)
		}
	} else {
		var doc TurnsDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode diarization: %w", err)
		}
		if doc.Error != "" {
			return nil, fmt.Errorf("diarization error: %s", doc.Error)
		}
		raws = doc.Segments
	}
	return convertTurns(raws)
}

func convertTurns(raws []rawTurn) ([]align.Turn, error) {
	turns := make([]align.Turn, len(raws))
	for i, r := range raws {
		if r.Start == nil {
			return nil, &align.FormatError{Kind: "turn", Index: i, Field: "start", Reason: "missing"}
		}
		if r.End == nil {
			return nil, &align.FormatError{Kind: "turn", Index: i, Field: "end", Reason: "missing"}
		}
		spk := r.Speaker
		if spk == nil {
			spk = r.Label
		}
		if spk == nil {
			return nil, &align.FormatError{Kind: "turn", Index: i, Field: "speaker", Reason: "missing"}
		}
		turns[i] = align.Turn{
			Interval: align.Interval{Start: *r.Start, End: *r.End},
			Speaker:  *spk,
		}
	}
	return turns, nil
}

// parseRTTM reads SPEAKER records:
//
//	SPEAKER <file> <chan> <onset> <duration> <NA> <NA> <label> <NA> <NA>
func parseRTTM(data []byte) ([]align.Turn, error) {
	var turns []align.Turn
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], ";;") || fields[0] != "SPEAKER" {
			continue
		}
		if len(fields) < 8 {
			return nil, &align.FormatError{Kind: "turn", Index: len(turns), Reason: fmt.Sprintf("rttm line %d: expected at least 8 fields", line)}
		}
		onset, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, &align.FormatError{Kind: "turn", Index: len(turns), Field: "onset", Reason: fmt.Sprintf("rttm line %d: %v", line, err)}
		}
		dur, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, &align.FormatError{Kind: "turn", Index: len(turns), Field: "duration", Reason: fmt.Sprintf("rttm line %d: %v", line, err)}
		}
		turns = append(turns, align.Turn{
			Interval: align.Interval{Start: onset, End: onset + dur},
			Speaker:  fields[7],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return turns, nil
}
