package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/snarg/speaker-align/internal/align"
)

// ParseSegments decodes ASR segments. JSON input may be a whisper
// verbose_json document ({"segments": [...]}), a bare array of segments,
// or one segment object per line.
func ParseSegments(data []byte, format Format) ([]align.RawSegment, error) {
	switch format {
	case FormatJSON, FormatAuto:
		return parseSegmentsJSON(data)
	case FormatSRT:
		return parseCues(data, false)
	case FormatVTT:
		return parseCues(data, true)
	default:
		return nil, fmt.Errorf("format %q cannot carry ASR segments", format)
	}
}

func parseSegmentsJSON(data []byte) ([]align.RawSegment, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty segments document")
	}

	if data[0] == '[' {
		var arr []align.RawSegment
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, fmt.Errorf("decode segment array: %w", err)
		}
		return arr, nil
	}

	var doc struct {
		Segments *[]align.RawSegment `json:"segments"`
	}
	if err := json.Unmarshal(data, &doc); err == nil && doc.Segments != nil {
		return *doc.Segments, nil
	}

	// NDJSON: one segment per line.
	var out []align.RawSegment
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var seg align.RawSegment
		if err := json.Unmarshal(text, &seg); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, seg)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("no segments found in JSON")
	}
	return out, nil
}

var cueTiming = regexp.MustCompile(`^((?:\d+:)?\d{1,2}:\d{2}[.,]\d{3})\s+-->\s+((?:\d+:)?\d{1,2}:\d{2}[.,]\d{3})`)

// parseCues reads SRT or WebVTT cues. Multi-line cue text is joined with
// spaces and given a leading space, matching whisper's segment text.
func parseCues(data []byte, vtt bool) ([]align.RawSegment, error) {
	var out []align.RawSegment
	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	first := true

	var cur *align.RawSegment
	var lines []string
	finish := func() {
		if cur == nil {
			return
		}
		text := ""
		if len(lines) > 0 {
			text = " " + strings.Join(lines, " ")
		}
		cur.Text = &text
		out = append(out, *cur)
		cur, lines = nil, nil
	}

	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if first {
			first = false
			line = strings.TrimPrefix(line, "\ufeff")
			if vtt && strings.HasPrefix(strings.ToUpper(line), "WEBVTT") {
				continue
			}
		}
		if line == "" {
			finish()
			continue
		}
		if m := cueTiming.FindStringSubmatch(line); m != nil {
			finish()
			start, err := parseClock(m[1])
			if err != nil {
				return nil, &align.FormatError{Kind: "segment", Index: len(out), Field: "start", Reason: err.Error()}
			}
			end, err := parseClock(m[2])
			if err != nil {
				return nil, &align.FormatError{Kind: "segment", Index: len(out), Field: "end", Reason: err.Error()}
			}
			cur = &align.RawSegment{Start: &start, End: &end}
			continue
		}
		if cur == nil {
			// Cue numbers, NOTE blocks and headers outside a cue.
			continue
		}
		lines = append(lines, line)
	}
	finish()
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no cues found after %d lines", lineNo)
	}
	return out, nil
}

// parseClock converts [HH:]MM:SS(,|.)mmm into seconds.
func parseClock(s string) (float64, error) {
	s = strings.Replace(s, ",", ".", 1)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	secs, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("bad seconds in %q", s)
	}
	mins, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, fmt.Errorf("bad minutes in %q", s)
	}
	hours := 0
	if len(parts) == 3 {
		if hours, err = strconv.Atoi(parts[0]); err != nil {
			return 0, fmt.Errorf("bad hours in %q", s)
		}
	}
	return float64(hours*3600+mins*60) + secs, nil
}
