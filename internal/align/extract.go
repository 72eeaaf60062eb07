package align

import "math"

// ExtractTimestamps converts raw ASR segments into ordered Segments.
// Order and count are preserved; nothing is filtered or merged.
func ExtractTimestamps(raw []RawSegment) ([]Segment, error) {
	segs := make([]Segment, len(raw))
	for i, r := range raw {
		if r.Start == nil {
			return nil, &FormatError{Kind: "segment", Index: i, Field: "start", Reason: "missing"}
		}
		if r.End == nil {
			return nil, &FormatError{Kind: "segment", Index: i, Field: "end", Reason: "missing"}
		}
		if r.Text == nil {
			return nil, &FormatError{Kind: "segment", Index: i, Field: "text", Reason: "missing"}
		}
		iv, err := checkInterval("segment", i, *r.Start, *r.End)
		if err != nil {
			return nil, err
		}
		segs[i] = Segment{Interval: iv, Text: *r.Text}
	}
	return segs, nil
}

// checkInterval validates a start/end pair coming from a collaborator.
func checkInterval(kind string, i int, start, end float64) (Interval, error) {
	if math.IsNaN(start) || math.IsInf(start, 0) || start < 0 {
		return Interval{}, &FormatError{Kind: kind, Index: i, Field: "start", Reason: "must be a finite, non-negative number"}
	}
	if math.IsNaN(end) || math.IsInf(end, 0) || end < 0 {
		return Interval{}, &FormatError{Kind: kind, Index: i, Field: "end", Reason: "must be a finite, non-negative number"}
	}
	if start > end {
		return Interval{}, &FormatError{Kind: kind, Index: i, Reason: "start is after end"}
	}
	return Interval{Start: start, End: end}, nil
}
