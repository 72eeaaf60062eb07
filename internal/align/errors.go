package align

import "fmt"

// FormatError reports malformed segment or turn input. It aborts alignment.
type FormatError struct {
	Kind   string // "segment" or "turn"
	Index  int
	Field  string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s %d: field %q: %s", e.Kind, e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %d: %s", e.Kind, e.Index, e.Reason)
}

// NoOverlapWarning records a segment that no diarization turn covers.
// The segment still receives the unknown-speaker label; the warning is informational.
type NoOverlapWarning struct {
	Index    int      `json:"index"`
	Interval Interval `json:"interval"`
}

func (w NoOverlapWarning) Error() string {
	return fmt.Sprintf("segment %d [%.3f, %.3f]: no speaker turn overlaps", w.Index, w.Interval.Start, w.Interval.End)
}
