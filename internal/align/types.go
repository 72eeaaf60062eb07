package align

// UnknownSpeaker is the label assigned to segments that no diarization turn covers.
const UnknownSpeaker = "UNKNOWN"

// Interval is a closed time span in seconds. Start <= End.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start.
func (iv Interval) Duration() float64 {
	return iv.End - iv.Start
}

// Overlap returns the length of the intersection of two intervals.
// Touching or disjoint intervals overlap by 0.
func (iv Interval) Overlap(o Interval) float64 {
	lo := iv.Start
	if o.Start > lo {
		lo = o.Start
	}
	hi := iv.End
	if o.End < hi {
		hi = o.End
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// RawSegment is an ASR segment as decoded from a collaborator payload.
// Nil fields mean the field was missing.
type RawSegment struct {
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
	Text  *string  `json:"text"`
}

// Segment is a timestamped run of recognized text with no speaker yet.
type Segment struct {
	Interval
	Text string `json:"text"`
}

// Turn is a diarization interval attributed to one speaker label.
type Turn struct {
	Interval
	Speaker string `json:"speaker"`
}

// Tagged is a Segment after its dominant speaker has been resolved.
type Tagged struct {
	Interval
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Utterance is a merged, speaker-attributed span of text. Its interval runs
// from the start of its first constituent to the end of its last.
type Utterance struct {
	Interval
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}
