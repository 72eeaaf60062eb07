package align

// TagSpeakers assigns each segment the dominant speaker of its interval.
// Segments with no diarization coverage get unknownLabel (UnknownSpeaker when
// empty) and a NoOverlapWarning. Output order and count match segs.
func TagSpeakers(segs []Segment, tl *Timeline, unknownLabel string) ([]Tagged, []NoOverlapWarning) {
	if unknownLabel == "" {
		unknownLabel = UnknownSpeaker
	}

	tagged := make([]Tagged, len(segs))
	var warnings []NoOverlapWarning
	for i, s := range segs {
		spk, ok := tl.Dominant(s.Interval)
		if !ok {
			spk = unknownLabel
			warnings = append(warnings, NoOverlapWarning{Index: i, Interval: s.Interval})
		}
		tagged[i] = Tagged{Interval: s.Interval, Speaker: spk, Text: s.Text}
	}
	return tagged, warnings
}
