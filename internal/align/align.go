// Package align merges ASR segments with diarization turns into
// speaker-attributed utterances.
//
// Alignment runs in three ordered stages: timestamp extraction, speaker
// tagging and sentence merging. It is pure and synchronous; callers must have
// both the ASR and the diarization result in hand before starting.
package align

// Options configures a full alignment run.
type Options struct {
	// UnknownSpeaker labels segments with no diarization coverage.
	// Defaults to UnknownSpeaker.
	UnknownSpeaker string
	Merge          MergeOptions
}

// Result holds the output of every stage.
type Result struct {
	Segments   []Segment          `json:"-"`
	Tagged     []Tagged           `json:"-"`
	Utterances []Utterance        `json:"utterances"`
	Warnings   []NoOverlapWarning `json:"warnings,omitempty"`
	Speakers   []string           `json:"speakers"`
}

// Align extracts timestamps from raw, tags each segment with its dominant
// speaker from turns, and merges the tagged run into utterances.
// It returns a *FormatError when either input is malformed.
func Align(raw []RawSegment, turns []Turn, opts Options) (*Result, error) {
	segs, err := ExtractTimestamps(raw)
	if err != nil {
		return nil, err
	}
	tl, err := NewTimeline(turns)
	if err != nil {
		return nil, err
	}
	return AlignSegments(segs, tl, opts), nil
}

// AlignSegments runs tagging and merging over already extracted segments.
func AlignSegments(segs []Segment, tl *Timeline, opts Options) *Result {
	tagged, warnings := TagSpeakers(segs, tl, opts.UnknownSpeaker)
	utts := MergeSentences(tagged, opts.Merge)
	return &Result{
		Segments:   segs,
		Tagged:     tagged,
		Utterances: utts,
		Warnings:   warnings,
		Speakers:   speakersOf(utts),
	}
}

func speakersOf(utts []Utterance) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, u := range utts {
		if !seen[u.Speaker] {
			seen[u.Speaker] = true
			out = append(out, u.Speaker)
		}
	}
	return out
}
