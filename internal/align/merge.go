package align

import (
	"strings"
	"unicode/utf8"
)

// DefaultTerminators are the characters that close a sentence.
const DefaultTerminators = ".?!"

// MergeOptions tunes sentence merging.
type MergeOptions struct {
	// Terminators overrides DefaultTerminators when non-empty.
	Terminators string
}

// mergeState is the value threaded through the merge fold: the pending
// buffer and the speaker of the previous segment.
type mergeState struct {
	pending []Tagged
	prev    string
	hasPrev bool
}

// MergeSentences collapses tagged segments into utterances. Each segment is
// handled by the first matching rule:
//
//  1. speaker differs from the previous one and the buffer is non-empty:
//     flush the buffer, start a new one holding the segment
//  2. text ends with a terminator: buffer the segment and flush
//  3. otherwise: buffer the segment
//
// Whatever remains buffered is flushed at the end. Rule 1 takes precedence
// over rule 2, so a speaker switch always closes the open utterance even
// mid-sentence.
func MergeSentences(tagged []Tagged, opts MergeOptions) []Utterance {
	terms := opts.Terminators
	if terms == "" {
		terms = DefaultTerminators
	}

	var out []Utterance
	var st mergeState
	for _, t := range tagged {
		var u Utterance
		var emitted bool
		st, u, emitted = st.step(t, terms)
		if emitted {
			out = append(out, u)
		}
	}
	if len(st.pending) > 0 {
		out = append(out, flush(st.pending))
	}
	return out
}

// step applies one segment to the state. At most one utterance is emitted.
func (st mergeState) step(t Tagged, terms string) (mergeState, Utterance, bool) {
	switch {
	case st.hasPrev && t.Speaker != st.prev && len(st.pending) > 0:
		u := flush(st.pending)
		return mergeState{pending: []Tagged{t}, prev: t.Speaker, hasPrev: true}, u, true

	case endsSentence(t.Text, terms):
		u := flush(append(st.pending, t))
		return mergeState{prev: t.Speaker, hasPrev: true}, u, true

	default:
		return mergeState{pending: append(st.pending, t), prev: t.Speaker, hasPrev: true}, Utterance{}, false
	}
}

// endsSentence reports whether the last character of text is a terminator.
// Empty text never ends a sentence.
func endsSentence(text, terms string) bool {
	if text == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text)
	return strings.ContainsRune(terms, r)
}

func flush(buf []Tagged) Utterance {
	var b strings.Builder
	for _, t := range buf {
		b.WriteString(t.Text)
	}
	return Utterance{
		Interval: Interval{Start: buf[0].Start, End: buf[len(buf)-1].End},
		Speaker:  buf[0].Speaker,
		Text:     b.String(),
	}
}
