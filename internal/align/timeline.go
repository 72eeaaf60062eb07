package align

import "sort"

// Timeline is a diarization result indexed by turn start time.
// It answers "crop to interval, return dominant label" queries.
type Timeline struct {
	turns []Turn
	// maxEnd[i] is the largest End among turns[0..i]. It lets a crop stop
	// walking backwards once no earlier turn can reach the query start.
	maxEnd []float64
}

// NewTimeline validates turns and builds a sorted index over them.
// Zero-length turns carry no speech and are dropped. Turns sharing a start
// keep the collaborator's order.
func NewTimeline(turns []Turn) (*Timeline, error) {
	kept := make([]Turn, 0, len(turns))
	for i, t := range turns {
		iv, err := checkInterval("turn", i, t.Start, t.End)
		if err != nil {
			return nil, err
		}
		if t.Speaker == "" {
			return nil, &FormatError{Kind: "turn", Index: i, Field: "speaker", Reason: "missing"}
		}
		if iv.Duration() == 0 {
			continue
		}
		kept = append(kept, Turn{Interval: iv, Speaker: t.Speaker})
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Start < kept[j].Start
	})

	maxEnd := make([]float64, len(kept))
	for i, t := range kept {
		maxEnd[i] = t.End
		if i > 0 && maxEnd[i-1] > t.End {
			maxEnd[i] = maxEnd[i-1]
		}
	}
	return &Timeline{turns: kept, maxEnd: maxEnd}, nil
}

// Len returns the number of indexed turns.
func (tl *Timeline) Len() int { return len(tl.turns) }

// Turns returns the indexed turns in timeline order.
func (tl *Timeline) Turns() []Turn { return tl.turns }

// Speakers returns the distinct labels in order of first appearance.
func (tl *Timeline) Speakers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range tl.turns {
		if !seen[t.Speaker] {
			seen[t.Speaker] = true
			out = append(out, t.Speaker)
		}
	}
	return out
}

// Crop returns the turns that intersect iv, clipped to iv, in timeline order.
// A zero-length iv has no extent and intersects nothing.
func (tl *Timeline) Crop(iv Interval) []Turn {
	if iv.Duration() == 0 {
		return nil
	}

	// Candidates are the turns starting before iv ends.
	hi := sort.Search(len(tl.turns), func(i int) bool {
		return tl.turns[i].Start >= iv.End
	})

	var idx []int
	for i := hi - 1; i >= 0 && tl.maxEnd[i] > iv.Start; i-- {
		if tl.turns[i].Overlap(iv) > 0 {
			idx = append(idx, i)
		}
	}

	out := make([]Turn, 0, len(idx))
	for k := len(idx) - 1; k >= 0; k-- {
		t := tl.turns[idx[k]]
		if t.Start < iv.Start {
			t.Start = iv.Start
		}
		if t.End > iv.End {
			t.End = iv.End
		}
		out = append(out, t)
	}
	return out
}

// Dominant returns the label with the largest total overlap with iv.
// Equal totals go to the label seen first while walking the cropped turns in
// timeline order. ok is false when no turn intersects iv.
func (tl *Timeline) Dominant(iv Interval) (label string, ok bool) {
	cropped := tl.Crop(iv)
	if len(cropped) == 0 {
		return "", false
	}

	totals := make(map[string]float64, len(cropped))
	var order []string
	for _, t := range cropped {
		if _, seen := totals[t.Speaker]; !seen {
			order = append(order, t.Speaker)
		}
		totals[t.Speaker] += t.Duration()
	}

	best := order[0]
	for _, spk := range order[1:] {
		if totals[spk] > totals[best] {
			best = spk
		}
	}
	return best, true
}
