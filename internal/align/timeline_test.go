package align

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turn(start, end float64, spk string) Turn {
	return Turn{Interval: Interval{Start: start, End: end}, Speaker: spk}
}

func iv(start, end float64) Interval { return Interval{Start: start, End: end} }

func mustTimeline(t *testing.T, turns ...Turn) *Timeline {
	t.Helper()
	tl, err := NewTimeline(turns)
	require.NoError(t, err)
	return tl
}

func TestInterval_Overlap(t *testing.T) {
	assert.Equal(t, 1.0, iv(0, 2).Overlap(iv(1, 3)))
	assert.Equal(t, 0.0, iv(0, 1).Overlap(iv(1, 2)), "touching")
	assert.Equal(t, 0.0, iv(0, 1).Overlap(iv(5, 6)), "disjoint")
	assert.Equal(t, 1.0, iv(0, 10).Overlap(iv(4, 5)), "contained")
	assert.True(t, iv(1, 2).Contains(1))
	assert.False(t, iv(1, 2).Contains(2))
}

func TestNewTimeline_SortsAndDropsEmpty(t *testing.T) {
	tl := mustTimeline(t,
		turn(5, 6, "B"),
		turn(1, 1, "Z"),
		turn(0, 2, "A"),
	)
	require.Equal(t, 2, tl.Len())
	assert.Equal(t, "A", tl.Turns()[0].Speaker)
	assert.Equal(t, "B", tl.Turns()[1].Speaker)
	assert.Equal(t, []string{"A", "B"}, tl.Speakers())
}

func TestNewTimeline_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		turn  Turn
		field string
	}{
		{"reversed", turn(2, 1, "A"), ""},
		{"negative", turn(-1, 1, "A"), "start"},
		{"nan_end", turn(0, math.NaN(), "A"), "end"},
		{"no_label", turn(0, 1, ""), "speaker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTimeline([]Turn{turn(0, 1, "OK"), tt.turn})
			var fe *FormatError
			require.True(t, errors.As(err, &fe), "want FormatError, got %v", err)
			assert.Equal(t, "turn", fe.Kind)
			assert.Equal(t, 1, fe.Index)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestTimeline_Crop(t *testing.T) {
	tl := mustTimeline(t,
		turn(0, 10, "LONG"),
		turn(2, 3, "A"),
		turn(4, 6, "B"),
		turn(12, 14, "C"),
	)

	got := tl.Crop(iv(2.5, 5))
	assert.Equal(t, []Turn{turn(2.5, 5, "LONG"), turn(2.5, 3, "A"), turn(4, 5, "B")}, got)

	assert.Empty(t, tl.Crop(iv(10, 12)), "gap between turns")
	assert.Equal(t, []Turn{turn(13, 14, "C")}, tl.Crop(iv(13, 20)))
	assert.Empty(t, tl.Crop(iv(5, 5)), "zero-length interval inside two turns")
}

func TestTimeline_Dominant(t *testing.T) {
	tl := mustTimeline(t,
		turn(0, 1, "A"),
		turn(1, 3, "B"),
		turn(3, 3.5, "A"),
		turn(3.5, 4, "A"),
	)

	spk, ok := tl.Dominant(iv(0.5, 2))
	require.True(t, ok)
	assert.Equal(t, "B", spk)

	// A totals 1.0 across two turns, B contributes 0.5.
	spk, _ = tl.Dominant(iv(2.5, 4))
	assert.Equal(t, "A", spk)

	_, ok = tl.Dominant(iv(5, 6))
	assert.False(t, ok)

	_, ok = tl.Dominant(iv(2, 2))
	assert.False(t, ok, "zero-length interval inside a turn")
}

func TestTimeline_DominantTieFirstSeenWins(t *testing.T) {
	tl := mustTimeline(t, turn(0, 1, "B"), turn(1, 2, "A"))
	spk, _ := tl.Dominant(iv(0, 2))
	assert.Equal(t, "B", spk)

	// Same start: collaborator order decides.
	tl = mustTimeline(t, turn(0, 1, "Y"), turn(0, 1, "X"))
	spk, _ = tl.Dominant(iv(0, 1))
	assert.Equal(t, "Y", spk)
}

func TestTimeline_CropMatchesLinearScan(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	var turns []Turn
	for i := 0; i < 300; i++ {
		s := r.Float64() * 600
		turns = append(turns, turn(s, s+0.1+r.Float64()*30, []string{"A", "B", "C"}[r.Intn(3)]))
	}
	tl := mustTimeline(t, turns...)

	for q := 0; q < 500; q++ {
		s := r.Float64() * 620
		query := iv(s, s+r.Float64()*10)

		want := 0
		for _, tt := range tl.Turns() {
			if tt.Overlap(query) > 0 {
				want++
			}
		}
		require.Len(t, tl.Crop(query), want, "query %v", query)
	}
}
