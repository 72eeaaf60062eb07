package render

import (
	"fmt"
	"math"
)

// splitMillis rounds seconds to whole milliseconds and splits the result.
// Rounding the total rather than the fraction keeps 1.9996 from printing as
// ",1000".
func splitMillis(sec float64) (h, m, s, ms int64) {
	if sec < 0 || math.IsNaN(sec) {
		sec = 0
	}
	total := int64(math.Round(sec * 1000))
	ms = total % 1000
	total /= 1000
	s = total % 60
	total /= 60
	m = total % 60
	h = total / 60
	return
}

// SRTTime formats seconds as HH:MM:SS,mmm.
func SRTTime(sec float64) string {
	h, m, s, ms := splitMillis(sec)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// VTTTime formats seconds as HH:MM:SS.mmm.
func VTTTime(sec float64) string {
	h, m, s, ms := splitMillis(sec)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// Clock formats seconds as HH:MM:SS, dropping milliseconds.
func Clock(sec float64) string {
	h, m, s, _ := splitMillis(math.Floor(math.Max(sec, 0)))
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ShortClock formats seconds as MM:SS, or H:MM:SS from one hour on.
func ShortClock(sec float64) string {
	h, m, s, _ := splitMillis(math.Floor(math.Max(sec, 0)))
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
