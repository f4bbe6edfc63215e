package overlay

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/pinup/protocol"
)

// MaxElementText is the number of runes of element text sent with a click.
const MaxElementText = 100

// Position returns the document-space point for a relative click position
// on an element box measured at the given scroll offset.
func Position(r Rect, scrollX, scrollY float64, clickX, clickY int) (x, y float64) {
	x = r.Left + scrollX + r.Width*float64(clickX)/100
	y = r.Top + scrollY + r.Height*float64(clickY)/100
	return x, y
}

// Relative converts a client coordinate to a percentage of the box extent,
// rounded and clamped to 0–100. Degenerate boxes yield 0.
func Relative(client, start, extent float64) int {
	if extent <= 0 || math.IsNaN(extent) || math.IsInf(extent, 0) {
		return 0
	}
	v := math.Round(100 * (client - start) / extent)
	if math.IsNaN(v) {
		return 0
	}
	// Clamp before converting: int of an out-of-range float is undefined.
	v = math.Max(0, math.Min(100, v))
	return protocol.ClampPercent(int(v))
}

// Excerpt trims s and cuts it to at most n runes.
func Excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
