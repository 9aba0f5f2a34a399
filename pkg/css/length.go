package css

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePx extracts the numeric part of a pixel length like "12.5px" or a
// bare number. Percentages, auto, and other units report false.
func ParsePx(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, false
	}
	s = strings.TrimSuffix(s, "px")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FormatPx renders a length the way token sets store it, trimming trailing
// zeros so 16.0 and 16 collapse to the same token.
func FormatPx(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s + "px"
}

// FormatShadow renders a box-shadow in the canonical
// "Xpx Ypx Bpx Spx rgba(...)" form both extractors emit.
func FormatShadow(offsetX, offsetY, blur, spread float64, c Color) string {
	return fmt.Sprintf("%s %s %s %s %s",
		FormatPx(offsetX), FormatPx(offsetY), FormatPx(blur), FormatPx(spread), c.RGBA())
}
