// Package css parses and normalizes the small subset of CSS values the
// extraction pipeline compares: colors, pixel lengths, and shadow strings.
// Both the Figma and web extractors emit values through this package so the
// comparison engine always sees one canonical form.
package css

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Color is an 8-bit RGBA color. A of 255 means fully opaque.
type Color struct {
	R, G, B, A uint8
}

var keywords = map[string]Color{
	"transparent": {0, 0, 0, 0},
	"black":       {0, 0, 0, 255},
	"white":       {255, 255, 255, 255},
	"red":         {255, 0, 0, 255},
	"green":       {0, 128, 0, 255},
	"blue":        {0, 0, 255, 255},
	"yellow":      {255, 255, 0, 255},
	"orange":      {255, 165, 0, 255},
	"purple":      {128, 0, 128, 255},
	"gray":        {128, 128, 128, 255},
	"grey":        {128, 128, 128, 255},
}

// ParseColor parses hex (#rgb, #rrggbb, #rrggbbaa), rgb()/rgba() functional
// notation, and the common keywords. The second return is false when the
// value is not a recognizable color.
func ParseColor(s string) (Color, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Color{}, false
	}
	if c, ok := keywords[s]; ok {
		return c, true
	}
	if strings.HasPrefix(s, "#") {
		return parseHex(s[1:])
	}
	if strings.HasPrefix(s, "rgb(") || strings.HasPrefix(s, "rgba(") {
		return parseRGBFunc(s)
	}
	return Color{}, false
}

func parseHex(hex string) (Color, bool) {
	switch len(hex) {
	case 3:
		var b strings.Builder
		for _, r := range hex {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		hex = b.String()
	case 6, 8:
	default:
		return Color{}, false
	}
	v, err := strconv.ParseUint(hex[:6], 16, 32)
	if err != nil {
		return Color{}, false
	}
	c := Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
	if len(hex) == 8 {
		a, err := strconv.ParseUint(hex[6:8], 16, 16)
		if err != nil {
			return Color{}, false
		}
		c.A = uint8(a)
	}
	return c, true
}

func parseRGBFunc(s string) (Color, bool) {
	open := strings.IndexByte(s, '(')
	close := strings.LastIndexByte(s, ')')
	if open < 0 || close <= open {
		return Color{}, false
	}
	parts := strings.Split(s[open+1:close], ",")
	if len(parts) != 3 && len(parts) != 4 {
		return Color{}, false
	}
	var ch [3]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return Color{}, false
		}
		ch[i] = clampChannel(v)
	}
	c := Color{R: ch[0], G: ch[1], B: ch[2], A: 255}
	if len(parts) == 4 {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil {
			return Color{}, false
		}
		c.A = clampChannel(a * 255)
	}
	return c, true
}

func clampChannel(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(math.Round(v))
}

// FromFloats converts normalized 0..1 channel values, the form Figma's API
// uses, into a Color.
func FromFloats(r, g, b, a float64) Color {
	return Color{
		R: clampChannel(r * 255),
		G: clampChannel(g * 255),
		B: clampChannel(b * 255),
		A: clampChannel(a * 255),
	}
}

// Hex renders the color as lowercase #rrggbb, dropping alpha.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// RGBA renders the color as rgba(r, g, b, a) with alpha as a 0..1 fraction.
func (c Color) RGBA() string {
	a := float64(c.A) / 255
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", c.R, c.G, c.B, formatAlpha(a))
}

// String picks the canonical form used in token sets: opaque colors render
// as hex, translucent ones as rgba.
func (c Color) String() string {
	if c.A == 255 {
		return c.Hex()
	}
	return c.RGBA()
}

func formatAlpha(a float64) string {
	s := strconv.FormatFloat(a, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" {
		return "0"
	}
	return s
}

// Distance returns the largest per-channel difference between two colors,
// ignoring alpha. Two colors are within a tolerance when Distance <= tol.
func Distance(a, b Color) int {
	d := absDiff(a.R, b.R)
	if g := absDiff(a.G, b.G); g > d {
		d = g
	}
	if bl := absDiff(a.B, b.B); bl > d {
		d = bl
	}
	return d
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a) - int(b)
	}
	return int(b) - int(a)
}

// QuantizeAA rounds each channel to the nearest multiple of 8, collapsing
// the tiny channel jitter anti-aliased rendering introduces at glyph and
// border edges.
func QuantizeAA(c Color) Color {
	return Color{
		R: roundTo(c.R, 8),
		G: roundTo(c.G, 8),
		B: roundTo(c.B, 8),
		A: c.A,
	}
}

func roundTo(v uint8, step int) uint8 {
	r := (int(v) + step/2) / step * step
	if r > 255 {
		r = 255
	}
	return uint8(r)
}

// Normalize parses a color value and re-renders it canonically. Values that
// do not parse come back unchanged so unknown notations still compare as
// raw strings.
func Normalize(s string) string {
	if c, ok := ParseColor(s); ok {
		return c.String()
	}
	return strings.TrimSpace(s)
}
