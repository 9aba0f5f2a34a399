// Package pixeldiff compares two raster screenshots pixel by pixel and
// reports a similarity ratio plus an optional rendered diff image. It is
// the secondary comparison path, independent of element extraction.
package pixeldiff

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"log/slog"

	"github.com/gnana997/designparity/pkg/fault"
)

// DimensionPolicy decides what happens when the two images differ in size.
type DimensionPolicy string

const (
	// PolicyReject refuses mismatched dimensions outright.
	PolicyReject DimensionPolicy = "reject"
	// PolicyOverlap compares the overlapping region and counts every
	// pixel outside it as differing.
	PolicyOverlap DimensionPolicy = "overlap"
)

// Options control one comparison. Threshold is the per-channel difference
// (0-255) up to which two pixels still count as matching.
type Options struct {
	Threshold        int             `json:"threshold"`
	IncludePixelDiff bool            `json:"includePixelDiff"`
	DimensionPolicy  DimensionPolicy `json:"dimensionPolicy"`
}

// DefaultOptions returns the comparison defaults: a small anti-aliasing
// allowance and overlap handling for mismatched sizes.
func DefaultOptions() Options {
	return Options{
		Threshold:       10,
		DimensionPolicy: PolicyOverlap,
	}
}

// Result is the outcome of one pixel comparison. Width and Height describe
// the compared canvas, which is the union of both images under the
// overlap policy. DiffImage is PNG bytes when requested, nil otherwise.
type Result struct {
	Similarity        float64 `json:"similarity"`
	PixelCount        int     `json:"pixelCount"`
	Percentage        float64 `json:"percentage"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	DimensionMismatch bool    `json:"dimensionMismatch"`
	DiffImage         []byte  `json:"-"`
}

// Comparator runs pixel comparisons.
type Comparator struct {
	log *slog.Logger
}

func New(logger *slog.Logger) *Comparator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Comparator{log: logger}
}

var diffRed = color.RGBA{R: 255, A: 255}

// Compare decodes both buffers (PNG or JPEG) and counts pixels whose
// channel difference exceeds the threshold. Output depends only on the
// inputs; identical calls produce identical results.
func (c *Comparator) Compare(a, b []byte, opts Options) (*Result, error) {
	if opts.Threshold < 0 || opts.Threshold > 255 {
		return nil, fault.New(fault.Validation, fault.Configuration, "pixel threshold %d outside [0,255]", opts.Threshold)
	}
	policy := opts.DimensionPolicy
	if policy == "" {
		policy = PolicyOverlap
	}
	if policy != PolicyReject && policy != PolicyOverlap {
		return nil, fault.New(fault.Validation, fault.Configuration, "unknown dimension policy %q", policy)
	}

	imgA, _, err := image.Decode(bytes.NewReader(a))
	if err != nil {
		return nil, fault.Wrap(fault.Validation, fault.Configuration, err, "decode first image")
	}
	imgB, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fault.Wrap(fault.Validation, fault.Configuration, err, "decode second image")
	}

	boundsA, boundsB := imgA.Bounds(), imgB.Bounds()
	wa, ha := boundsA.Dx(), boundsA.Dy()
	wb, hb := boundsB.Dx(), boundsB.Dy()
	mismatch := wa != wb || ha != hb
	if mismatch && policy == PolicyReject {
		return nil, fault.New(fault.Validation, fault.Configuration,
			"image dimensions differ: %dx%d vs %dx%d", wa, ha, wb, hb)
	}

	width, height := maxInt(wa, wb), maxInt(ha, hb)
	overlapW, overlapH := minInt(wa, wb), minInt(ha, hb)
	total := width * height
	if total == 0 {
		return nil, fault.New(fault.Validation, fault.Configuration, "empty image")
	}

	var diff *image.RGBA
	if opts.IncludePixelDiff {
		diff = image.NewRGBA(image.Rect(0, 0, width, height))
	}

	differing := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x >= overlapW || y >= overlapH {
				differing++
				if diff != nil {
					diff.SetRGBA(x, y, diffRed)
				}
				continue
			}
			pa := imgA.At(boundsA.Min.X+x, boundsA.Min.Y+y)
			pb := imgB.At(boundsB.Min.X+x, boundsB.Min.Y+y)
			if pixelsDiffer(pa, pb, uint32(opts.Threshold)) {
				differing++
				if diff != nil {
					diff.SetRGBA(x, y, diffRed)
				}
				continue
			}
			if diff != nil {
				diff.SetRGBA(x, y, dimmed(pa))
			}
		}
	}

	res := &Result{
		Similarity:        float64(total-differing) / float64(total),
		PixelCount:        differing,
		Percentage:        float64(differing) / float64(total) * 100,
		Width:             width,
		Height:            height,
		DimensionMismatch: mismatch,
	}
	if diff != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, diff); err != nil {
			return nil, fault.Wrap(fault.Comparison, fault.Infrastructure, err, "encode diff image")
		}
		res.DiffImage = buf.Bytes()
	}

	c.log.Debug("pixel comparison finished",
		slog.Int("width", width),
		slog.Int("height", height),
		slog.Int("differing", differing),
		slog.Float64("similarity", res.Similarity))
	return res, nil
}

// pixelsDiffer reports whether any channel of two pixels differs by more
// than the threshold. Channels compare at 8-bit depth.
func pixelsDiffer(a, b color.Color, threshold uint32) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return channelDiff(ar, br) > threshold ||
		channelDiff(ag, bg) > threshold ||
		channelDiff(ab, bb) > threshold ||
		channelDiff(aa, ba) > threshold
}

func channelDiff(a, b uint32) uint32 {
	a >>= 8
	b >>= 8
	if a > b {
		return a - b
	}
	return b - a
}

// dimmed renders a matching pixel at a third of its brightness so the red
// mismatch marks stand out in the diff image.
func dimmed(c color.Color) color.RGBA {
	r, g, b, _ := c.RGBA()
	return color.RGBA{
		R: uint8((r >> 8) / 3),
		G: uint8((g >> 8) / 3),
		B: uint8((b >> 8) / 3),
		A: 255,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
