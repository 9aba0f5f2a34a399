package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Weights distribute the overall similarity score across the analysis
// categories. Only enabled categories count; weights are renormalized over
// the enabled subset at scoring time.
type Weights struct {
	Layout  float64 `json:"layout" yaml:"layout"`
	Color   float64 `json:"color" yaml:"color"`
	Text    float64 `json:"text" yaml:"text"`
	Spacing float64 `json:"spacing" yaml:"spacing"`
}

// ComparisonSettings drive matching, deviation generation, and scoring.
// Threshold is the minimum composite similarity for two elements to be
// considered a match. ColorTolerance is the per-channel difference (0-255)
// below which two colors count as equal.
type ComparisonSettings struct {
	Threshold           float64 `json:"threshold" yaml:"threshold"`
	ColorTolerance      int     `json:"colorTolerance" yaml:"colorTolerance"`
	ColorAnalysis       bool    `json:"colorAnalysis" yaml:"colorAnalysis"`
	LayoutAnalysis      bool    `json:"layoutAnalysis" yaml:"layoutAnalysis"`
	SpacingAnalysis     bool    `json:"spacingAnalysis" yaml:"spacingAnalysis"`
	IncludeTextAnalysis bool    `json:"includeTextAnalysis" yaml:"includeTextAnalysis"`
	IgnoreAntiAliasing  bool    `json:"ignoreAntiAliasing" yaml:"ignoreAntiAliasing"`
	Weights             Weights `json:"weights" yaml:"weights"`
}

// DefaultSettings returns the tolerances used when the caller supplies
// nothing.
func DefaultSettings() ComparisonSettings {
	return ComparisonSettings{
		Threshold:           0.7,
		ColorTolerance:      10,
		ColorAnalysis:       true,
		LayoutAnalysis:      true,
		SpacingAnalysis:     true,
		IncludeTextAnalysis: true,
		IgnoreAntiAliasing:  true,
		Weights: Weights{
			Layout:  0.35,
			Color:   0.30,
			Text:    0.20,
			Spacing: 0.15,
		},
	}
}

// Validate checks ranges and returns every violation found.
func (s ComparisonSettings) Validate() []error {
	var errs []error
	if s.Threshold < 0 || s.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold %v outside [0,1]", s.Threshold))
	}
	if s.ColorTolerance < 0 || s.ColorTolerance > 255 {
		errs = append(errs, fmt.Errorf("colorTolerance %d outside [0,255]", s.ColorTolerance))
	}
	for _, w := range []struct {
		name string
		v    float64
	}{
		{"layout", s.Weights.Layout},
		{"color", s.Weights.Color},
		{"text", s.Weights.Text},
		{"spacing", s.Weights.Spacing},
	} {
		if w.v < 0 {
			errs = append(errs, fmt.Errorf("negative %s weight %v", w.name, w.v))
		}
	}
	if s.Weights.Layout+s.Weights.Color+s.Weights.Text+s.Weights.Spacing == 0 {
		errs = append(errs, fmt.Errorf("all weights zero"))
	}
	return errs
}

// Hash returns a stable digest of the settings, suitable for keying an
// external result cache by (url pair, settings hash). The encoding is a
// fixed field order, so the digest does not depend on map iteration or
// JSON library behavior.
func (s ComparisonSettings) Hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "t=%.6f;ct=%d;ca=%t;la=%t;sa=%t;ta=%t;aa=%t;w=%.6f,%.6f,%.6f,%.6f",
		s.Threshold, s.ColorTolerance,
		s.ColorAnalysis, s.LayoutAnalysis, s.SpacingAnalysis,
		s.IncludeTextAnalysis, s.IgnoreAntiAliasing,
		s.Weights.Layout, s.Weights.Color, s.Weights.Text, s.Weights.Spacing)
	return hex.EncodeToString(h.Sum(nil))
}
