// Package compare implements the design-comparison engine: it pairs
// elements across a Figma extraction and a web extraction by composite
// similarity, emits categorized deviations for every matched pair plus
// missing/extra records for the unmatched rest, and scores the overall
// agreement. Output is deterministic: identical inputs produce identical
// matches, deviations, and score.
package compare

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/gnana997/designparity/pkg/css"
	"github.com/gnana997/designparity/pkg/fault"
	"github.com/gnana997/designparity/pkg/schema"
)

// Pixel tolerances for the deviation ladder. Color tolerance comes from
// the settings; these cover the length-valued property groups.
const (
	layoutTolerancePx   = 5.0
	spacingTolerancePx  = 4.0
	fontSizeTolerancePx = 2.0
	fontWeightTolerance = 100.0
)

var (
	colorProps   = []string{schema.PropBackgroundColor, schema.PropColor, schema.PropBorderColor}
	layoutProps  = []string{schema.PropX, schema.PropY, schema.PropWidth, schema.PropHeight}
	spacingProps = []string{
		schema.PropPaddingTop, schema.PropPaddingRight,
		schema.PropPaddingBottom, schema.PropPaddingLeft,
		schema.PropGap, schema.PropBorderRadius,
	}
)

// Engine compares two extraction results under one settings object.
// Construct with New; the zero value rejects everything.
type Engine struct {
	settings schema.ComparisonSettings
	log      *slog.Logger
	now      func() time.Time
}

// New validates the settings and returns a ready engine.
func New(settings schema.ComparisonSettings, logger *slog.Logger) (*Engine, error) {
	if errs := settings.Validate(); len(errs) > 0 {
		return nil, fault.Wrap(fault.Validation, fault.Configuration, errors.Join(errs...), "comparison settings")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{settings: settings, log: logger, now: time.Now}, nil
}

// candidate is one potential pairing above the match threshold. Indices
// are positions in the flattened document-order element lists.
type candidate struct {
	fi, wi int
	sim    float64
}

// Compare pairs the two element trees, generates deviations, and scores
// overall similarity. Either side may be empty; nil results are rejected.
func (e *Engine) Compare(figma, web *schema.ExtractionResult) (*schema.ComparisonResult, error) {
	if figma == nil || web == nil {
		return nil, fault.New(fault.Comparison, fault.Infrastructure, "comparison requires two extraction results")
	}

	figmaEls := schema.Flatten(figma.Elements)
	webEls := schema.Flatten(web.Elements)

	picked, figmaUsed, webUsed := e.match(figmaEls, webEls)

	matches := make([]schema.Match, 0, len(picked))
	deviations := make([]schema.Deviation, 0)
	for _, c := range picked {
		matches = append(matches, schema.Match{
			FigmaID:    figmaEls[c.fi].ID,
			WebID:      webEls[c.wi].ID,
			Similarity: c.sim,
		})
		deviations = append(deviations, e.pairDeviations(figmaEls[c.fi], webEls[c.wi])...)
	}
	for i, el := range figmaEls {
		if figmaUsed[i] {
			continue
		}
		deviations = append(deviations, schema.Deviation{
			Type:      schema.DeviationMissing,
			Severity:  schema.SeverityHigh,
			Message:   fmt.Sprintf("design element %s (%s) has no web counterpart", el.ID, describeElement(el)),
			ElementID: el.ID,
		})
	}
	for i, el := range webEls {
		if webUsed[i] {
			continue
		}
		deviations = append(deviations, schema.Deviation{
			Type:      schema.DeviationExtra,
			Severity:  schema.SeverityLow,
			Message:   fmt.Sprintf("web element %s (%s) has no design counterpart", el.ID, describeElement(el)),
			ElementID: el.ID,
		})
	}

	overall := e.score(len(picked), maxInt(len(figmaEls), len(webEls)), deviations)

	result := &schema.ComparisonResult{
		Matches:           matches,
		Deviations:        deviations,
		OverallSimilarity: overall,
		Metadata: schema.ComparisonMetadata{
			ComparedAt:    e.now(),
			FigmaElements: len(figmaEls),
			WebElements:   len(webEls),
			MatchedPairs:  len(picked),
			SettingsHash:  e.settings.Hash(),
			FigmaError:    figma.Metadata.Error,
			WebError:      web.Metadata.Error,
		},
	}
	e.log.Info("comparison finished",
		slog.Int("matches", len(matches)),
		slog.Int("deviations", len(deviations)),
		slog.Float64("similarity", overall))
	return result, nil
}

// match runs greedy selection on descending similarity. Ties break by
// Figma document order, then web order, so the pairing is stable. Each
// element lands in at most one pair; pairs below the threshold are never
// candidates.
func (e *Engine) match(figmaEls, webEls []*schema.Element) ([]candidate, []bool, []bool) {
	var cands []candidate
	for fi, f := range figmaEls {
		for wi, w := range webEls {
			if sim := e.similarity(f, w); sim >= e.settings.Threshold {
				cands = append(cands, candidate{fi: fi, wi: wi, sim: sim})
			}
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].sim != cands[j].sim {
			return cands[i].sim > cands[j].sim
		}
		if cands[i].fi != cands[j].fi {
			return cands[i].fi < cands[j].fi
		}
		return cands[i].wi < cands[j].wi
	})

	figmaUsed := make([]bool, len(figmaEls))
	webUsed := make([]bool, len(webEls))
	var picked []candidate
	for _, c := range cands {
		if figmaUsed[c.fi] || webUsed[c.wi] {
			continue
		}
		figmaUsed[c.fi] = true
		webUsed[c.wi] = true
		picked = append(picked, c)
	}
	sort.Slice(picked, func(i, j int) bool { return picked[i].fi < picked[j].fi })
	return picked, figmaUsed, webUsed
}

// pairDeviations compares the enabled property groups of one matched pair.
// Properties present on only one side are skipped; absence is not a
// difference the renderer can show.
func (e *Engine) pairDeviations(f, w *schema.Element) []schema.Deviation {
	var out []schema.Deviation
	if e.settings.LayoutAnalysis {
		out = append(out, e.pxDeviations(f, w, layoutProps, layoutTolerancePx, schema.DeviationLayout)...)
	}
	if e.settings.ColorAnalysis {
		out = append(out, e.colorDeviations(f, w)...)
	}
	if e.settings.SpacingAnalysis {
		out = append(out, e.pxDeviations(f, w, spacingProps, spacingTolerancePx, schema.DeviationSpacing)...)
	}
	if e.settings.IncludeTextAnalysis {
		out = append(out, e.textDeviations(f, w)...)
	}
	return out
}

func (e *Engine) colorDeviations(f, w *schema.Element) []schema.Deviation {
	tol := e.settings.ColorTolerance
	if tol < 1 {
		tol = 1
	}
	var out []schema.Deviation
	for _, key := range colorProps {
		fv, wv := f.Prop(key), w.Prop(key)
		if fv == "" || wv == "" {
			continue
		}
		fc, fok := css.ParseColor(fv)
		wc, wok := css.ParseColor(wv)
		if !fok || !wok {
			continue
		}
		if e.settings.IgnoreAntiAliasing {
			fc, wc = css.QuantizeAA(fc), css.QuantizeAA(wc)
		}
		dist := css.Distance(fc, wc)
		sev, bad := severityFor(float64(dist) / float64(tol))
		if !bad {
			continue
		}
		out = append(out, schema.Deviation{
			Type:       schema.DeviationColor,
			Property:   key,
			FigmaValue: fv,
			WebValue:   wv,
			Severity:   sev,
			Message:    fmt.Sprintf("%s differs: %s vs %s (channel distance %d)", key, fv, wv, dist),
			ElementID:  f.ID,
		})
	}
	return out
}

func (e *Engine) pxDeviations(f, w *schema.Element, keys []string, tol float64, devType string) []schema.Deviation {
	var out []schema.Deviation
	for _, key := range keys {
		fv, fok := px(f, key)
		wv, wok := px(w, key)
		if !fok || !wok {
			continue
		}
		delta := math.Abs(fv - wv)
		sev, bad := severityFor(delta / tol)
		if !bad {
			continue
		}
		out = append(out, schema.Deviation{
			Type:       devType,
			Property:   key,
			FigmaValue: f.Prop(key),
			WebValue:   w.Prop(key),
			Severity:   sev,
			Message:    fmt.Sprintf("%s differs by %s: %s vs %s", key, css.FormatPx(delta), f.Prop(key), w.Prop(key)),
			ElementID:  f.ID,
		})
	}
	return out
}

func (e *Engine) textDeviations(f, w *schema.Element) []schema.Deviation {
	var out []schema.Deviation

	ft := normText(f.Prop(schema.PropTextContent))
	wt := normText(w.Prop(schema.PropTextContent))
	if ft != "" && wt != "" && !strings.EqualFold(ft, wt) {
		sev := schema.SeverityHigh
		if wordOverlap(ft, wt) >= 0.5 {
			sev = schema.SeverityMedium
		}
		out = append(out, schema.Deviation{
			Type:       schema.DeviationText,
			Property:   schema.PropTextContent,
			FigmaValue: ft,
			WebValue:   wt,
			Severity:   sev,
			Message:    fmt.Sprintf("text content differs: %q vs %q", ft, wt),
			ElementID:  f.ID,
		})
	}

	if fs, fok := px(f, schema.PropFontSize); fok {
		if ws, wok := px(w, schema.PropFontSize); wok {
			delta := math.Abs(fs - ws)
			if sev, bad := severityFor(delta / fontSizeTolerancePx); bad {
				out = append(out, schema.Deviation{
					Type:       schema.DeviationText,
					Property:   schema.PropFontSize,
					FigmaValue: f.Prop(schema.PropFontSize),
					WebValue:   w.Prop(schema.PropFontSize),
					Severity:   sev,
					Message:    fmt.Sprintf("font size differs by %s: %s vs %s", css.FormatPx(delta), f.Prop(schema.PropFontSize), w.Prop(schema.PropFontSize)),
					ElementID:  f.ID,
				})
			}
		}
	}

	ff, wf := f.Prop(schema.PropFontFamily), w.Prop(schema.PropFontFamily)
	if ff != "" && wf != "" && !strings.EqualFold(ff, wf) {
		out = append(out, schema.Deviation{
			Type:       schema.DeviationText,
			Property:   schema.PropFontFamily,
			FigmaValue: ff,
			WebValue:   wf,
			Severity:   schema.SeverityMedium,
			Message:    fmt.Sprintf("font family differs: %s vs %s", ff, wf),
			ElementID:  f.ID,
		})
	}

	if fwt, fok := px(f, schema.PropFontWeight); fok {
		if wwt, wok := px(w, schema.PropFontWeight); wok {
			delta := math.Abs(fwt - wwt)
			if sev, bad := severityFor(delta / fontWeightTolerance); bad {
				out = append(out, schema.Deviation{
					Type:       schema.DeviationText,
					Property:   schema.PropFontWeight,
					FigmaValue: f.Prop(schema.PropFontWeight),
					WebValue:   w.Prop(schema.PropFontWeight),
					Severity:   sev,
					Message:    fmt.Sprintf("font weight differs: %s vs %s", f.Prop(schema.PropFontWeight), w.Prop(schema.PropFontWeight)),
					ElementID:  f.ID,
				})
			}
		}
	}
	return out
}

// severityFor grades how far a value landed beyond its tolerance. ratio is
// observed difference over tolerance; anything inside tolerance produces
// no deviation.
func severityFor(ratio float64) (schema.Severity, bool) {
	switch {
	case ratio <= 1:
		return "", false
	case ratio > 3:
		return schema.SeverityCritical, true
	case ratio > 2:
		return schema.SeverityHigh, true
	case ratio > 1.5:
		return schema.SeverityMedium, true
	default:
		return schema.SeverityLow, true
	}
}

// score computes the weighted overall similarity: per enabled category,
// matched count minus that category's deviation penalty over the total
// element count of the larger side, clamped to [0,1]. Two empty trees
// agree vacuously.
func (e *Engine) score(matched, total int, deviations []schema.Deviation) float64 {
	if total == 0 {
		return 1
	}
	penalty := make(map[string]float64, 4)
	for _, d := range deviations {
		penalty[d.Type] += severityPenalty(d.Severity)
	}

	type category struct {
		weight  float64
		devType string
		enabled bool
	}
	cats := []category{
		{e.settings.Weights.Layout, schema.DeviationLayout, e.settings.LayoutAnalysis},
		{e.settings.Weights.Color, schema.DeviationColor, e.settings.ColorAnalysis},
		{e.settings.Weights.Text, schema.DeviationText, e.settings.IncludeTextAnalysis},
		{e.settings.Weights.Spacing, schema.DeviationSpacing, e.settings.SpacingAnalysis},
	}
	var sum, wsum float64
	for _, c := range cats {
		if !c.enabled || c.weight == 0 {
			continue
		}
		cs := (float64(matched) - penalty[c.devType]) / float64(total)
		sum += c.weight * clamp01(cs)
		wsum += c.weight
	}
	if wsum == 0 {
		return clamp01(float64(matched) / float64(total))
	}
	return clamp01(sum / wsum)
}

func severityPenalty(s schema.Severity) float64 {
	switch s {
	case schema.SeverityLow:
		return 0.25
	case schema.SeverityMedium:
		return 0.5
	case schema.SeverityHigh:
		return 0.75
	case schema.SeverityCritical:
		return 1
	default:
		return 0
	}
}

func describeElement(el *schema.Element) string {
	if el.Name != "" {
		return el.Name
	}
	return el.Type
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
