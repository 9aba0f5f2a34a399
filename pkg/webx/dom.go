package webx

import (
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/gnana997/designparity/pkg/css"
	"github.com/gnana997/designparity/pkg/fault"
	"github.com/gnana997/designparity/pkg/schema"
)

// DefaultElementCap bounds how many elements one extraction may emit. The
// walk stops mid-stream once the cap is hit and the payload is flagged
// truncated.
const DefaultElementCap = 1500

//go:embed dom.js
var domScript string

type domElement struct {
	ID    string            `json:"id"`
	Tag   string            `json:"tag"`
	Name  string            `json:"name"`
	Props map[string]string `json:"props"`
}

type domTokens struct {
	Colors       []string `json:"colors"`
	FontFamilies []string `json:"fontFamilies"`
	FontSizes    []string `json:"fontSizes"`
	FontWeights  []string `json:"fontWeights"`
	Spacing      []string `json:"spacing"`
	Radii        []string `json:"radii"`
	Shadows      []string `json:"shadows"`
}

type domPayload struct {
	Elements  []domElement `json:"elements"`
	Truncated bool         `json:"truncated"`
	Total     int          `json:"total"`
	Tokens    domTokens    `json:"tokens"`
}

func parseDOMPayload(raw string) (*domPayload, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fault.New(fault.Extraction, fault.Target, "dom walk returned no payload")
	}
	var p domPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fault.Wrap(fault.Extraction, fault.Target, err, "decode dom walk payload")
	}
	return &p, nil
}

// payloadToModel converts the walk payload into normalized elements and a
// bounded token collection. Browser-rendered values pass through the same
// canonical renderers the Figma side uses, so "rgb(255, 0, 0)" and a red
// fill land on the identical string.
func payloadToModel(p *domPayload) ([]schema.Element, *schema.TokenCollector) {
	tc := schema.NewTokenCollector()
	elements := make([]schema.Element, 0, len(p.Elements))
	for _, d := range p.Elements {
		el := schema.Element{
			ID:   d.ID,
			Name: d.Name,
			Type: strings.ToLower(d.Tag),
		}
		for key, value := range d.Props {
			el.SetProp(key, normalizeProp(key, value))
		}
		elements = append(elements, el)
	}

	// The JS sets are unbounded and in discovery order; re-adding through
	// the collector enforces the caps with oldest-first retention.
	for _, v := range p.Tokens.Colors {
		tc.Color(css.Normalize(v))
	}
	for _, v := range p.Tokens.FontFamilies {
		tc.FontFamily(strings.TrimSpace(v))
	}
	for _, v := range p.Tokens.FontSizes {
		tc.FontSize(normalizePx(v))
	}
	for _, v := range p.Tokens.FontWeights {
		tc.FontWeight(normalizeWeight(v))
	}
	for _, v := range p.Tokens.Spacing {
		tc.Spacing(normalizePx(v))
	}
	for _, v := range p.Tokens.Radii {
		tc.Radius(normalizePx(v))
	}
	for _, v := range p.Tokens.Shadows {
		tc.Shadow(normalizeShadow(v))
	}
	return elements, tc
}

func normalizeProp(key, value string) string {
	switch key {
	case schema.PropBackgroundColor, schema.PropColor, schema.PropBorderColor:
		return css.Normalize(value)
	case schema.PropFontFamily:
		return strings.Trim(strings.TrimSpace(strings.Split(value, ",")[0]), `"'`)
	case schema.PropFontWeight:
		return normalizeWeight(value)
	case schema.PropBoxShadow:
		return normalizeShadow(value)
	case schema.PropX, schema.PropY, schema.PropWidth, schema.PropHeight,
		schema.PropFontSize, schema.PropPaddingTop, schema.PropPaddingRight,
		schema.PropPaddingBottom, schema.PropPaddingLeft, schema.PropGap,
		schema.PropBorderRadius:
		return normalizePx(value)
	default:
		return value
	}
}

func normalizePx(value string) string {
	if f, ok := css.ParsePx(value); ok {
		return css.FormatPx(f)
	}
	return strings.TrimSpace(value)
}

// normalizeWeight maps CSS keyword weights onto their numeric values.
func normalizeWeight(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "normal":
		return "400"
	case "bold":
		return "700"
	case "lighter":
		return "300"
	case "bolder":
		return "700"
	}
	if f, ok := css.ParsePx(value); ok {
		return strings.TrimSuffix(css.FormatPx(f), "px")
	}
	return strings.TrimSpace(value)
}

// normalizeShadow rewrites Chrome's color-first computed box-shadow
// ("rgba(0, 0, 0, 0.25) 0px 4px 8px 0px") into the canonical
// lengths-then-color form. Values it cannot parse pass through untouched.
func normalizeShadow(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "none") {
		return ""
	}
	if !strings.HasPrefix(value, "rgb") {
		return value
	}
	closeIdx := strings.Index(value, ")")
	if closeIdx < 0 {
		return value
	}
	c, ok := css.ParseColor(value[:closeIdx+1])
	if !ok {
		return value
	}
	rest := strings.Fields(strings.TrimSpace(value[closeIdx+1:]))
	if len(rest) < 2 || len(rest) > 4 {
		return value
	}
	var nums [4]float64
	for i, part := range rest {
		f, ok := css.ParsePx(part)
		if !ok {
			return value
		}
		nums[i] = f
	}
	return css.FormatShadow(nums[0], nums[1], nums[2], nums[3], c)
}
