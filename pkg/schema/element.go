// Package schema defines the normalized design model both extractors emit
// and the comparison engine consumes: elements with open property maps,
// bounded design-token collections, and the comparison settings/result
// types. Everything here is plain serializable data; extraction results are
// immutable once built.
package schema

import (
	"errors"
	"fmt"
	"time"
)

// Property keys shared by the Figma and web extractors. Both sides emit the
// same keys so the engine can compare values without source-specific
// translation.
const (
	PropWidth           = "width"
	PropHeight          = "height"
	PropX               = "x"
	PropY               = "y"
	PropBackgroundColor = "backgroundColor"
	PropColor           = "color"
	PropFontSize        = "fontSize"
	PropFontFamily      = "fontFamily"
	PropFontWeight      = "fontWeight"
	PropBorderRadius    = "borderRadius"
	PropBorderColor     = "borderColor"
	PropPaddingTop      = "paddingTop"
	PropPaddingRight    = "paddingRight"
	PropPaddingBottom   = "paddingBottom"
	PropPaddingLeft     = "paddingLeft"
	PropGap             = "gap"
	PropTextContent     = "textContent"
	PropBoxShadow       = "boxShadow"
	PropOpacity         = "opacity"
)

// Element is one node of a normalized extraction tree.
//
// ID is stable and unique within a single extraction result only, never
// globally. Type carries the source-specific tag: a Figma node type like
// "TEXT" or "FRAME", or a DOM tag like "div". Children are exclusively
// owned; a child appears under exactly one parent.
type Element struct {
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties,omitempty"`
	Children   []Element         `json:"children,omitempty"`
}

// Prop returns the named property or the empty string.
func (e *Element) Prop(key string) string {
	if e.Properties == nil {
		return ""
	}
	return e.Properties[key]
}

// SetProp assigns a property, allocating the map on first use. Empty values
// are dropped so the map stays sparse.
func (e *Element) SetProp(key, value string) {
	if value == "" {
		return
	}
	if e.Properties == nil {
		e.Properties = make(map[string]string)
	}
	e.Properties[key] = value
}

// CountElements returns the total number of elements in the forest,
// children included.
func CountElements(els []Element) int {
	n := 0
	for i := range els {
		n += 1 + CountElements(els[i].Children)
	}
	return n
}

// Flatten returns pointers to every element in pre-order document
// traversal. The order is the stable reference order used for matching and
// deviation output.
func Flatten(els []Element) []*Element {
	var out []*Element
	var walk func(list []Element)
	walk = func(list []Element) {
		for i := range list {
			out = append(out, &list[i])
			walk(list[i].Children)
		}
	}
	walk(els)
	return out
}

// BuildIndex returns an id -> element map over the whole forest. Duplicate
// ids keep the first occurrence, matching document order.
func BuildIndex(els []Element) map[string]*Element {
	idx := make(map[string]*Element)
	for _, el := range Flatten(els) {
		if _, ok := idx[el.ID]; !ok {
			idx[el.ID] = el
		}
	}
	return idx
}

// Source identifies which extractor produced a result.
type Source string

const (
	SourceFigma Source = "figma"
	SourceWeb   Source = "web"
)

// Metadata describes one extraction run. Error is set when the extraction
// degraded instead of failing outright, so partial comparisons can proceed
// while surfacing what went wrong.
type Metadata struct {
	Source       Source    `json:"source"`
	URL          string    `json:"url,omitempty"`
	ExtractedAt  time.Time `json:"extractedAt"`
	ElementCount int       `json:"elementCount"`
	Error        string    `json:"error,omitempty"`
}

// ExtractionResult is the full output of one extraction call. Created once,
// never mutated afterward.
type ExtractionResult struct {
	Elements   []Element `json:"elements"`
	Tokens     Tokens    `json:"tokens"`
	Metadata   Metadata  `json:"metadata"`
	Screenshot []byte    `json:"screenshot,omitempty"`
}

// Empty reports whether the result carries no elements at all.
func (r *ExtractionResult) Empty() bool {
	return r == nil || len(r.Elements) == 0
}

// Validate checks structural invariants and returns every violation found.
func (r *ExtractionResult) Validate() []error {
	var errs []error
	if r.Metadata.Source != SourceFigma && r.Metadata.Source != SourceWeb {
		errs = append(errs, fmt.Errorf("unknown source %q", r.Metadata.Source))
	}
	if got := CountElements(r.Elements); got != r.Metadata.ElementCount {
		errs = append(errs, fmt.Errorf("element count %d does not match metadata count %d", got, r.Metadata.ElementCount))
	}
	seen := make(map[string]bool)
	for _, el := range Flatten(r.Elements) {
		if el.ID == "" {
			errs = append(errs, errors.New("element with empty id"))
			continue
		}
		if seen[el.ID] {
			errs = append(errs, fmt.Errorf("duplicate element id %q", el.ID))
		}
		seen[el.ID] = true
	}
	return errs
}
