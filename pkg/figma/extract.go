package figma

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gnana997/designparity/pkg/css"
	"github.com/gnana997/designparity/pkg/schema"
)

// Extractor converts Figma document data into the normalized model.
// Conversion is lossy on purpose: only comparable style and layout
// properties survive, and token sets stay bounded.
type Extractor struct {
	log *slog.Logger
	now func() time.Time
}

// NewExtractor builds an extractor. A nil logger falls back to the default.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{log: logger, now: time.Now}
}

// FromFile converts a full-file REST response.
func (e *Extractor) FromFile(resp *FileResponse, sourceURL string) *schema.ExtractionResult {
	if resp == nil {
		return e.emptyResult(sourceURL, "empty figma file response")
	}
	return e.FromDocument(&resp.Document, sourceURL)
}

// FromNodes converts a nodes REST response. Map order is not stable, so
// entries are walked in sorted-id order to keep output deterministic.
func (e *Extractor) FromNodes(resp *NodesResponse, sourceURL string) *schema.ExtractionResult {
	if resp == nil || len(resp.Nodes) == 0 {
		return e.emptyResult(sourceURL, "figma nodes response carried no nodes")
	}
	ids := make([]string, 0, len(resp.Nodes))
	for id := range resp.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tc := schema.NewTokenCollector()
	var elements []schema.Element
	for _, id := range ids {
		entry := resp.Nodes[id]
		if el, ok := e.convert(&entry.Document, tc); ok {
			elements = append(elements, el)
		}
	}
	return e.finish(elements, tc, sourceURL, "")
}

// FromDocument converts a document tree. A DOCUMENT root is unwrapped so
// pages become the top-level elements. Never fails: malformed input
// degrades to an empty result with Metadata.Error set.
func (e *Extractor) FromDocument(doc *Node, sourceURL string) *schema.ExtractionResult {
	if doc == nil {
		return e.emptyResult(sourceURL, "no figma document data")
	}
	tc := schema.NewTokenCollector()
	var elements []schema.Element
	if strings.EqualFold(doc.Type, "DOCUMENT") {
		for i := range doc.Children {
			if el, ok := e.convert(&doc.Children[i], tc); ok {
				elements = append(elements, el)
			}
		}
	} else if el, ok := e.convert(doc, tc); ok {
		elements = append(elements, el)
	}
	return e.finish(elements, tc, sourceURL, "")
}

func (e *Extractor) finish(elements []schema.Element, tc *schema.TokenCollector, sourceURL, errMsg string) *schema.ExtractionResult {
	if elements == nil {
		elements = []schema.Element{}
	}
	res := &schema.ExtractionResult{
		Elements: elements,
		Tokens:   tc.Tokens(),
		Metadata: schema.Metadata{
			Source:       schema.SourceFigma,
			URL:          sourceURL,
			ExtractedAt:  e.now(),
			ElementCount: schema.CountElements(elements),
			Error:        errMsg,
		},
	}
	return res
}

func (e *Extractor) emptyResult(sourceURL, errMsg string) *schema.ExtractionResult {
	e.log.Warn("figma extraction degraded", slog.String("reason", errMsg))
	return e.finish(nil, schema.NewTokenCollector(), sourceURL, errMsg)
}

// convert maps one node and its descendants. A node survives when it is
// meaningful itself or when any descendant survived, so layout chains stay
// intact while empty organizational groups disappear.
func (e *Extractor) convert(n *Node, tc *schema.TokenCollector) (schema.Element, bool) {
	if n == nil || n.hidden() {
		return schema.Element{}, false
	}
	el := schema.Element{
		ID:   n.ID,
		Name: n.Name,
		Type: strings.ToUpper(n.Type),
	}
	for i := range n.Children {
		if child, ok := e.convert(&n.Children[i], tc); ok {
			el.Children = append(el.Children, child)
		}
	}
	e.applyGeometry(&el, n)
	e.applyPaints(&el, n, tc)
	e.applyText(&el, n, tc)
	e.applySpacing(&el, n, tc)
	e.applyRadii(&el, n, tc)
	e.applyEffects(&el, n, tc)
	if n.Opacity != nil && *n.Opacity < 1 {
		el.SetProp(schema.PropOpacity, formatFloat(*n.Opacity))
	}
	if !e.meaningful(n) && len(el.Children) == 0 {
		return schema.Element{}, false
	}
	return el, true
}

// meaningful reports whether a node carries comparable content on its own:
// geometry, text, a visible fill, or a structural type.
func (e *Extractor) meaningful(n *Node) bool {
	if b := n.AbsoluteBoundingBox; b != nil && (b.Width > 0 || b.Height > 0) {
		return true
	}
	if strings.TrimSpace(n.Characters) != "" {
		return true
	}
	if firstVisibleSolid(n.Fills) != nil {
		return true
	}
	return isStructural(n.Type)
}

func (e *Extractor) applyGeometry(el *schema.Element, n *Node) {
	b := n.AbsoluteBoundingBox
	if b == nil {
		return
	}
	el.SetProp(schema.PropX, css.FormatPx(b.X))
	el.SetProp(schema.PropY, css.FormatPx(b.Y))
	el.SetProp(schema.PropWidth, css.FormatPx(b.Width))
	el.SetProp(schema.PropHeight, css.FormatPx(b.Height))
}

func (e *Extractor) applyPaints(el *schema.Element, n *Node, tc *schema.TokenCollector) {
	if p := firstVisibleSolid(n.Fills); p != nil {
		rendered := paintColor(p).String()
		// Text nodes paint their glyphs with the fill.
		if strings.EqualFold(n.Type, "TEXT") {
			el.SetProp(schema.PropColor, rendered)
		} else {
			el.SetProp(schema.PropBackgroundColor, rendered)
		}
		tc.Color(rendered)
	}
	if p := firstVisibleSolid(n.Strokes); p != nil {
		rendered := paintColor(p).String()
		el.SetProp(schema.PropBorderColor, rendered)
		tc.Color(rendered)
	}
}

func paintColor(p *Paint) css.Color {
	alpha := p.Color.A
	if p.Opacity != nil {
		alpha *= *p.Opacity
	}
	return css.FromFloats(p.Color.R, p.Color.G, p.Color.B, alpha)
}

func (e *Extractor) applyText(el *schema.Element, n *Node, tc *schema.TokenCollector) {
	if text := strings.TrimSpace(n.Characters); text != "" {
		el.SetProp(schema.PropTextContent, text)
	}
	s := n.Style
	if s == nil {
		return
	}
	if s.FontFamily != "" {
		el.SetProp(schema.PropFontFamily, s.FontFamily)
		tc.FontFamily(s.FontFamily)
	}
	if s.FontSize > 0 {
		size := css.FormatPx(s.FontSize)
		el.SetProp(schema.PropFontSize, size)
		tc.FontSize(size)
	}
	if s.FontWeight > 0 {
		weight := strconv.Itoa(int(s.FontWeight))
		el.SetProp(schema.PropFontWeight, weight)
		tc.FontWeight(weight)
	}
}

func (e *Extractor) applySpacing(el *schema.Element, n *Node, tc *schema.TokenCollector) {
	pads := []struct {
		key string
		val float64
	}{
		{schema.PropPaddingTop, n.PaddingTop},
		{schema.PropPaddingRight, n.PaddingRight},
		{schema.PropPaddingBottom, n.PaddingBottom},
		{schema.PropPaddingLeft, n.PaddingLeft},
	}
	for _, p := range pads {
		if p.val > 0 {
			formatted := css.FormatPx(p.val)
			el.SetProp(p.key, formatted)
			tc.Spacing(formatted)
		}
	}
	if n.ItemSpacing > 0 {
		formatted := css.FormatPx(n.ItemSpacing)
		el.SetProp(schema.PropGap, formatted)
		tc.Spacing(formatted)
	}
}

func (e *Extractor) applyRadii(el *schema.Element, n *Node, tc *schema.TokenCollector) {
	if len(n.RectangleCornerRadii) == 4 {
		uniform := true
		any := false
		parts := make([]string, 4)
		for i, r := range n.RectangleCornerRadii {
			parts[i] = css.FormatPx(r)
			if r > 0 {
				any = true
				tc.Radius(parts[i])
			}
			if r != n.RectangleCornerRadii[0] {
				uniform = false
			}
		}
		if any {
			if uniform {
				el.SetProp(schema.PropBorderRadius, parts[0])
			} else {
				el.SetProp(schema.PropBorderRadius, strings.Join(parts, " "))
			}
			return
		}
	}
	if n.CornerRadius > 0 {
		formatted := css.FormatPx(n.CornerRadius)
		el.SetProp(schema.PropBorderRadius, formatted)
		tc.Radius(formatted)
	}
}

func (e *Extractor) applyEffects(el *schema.Element, n *Node, tc *schema.TokenCollector) {
	var shadows []string
	for i := range n.Effects {
		ef := &n.Effects[i]
		if !ef.visible() || !ef.isShadow() || ef.Color == nil {
			continue
		}
		var off Vector
		if ef.Offset != nil {
			off = *ef.Offset
		}
		rendered := css.FormatShadow(off.X, off.Y, ef.Radius, ef.Spread,
			css.FromFloats(ef.Color.R, ef.Color.G, ef.Color.B, ef.Color.A))
		shadows = append(shadows, rendered)
		tc.Shadow(rendered)
	}
	if len(shadows) > 0 {
		el.SetProp(schema.PropBoxShadow, strings.Join(shadows, ", "))
	}
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
