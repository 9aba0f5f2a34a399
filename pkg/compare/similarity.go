package compare

import (
	"math"
	"strings"

	"github.com/gnana997/designparity/pkg/css"
	"github.com/gnana997/designparity/pkg/schema"
)

// elemClass buckets element types from both sources so a Figma node type
// and a DOM tag can be compared for compatibility.
type elemClass string

const (
	classText      elemClass = "text"
	classContainer elemClass = "container"
	classControl   elemClass = "control"
	classMedia     elemClass = "media"
)

var figmaClasses = map[string][]elemClass{
	"TEXT":              {classText},
	"FRAME":             {classContainer},
	"GROUP":             {classContainer},
	"CANVAS":            {classContainer},
	"SECTION":           {classContainer},
	"COMPONENT":         {classContainer, classControl},
	"COMPONENT_SET":     {classContainer, classControl},
	"INSTANCE":          {classContainer, classControl},
	"RECTANGLE":         {classMedia, classContainer},
	"ELLIPSE":           {classMedia},
	"VECTOR":            {classMedia},
	"LINE":              {classMedia},
	"STAR":              {classMedia},
	"POLYGON":           {classMedia},
	"BOOLEAN_OPERATION": {classMedia},
}

var webClasses = map[string][]elemClass{
	"h1": {classText}, "h2": {classText}, "h3": {classText},
	"h4": {classText}, "h5": {classText}, "h6": {classText},
	"p": {classText}, "span": {classText}, "label": {classText},
	"li": {classText}, "td": {classText}, "th": {classText},
	"blockquote": {classText},
	"a":          {classText, classControl},
	"div": {classContainer}, "section": {classContainer},
	"article": {classContainer}, "main": {classContainer},
	"header": {classContainer}, "footer": {classContainer},
	"nav": {classContainer}, "aside": {classContainer},
	"form": {classContainer}, "ul": {classContainer},
	"ol": {classContainer}, "table": {classContainer},
	"button": {classControl}, "input": {classControl},
	"select": {classControl}, "textarea": {classControl},
	"img": {classMedia}, "svg": {classMedia}, "video": {classMedia},
	"canvas": {classMedia}, "picture": {classMedia},
}

// classAffinity holds partial credit for cross-class pairings. Web widgets
// are often drawn as plain frames in Figma, and rectangles commonly stand
// in for block containers, so those pairs score above zero.
var classAffinity = map[elemClass]map[elemClass]float64{
	classText:      {classText: 1, classControl: 0.3},
	classContainer: {classContainer: 1, classControl: 0.7, classMedia: 0.4},
	classControl:   {classControl: 1, classContainer: 0.7, classText: 0.3},
	classMedia:     {classMedia: 1, classContainer: 0.4},
}

// typeScore rates how plausible it is that a Figma node of one type and a
// DOM element of one tag render the same thing. Unknown types on either
// side score neutral.
func typeScore(figmaType, webTag string) float64 {
	fc := figmaClasses[strings.ToUpper(figmaType)]
	wc := webClasses[strings.ToLower(webTag)]
	if len(fc) == 0 || len(wc) == 0 {
		return 0.5
	}
	best := 0.0
	for _, f := range fc {
		for _, w := range wc {
			if s := classAffinity[f][w]; s > best {
				best = s
			}
		}
	}
	return best
}

func px(el *schema.Element, key string) (float64, bool) {
	return css.ParsePx(el.Prop(key))
}

// geometryScore rates position and size proximity, normalized against the
// larger of the two footprints. ok is false when neither axis has values
// on both sides.
func geometryScore(f, w *schema.Element) (float64, bool) {
	var sizeParts []float64
	fw, fwOK := px(f, schema.PropWidth)
	ww, wwOK := px(w, schema.PropWidth)
	if fwOK && wwOK {
		sizeParts = append(sizeParts, axisRatio(fw, ww))
	}
	fh, fhOK := px(f, schema.PropHeight)
	wh, whOK := px(w, schema.PropHeight)
	if fhOK && whOK {
		sizeParts = append(sizeParts, axisRatio(fh, wh))
	}

	posOK := false
	pos := 0.0
	fx, fxOK := px(f, schema.PropX)
	wx, wxOK := px(w, schema.PropX)
	fy, fyOK := px(f, schema.PropY)
	wy, wyOK := px(w, schema.PropY)
	if fxOK && wxOK && fyOK && wyOK {
		delta := math.Abs(fx-wx) + math.Abs(fy-wy)
		norm := 100.0
		for _, v := range []float64{fw, fh, ww, wh} {
			if v > norm {
				norm = v
			}
		}
		pos = 1 - math.Min(1, delta/norm)
		posOK = true
	}

	switch {
	case len(sizeParts) > 0 && posOK:
		return 0.6*avg(sizeParts) + 0.4*pos, true
	case len(sizeParts) > 0:
		return avg(sizeParts), true
	case posOK:
		return pos, true
	default:
		return 0, false
	}
}

// axisRatio rates two lengths by their relative difference.
func axisRatio(a, b float64) float64 {
	max := math.Max(math.Max(a, b), 1)
	r := 1 - math.Abs(a-b)/max
	if r < 0 {
		return 0
	}
	return r
}

func avg(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// colorScore rates the color properties both elements carry. Within
// tolerance counts as identical; beyond it the score decays linearly with
// channel distance.
func (e *Engine) colorScore(f, w *schema.Element) (float64, bool) {
	tol := e.settings.ColorTolerance
	var parts []float64
	for _, key := range colorProps {
		fc, fok := css.ParseColor(f.Prop(key))
		wc, wok := css.ParseColor(w.Prop(key))
		if !fok || !wok {
			continue
		}
		if e.settings.IgnoreAntiAliasing {
			fc, wc = css.QuantizeAA(fc), css.QuantizeAA(wc)
		}
		dist := css.Distance(fc, wc)
		if dist <= tol {
			parts = append(parts, 1)
			continue
		}
		parts = append(parts, 1-float64(dist-tol)/float64(255-tol))
	}
	if len(parts) == 0 {
		return 0, false
	}
	return avg(parts), true
}

// textScore rates text-content agreement. Present-versus-absent is weak
// evidence against a pairing, not neutral.
func textScore(f, w *schema.Element) (float64, bool) {
	ft := normText(f.Prop(schema.PropTextContent))
	wt := normText(w.Prop(schema.PropTextContent))
	switch {
	case ft == "" && wt == "":
		return 0, false
	case ft == "" || wt == "":
		return 0.25, true
	case strings.EqualFold(ft, wt):
		return 1, true
	default:
		return wordOverlap(ft, wt), true
	}
}

// spacingScore rates padding and gap proximity.
func (e *Engine) spacingScore(f, w *schema.Element) (float64, bool) {
	var parts []float64
	for _, key := range spacingProps {
		fv, fok := px(f, key)
		wv, wok := px(w, key)
		if !fok || !wok {
			continue
		}
		delta := math.Abs(fv - wv)
		if delta <= spacingTolerancePx {
			parts = append(parts, 1)
			continue
		}
		parts = append(parts, math.Max(0, 1-(delta-spacingTolerancePx)/32))
	}
	if len(parts) == 0 {
		return 0, false
	}
	return avg(parts), true
}

// typeMatchWeight balances type compatibility against the configured
// analysis weights during matching. Type evidence is always available, so
// it gets a fixed share rather than a settings knob.
const typeMatchWeight = 0.2

// similarity computes the composite pairing score for one Figma element
// and one web element. Categories without evidence on both sides drop out
// of the weighted average instead of dragging it toward neutral.
func (e *Engine) similarity(f, w *schema.Element) float64 {
	sum := typeMatchWeight * typeScore(f.Type, w.Type)
	total := typeMatchWeight
	if e.settings.LayoutAnalysis {
		if s, ok := geometryScore(f, w); ok {
			sum += e.settings.Weights.Layout * s
			total += e.settings.Weights.Layout
		}
	}
	if e.settings.ColorAnalysis {
		if s, ok := e.colorScore(f, w); ok {
			sum += e.settings.Weights.Color * s
			total += e.settings.Weights.Color
		}
	}
	if e.settings.IncludeTextAnalysis {
		if s, ok := textScore(f, w); ok {
			sum += e.settings.Weights.Text * s
			total += e.settings.Weights.Text
		}
	}
	if e.settings.SpacingAnalysis {
		if s, ok := e.spacingScore(f, w); ok {
			sum += e.settings.Weights.Spacing * s
			total += e.settings.Weights.Spacing
		}
	}
	return sum / total
}

func normText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// wordOverlap returns the Jaccard overlap of the lowercase word sets of
// two strings.
func wordOverlap(a, b string) float64 {
	aw := strings.Fields(strings.ToLower(a))
	bw := strings.Fields(strings.ToLower(b))
	if len(aw) == 0 || len(bw) == 0 {
		return 0
	}
	set := make(map[string]bool, len(aw))
	for _, word := range aw {
		set[word] = true
	}
	inter := 0
	seen := make(map[string]bool, len(bw))
	for _, word := range bw {
		if seen[word] {
			continue
		}
		seen[word] = true
		if set[word] {
			inter++
		}
	}
	union := len(set) + len(seen) - inter
	return float64(inter) / float64(union)
}
