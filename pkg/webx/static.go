package webx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/gnana997/designparity/pkg/fault"
	"github.com/gnana997/designparity/pkg/schema"
)

// semanticSelector mirrors the selector list the DOM walk uses, minus the
// bare div catch-all: without computed styles a div carries nothing worth
// comparing.
const semanticSelector = "h1, h2, h3, h4, h5, h6, p, span, a, button, input, select, textarea, label, img, svg, video, ul, ol, li, nav, header, footer, main, section, article, aside, form, table"

const staticDegradedNote = "static fallback: no browser reachable, computed styles and geometry unavailable"

// inlineStyleProps maps CSS declaration names found in style attributes to
// shared property keys.
var inlineStyleProps = map[string]string{
	"background-color": schema.PropBackgroundColor,
	"background":       schema.PropBackgroundColor,
	"color":            schema.PropColor,
	"font-family":      schema.PropFontFamily,
	"font-size":        schema.PropFontSize,
	"font-weight":      schema.PropFontWeight,
	"border-radius":    schema.PropBorderRadius,
	"padding-top":      schema.PropPaddingTop,
	"padding-right":    schema.PropPaddingRight,
	"padding-bottom":   schema.PropPaddingBottom,
	"padding-left":     schema.PropPaddingLeft,
	"gap":              schema.PropGap,
	"box-shadow":       schema.PropBoxShadow,
	"opacity":          schema.PropOpacity,
	"width":            schema.PropWidth,
	"height":           schema.PropHeight,
}

// StaticFetcher extracts what it can from raw HTML when no browser is
// reachable. Results are explicitly degraded: inline styles and attributes
// only, no layout geometry.
type StaticFetcher struct {
	client *http.Client
	cap    int
	log    *slog.Logger
	now    func() time.Time
}

func NewStaticFetcher(client *http.Client, elementCap int, logger *slog.Logger) *StaticFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if elementCap <= 0 {
		elementCap = DefaultElementCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StaticFetcher{client: client, cap: elementCap, log: logger, now: time.Now}
}

// Extract fetches the page HTML and mines elements from markup alone.
func (s *StaticFetcher) Extract(ctx context.Context, rawURL string) (*schema.ExtractionResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fault.Wrap(fault.Validation, fault.Configuration, err, "invalid web url %q", rawURL)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; designparity/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.Connection, fault.Target, err, "fetch %s", rawURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fault.New(fault.Connection, fault.Target, "fetch %s: status %d", rawURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.Extraction, fault.Target, err, "parse html from %s", rawURL)
	}

	tc := schema.NewTokenCollector()
	elements := s.mine(doc, tc)
	s.log.Info("static extraction finished",
		slog.String("url", rawURL),
		slog.Int("elements", len(elements)))

	return &schema.ExtractionResult{
		Elements: elements,
		Tokens:   tc.Tokens(),
		Metadata: schema.Metadata{
			Source:       schema.SourceWeb,
			URL:          rawURL,
			ExtractedAt:  s.now(),
			ElementCount: len(elements),
			Error:        staticDegradedNote,
		},
	}, nil
}

func (s *StaticFetcher) mine(doc *goquery.Document, tc *schema.TokenCollector) []schema.Element {
	elements := make([]schema.Element, 0, 64)
	seq := 0
	doc.Find(semanticSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(elements) >= s.cap {
			return false
		}
		seq++
		tag := goquery.NodeName(sel)
		el := schema.Element{Type: tag}

		if id, ok := sel.Attr("id"); ok && id != "" {
			el.ID = "#" + id
		} else {
			el.ID = fmt.Sprintf("%s-%d", tag, seq)
		}
		if name, ok := sel.Attr("aria-label"); ok && name != "" {
			el.Name = name
		} else if name, ok := sel.Attr("data-testid"); ok && name != "" {
			el.Name = name
		}

		if text := ownText(sel); text != "" {
			el.SetProp(schema.PropTextContent, text)
		}
		if style, ok := sel.Attr("style"); ok {
			mineInlineStyle(&el, style, tc)
		}
		if w, ok := sel.Attr("width"); ok {
			el.SetProp(schema.PropWidth, normalizePx(w))
		}
		if h, ok := sel.Attr("height"); ok {
			el.SetProp(schema.PropHeight, normalizePx(h))
		}

		elements = append(elements, el)
		return true
	})
	return dedupeIDs(elements)
}

// ownText collects only the direct child text nodes of the selection, the
// same ownership rule the DOM walk applies.
func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.TextNode {
				b.WriteString(child.Data)
			}
		}
	}
	text := strings.Join(strings.Fields(b.String()), " ")
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func mineInlineStyle(el *schema.Element, style string, tc *schema.TokenCollector) {
	for _, decl := range strings.Split(style, ";") {
		name, value, found := strings.Cut(decl, ":")
		if !found {
			continue
		}
		key, known := inlineStyleProps[strings.ToLower(strings.TrimSpace(name))]
		if !known {
			continue
		}
		normalized := normalizeProp(key, strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		el.SetProp(key, normalized)
		switch key {
		case schema.PropBackgroundColor, schema.PropColor:
			tc.Color(normalized)
		case schema.PropFontFamily:
			tc.FontFamily(normalized)
		case schema.PropFontSize:
			tc.FontSize(normalized)
		case schema.PropFontWeight:
			tc.FontWeight(normalized)
		case schema.PropBorderRadius:
			tc.Radius(normalized)
		case schema.PropPaddingTop, schema.PropPaddingRight, schema.PropPaddingBottom, schema.PropPaddingLeft, schema.PropGap:
			tc.Spacing(normalized)
		case schema.PropBoxShadow:
			tc.Shadow(normalized)
		}
	}
}

// dedupeIDs suffixes repeated ids so the result validates; markup with
// duplicate id attributes is common enough to handle.
func dedupeIDs(elements []schema.Element) []schema.Element {
	seen := make(map[string]int, len(elements))
	for i := range elements {
		id := elements[i].ID
		if n := seen[id]; n > 0 {
			elements[i].ID = fmt.Sprintf("%s-%d", id, n+1)
		}
		seen[id]++
	}
	return elements
}
