package figma

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/gnana997/designparity/pkg/css"
	"github.com/gnana997/designparity/pkg/mcpclient"
	"github.com/gnana997/designparity/pkg/schema"
)

// MCPPayloads carries the raw text returned by the Figma MCP tools for one
// extraction. Metadata is required for elements; variables and code only
// enrich the token sets.
type MCPPayloads struct {
	Metadata  string
	Variables string
	Code      string
}

// FromMCP converts MCP tool payloads into the normalized model. The
// metadata payload may be the XML-ish tree the desktop server emits or a
// JSON node tree; the format is sniffed from the first byte. Never fails:
// an unusable metadata payload degrades to an empty element list with
// Metadata.Error set, while variable and code tokens are still collected.
func (e *Extractor) FromMCP(p MCPPayloads, sourceURL string) *schema.ExtractionResult {
	tc := schema.NewTokenCollector()
	var elements []schema.Element
	var degraded string

	meta := strings.TrimSpace(p.Metadata)
	switch {
	case meta == "":
		degraded = "mcp metadata payload was empty"
	case strings.HasPrefix(meta, "<"):
		els, err := parseMetadataXML(meta)
		if err != nil {
			degraded = "unparseable mcp metadata: " + err.Error()
		} else {
			elements = els
			collectElementTokens(elements, tc)
		}
	case strings.HasPrefix(meta, "{"):
		var n Node
		if err := json.Unmarshal([]byte(meta), &n); err != nil {
			degraded = "unparseable mcp metadata: " + err.Error()
		} else if el, ok := e.convert(&n, tc); ok {
			elements = append(elements, el)
		}
	case strings.HasPrefix(meta, "["):
		var nodes []Node
		if err := json.Unmarshal([]byte(meta), &nodes); err != nil {
			degraded = "unparseable mcp metadata: " + err.Error()
		} else {
			for i := range nodes {
				if el, ok := e.convert(&nodes[i], tc); ok {
					elements = append(elements, el)
				}
			}
		}
	default:
		degraded = "unrecognized mcp metadata format"
	}

	mineVariables(p.Variables, tc)
	mineCode(p.Code, tc)

	if degraded != "" {
		e.log.Warn("figma mcp extraction degraded", slog.String("reason", degraded))
	}
	return e.finish(elements, tc, sourceURL, degraded)
}

// xmlAttrProps maps metadata attributes onto shared property keys. Pixel
// attributes are normalized through FormatPx so both sides emit the same
// rendering.
var xmlPixelAttrs = map[string]string{
	"x":      schema.PropX,
	"y":      schema.PropY,
	"width":  schema.PropWidth,
	"height": schema.PropHeight,
}

func parseMetadataXML(data string) ([]schema.Element, error) {
	dec := xml.NewDecoder(strings.NewReader(data))
	dec.Strict = false
	var stack []*schema.Element
	var roots []schema.Element
	autoID := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &schema.Element{Type: strings.ToUpper(t.Name.Local)}
			for _, a := range t.Attr {
				applyXMLAttr(el, strings.ToLower(a.Name.Local), a.Value)
			}
			if el.ID == "" {
				autoID++
				el.ID = fmt.Sprintf("mcp-%d", autoID)
			}
			stack = append(stack, el)
		case xml.EndElement:
			n := len(stack)
			if n == 0 {
				continue
			}
			el := stack[n-1]
			stack = stack[:n-1]
			if n == 1 {
				roots = append(roots, *el)
			} else {
				parent := stack[n-2]
				parent.Children = append(parent.Children, *el)
			}
		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			top := stack[len(stack)-1]
			if prev := top.Prop(schema.PropTextContent); prev != "" {
				text = prev + " " + text
			}
			top.SetProp(schema.PropTextContent, text)
		}
	}
	if len(roots) == 0 {
		return nil, errors.New("metadata xml contained no elements")
	}
	return roots, nil
}

func applyXMLAttr(el *schema.Element, name, value string) {
	if value == "" {
		return
	}
	if key, ok := xmlPixelAttrs[name]; ok {
		if f, ok := css.ParsePx(value); ok {
			el.SetProp(key, css.FormatPx(f))
		}
		return
	}
	switch name {
	case "id":
		el.ID = value
	case "name":
		el.Name = value
	case "fill", "background", "backgroundcolor":
		el.SetProp(schema.PropBackgroundColor, css.Normalize(value))
	case "color":
		el.SetProp(schema.PropColor, css.Normalize(value))
	case "fontfamily", "font-family":
		el.SetProp(schema.PropFontFamily, value)
	case "fontsize", "font-size":
		if f, ok := css.ParsePx(value); ok {
			el.SetProp(schema.PropFontSize, css.FormatPx(f))
		}
	case "fontweight", "font-weight":
		el.SetProp(schema.PropFontWeight, value)
	}
}

// collectElementTokens walks already-built elements and feeds their style
// properties into the collector. Used for metadata formats that bypass the
// node converter.
func collectElementTokens(elements []schema.Element, tc *schema.TokenCollector) {
	for _, el := range schema.Flatten(elements) {
		if v := el.Prop(schema.PropBackgroundColor); v != "" {
			tc.Color(v)
		}
		if v := el.Prop(schema.PropColor); v != "" {
			tc.Color(v)
		}
		if v := el.Prop(schema.PropFontFamily); v != "" {
			tc.FontFamily(v)
		}
		if v := el.Prop(schema.PropFontSize); v != "" {
			tc.FontSize(v)
		}
		if v := el.Prop(schema.PropFontWeight); v != "" {
			tc.FontWeight(v)
		}
	}
}

// mineVariables classifies a get_variable_defs payload, a flat JSON map of
// variable name to value, into token sets. Names win over value shapes so
// "spacing/sm": 8 lands in spacing even though 8 also parses as a length.
func mineVariables(payload string, tc *schema.TokenCollector) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return
	}
	for name, v := range raw {
		value := stringifyVariable(v)
		if value == "" {
			continue
		}
		classifyVariable(name, value, tc)
	}
}

func stringifyVariable(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return formatFloat(t)
	case bool, nil:
		return ""
	default:
		return ""
	}
}

func classifyVariable(name, value string, tc *schema.TokenCollector) {
	low := strings.ToLower(name)
	switch {
	case strings.Contains(low, "color") || strings.Contains(low, "colour"):
		if c, ok := css.ParseColor(value); ok {
			tc.Color(c.String())
		}
	case strings.Contains(low, "radius") || strings.Contains(low, "corner"):
		if f, ok := css.ParsePx(value); ok {
			tc.Radius(css.FormatPx(f))
		}
	case strings.Contains(low, "spacing") || strings.Contains(low, "space") ||
		strings.Contains(low, "gap") || strings.Contains(low, "padding") || strings.Contains(low, "margin"):
		if f, ok := css.ParsePx(value); ok {
			tc.Spacing(css.FormatPx(f))
		}
	case strings.Contains(low, "weight"):
		if f, ok := css.ParsePx(value); ok {
			tc.FontWeight(formatFloat(f))
		}
	case strings.Contains(low, "size") && (strings.Contains(low, "font") || strings.Contains(low, "text")):
		if f, ok := css.ParsePx(value); ok {
			tc.FontSize(css.FormatPx(f))
		}
	case strings.Contains(low, "family") || strings.Contains(low, "font"):
		tc.FontFamily(value)
	case strings.Contains(low, "shadow") || strings.Contains(low, "elevation"):
		tc.Shadow(value)
	default:
		if c, ok := css.ParseColor(value); ok {
			tc.Color(c.String())
		} else if f, ok := css.ParsePx(value); ok {
			tc.Spacing(css.FormatPx(f))
		}
	}
}

var styleDeclRe = regexp.MustCompile(`(?i)(background-color|background|color|font-family|font-size|font-weight|border-radius|box-shadow|gap|padding)\s*:\s*([^;"}\n]+)`)

// mineCode scans a get_code payload for CSS-ish declarations and feeds the
// values into the collector. Best-effort: generated code the regexp does
// not recognize contributes nothing.
func mineCode(payload string, tc *schema.TokenCollector) {
	if strings.TrimSpace(payload) == "" {
		return
	}
	for _, m := range styleDeclRe.FindAllStringSubmatch(payload, -1) {
		prop := strings.ToLower(m[1])
		value := strings.TrimSpace(m[2])
		if value == "" {
			continue
		}
		switch prop {
		case "background-color", "background", "color":
			if c, ok := css.ParseColor(value); ok {
				tc.Color(c.String())
			}
		case "font-family":
			family := strings.Trim(strings.TrimSpace(strings.Split(value, ",")[0]), `"'`)
			if family != "" {
				tc.FontFamily(family)
			}
		case "font-size":
			if f, ok := css.ParsePx(value); ok {
				tc.FontSize(css.FormatPx(f))
			}
		case "font-weight":
			if f, ok := css.ParsePx(value); ok {
				tc.FontWeight(formatFloat(f))
			}
		case "border-radius":
			if f, ok := css.ParsePx(strings.Fields(value)[0]); ok {
				tc.Radius(css.FormatPx(f))
			}
		case "box-shadow":
			tc.Shadow(value)
		case "gap", "padding":
			for _, part := range strings.Fields(value) {
				if f, ok := css.ParsePx(part); ok {
					tc.Spacing(css.FormatPx(f))
				}
			}
		}
	}
}

// Source is the extraction entry point the pipeline depends on. The MCP
// and REST variants both implement it, so callers never branch on how the
// document data arrives.
type Source interface {
	Extract(ctx context.Context, ref FileRef, sourceURL string) (*schema.ExtractionResult, error)
}

// MCPSource extracts through a connected MCP transport. The metadata tool
// is required; variables and code are fetched best-effort.
type MCPSource struct {
	transport mcpclient.Transport
	ex        *Extractor
	log       *slog.Logger
}

func NewMCPSource(t mcpclient.Transport, ex *Extractor, logger *slog.Logger) *MCPSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPSource{transport: t, ex: ex, log: logger}
}

func (s *MCPSource) Extract(ctx context.Context, ref FileRef, sourceURL string) (*schema.ExtractionResult, error) {
	args := map[string]any{}
	if ref.NodeID != "" {
		args["nodeId"] = ref.NodeID
	}
	if ref.Key != "" {
		args["fileKey"] = ref.Key
	}
	meta, err := s.callText(ctx, "get_metadata", args)
	if err != nil {
		return nil, err
	}
	payloads := MCPPayloads{Metadata: meta}
	if vars, err := s.callText(ctx, "get_variable_defs", args); err == nil {
		payloads.Variables = vars
	} else {
		s.log.Debug("variable defs unavailable", slog.String("error", err.Error()))
	}
	if code, err := s.callText(ctx, "get_code", args); err == nil {
		payloads.Code = code
	} else {
		s.log.Debug("generated code unavailable", slog.String("error", err.Error()))
	}
	return s.ex.FromMCP(payloads, sourceURL), nil
}

func (s *MCPSource) callText(ctx context.Context, name string, args map[string]any) (string, error) {
	res, err := s.transport.CallTool(ctx, name, args)
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return "", err
	}
	return res.Text(), nil
}

// RESTSource extracts through the public REST API. With a node id it
// fetches just that subtree, otherwise the whole file.
type RESTSource struct {
	client *Client
	ex     *Extractor
}

func NewRESTSource(client *Client, ex *Extractor) *RESTSource {
	return &RESTSource{client: client, ex: ex}
}

func (s *RESTSource) Extract(ctx context.Context, ref FileRef, sourceURL string) (*schema.ExtractionResult, error) {
	if ref.NodeID != "" {
		resp, err := s.client.Nodes(ctx, ref.Key, []string{ref.NodeID})
		if err != nil {
			return nil, err
		}
		return s.ex.FromNodes(resp, sourceURL), nil
	}
	resp, err := s.client.File(ctx, ref.Key, 0)
	if err != nil {
		return nil, err
	}
	return s.ex.FromFile(resp, sourceURL), nil
}
