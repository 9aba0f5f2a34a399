// Package figma turns Figma document data, fetched from the REST API or
// received as MCP tool payloads, into the normalized element/token model.
package figma

import "strings"

// Color is Figma's normalized 0..1 RGBA quadruple.
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// Paint is one fill or stroke entry. A nil Visible means visible.
type Paint struct {
	Type    string   `json:"type"`
	Visible *bool    `json:"visible,omitempty"`
	Opacity *float64 `json:"opacity,omitempty"`
	Color   *Color   `json:"color,omitempty"`
}

func (p *Paint) visible() bool { return p.Visible == nil || *p.Visible }

// TypeStyle carries the text styling of a TEXT node.
type TypeStyle struct {
	FontFamily          string  `json:"fontFamily,omitempty"`
	FontSize            float64 `json:"fontSize,omitempty"`
	FontWeight          float64 `json:"fontWeight,omitempty"`
	LetterSpacing       float64 `json:"letterSpacing,omitempty"`
	LineHeightPx        float64 `json:"lineHeightPx,omitempty"`
	TextAlignHorizontal string  `json:"textAlignHorizontal,omitempty"`
}

// Rect is an absolute bounding box.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Vector is a 2D offset.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Effect is a shadow or blur entry on a node.
type Effect struct {
	Type    string  `json:"type"`
	Visible *bool   `json:"visible,omitempty"`
	Color   *Color  `json:"color,omitempty"`
	Offset  *Vector `json:"offset,omitempty"`
	Radius  float64 `json:"radius,omitempty"`
	Spread  float64 `json:"spread,omitempty"`
}

func (e *Effect) visible() bool { return e.Visible == nil || *e.Visible }

func (e *Effect) isShadow() bool {
	return e.Type == "DROP_SHADOW" || e.Type == "INNER_SHADOW"
}

// Node is one vertex of the Figma document graph, as the REST API returns
// it. Only the fields the extractor consumes are modeled.
type Node struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Type                 string     `json:"type"`
	Visible              *bool      `json:"visible,omitempty"`
	Children             []Node     `json:"children,omitempty"`
	AbsoluteBoundingBox  *Rect      `json:"absoluteBoundingBox,omitempty"`
	Fills                []Paint    `json:"fills,omitempty"`
	Strokes              []Paint    `json:"strokes,omitempty"`
	Characters           string     `json:"characters,omitempty"`
	Style                *TypeStyle `json:"style,omitempty"`
	CornerRadius         float64    `json:"cornerRadius,omitempty"`
	RectangleCornerRadii []float64  `json:"rectangleCornerRadii,omitempty"`
	ItemSpacing          float64    `json:"itemSpacing,omitempty"`
	PaddingLeft          float64    `json:"paddingLeft,omitempty"`
	PaddingRight         float64    `json:"paddingRight,omitempty"`
	PaddingTop           float64    `json:"paddingTop,omitempty"`
	PaddingBottom        float64    `json:"paddingBottom,omitempty"`
	Effects              []Effect   `json:"effects,omitempty"`
	Opacity              *float64   `json:"opacity,omitempty"`
}

func (n *Node) hidden() bool { return n.Visible != nil && !*n.Visible }

// firstVisibleSolid returns the first visible solid paint with a color.
func firstVisibleSolid(paints []Paint) *Paint {
	for i := range paints {
		p := &paints[i]
		if !p.visible() || p.Color == nil {
			continue
		}
		if p.Type != "" && p.Type != "SOLID" {
			continue
		}
		return p
	}
	return nil
}

// structuralTypes is the allowlist of node types retained even without
// text or fills, so layout containers survive the meaningful-node filter.
var structuralTypes = map[string]bool{
	"FRAME":     true,
	"COMPONENT": true,
	"INSTANCE":  true,
	"RECTANGLE": true,
	"ELLIPSE":   true,
	"TEXT":      true,
}

func isStructural(nodeType string) bool {
	return structuralTypes[strings.ToUpper(nodeType)]
}

// FileResponse is the body of GET /v1/files/{key}.
type FileResponse struct {
	Name         string `json:"name"`
	LastModified string `json:"lastModified,omitempty"`
	Version      string `json:"version,omitempty"`
	Document     Node   `json:"document"`
}

// NodesResponse is the body of GET /v1/files/{key}/nodes.
type NodesResponse struct {
	Name  string `json:"name,omitempty"`
	Nodes map[string]struct {
		Document Node `json:"document"`
	} `json:"nodes"`
}
