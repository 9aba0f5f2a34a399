package figma

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/designparity/pkg/schema"
)

func boolp(v bool) *bool        { return &v }
func floatp(v float64) *float64 { return &v }

func testExtractor() *Extractor {
	e := NewExtractor(slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

// heroDocument is a small document tree exercising every property mapping:
// a page holding a frame with background, padding, gap, radius, and shadow,
// and a red text child.
func heroDocument() *Node {
	return &Node{
		ID:   "0:0",
		Type: "DOCUMENT",
		Children: []Node{{
			ID:   "0:1",
			Name: "Page 1",
			Type: "CANVAS",
			Children: []Node{{
				ID:                  "1:2",
				Name:                "Hero",
				Type:                "FRAME",
				AbsoluteBoundingBox: &Rect{X: 0, Y: 0, Width: 1440, Height: 900},
				Fills:               []Paint{{Type: "SOLID", Color: &Color{R: 1, G: 1, B: 1, A: 1}}},
				Strokes:             []Paint{{Type: "SOLID", Color: &Color{R: 0, G: 0, B: 0, A: 1}}},
				PaddingTop:          24,
				PaddingLeft:         32,
				ItemSpacing:         16,
				CornerRadius:        8,
				Effects: []Effect{{
					Type:   "DROP_SHADOW",
					Color:  &Color{R: 0, G: 0, B: 0, A: 0.25},
					Offset: &Vector{X: 0, Y: 4},
					Radius: 8,
				}},
				Children: []Node{{
					ID:                  "1:3",
					Name:                "Title",
					Type:                "TEXT",
					AbsoluteBoundingBox: &Rect{X: 32, Y: 24, Width: 400, Height: 48},
					Characters:          "Welcome back",
					Fills:               []Paint{{Type: "SOLID", Color: &Color{R: 1, G: 0, B: 0, A: 1}}},
					Style:               &TypeStyle{FontFamily: "Inter", FontSize: 32, FontWeight: 700},
				}},
			}},
		}},
	}
}

func TestFromDocument(t *testing.T) {
	res := testExtractor().FromDocument(heroDocument(), "https://www.figma.com/design/abc/x")

	require.Empty(t, res.Validate())
	assert.Empty(t, res.Metadata.Error)
	assert.Equal(t, schema.SourceFigma, res.Metadata.Source)
	assert.Equal(t, 3, res.Metadata.ElementCount)

	require.Len(t, res.Elements, 1)
	page := res.Elements[0]
	assert.Equal(t, "CANVAS", page.Type)

	require.Len(t, page.Children, 1)
	hero := page.Children[0]
	assert.Equal(t, "1:2", hero.ID)
	assert.Equal(t, "1440px", hero.Prop(schema.PropWidth))
	assert.Equal(t, "900px", hero.Prop(schema.PropHeight))
	assert.Equal(t, "#ffffff", hero.Prop(schema.PropBackgroundColor))
	assert.Equal(t, "#000000", hero.Prop(schema.PropBorderColor))
	assert.Equal(t, "24px", hero.Prop(schema.PropPaddingTop))
	assert.Equal(t, "32px", hero.Prop(schema.PropPaddingLeft))
	assert.Empty(t, hero.Prop(schema.PropPaddingBottom))
	assert.Equal(t, "16px", hero.Prop(schema.PropGap))
	assert.Equal(t, "8px", hero.Prop(schema.PropBorderRadius))
	assert.Equal(t, "0px 4px 8px 0px rgba(0, 0, 0, 0.25)", hero.Prop(schema.PropBoxShadow))

	require.Len(t, hero.Children, 1)
	title := hero.Children[0]
	assert.Equal(t, "TEXT", title.Type)
	assert.Equal(t, "Welcome back", title.Prop(schema.PropTextContent))
	assert.Equal(t, "#ff0000", title.Prop(schema.PropColor))
	assert.Empty(t, title.Prop(schema.PropBackgroundColor))
	assert.Equal(t, "Inter", title.Prop(schema.PropFontFamily))
	assert.Equal(t, "32px", title.Prop(schema.PropFontSize))
	assert.Equal(t, "700", title.Prop(schema.PropFontWeight))
}

func TestFromDocumentTokens(t *testing.T) {
	res := testExtractor().FromDocument(heroDocument(), "")

	tok := res.Tokens
	assert.Contains(t, tok.ColorPalette, "#ffffff")
	assert.Contains(t, tok.ColorPalette, "#ff0000")
	assert.Contains(t, tok.Typography.FontFamilies, "Inter")
	assert.Contains(t, tok.Typography.FontSizes, "32px")
	assert.Contains(t, tok.Typography.FontWeights, "700")
	assert.Contains(t, tok.Spacing, "24px")
	assert.Contains(t, tok.Spacing, "16px")
	assert.Contains(t, tok.BorderRadius, "8px")
	assert.Contains(t, tok.Shadows, "0px 4px 8px 0px rgba(0, 0, 0, 0.25)")
}

func TestFromDocumentNil(t *testing.T) {
	res := testExtractor().FromDocument(nil, "https://www.figma.com/design/abc/x")

	assert.Empty(t, res.Validate())
	assert.True(t, res.Empty())
	assert.NotEmpty(t, res.Metadata.Error)
	assert.NotNil(t, res.Elements)
	assert.NotNil(t, res.Tokens.ColorPalette)
}

func TestConvertFilters(t *testing.T) {
	tests := []struct {
		name string
		node Node
		keep bool
	}{
		{
			name: "hidden node dropped",
			node: Node{ID: "1:1", Type: "FRAME", Visible: boolp(false), AbsoluteBoundingBox: &Rect{Width: 10, Height: 10}},
			keep: false,
		},
		{
			name: "empty organizational group dropped",
			node: Node{ID: "1:1", Type: "GROUP", Name: "misc"},
			keep: false,
		},
		{
			name: "group kept for surviving child",
			node: Node{ID: "1:1", Type: "GROUP", Children: []Node{
				{ID: "1:2", Type: "TEXT", Characters: "hi"},
			}},
			keep: true,
		},
		{
			name: "structural type kept without geometry",
			node: Node{ID: "1:1", Type: "RECTANGLE"},
			keep: true,
		},
		{
			name: "zero-size box alone is not meaningful",
			node: Node{ID: "1:1", Type: "VECTOR", AbsoluteBoundingBox: &Rect{}},
			keep: false,
		},
		{
			name: "vector with area kept",
			node: Node{ID: "1:1", Type: "VECTOR", AbsoluteBoundingBox: &Rect{Width: 24, Height: 24}},
			keep: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testExtractor()
			_, ok := e.convert(&tt.node, schema.NewTokenCollector())
			assert.Equal(t, tt.keep, ok)
		})
	}
}

func TestPaintOpacityMultiplies(t *testing.T) {
	node := Node{
		ID:   "1:1",
		Type: "RECTANGLE",
		Fills: []Paint{{
			Type:    "SOLID",
			Color:   &Color{R: 0, G: 0, B: 0, A: 1},
			Opacity: floatp(0.5),
		}},
	}
	el, ok := testExtractor().convert(&node, schema.NewTokenCollector())
	require.True(t, ok)
	assert.Equal(t, "rgba(0, 0, 0, 0.5)", el.Prop(schema.PropBackgroundColor))
}

func TestHiddenFillSkipped(t *testing.T) {
	node := Node{
		ID:   "1:1",
		Type: "RECTANGLE",
		Fills: []Paint{
			{Type: "SOLID", Visible: boolp(false), Color: &Color{R: 1, G: 0, B: 0, A: 1}},
			{Type: "SOLID", Color: &Color{R: 0, G: 0, B: 1, A: 1}},
		},
	}
	el, ok := testExtractor().convert(&node, schema.NewTokenCollector())
	require.True(t, ok)
	assert.Equal(t, "#0000ff", el.Prop(schema.PropBackgroundColor))
}

func TestCornerRadiiVariants(t *testing.T) {
	uniform := Node{ID: "1:1", Type: "RECTANGLE", RectangleCornerRadii: []float64{8, 8, 8, 8}}
	el, ok := testExtractor().convert(&uniform, schema.NewTokenCollector())
	require.True(t, ok)
	assert.Equal(t, "8px", el.Prop(schema.PropBorderRadius))

	mixed := Node{ID: "1:1", Type: "RECTANGLE", RectangleCornerRadii: []float64{8, 8, 0, 0}}
	el, ok = testExtractor().convert(&mixed, schema.NewTokenCollector())
	require.True(t, ok)
	assert.Equal(t, "8px 8px 0px 0px", el.Prop(schema.PropBorderRadius))
}

func TestNodeOpacityProp(t *testing.T) {
	node := Node{ID: "1:1", Type: "FRAME", Opacity: floatp(0.8)}
	el, ok := testExtractor().convert(&node, schema.NewTokenCollector())
	require.True(t, ok)
	assert.Equal(t, "0.8", el.Prop(schema.PropOpacity))
}

func TestFromNodesDeterministicOrder(t *testing.T) {
	resp := &NodesResponse{Nodes: map[string]struct {
		Document Node `json:"document"`
	}{
		"9:9": {Document: Node{ID: "9:9", Type: "FRAME"}},
		"1:2": {Document: Node{ID: "1:2", Type: "FRAME"}},
	}}
	res := testExtractor().FromNodes(resp, "")

	require.Len(t, res.Elements, 2)
	assert.Equal(t, "1:2", res.Elements[0].ID)
	assert.Equal(t, "9:9", res.Elements[1].ID)
}

func TestFromNodesEmpty(t *testing.T) {
	res := testExtractor().FromNodes(&NodesResponse{}, "")
	assert.True(t, res.Empty())
	assert.NotEmpty(t, res.Metadata.Error)
}
