package compare

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/designparity/pkg/schema"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(schema.DefaultSettings(), discardLogger())
	require.NoError(t, err)
	return e
}

func el(id, typ string, props map[string]string) *schema.Element {
	e := &schema.Element{ID: id, Type: typ}
	for k, v := range props {
		e.SetProp(k, v)
	}
	return e
}

func TestTypeScore(t *testing.T) {
	tests := []struct {
		figma string
		web   string
		want  float64
	}{
		{"TEXT", "span", 1},
		{"TEXT", "h1", 1},
		{"COMPONENT", "button", 1},
		{"INSTANCE", "a", 0.7},
		{"FRAME", "div", 1},
		{"FRAME", "button", 0.7},
		{"RECTANGLE", "img", 1},
		{"RECTANGLE", "div", 1},
		{"ELLIPSE", "svg", 1},
		{"TEXT", "img", 0},
		{"WIDGET", "div", 0.5},
		{"TEXT", "custom-tag", 0.5},
		{"text", "SPAN", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, typeScore(tt.figma, tt.web), "%s vs %s", tt.figma, tt.web)
	}
}

func TestWordOverlap(t *testing.T) {
	assert.Equal(t, 1.0, wordOverlap("Sign in", "sign in"))
	assert.Equal(t, 0.5, wordOverlap("Welcome back", "Welcome"))
	assert.Equal(t, 0.0, wordOverlap("alpha beta", "gamma delta"))
	assert.Equal(t, 0.0, wordOverlap("", "anything"))
}

func TestAxisRatio(t *testing.T) {
	assert.Equal(t, 1.0, axisRatio(100, 100))
	assert.Equal(t, 0.5, axisRatio(100, 50))
	assert.Equal(t, 1.0, axisRatio(0, 0))
}

func TestGeometryScore(t *testing.T) {
	full := map[string]string{
		schema.PropX: "0px", schema.PropY: "0px",
		schema.PropWidth: "100px", schema.PropHeight: "40px",
	}
	f := el("f", "FRAME", full)
	w := el("w", "div", full)
	s, ok := geometryScore(f, w)
	require.True(t, ok)
	assert.Equal(t, 1.0, s)

	_, ok = geometryScore(el("f", "FRAME", nil), el("w", "div", nil))
	assert.False(t, ok)

	s, ok = geometryScore(
		el("f", "FRAME", map[string]string{schema.PropWidth: "100px"}),
		el("w", "div", map[string]string{schema.PropWidth: "80px"}))
	require.True(t, ok)
	assert.InDelta(t, 0.8, s, 1e-9)
}

func TestTextScore(t *testing.T) {
	_, ok := textScore(el("f", "TEXT", nil), el("w", "span", nil))
	assert.False(t, ok)

	s, ok := textScore(
		el("f", "TEXT", map[string]string{schema.PropTextContent: "Sign in"}),
		el("w", "span", nil))
	require.True(t, ok)
	assert.Equal(t, 0.25, s)

	s, ok = textScore(
		el("f", "TEXT", map[string]string{schema.PropTextContent: "SIGN IN"}),
		el("w", "span", map[string]string{schema.PropTextContent: "Sign in"}))
	require.True(t, ok)
	assert.Equal(t, 1.0, s)

	s, ok = textScore(
		el("f", "TEXT", map[string]string{schema.PropTextContent: "Welcome back"}),
		el("w", "span", map[string]string{schema.PropTextContent: "Welcome"}))
	require.True(t, ok)
	assert.Equal(t, 0.5, s)
}

func TestColorScore(t *testing.T) {
	e := defaultEngine(t)

	s, ok := e.colorScore(
		el("f", "FRAME", map[string]string{schema.PropBackgroundColor: "#ff0000"}),
		el("w", "div", map[string]string{schema.PropBackgroundColor: "#ff0000"}))
	require.True(t, ok)
	assert.Equal(t, 1.0, s)

	s, ok = e.colorScore(
		el("f", "FRAME", map[string]string{schema.PropBackgroundColor: "#ff0000"}),
		el("w", "div", map[string]string{schema.PropBackgroundColor: "#f00000"}))
	require.True(t, ok)
	assert.InDelta(t, 0.98, s, 0.01)

	_, ok = e.colorScore(el("f", "FRAME", nil), el("w", "div", nil))
	assert.False(t, ok)
}

func TestSpacingScore(t *testing.T) {
	e := defaultEngine(t)

	s, ok := e.spacingScore(
		el("f", "FRAME", map[string]string{schema.PropPaddingTop: "24px"}),
		el("w", "div", map[string]string{schema.PropPaddingTop: "26px"}))
	require.True(t, ok)
	assert.Equal(t, 1.0, s)

	s, ok = e.spacingScore(
		el("f", "FRAME", map[string]string{schema.PropPaddingTop: "24px"}),
		el("w", "div", map[string]string{schema.PropPaddingTop: "40px"}))
	require.True(t, ok)
	assert.InDelta(t, 0.625, s, 1e-9)

	_, ok = e.spacingScore(el("f", "FRAME", nil), el("w", "div", nil))
	assert.False(t, ok)
}

func TestCompositeSimilarity(t *testing.T) {
	e := defaultEngine(t)

	props := map[string]string{
		schema.PropX: "0px", schema.PropY: "0px",
		schema.PropWidth: "100px", schema.PropHeight: "40px",
		schema.PropBackgroundColor: "#ff0000",
	}
	f := el("1:2", "COMPONENT", props)
	w := el("#cta", "button", props)

	// Categories with no evidence drop out, so a perfect partial profile
	// still scores a full match.
	assert.InDelta(t, 1.0, e.similarity(f, w), 1e-9)
}

func TestCompositeSimilarityPenalizesTypeMismatch(t *testing.T) {
	e := defaultEngine(t)

	props := map[string]string{
		schema.PropX: "0px", schema.PropY: "0px",
		schema.PropWidth: "100px", schema.PropHeight: "40px",
	}
	f := el("1:2", "TEXT", props)
	w := el("#pic", "img", props)

	sim := e.similarity(f, w)
	assert.Less(t, sim, 1.0)
	assert.Greater(t, sim, 0.0)
}
