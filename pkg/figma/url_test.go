package figma

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/designparity/pkg/fault"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want FileRef
	}{
		{
			name: "design url with dashed node id",
			raw:  "https://www.figma.com/design/aBc123XyZ/Landing-Page?node-id=12-34&t=xyz",
			want: FileRef{Key: "aBc123XyZ", NodeID: "12:34"},
		},
		{
			name: "legacy file url with encoded colon",
			raw:  "https://www.figma.com/file/aBc123XyZ/Landing-Page?node-id=12%3A34",
			want: FileRef{Key: "aBc123XyZ", NodeID: "12:34"},
		},
		{
			name: "proto url without node id",
			raw:  "https://figma.com/proto/K9y8/Checkout",
			want: FileRef{Key: "K9y8"},
		},
		{
			name: "board url",
			raw:  "https://www.figma.com/board/Qq11/Flows?node-id=1-2",
			want: FileRef{Key: "Qq11", NodeID: "1:2"},
		},
		{
			name: "surrounding whitespace",
			raw:  "  https://www.figma.com/design/aBc123XyZ/x  ",
			want: FileRef{Key: "aBc123XyZ"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseURLRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not figma", "https://example.com/design/abc/x"},
		{"lookalike host", "https://notfigma.com/design/abc/x"},
		{"missing key", "https://www.figma.com/design"},
		{"unknown path kind", "https://www.figma.com/community/file/abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseURL(tt.raw)
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.Validation))
		})
	}
}

func TestIsFigmaURL(t *testing.T) {
	assert.True(t, IsFigmaURL("https://www.figma.com/design/abc/x"))
	assert.False(t, IsFigmaURL("https://example.com/page"))
}
