package schema

// Token-set caps. Sets keep insertion order and drop inserts beyond the
// cap, so the oldest entries win and payload size stays bounded no matter
// how large the source tree is.
const (
	MaxColorTokens      = 50
	MaxFontFamilyTokens = 20
	MaxFontSizeTokens   = 20
	MaxFontWeightTokens = 10
	MaxSpacingTokens    = 30
	MaxRadiusTokens     = 20
	MaxShadowTokens     = 20
)

// Typography groups the font-related token sets.
type Typography struct {
	FontFamilies []string `json:"fontFamilies"`
	FontSizes    []string `json:"fontSizes"`
	FontWeights  []string `json:"fontWeights"`
}

// Tokens are the aggregated design-token collections of one extraction.
// They are derived data, recomputed fully on every extraction.
type Tokens struct {
	ColorPalette []string   `json:"colorPalette"`
	Typography   Typography `json:"typography"`
	Spacing      []string   `json:"spacing"`
	BorderRadius []string   `json:"borderRadius"`
	Shadows      []string   `json:"shadows"`
}

// TokenSet is a bounded, insertion-ordered string set.
type TokenSet struct {
	cap   int
	seen  map[string]struct{}
	items []string
}

// NewTokenSet returns a set that keeps at most capacity distinct values.
func NewTokenSet(capacity int) *TokenSet {
	return &TokenSet{cap: capacity, seen: make(map[string]struct{})}
}

// Add inserts v unless it is empty, already present, or the set is full.
// Returns true when the value was stored.
func (s *TokenSet) Add(v string) bool {
	if v == "" {
		return false
	}
	if _, dup := s.seen[v]; dup {
		return false
	}
	if len(s.items) >= s.cap {
		return false
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// Len returns the number of stored values.
func (s *TokenSet) Len() int { return len(s.items) }

// Values returns the stored values in insertion order. The slice is never
// nil so JSON output stays an array.
func (s *TokenSet) Values() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// TokenCollector accumulates token values during a tree walk and renders
// the final Tokens. One collector per extraction.
type TokenCollector struct {
	colors   *TokenSet
	families *TokenSet
	sizes    *TokenSet
	weights  *TokenSet
	spacing  *TokenSet
	radii    *TokenSet
	shadows  *TokenSet
}

func NewTokenCollector() *TokenCollector {
	return &TokenCollector{
		colors:   NewTokenSet(MaxColorTokens),
		families: NewTokenSet(MaxFontFamilyTokens),
		sizes:    NewTokenSet(MaxFontSizeTokens),
		weights:  NewTokenSet(MaxFontWeightTokens),
		spacing:  NewTokenSet(MaxSpacingTokens),
		radii:    NewTokenSet(MaxRadiusTokens),
		shadows:  NewTokenSet(MaxShadowTokens),
	}
}

func (c *TokenCollector) Color(v string)      { c.colors.Add(v) }
func (c *TokenCollector) FontFamily(v string) { c.families.Add(v) }
func (c *TokenCollector) FontSize(v string)   { c.sizes.Add(v) }
func (c *TokenCollector) FontWeight(v string) { c.weights.Add(v) }
func (c *TokenCollector) Spacing(v string)    { c.spacing.Add(v) }
func (c *TokenCollector) Radius(v string)     { c.radii.Add(v) }
func (c *TokenCollector) Shadow(v string)     { c.shadows.Add(v) }

// Tokens renders the collected sets.
func (c *TokenCollector) Tokens() Tokens {
	return Tokens{
		ColorPalette: c.colors.Values(),
		Typography: Typography{
			FontFamilies: c.families.Values(),
			FontSizes:    c.sizes.Values(),
			FontWeights:  c.weights.Values(),
		},
		Spacing:      c.spacing.Values(),
		BorderRadius: c.radii.Values(),
		Shadows:      c.shadows.Values(),
	}
}
