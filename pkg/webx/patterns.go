package webx

import (
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchAny reports whether rawURL matches any of the doublestar patterns.
// Each pattern is tried against the full URL, the host/path form, and the
// bare host, so "*.notion.site" and "**/app.example.com/**" both behave as
// expected. Invalid patterns are skipped.
func MatchAny(patterns []string, rawURL string) bool {
	if len(patterns) == 0 || rawURL == "" {
		return false
	}
	candidates := []string{rawURL}
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		candidates = append(candidates, u.Host+u.Path, u.Host)
	}
	for _, pat := range patterns {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}
		for _, cand := range candidates {
			if ok, err := doublestar.Match(pat, cand); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// SplitPatterns parses a comma-separated pattern list, the form the
// environment knob uses.
func SplitPatterns(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
