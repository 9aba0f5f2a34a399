package mcplog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestSanitizeParams(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]any
		wantKeys map[string]bool // keys expected in output
		wantSkip map[string]bool // keys that should NOT appear
	}{
		{
			name:     "nil map returns empty",
			input:    nil,
			wantKeys: map[string]bool{},
		},
		{
			name:     "short string passes through",
			input:    map[string]any{"mode": "desktop"},
			wantKeys: map[string]bool{"mode": true},
		},
		{
			name: "long string replaced with _len key",
			input: map[string]any{
				"settings": string(make([]byte, 200)), // 200 bytes > 64
			},
			wantKeys: map[string]bool{"settings_len": true},
			wantSkip: map[string]bool{"settings": true},
		},
		{
			name: "bool and nil pass through",
			input: map[string]any{
				"screenshot": true,
				"extra":      nil,
			},
			wantKeys: map[string]bool{"screenshot": true, "extra": true},
		},
		{
			name: "url keys keep their value even when long",
			input: map[string]any{
				"figmaUrl": "https://www.figma.com/design/abc123/landing?node-id=" + strings.Repeat("1-2", 40),
				"webUrl":   "https://example.com/pricing",
			},
			wantKeys: map[string]bool{"figmaUrl": true, "webUrl": true},
			wantSkip: map[string]bool{"figmaUrl_len": true, "webUrl_len": true},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := SanitizeParams(tc.input)
			for k := range tc.wantKeys {
				if _, ok := out[k]; !ok {
					t.Errorf("expected key %q in output", k)
				}
			}
			for k := range tc.wantSkip {
				if _, ok := out[k]; ok {
					t.Errorf("unexpected key %q in output", k)
				}
			}
		})
	}
}

func TestSanitizeParamsTruncatesURLs(t *testing.T) {
	long := "https://example.com/" + strings.Repeat("a", 400)
	out := SanitizeParams(map[string]any{"url": long})
	got, ok := out["url"].(string)
	if !ok {
		t.Fatalf("url key missing or not a string: %v", out["url"])
	}
	if len(got) != urlValueMax {
		t.Errorf("url length = %d, want %d", len(got), urlValueMax)
	}
}

func TestResponseBytes(t *testing.T) {
	t.Run("nil returns zero", func(t *testing.T) {
		if got := ResponseBytes(nil); got != 0 {
			t.Errorf("got %d, want 0", got)
		}
	})
}

func TestSimilarityOf(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *float64
	}{
		{name: "overallSimilarity field", text: `{"overallSimilarity":0.82,"matches":[]}`, want: f64(0.82)},
		{name: "similarity field", text: `{"similarity":0.5,"pixelCount":100}`, want: f64(0.5)},
		{name: "no similarity field", text: `{"elements":[]}`, want: nil},
		{name: "non-json text", text: "desktop mode active", want: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := mcp.NewToolResultText(tc.text)
			got := SimilarityOf(res)
			switch {
			case tc.want == nil && got != nil:
				t.Errorf("got %v, want nil", *got)
			case tc.want != nil && got == nil:
				t.Errorf("got nil, want %v", *tc.want)
			case tc.want != nil && got != nil && *got != *tc.want:
				t.Errorf("got %v, want %v", *got, *tc.want)
			}
		})
	}

	t.Run("nil result", func(t *testing.T) {
		if got := SimilarityOf(nil); got != nil {
			t.Errorf("got %v, want nil", *got)
		}
	})
}

func f64(v float64) *float64 { return &v }

func TestLoggerWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.jsonl")

	logger, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	entries := []LogEntry{
		{Ts: time.Now().UTC().Format(time.RFC3339), Tool: "provider_status", Params: map[string]any{}, DurationMs: 5, ResponseBytes: 100, TokensEst: 25},
		{Ts: time.Now().UTC().Format(time.RFC3339), Tool: "compare_designs", Params: map[string]any{"figmaUrl": "https://www.figma.com/design/x/y", "webUrl": "https://example.com"}, DurationMs: 4200, ResponseBytes: 800, TokensEst: 200, Similarity: f64(0.91)},
		{Ts: time.Now().UTC().Format(time.RFC3339), Tool: "extract_web", Params: map[string]any{"url": "https://example.com"}, DurationMs: 900, ResponseBytes: 50, TokensEst: 12},
	}

	for _, e := range entries {
		if err := logger.Write(e); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Re-open and read back.
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var got []LogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("unmarshal line %q: %v", line, err)
		}
		got = append(got, e)
	}

	if len(got) != len(entries) {
		t.Fatalf("got %d lines, want %d", len(got), len(entries))
	}
	for i, e := range entries {
		if got[i].Tool != e.Tool {
			t.Errorf("line %d: tool=%q, want %q", i, got[i].Tool, e.Tool)
		}
		if got[i].DurationMs != e.DurationMs {
			t.Errorf("line %d: duration_ms=%d, want %d", i, got[i].DurationMs, e.DurationMs)
		}
	}
	if got[1].Similarity == nil || *got[1].Similarity != 0.91 {
		t.Errorf("comparison entry lost its similarity: %v", got[1].Similarity)
	}
	if got[0].Similarity != nil {
		t.Errorf("status entry should carry no similarity")
	}
}

func TestLoggerConcurrency(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "concurrent.jsonl")

	logger, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	const goroutines = 50
	const writesEach = 10

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < writesEach; j++ {
				_ = logger.Write(LogEntry{
					Ts:   time.Now().UTC().Format(time.RFC3339),
					Tool: "provider_status",
				})
			}
		}(i)
	}
	wg.Wait()

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("torn write detected at line %d: %v", count+1, err)
		}
		count++
	}

	if count != goroutines*writesEach {
		t.Errorf("got %d lines, want %d", count, goroutines*writesEach)
	}
}

func TestNewLoggerCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "mcp.jsonl")

	logger, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestNewLoggerEmptyPath(t *testing.T) {
	logger, err := NewLogger("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger != nil {
		t.Errorf("expected nil logger for empty path")
	}
}
