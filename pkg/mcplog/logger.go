// Package mcplog provides structured JSONL logging for MCP tool calls.
package mcplog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// LogEntry is the schema for one JSONL line written per MCP tool call.
// Similarity is set only for comparison tools, so similarity drift across
// runs can be read straight off the log.
type LogEntry struct {
	Ts            string         `json:"ts"`
	Tool          string         `json:"tool"`
	Params        map[string]any `json:"params"`
	DurationMs    int64          `json:"duration_ms"`
	ResponseBytes int            `json:"response_bytes"`
	TokensEst     int            `json:"tokens_est"`
	Similarity    *float64       `json:"similarity,omitempty"`
	Error         *string        `json:"error"`
}

// Logger appends structured JSONL entries to a file.
// It is safe for concurrent use.
type Logger struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewLogger opens (or creates) the file at path for append-only writing.
// Parent directories are created automatically.
// Returns nil, nil if path is empty; callers treat a nil Logger as disabled.
func NewLogger(path string) (*Logger, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("mcplog: create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("mcplog: open log file: %w", err)
	}
	return &Logger{f: f, enc: json.NewEncoder(f)}, nil
}

// Write appends a single JSONL entry. Errors are returned but are typically
// ignored by the caller so that log failures never affect tool call results.
func (l *Logger) Write(entry LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(entry)
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

const (
	shortStringMax = 64
	urlValueMax    = 256
)

// urlKeys are parameters whose values identify what a tool call operated
// on. They stay in the log (truncated) instead of being reduced to a
// length, because a log line without its URLs is useless for debugging a
// comparison.
var urlKeys = map[string]bool{
	"figmaUrl": true,
	"webUrl":   true,
	"url":      true,
}

// SanitizeParams returns a copy of args safe for logging.
// URL-valued keys keep their value, truncated to urlValueMax bytes. Other
// string values longer than shortStringMax bytes are replaced with a
// "{key}_len" integer entry so that large payloads (tokens, screenshots,
// settings blobs) are never written to the log file.
func SanitizeParams(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		s, isStr := v.(string)
		switch {
		case isStr && urlKeys[k]:
			if len(s) > urlValueMax {
				s = s[:urlValueMax]
			}
			out[k] = s
		case isStr && len(s) > shortStringMax:
			out[k+"_len"] = len(s)
		default:
			out[k] = v
		}
	}
	return out
}

// ResponseBytes returns the serialized byte length of a CallToolResult's
// content. Returns 0 for a nil result or on marshal error.
func ResponseBytes(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	b, err := json.Marshal(result.Content)
	if err != nil {
		return 0
	}
	return len(b)
}

// SimilarityOf peeks into a tool's JSON text output for an
// "overallSimilarity" or "similarity" field. Returns nil when the payload
// carries neither, so non-comparison tools log no similarity at all.
func SimilarityOf(result *mcp.CallToolResult) *float64 {
	if result == nil || len(result.Content) == 0 {
		return nil
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return nil
	}
	text := strings.TrimSpace(tc.Text)
	if !strings.HasPrefix(text, "{") {
		return nil
	}
	var probe struct {
		OverallSimilarity *float64 `json:"overallSimilarity"`
		Similarity        *float64 `json:"similarity"`
	}
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return nil
	}
	if probe.OverallSimilarity != nil {
		return probe.OverallSimilarity
	}
	return probe.Similarity
}

// Now is a replaceable clock for testing.
var Now = func() time.Time { return time.Now() }
