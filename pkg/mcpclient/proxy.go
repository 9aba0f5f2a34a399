package mcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gnana997/designparity/pkg/fault"
)

// ProxyConfig configures the relay-backed transport. The relay speaks MCP
// to the upstream server itself; this client only drives the relay's own
// three endpoints.
type ProxyConfig struct {
	// BaseURL is the relay root; /mcp/start, /mcp/run and /mcp/test are
	// appended to it.
	BaseURL string

	Client *http.Client
	Logger *slog.Logger
}

// ProxyTransport forwards MCP calls through a relay service:
// POST /mcp/start yields a session id, POST /mcp/run forwards
// {sessionId, method, params}, GET /mcp/test probes reachability. Tool-call
// semantics match the direct transport.
type ProxyTransport struct {
	cfg ProxyConfig
	hc  *http.Client
	log *slog.Logger

	mu        sync.Mutex
	sessionID string
}

type runRequest struct {
	SessionID string `json:"sessionId"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
}

// NewProxyTransport validates the relay URL and builds a transport.
func NewProxyTransport(cfg ProxyConfig) (*ProxyTransport, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fault.New(fault.Validation, fault.Configuration, "invalid proxy URL %q", cfg.BaseURL)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ProxyTransport{cfg: cfg, hc: cfg.Client, log: cfg.Logger}, nil
}

// Connect starts a relay session. The relay performs the MCP handshake
// upstream; this side only needs the session id back.
func (t *ProxyTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectLocked(ctx)
}

func (t *ProxyTransport) connectLocked(ctx context.Context) error {
	if t.sessionID != "" {
		return nil
	}
	payload, err := t.post(ctx, "/mcp/start", []byte("{}"))
	if err != nil {
		return err
	}
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(payload, &out); err != nil || out.SessionID == "" {
		return fault.New(fault.Connection, fault.Infrastructure, "relay start returned no session id")
	}
	t.sessionID = out.SessionID
	t.log.Debug("relay session established", "relay", t.cfg.BaseURL, "session", t.sessionID)
	return nil
}

// Probe checks relay reachability via /mcp/test.
func (t *ProxyTransport) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.BaseURL+"/mcp/test", nil)
	if err != nil {
		return err
	}
	resp, err := t.hc.Do(req)
	if err != nil {
		return fault.Wrap(fault.Connection, fault.Infrastructure, err, "relay probe failed")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fault.New(fault.Connection, fault.Infrastructure, "relay probe returned status %d", resp.StatusCode)
	}
	return nil
}

// ListTools forwards tools/list through the relay.
func (t *ProxyTransport) ListTools(ctx context.Context) ([]Tool, error) {
	raw, err := t.run(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fault.Wrap(fault.Connection, fault.Infrastructure, err, "malformed tools/list result from relay")
	}
	return out.Tools, nil
}

// CallTool forwards tools/call through the relay.
func (t *ProxyTransport) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	raw, err := t.run(ctx, "tools/call", callToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var res ToolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fault.Wrap(fault.Connection, fault.Infrastructure, err, "malformed tools/call result from relay for %q", name)
	}
	return &res, nil
}

// SessionID returns the relay session id, empty before Connect.
func (t *ProxyTransport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Close drops the relay session locally. The relay garbage-collects its
// side on inactivity.
func (t *ProxyTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionID = ""
	return nil
}

func (t *ProxyTransport) run(ctx context.Context, method string, params any) (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.connectLocked(ctx); err != nil {
		return nil, err
	}
	body, err := json.Marshal(runRequest{SessionID: t.sessionID, Method: method, Params: params})
	if err != nil {
		return nil, fault.Wrap(fault.Validation, fault.Configuration, err, "encode relay %s request", method)
	}
	payload, err := t.post(ctx, "/mcp/run", body)
	if err != nil {
		return nil, err
	}
	// the relay assigns its own request ids, so take the last payload
	resp, err := decodeResponse(payload, -1)
	if err != nil {
		return nil, fault.Wrap(fault.Connection, fault.Infrastructure, err, "decode relay %s response", method)
	}
	if resp.Error != nil {
		return nil, fault.Wrap(fault.Extraction, fault.Infrastructure, resp.Error, "relay %s rejected", method)
	}
	return resp.Result, nil
}

func (t *ProxyTransport) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := t.hc.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.Connection, fault.Infrastructure, err, "relay %s failed", path)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.Connection, fault.Infrastructure, err, "read relay %s response", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fault.New(fault.Connection, fault.Infrastructure, "relay %s failed: status %d: %s", path, resp.StatusCode, truncate(payload, maxErrorBody))
	}
	return payload, nil
}
