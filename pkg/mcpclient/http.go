package mcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gnana997/designparity/pkg/fault"
)

const (
	// SessionHeader correlates requests to an MCP session.
	SessionHeader = "mcp-session-id"

	defaultClientName    = "designparity"
	defaultClientVersion = "1.0.0"
	defaultHTTPTimeout   = 30 * time.Second

	// maxErrorBody bounds how much of an upstream error body is embedded
	// in the returned error message.
	maxErrorBody = 2048
)

// HTTPConfig configures the direct HTTP transport used by both the desktop
// and the remote OAuth variants.
type HTTPConfig struct {
	// Endpoint is the MCP base URL, e.g. http://127.0.0.1:3845/mcp or
	// https://mcp.figma.com/mcp.
	Endpoint string

	// RequireToken makes construction of requests fail when no bearer
	// token can be resolved. The desktop variant runs with false.
	RequireToken bool

	// Tokens supplies and refreshes bearer tokens. Optional for the
	// desktop variant.
	Tokens TokenProvider

	Client        *http.Client
	Logger        *slog.Logger
	ClientName    string
	ClientVersion string
}

// HTTPTransport speaks JSON-RPC 2.0 over HTTP POST with either plain JSON
// or SSE-framed responses. One instance owns one session.
type HTTPTransport struct {
	cfg HTTPConfig
	hc  *http.Client
	log *slog.Logger

	mu          sync.Mutex
	nextID      int64
	sessionID   string
	token       string
	initialized bool
}

// NewHTTPTransport validates the endpoint and builds a transport. The
// session is established lazily by Connect or by the first call.
func NewHTTPTransport(cfg HTTPConfig) (*HTTPTransport, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fault.New(fault.Validation, fault.Configuration, "invalid MCP endpoint %q", cfg.Endpoint)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ClientName == "" {
		cfg.ClientName = defaultClientName
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = defaultClientVersion
	}
	return &HTTPTransport{cfg: cfg, hc: cfg.Client, log: cfg.Logger}, nil
}

// DesktopEndpoint returns the loopback MCP URL the Figma desktop app
// serves on.
func DesktopEndpoint(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d/mcp", port)
}

// Connect performs the initialize handshake: POST initialize, record the
// mcp-session-id response header (synthesizing a local id when the server
// is stateless and returns none), then send the initialized notification
// best-effort. Connecting an already-connected transport is a no-op.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectLocked(ctx)
}

func (t *HTTPTransport) connectLocked(ctx context.Context) error {
	if t.initialized {
		return nil
	}
	params := newInitializeParams(t.cfg.ClientName, t.cfg.ClientVersion)
	if _, err := t.call(ctx, "initialize", params); err != nil {
		return err
	}
	if t.sessionID == "" {
		// stateless server: correlate locally
		t.sessionID = uuid.NewString()
	}
	t.notifyInitialized(ctx)
	t.initialized = true
	t.log.Debug("mcp session established", "endpoint", t.cfg.Endpoint, "session", t.sessionID)
	return nil
}

// notifyInitialized is best-effort; a failure is logged and ignored.
func (t *HTTPTransport) notifyInitialized(ctx context.Context) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: "notifications/initialized"})
	if err != nil {
		return
	}
	status, _, _, err := t.roundTrip(ctx, body, t.token)
	if err != nil || status >= 300 {
		t.log.Debug("initialized notification not accepted", "status", status, "error", err)
	}
}

// ListTools fetches the server's tool list, connecting first if needed.
func (t *HTTPTransport) ListTools(ctx context.Context) ([]Tool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.connectLocked(ctx); err != nil {
		return nil, err
	}
	raw, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fault.Wrap(fault.Connection, fault.Infrastructure, err, "malformed tools/list result")
	}
	return out.Tools, nil
}

// CallTool invokes one tool. A tool-level failure comes back as a result
// with IsError set, not as a Go error; transport and RPC failures error.
func (t *HTTPTransport) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.connectLocked(ctx); err != nil {
		return nil, err
	}
	raw, err := t.call(ctx, "tools/call", callToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var res ToolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fault.Wrap(fault.Connection, fault.Infrastructure, err, "malformed tools/call result for %q", name)
	}
	return &res, nil
}

// SessionID returns the current session id, empty before Connect.
func (t *HTTPTransport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Close discards the session. The transport can be reconnected afterward.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.initialized = false
	t.sessionID = ""
	t.token = ""
	return nil
}

// call issues one JSON-RPC request with an incrementing id and decodes the
// response. On 401 with a token provider configured it refreshes the token
// once and retries the identical request exactly once. Callers hold t.mu.
func (t *HTTPTransport) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	tok, err := t.currentToken(ctx)
	if err != nil {
		return nil, err
	}

	t.nextID++
	id := t.nextID
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params})
	if err != nil {
		return nil, fault.Wrap(fault.Validation, fault.Configuration, err, "encode %s request", method)
	}

	status, header, payload, err := t.roundTrip(ctx, body, tok)
	if err != nil {
		return nil, fault.Wrap(fault.Connection, fault.Infrastructure, err, "%s request to %s failed", method, t.cfg.Endpoint)
	}
	t.captureSession(header)

	if status == http.StatusUnauthorized {
		fresh, rerr := t.refreshToken(ctx, tok)
		if rerr != nil {
			return nil, rerr
		}
		t.log.Debug("retrying after token refresh", "method", method)
		status, header, payload, err = t.roundTrip(ctx, body, fresh)
		if err != nil {
			return nil, fault.Wrap(fault.Connection, fault.Infrastructure, err, "%s retry to %s failed", method, t.cfg.Endpoint)
		}
		t.captureSession(header)
		if status == http.StatusUnauthorized {
			return nil, fault.New(fault.Authentication, fault.Configuration, "%s still unauthorized after token refresh", method)
		}
	}

	if status < 200 || status >= 300 {
		return nil, fault.New(fault.Connection, fault.Infrastructure, "%s failed: status %d: %s", method, status, truncate(payload, maxErrorBody))
	}

	resp, err := decodeResponse(payload, id)
	if err != nil {
		return nil, fault.Wrap(fault.Connection, fault.Infrastructure, err, "decode %s response", method)
	}
	if resp.Error != nil {
		return nil, fault.Wrap(fault.Extraction, fault.Infrastructure, resp.Error, "%s rejected", method)
	}
	return resp.Result, nil
}

func (t *HTTPTransport) captureSession(header http.Header) {
	if sid := header.Get(SessionHeader); sid != "" {
		t.sessionID = sid
	}
}

// currentToken resolves the bearer token for the next request, caching it
// on the session. RequireToken turns a missing token into an error instead
// of an anonymous request.
func (t *HTTPTransport) currentToken(ctx context.Context) (string, error) {
	if t.token != "" {
		return t.token, nil
	}
	if t.cfg.Tokens == nil {
		if t.cfg.RequireToken {
			return "", fault.New(fault.Authentication, fault.Configuration, "endpoint %s requires a token and none is configured", t.cfg.Endpoint)
		}
		return "", nil
	}
	tok, err := t.cfg.Tokens.Token(ctx)
	if err != nil {
		return "", fault.Wrap(fault.Authentication, fault.Configuration, err, "resolve token")
	}
	if tok == "" && t.cfg.RequireToken {
		return "", fault.New(fault.Authentication, fault.Configuration, "endpoint %s requires a token and the provider returned none", t.cfg.Endpoint)
	}
	t.token = tok
	return tok, nil
}

// refreshToken implements the 401 rule: ask the provider once, and fail
// permanently when there is no provider, the refresh errors, or the token
// comes back unchanged.
func (t *HTTPTransport) refreshToken(ctx context.Context, stale string) (string, error) {
	if t.cfg.Tokens == nil {
		return "", fault.New(fault.Authentication, fault.Configuration, "unauthorized by %s and no token provider configured", t.cfg.Endpoint)
	}
	fresh, err := t.cfg.Tokens.Refresh(ctx)
	if err != nil {
		return "", fault.Wrap(fault.Authentication, fault.Configuration, err, "token refresh failed")
	}
	if fresh == "" || fresh == stale {
		return "", fault.New(fault.Authentication, fault.Configuration, "token unchanged after refresh; re-authorize the connection")
	}
	t.token = fresh
	return fresh, nil
}

func (t *HTTPTransport) roundTrip(ctx context.Context, body []byte, token string) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if t.sessionID != "" {
		req.Header.Set(SessionHeader, t.sessionID)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.hc.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, resp.Header, payload, nil
}

func truncate(b []byte, n int) string {
	s := string(bytes.TrimSpace(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
