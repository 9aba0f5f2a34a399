package figma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gnana997/designparity/pkg/fault"
)

// DefaultAPIBase is the public Figma REST endpoint.
const DefaultAPIBase = "https://api.figma.com"

const (
	defaultRESTTimeout = 30 * time.Second
	maxRESTErrorBody   = 2048
)

// ClientConfig configures the REST client.
type ClientConfig struct {
	// Token is sent as X-Figma-Token on every request. Required.
	Token string
	// BaseURL overrides DefaultAPIBase, mainly for tests.
	BaseURL string
	// HTTPClient overrides the default 30s-timeout client.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the Figma REST API.
type Client struct {
	base  string
	token string
	hc    *http.Client
	log   *slog.Logger
}

// NewClient builds a REST client. The token must be non-empty.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fault.New(fault.Authentication, fault.Configuration, "figma REST client requires an access token")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultAPIBase
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultRESTTimeout}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: cfg.Token,
		hc:    hc,
		log:   log,
	}, nil
}

// File fetches the full document tree for a file. A depth of 0 requests
// the complete tree.
func (c *Client) File(ctx context.Context, key string, depth int) (*FileResponse, error) {
	if key == "" {
		return nil, fault.New(fault.Validation, fault.Configuration, "figma file key is empty")
	}
	q := url.Values{}
	if depth > 0 {
		q.Set("depth", strconv.Itoa(depth))
	}
	var out FileResponse
	if err := c.get(ctx, "/v1/files/"+url.PathEscape(key), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Nodes fetches specific nodes of a file by id.
func (c *Client) Nodes(ctx context.Context, key string, ids []string) (*NodesResponse, error) {
	if key == "" {
		return nil, fault.New(fault.Validation, fault.Configuration, "figma file key is empty")
	}
	if len(ids) == 0 {
		return nil, fault.New(fault.Validation, fault.Configuration, "no node ids requested")
	}
	q := url.Values{"ids": {strings.Join(ids, ",")}}
	var out NodesResponse
	if err := c.get(ctx, "/v1/files/"+url.PathEscape(key)+"/nodes", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fault.Wrap(fault.Connection, fault.Infrastructure, err, "build figma request")
	}
	req.Header.Set("X-Figma-Token", c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return fault.Wrap(fault.Connection, fault.Infrastructure, err, "figma API request failed")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fault.Wrap(fault.Connection, fault.Infrastructure, err, "read figma API response")
	}
	c.log.Debug("figma REST call",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fault.New(fault.Authentication, fault.Configuration, "figma API rejected the token: %s", restErrDetail(resp.StatusCode, body))
	case resp.StatusCode == http.StatusNotFound:
		return fault.New(fault.Validation, fault.Configuration, "figma file not found: %s", restErrDetail(resp.StatusCode, body))
	case resp.StatusCode == http.StatusTooManyRequests:
		return fault.New(fault.Connection, fault.Infrastructure, "figma API rate limited: %s", restErrDetail(resp.StatusCode, body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fault.New(fault.Connection, fault.Infrastructure, "figma API error: %s", restErrDetail(resp.StatusCode, body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fault.Wrap(fault.Extraction, fault.Target, err, "decode figma API response")
	}
	return nil
}

func restErrDetail(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > maxRESTErrorBody {
		trimmed = trimmed[:maxRESTErrorBody] + "..."
	}
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}
