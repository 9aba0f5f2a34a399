// Package provider decides, per request, how to reach Figma: which MCP
// transport variant to construct (desktop, OAuth remote, proxy relay) or
// whether to stay on the plain REST API, based on explicit overrides,
// environment signals, and a circuit-broken desktop liveness probe.
package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/gnana997/designparity/pkg/fault"
	"github.com/gnana997/designparity/pkg/mcpclient"
	"github.com/gnana997/designparity/pkg/resilience"
)

// Mode names one way of reaching Figma.
type Mode string

const (
	// ModeAPI skips MCP entirely; extraction goes through the REST API.
	ModeAPI Mode = "api"
	// ModeDesktop talks to the Figma desktop app's loopback MCP server.
	ModeDesktop Mode = "desktop"
	// ModeOAuth talks to the remote MCP server with a bearer token.
	ModeOAuth Mode = "oauth"
	// ModeProxy relays MCP calls through a proxy service.
	ModeProxy Mode = "proxy"
)

// ParseMode normalizes a mode string. The second return is false for
// unknown values.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAPI:
		return ModeAPI, true
	case ModeDesktop:
		return ModeDesktop, true
	case ModeOAuth:
		return ModeOAuth, true
	case ModeProxy:
		return ModeProxy, true
	}
	return "", false
}

// Environment variables the resolver consults.
const (
	EnvConnectionMode = "FIGMA_CONNECTION_MODE"
	EnvAccessToken    = "FIGMA_ACCESS_TOKEN"
	EnvServiceToken   = "FIGMA_SERVICE_TOKEN"
	EnvRemoteURL      = "FIGMA_MCP_URL"
	EnvDesktopPort    = "FIGMA_DESKTOP_MCP_PORT"
	EnvProxyURL       = "MCP_PROXY_URL"
	EnvLocalMode      = "DESIGNPARITY_LOCAL_MODE"
)

// cloudMarkers are hosting-platform env vars whose presence means this
// process is not running next to a desktop app.
var cloudMarkers = []string{"RAILWAY_ENVIRONMENT", "VERCEL", "FLY_APP_NAME", "K_SERVICE", "DYNO"}

const (
	DefaultRemoteURL   = "https://mcp.figma.com/mcp"
	DefaultDesktopPort = 3845

	defaultProbeTimeout = 2 * time.Second
	defaultLivenessTTL  = 30 * time.Second
)

// OAuthTokenSource is the external auth service boundary. LiveToken returns
// the user's current access token (refreshing upstream if the service needs
// to), or empty when the user never completed OAuth. RefreshToken forces a
// new token and is the hook behind the 401-retry rule.
type OAuthTokenSource interface {
	LiveToken(ctx context.Context, userID string) (string, error)
	RefreshToken(ctx context.Context, userID string) (string, error)
}

// Options select a connection per request.
type Options struct {
	// UserID keys OAuth token lookups.
	UserID string
	// FigmaToken overrides all other token sources when set.
	FigmaToken string
	// Mode forces a variant, bypassing detection.
	Mode Mode
	// AutoDetectDesktop enables the liveness probe during resolution.
	AutoDetectDesktop bool
}

// DefaultOptions enables desktop autodetection.
func DefaultOptions() Options {
	return Options{AutoDetectDesktop: true}
}

// Availability reports which connection paths look usable right now.
type Availability struct {
	API     bool `json:"api"`
	Desktop bool `json:"desktop"`
	OAuth   bool `json:"oauth"`
}

// Config wires a Resolver. Zero values fall back to env vars and defaults.
type Config struct {
	RemoteURL    string
	DesktopPort  int
	ProxyURL     string
	ProbeTimeout time.Duration
	LivenessTTL  time.Duration

	Getenv     func(string) string
	HTTPClient *http.Client
	Logger     *slog.Logger
	OAuth      OAuthTokenSource
	Breakers   *resilience.BreakerRegistry

	// ConnectRetry overrides the handshake retry policy. Nil uses the
	// default of 3 attempts with exponential backoff capped at 5s.
	ConnectRetry *resilience.RetryPolicy
}

// Resolver owns the singleton MCP client and the cached desktop liveness
// state. Construct one per process (or per test) instead of sharing
// package-level globals.
type Resolver struct {
	cfg      Config
	hc       *http.Client
	log      *slog.Logger
	breakers *resilience.BreakerRegistry
	liveness *expirable.LRU[int, bool]

	mu         sync.Mutex
	client     mcpclient.Transport
	clientMode Mode
}

// NewResolver fills config defaults and builds a resolver.
func NewResolver(cfg Config) *Resolver {
	if cfg.Getenv == nil {
		cfg.Getenv = func(string) string { return "" }
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.LivenessTTL <= 0 {
		cfg.LivenessTTL = defaultLivenessTTL
	}
	if cfg.Breakers == nil {
		cfg.Breakers = resilience.NewBreakerRegistry(resilience.DefaultBreakerConfig())
	}
	return &Resolver{
		cfg:      cfg,
		hc:       cfg.HTTPClient,
		log:      cfg.Logger,
		breakers: cfg.Breakers,
		liveness: expirable.NewLRU[int, bool](8, nil, cfg.LivenessTTL),
	}
}

func (r *Resolver) getenv(key string) string { return r.cfg.Getenv(key) }

// Resolve picks the connection mode: explicit option, then the environment
// preference, then desktop autodetection (local mode only), then the
// deployment default (desktop locally, oauth in the cloud).
func (r *Resolver) Resolve(ctx context.Context, opts Options) (Mode, error) {
	if opts.Mode != "" {
		m, ok := ParseMode(string(opts.Mode))
		if !ok {
			return "", fault.New(fault.Validation, fault.Configuration, "unknown connection mode %q", opts.Mode)
		}
		return m, nil
	}
	if env := r.getenv(EnvConnectionMode); env != "" {
		if m, ok := ParseMode(env); ok {
			return m, nil
		}
		r.log.Warn("ignoring invalid connection mode from environment", "value", env)
	}
	local := r.LocalMode()
	if local && opts.AutoDetectDesktop && r.DesktopAlive(ctx) {
		return ModeDesktop, nil
	}
	if local {
		return ModeDesktop, nil
	}
	return ModeOAuth, nil
}

// LocalMode reports whether this process runs next to a desktop app. True
// when forced, when a desktop MCP port is configured, or when no cloud
// hosting marker is present. Fails open toward local so desktop users are
// never blocked by detection gaps.
func (r *Resolver) LocalMode() bool {
	if isTruthy(r.getenv(EnvLocalMode)) {
		return true
	}
	if r.getenv(EnvDesktopPort) != "" {
		return true
	}
	for _, marker := range cloudMarkers {
		if r.getenv(marker) != "" {
			return false
		}
	}
	return true
}

// Provider reports which connection paths are currently available.
func (r *Resolver) Provider(ctx context.Context) Availability {
	av := Availability{
		API:   r.getenv(EnvAccessToken) != "" || r.getenv(EnvServiceToken) != "",
		OAuth: r.cfg.OAuth != nil || r.getenv(EnvServiceToken) != "",
	}
	if r.LocalMode() {
		av.Desktop = r.DesktopAlive(ctx)
	}
	return av
}

// DesktopAlive probes the desktop MCP endpoint. The probe runs under a
// circuit breaker keyed by port and both outcomes are cached for the
// liveness TTL, so at most one probe per TTL window hits the network.
func (r *Resolver) DesktopAlive(ctx context.Context) bool {
	port := r.desktopPort()
	if alive, ok := r.liveness.Get(port); ok {
		return alive
	}
	alive := false
	breaker := r.breakers.Get(fmt.Sprintf("figma-desktop:%d", port))
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		ok, perr := r.probeDesktop(ctx, port)
		alive = ok
		return perr
	}, func(context.Context) error {
		// breaker open: report dead without probing
		alive = false
		return nil
	})
	if err != nil {
		alive = false
	}
	r.liveness.Add(port, alive)
	return alive
}

// probeDesktop treats any HTTP response as proof of life; the desktop MCP
// server answers plain GETs with an error status but it answers.
func (r *Resolver) probeDesktop(ctx context.Context, port int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mcpclient.DesktopEndpoint(port), nil)
	if err != nil {
		return false, err
	}
	resp, err := r.hc.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return true, nil
}

// Client resolves the mode and returns a connected transport. ModeAPI
// returns (nil, nil): the caller should use the REST path. The client is a
// singleton reused across calls while the resolved mode stays the same;
// a mode change or Reset discards it.
func (r *Resolver) Client(ctx context.Context, opts Options) (mcpclient.Transport, error) {
	mode, err := r.Resolve(ctx, opts)
	if err != nil {
		return nil, err
	}
	if mode == ModeAPI {
		return nil, nil
	}

	r.mu.Lock()
	if r.client != nil && r.clientMode == mode {
		c := r.client
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	c, err := r.build(ctx, mode, opts)
	if err != nil {
		return nil, err
	}
	if err := r.connect(ctx, c); err != nil {
		c.Close()
		return nil, err
	}

	r.mu.Lock()
	if r.client != nil {
		r.client.Close()
	}
	r.client = c
	r.clientMode = mode
	r.mu.Unlock()

	r.log.Info("mcp client ready", "mode", string(mode), "session", c.SessionID())
	return c, nil
}

// Reset discards the cached client and liveness state. The next Client
// call re-resolves from scratch.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		r.client.Close()
		r.client = nil
		r.clientMode = ""
	}
	r.liveness.Purge()
}

func (r *Resolver) build(ctx context.Context, mode Mode, opts Options) (mcpclient.Transport, error) {
	switch mode {
	case ModeDesktop:
		return mcpclient.NewHTTPTransport(mcpclient.HTTPConfig{
			Endpoint:     mcpclient.DesktopEndpoint(r.desktopPort()),
			RequireToken: false,
			Client:       r.hc,
			Logger:       r.log,
		})
	case ModeOAuth:
		tokens, err := r.resolveToken(ctx, opts)
		if err != nil {
			return nil, err
		}
		return mcpclient.NewHTTPTransport(mcpclient.HTTPConfig{
			Endpoint:     r.remoteURL(),
			RequireToken: true,
			Tokens:       tokens,
			Client:       r.hc,
			Logger:       r.log,
		})
	case ModeProxy:
		pu := r.cfg.ProxyURL
		if pu == "" {
			pu = r.getenv(EnvProxyURL)
		}
		if pu == "" {
			return nil, fault.New(fault.Validation, fault.Configuration, "proxy mode selected but %s is not set", EnvProxyURL)
		}
		return mcpclient.NewProxyTransport(mcpclient.ProxyConfig{
			BaseURL: pu,
			Client:  r.hc,
			Logger:  r.log,
		})
	}
	return nil, fault.New(fault.Validation, fault.Configuration, "mode %q has no transport", mode)
}

// connect retries the handshake with its own exponential backoff. The
// backoff caps at 5s and runs independently of the probe breaker's timing.
// Authentication and validation failures are final immediately.
func (r *Resolver) connect(ctx context.Context, c mcpclient.Transport) error {
	policy := resilience.RetryPolicy{
		MaxAttempts: 3,
		Backoff:     resilience.ExpBackoff(time.Second, 5*time.Second),
		Retryable: func(err error) bool {
			switch fault.CategoryOf(err) {
			case fault.Authentication, fault.Validation:
				return false
			}
			return true
		},
	}
	if r.cfg.ConnectRetry != nil {
		policy = *r.cfg.ConnectRetry
	}
	return policy.Do(ctx, c.Connect)
}

// resolveToken applies the token priority ladder: explicit argument, live
// OAuth token for the user, service-token env var, then a descriptive
// failure telling the caller to complete OAuth.
func (r *Resolver) resolveToken(ctx context.Context, opts Options) (mcpclient.TokenProvider, error) {
	if opts.FigmaToken != "" {
		return mcpclient.StaticToken(opts.FigmaToken), nil
	}
	if r.cfg.OAuth != nil && opts.UserID != "" {
		tok, err := r.cfg.OAuth.LiveToken(ctx, opts.UserID)
		if err != nil {
			r.log.Warn("oauth token lookup failed", "user", opts.UserID, "error", err)
		} else if tok != "" {
			return &oauthTokens{src: r.cfg.OAuth, userID: opts.UserID}, nil
		}
	}
	if svc := r.getenv(EnvServiceToken); svc != "" {
		return mcpclient.StaticToken(svc), nil
	}
	return nil, fault.New(fault.Authentication, fault.Configuration,
		"no Figma credentials available: complete OAuth for this user or set %s", EnvServiceToken)
}

func (r *Resolver) desktopPort() int {
	if r.cfg.DesktopPort > 0 {
		return r.cfg.DesktopPort
	}
	if v := r.getenv(EnvDesktopPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			return p
		}
	}
	return DefaultDesktopPort
}

func (r *Resolver) remoteURL() string {
	if r.cfg.RemoteURL != "" {
		return r.cfg.RemoteURL
	}
	if v := r.getenv(EnvRemoteURL); v != "" {
		return v
	}
	return DefaultRemoteURL
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// oauthTokens adapts an OAuthTokenSource to the transport's TokenProvider.
type oauthTokens struct {
	src    OAuthTokenSource
	userID string
}

func (o *oauthTokens) Token(ctx context.Context) (string, error) {
	return o.src.LiveToken(ctx, o.userID)
}

func (o *oauthTokens) Refresh(ctx context.Context) (string, error) {
	return o.src.RefreshToken(ctx, o.userID)
}
