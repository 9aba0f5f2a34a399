package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/designparity/pkg/fault"
	"github.com/gnana997/designparity/pkg/resilience"
)

// --- test doubles ---

// desktopStub mimics the desktop MCP server: GET probes get an error
// status (still proof of life), POSTs get real JSON-RPC replies.
type desktopStub struct {
	gets  atomic.Int32
	posts atomic.Int32
}

func (d *desktopStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			d.gets.Add(1)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		d.posts.Add(1)
		body, _ := io.ReadAll(r.Body)
		var req struct {
			ID *int64 `json:"id"`
		}
		_ = json.Unmarshal(body, &req)
		if req.ID == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{}}`, *req.ID)
	}
}

func stubPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	p, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return p
}

type fakeOAuth struct {
	live       string
	refreshed  string
	liveErr    error
	refreshErr error
}

func (f *fakeOAuth) LiveToken(context.Context, string) (string, error) {
	return f.live, f.liveErr
}

func (f *fakeOAuth) RefreshToken(context.Context, string) (string, error) {
	return f.refreshed, f.refreshErr
}

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func oneShot() *resilience.RetryPolicy {
	return &resilience.RetryPolicy{MaxAttempts: 1}
}

// --- resolution ---

func TestResolveOrder(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		env  map[string]string
		want Mode
	}{
		{
			"explicit beats env",
			Options{Mode: ModeOAuth},
			map[string]string{EnvConnectionMode: "desktop"},
			ModeOAuth,
		},
		{
			"env preference",
			Options{},
			map[string]string{EnvConnectionMode: "proxy"},
			ModeProxy,
		},
		{
			"env is case-insensitive",
			Options{},
			map[string]string{EnvConnectionMode: "API"},
			ModeAPI,
		},
		{
			"invalid env falls through to local default",
			Options{},
			map[string]string{EnvConnectionMode: "bogus"},
			ModeDesktop,
		},
		{
			"cloud default is oauth",
			Options{},
			map[string]string{"VERCEL": "1"},
			ModeOAuth,
		},
		{
			"local default is desktop",
			Options{},
			nil,
			ModeDesktop,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(Config{Getenv: envOf(tt.env)})
			got, err := r.Resolve(context.Background(), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRejectsUnknownExplicitMode(t *testing.T) {
	r := NewResolver(Config{})
	_, err := r.Resolve(context.Background(), Options{Mode: "warp"})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Validation))
}

func TestLocalMode(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{"fails open with no signals", nil, true},
		{"forced", map[string]string{EnvLocalMode: "true", "VERCEL": "1"}, true},
		{"desktop port configured", map[string]string{EnvDesktopPort: "3845", "DYNO": "web.1"}, true},
		{"railway", map[string]string{"RAILWAY_ENVIRONMENT": "production"}, false},
		{"fly", map[string]string{"FLY_APP_NAME": "designparity"}, false},
		{"cloud run", map[string]string{"K_SERVICE": "svc"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(Config{Getenv: envOf(tt.env)})
			assert.Equal(t, tt.want, r.LocalMode())
		})
	}
}

// --- desktop liveness ---

func TestDesktopAliveCachesProbe(t *testing.T) {
	stub := &desktopStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	r := NewResolver(Config{DesktopPort: stubPort(t, srv)})
	ctx := context.Background()

	assert.True(t, r.DesktopAlive(ctx))
	assert.True(t, r.DesktopAlive(ctx))
	assert.True(t, r.DesktopAlive(ctx))
	assert.Equal(t, int32(1), stub.gets.Load(), "within the TTL only one probe hits the network")
}

func TestDesktopAliveDeadPortCachedNegative(t *testing.T) {
	// nothing listens here
	r := NewResolver(Config{DesktopPort: 1, ProbeTimeout: 200 * time.Millisecond})
	ctx := context.Background()

	assert.False(t, r.DesktopAlive(ctx))
	assert.False(t, r.DesktopAlive(ctx), "negative result cached too")
}

func TestDesktopProbeBreakerOpens(t *testing.T) {
	breakers := resilience.NewBreakerRegistry(resilience.BreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		ResetTimeout:     time.Hour,
	})
	r := NewResolver(Config{
		DesktopPort:  1,
		ProbeTimeout: 100 * time.Millisecond,
		LivenessTTL:  time.Nanosecond, // force a fresh probe every call
		Breakers:     breakers,
	})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		assert.False(t, r.DesktopAlive(ctx))
		time.Sleep(time.Millisecond)
	}
	b := breakers.Get("figma-desktop:1")
	assert.Equal(t, resilience.StateOpen, b.State(), "repeated probe failures trip the breaker")
}

// --- token ladder ---

func TestResolveTokenPriority(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit argument wins", func(t *testing.T) {
		r := NewResolver(Config{
			OAuth:  &fakeOAuth{live: "live-tok"},
			Getenv: envOf(map[string]string{EnvServiceToken: "svc-tok"}),
		})
		tp, err := r.resolveToken(ctx, Options{FigmaToken: "explicit-tok", UserID: "u1"})
		require.NoError(t, err)
		tok, _ := tp.Token(ctx)
		assert.Equal(t, "explicit-tok", tok)
	})

	t.Run("live oauth token second", func(t *testing.T) {
		r := NewResolver(Config{
			OAuth:  &fakeOAuth{live: "live-tok", refreshed: "fresh-tok"},
			Getenv: envOf(map[string]string{EnvServiceToken: "svc-tok"}),
		})
		tp, err := r.resolveToken(ctx, Options{UserID: "u1"})
		require.NoError(t, err)
		tok, _ := tp.Token(ctx)
		assert.Equal(t, "live-tok", tok)
		fresh, _ := tp.Refresh(ctx)
		assert.Equal(t, "fresh-tok", fresh)
	})

	t.Run("service token env third", func(t *testing.T) {
		r := NewResolver(Config{
			OAuth:  &fakeOAuth{live: ""},
			Getenv: envOf(map[string]string{EnvServiceToken: "svc-tok"}),
		})
		tp, err := r.resolveToken(ctx, Options{UserID: "u1"})
		require.NoError(t, err)
		tok, _ := tp.Token(ctx)
		assert.Equal(t, "svc-tok", tok)
	})

	t.Run("oauth lookup failure degrades to service token", func(t *testing.T) {
		r := NewResolver(Config{
			OAuth:  &fakeOAuth{liveErr: fmt.Errorf("auth service down")},
			Getenv: envOf(map[string]string{EnvServiceToken: "svc-tok"}),
		})
		tp, err := r.resolveToken(ctx, Options{UserID: "u1"})
		require.NoError(t, err)
		tok, _ := tp.Token(ctx)
		assert.Equal(t, "svc-tok", tok)
	})

	t.Run("nothing available names the fix", func(t *testing.T) {
		r := NewResolver(Config{})
		_, err := r.resolveToken(ctx, Options{UserID: "u1"})
		require.Error(t, err)
		assert.True(t, fault.Is(err, fault.Authentication))
		assert.Contains(t, err.Error(), "complete OAuth")
	})
}

// --- client construction ---

func TestClientAPIModeReturnsNil(t *testing.T) {
	r := NewResolver(Config{})
	c, err := r.Client(context.Background(), Options{Mode: ModeAPI})
	require.NoError(t, err)
	assert.Nil(t, c, "api mode means REST, no MCP client")
}

func TestClientDesktopSingleton(t *testing.T) {
	stub := &desktopStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	r := NewResolver(Config{DesktopPort: stubPort(t, srv), ConnectRetry: oneShot()})
	ctx := context.Background()
	opts := Options{Mode: ModeDesktop}

	a, err := r.Client(ctx, opts)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.NotEmpty(t, a.SessionID())

	b, err := r.Client(ctx, opts)
	require.NoError(t, err)
	assert.Same(t, a, b, "same mode reuses the client")

	r.Reset()
	c, err := r.Client(ctx, opts)
	require.NoError(t, err)
	assert.NotSame(t, a, c, "reset discards the cached client")
}

func TestClientModeChangeRebuilds(t *testing.T) {
	stub := &desktopStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()
	port := stubPort(t, srv)

	r := NewResolver(Config{
		DesktopPort:  port,
		RemoteURL:    srv.URL + "/mcp",
		Getenv:       envOf(map[string]string{EnvServiceToken: "svc-tok"}),
		ConnectRetry: oneShot(),
	})
	ctx := context.Background()

	a, err := r.Client(ctx, Options{Mode: ModeDesktop})
	require.NoError(t, err)
	b, err := r.Client(ctx, Options{Mode: ModeOAuth})
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestClientDesktopConnectFailure(t *testing.T) {
	r := NewResolver(Config{DesktopPort: 1, ConnectRetry: oneShot()})
	_, err := r.Client(context.Background(), Options{Mode: ModeDesktop})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Connection))
}

func TestClientProxyNeedsURL(t *testing.T) {
	r := NewResolver(Config{})
	_, err := r.Client(context.Background(), Options{Mode: ModeProxy})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Validation))
	assert.Contains(t, err.Error(), EnvProxyURL)
}

func TestClientOAuthWithoutCredentials(t *testing.T) {
	r := NewResolver(Config{Getenv: envOf(map[string]string{"VERCEL": "1"})})
	_, err := r.Client(context.Background(), Options{Mode: ModeOAuth})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Authentication))
}

// --- availability report ---

func TestProviderAvailability(t *testing.T) {
	stub := &desktopStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	r := NewResolver(Config{
		DesktopPort: stubPort(t, srv),
		OAuth:       &fakeOAuth{live: "x"},
		Getenv:      envOf(map[string]string{EnvAccessToken: "rest-tok"}),
	})
	av := r.Provider(context.Background())

	assert.True(t, av.API)
	assert.True(t, av.OAuth)
	assert.True(t, av.Desktop)
}

func TestProviderAvailabilityCloud(t *testing.T) {
	r := NewResolver(Config{Getenv: envOf(map[string]string{"VERCEL": "1"})})
	av := r.Provider(context.Background())

	assert.False(t, av.API)
	assert.False(t, av.OAuth)
	assert.False(t, av.Desktop, "no desktop probe in cloud mode")
}

func TestParseMode(t *testing.T) {
	for s, want := range map[string]Mode{
		"api": ModeAPI, "desktop": ModeDesktop, "oauth": ModeOAuth, "proxy": ModeProxy,
		" OAuth ": ModeOAuth,
	} {
		got, ok := ParseMode(s)
		require.True(t, ok, s)
		assert.Equal(t, want, got, s)
	}
	_, ok := ParseMode("websocket")
	assert.False(t, ok)
}
