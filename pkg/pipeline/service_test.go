package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/designparity/pkg/fault"
	"github.com/gnana997/designparity/pkg/figma"
	"github.com/gnana997/designparity/pkg/provider"
	"github.com/gnana997/designparity/pkg/resilience"
	"github.com/gnana997/designparity/pkg/schema"
	"github.com/gnana997/designparity/pkg/webx"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testFigmaURL = "https://www.figma.com/design/abc123/landing"

// figmaStub serves a one-frame document and records the last token header.
type figmaStub struct {
	requests  atomic.Int32
	lastToken atomic.Value
}

func (f *figmaStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.lastToken.Store(r.Header.Get("X-Figma-Token"))
		resp := figma.FileResponse{
			Name: "landing",
			Document: figma.Node{
				ID:   "0:0",
				Type: "DOCUMENT",
				Children: []figma.Node{{
					ID:                  "1:1",
					Name:                "Hero",
					Type:                "FRAME",
					AbsoluteBoundingBox: &figma.Rect{X: 0, Y: 0, Width: 1440, Height: 480},
					Fills:               []figma.Paint{{Type: "SOLID", Color: &figma.Color{R: 1, G: 1, B: 1, A: 1}}},
					Children: []figma.Node{{
						ID:         "1:2",
						Name:       "Title",
						Type:       "TEXT",
						Characters: "Ship faster",
						Style:      &figma.TypeStyle{FontFamily: "Inter", FontSize: 32, FontWeight: 700},
					}},
				}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func webStub() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>
<h1 id="title" style="font-family: Inter; font-size: 32px">Ship faster</h1>
<p style="color: #333333">Deploy in minutes.</p>
</body></html>`))
	}
}

// newTestService wires a service whose web side degrades to the static
// fetcher (no browser) and whose figma side talks to the REST stub.
func newTestService(t *testing.T, figmaSrv *httptest.Server, env map[string]string) *Service {
	t.Helper()
	var hc *http.Client
	base := ""
	if figmaSrv != nil {
		hc = figmaSrv.Client()
		base = figmaSrv.URL
	}
	svc, err := New(Config{
		Web: webx.NewExtractor(webx.Config{
			HTTPClient: http.DefaultClient,
			Logger:     testLogger(),
		}),
		Getenv:     func(k string) string { return env[k] },
		HTTPClient: hc,
		RESTBase:   base,
		Logger:     testLogger(),
	})
	require.NoError(t, err)
	return svc
}

func TestNewRequiresWebExtractor(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.CategoryOf(err))
}

func TestCompareURLsHappyPath(t *testing.T) {
	stub := &figmaStub{}
	figmaSrv := httptest.NewServer(stub.handler())
	defer figmaSrv.Close()
	webSrv := httptest.NewServer(webStub())
	defer webSrv.Close()

	svc := newTestService(t, figmaSrv, map[string]string{provider.EnvAccessToken: "figd_test"})

	res, err := svc.CompareURLs(context.Background(), Request{
		FigmaURL: testFigmaURL,
		WebURL:   webSrv.URL,
	})
	require.NoError(t, err)

	assert.Positive(t, res.Metadata.FigmaElements)
	assert.Positive(t, res.Metadata.WebElements)
	assert.Empty(t, res.Metadata.FigmaError)
	// Static web extraction is degraded by definition and says so.
	assert.Contains(t, res.Metadata.WebError, "static fallback")
	assert.GreaterOrEqual(t, res.OverallSimilarity, 0.0)
	assert.LessOrEqual(t, res.OverallSimilarity, 1.0)
	assert.Equal(t, int32(1), stub.requests.Load())
}

func TestCompareURLsFigmaSideFails(t *testing.T) {
	webSrv := httptest.NewServer(webStub())
	defer webSrv.Close()

	// No resolver and no token: the figma side has no way in.
	svc := newTestService(t, nil, nil)

	res, err := svc.CompareURLs(context.Background(), Request{
		FigmaURL: testFigmaURL,
		WebURL:   webSrv.URL,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.Metadata.FigmaError)
	assert.Zero(t, res.Metadata.FigmaElements)
	assert.Positive(t, res.Metadata.WebElements)

	extras := 0
	for _, d := range res.Deviations {
		if d.Type == schema.DeviationExtra {
			extras++
		}
	}
	assert.Equal(t, res.Metadata.WebElements, extras,
		"every web element should surface as an extra-element deviation")
	assert.Zero(t, res.Metadata.MatchedPairs)
}

func TestCompareURLsWebSideFails(t *testing.T) {
	stub := &figmaStub{}
	figmaSrv := httptest.NewServer(stub.handler())
	defer figmaSrv.Close()

	deadSrv := httptest.NewServer(webStub())
	deadURL := deadSrv.URL
	deadSrv.Close()

	svc := newTestService(t, figmaSrv, map[string]string{provider.EnvAccessToken: "figd_test"})

	res, err := svc.CompareURLs(context.Background(), Request{
		FigmaURL: testFigmaURL,
		WebURL:   deadURL,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.Metadata.WebError)
	assert.Empty(t, res.Metadata.FigmaError)
	assert.Positive(t, res.Metadata.FigmaElements)

	missing := 0
	for _, d := range res.Deviations {
		if d.Type == schema.DeviationMissing {
			missing++
		}
	}
	assert.Equal(t, res.Metadata.FigmaElements, missing,
		"every design element should surface as a missing-element deviation")
}

func TestCompareURLsBothFail(t *testing.T) {
	deadSrv := httptest.NewServer(webStub())
	deadURL := deadSrv.URL
	deadSrv.Close()

	svc := newTestService(t, nil, nil)

	_, err := svc.CompareURLs(context.Background(), Request{
		FigmaURL: testFigmaURL,
		WebURL:   deadURL,
	})
	require.Error(t, err)
	assert.Equal(t, fault.Extraction, fault.CategoryOf(err))
	assert.Contains(t, err.Error(), "both extractions failed")
}

func TestCompareURLsRejectsMissingURLs(t *testing.T) {
	svc := newTestService(t, nil, nil)

	_, err := svc.CompareURLs(context.Background(), Request{WebURL: "https://example.com"})
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.CategoryOf(err))

	_, err = svc.CompareURLs(context.Background(), Request{FigmaURL: testFigmaURL})
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.CategoryOf(err))
}

func TestCompareURLsRejectsBadSettings(t *testing.T) {
	svc := newTestService(t, nil, nil)

	bad := schema.DefaultSettings()
	bad.Threshold = 2
	_, err := svc.CompareURLs(context.Background(), Request{
		FigmaURL: testFigmaURL,
		WebURL:   "https://example.com",
		Settings: &bad,
	})
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.CategoryOf(err))
}

func TestExtractFigmaExplicitTokenWins(t *testing.T) {
	stub := &figmaStub{}
	figmaSrv := httptest.NewServer(stub.handler())
	defer figmaSrv.Close()

	svc := newTestService(t, figmaSrv, map[string]string{
		provider.EnvAccessToken:  "from-env",
		provider.EnvServiceToken: "from-service",
	})

	_, err := svc.ExtractFigma(context.Background(), Request{
		FigmaURL:   testFigmaURL,
		FigmaToken: "explicit",
	})
	require.NoError(t, err)
	assert.Equal(t, "explicit", stub.lastToken.Load())
}

func TestExtractFigmaServiceTokenIsLastResort(t *testing.T) {
	stub := &figmaStub{}
	figmaSrv := httptest.NewServer(stub.handler())
	defer figmaSrv.Close()

	svc := newTestService(t, figmaSrv, map[string]string{
		provider.EnvServiceToken: "from-service",
	})

	_, err := svc.ExtractFigma(context.Background(), Request{FigmaURL: testFigmaURL})
	require.NoError(t, err)
	assert.Equal(t, "from-service", stub.lastToken.Load())
}

func TestExtractFigmaRejectsNonFigmaURL(t *testing.T) {
	svc := newTestService(t, nil, map[string]string{provider.EnvAccessToken: "x"})

	_, err := svc.ExtractFigma(context.Background(), Request{FigmaURL: "https://example.com/design/abc"})
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.CategoryOf(err))
}

// TestExtractFigmaFallsBackToRESTWhenMCPDown forces desktop mode against a
// dead port. The REST fallback is an orchestration decision, so the stub
// must still see the request.
func TestExtractFigmaFallsBackToRESTWhenMCPDown(t *testing.T) {
	stub := &figmaStub{}
	figmaSrv := httptest.NewServer(stub.handler())
	defer figmaSrv.Close()

	resolver := provider.NewResolver(provider.Config{
		DesktopPort:  deadPort(t),
		ConnectRetry: &resilience.RetryPolicy{MaxAttempts: 1},
		Logger:       testLogger(),
	})

	svc, err := New(Config{
		Resolver: resolver,
		Web: webx.NewExtractor(webx.Config{
			HTTPClient: http.DefaultClient,
			Logger:     testLogger(),
		}),
		Getenv:     func(k string) string { return map[string]string{provider.EnvAccessToken: "figd_test"}[k] },
		HTTPClient: figmaSrv.Client(),
		RESTBase:   figmaSrv.URL,
		Logger:     testLogger(),
	})
	require.NoError(t, err)

	res, err := svc.ExtractFigma(context.Background(), Request{
		FigmaURL: testFigmaURL,
		Mode:     provider.ModeDesktop,
	})
	require.NoError(t, err)
	assert.False(t, res.Empty())
	assert.Equal(t, int32(1), stub.requests.Load())
}

func TestExtractFigmaNoMCPNoTokenSurfacesMCPError(t *testing.T) {
	resolver := provider.NewResolver(provider.Config{
		DesktopPort:  deadPort(t),
		ConnectRetry: &resilience.RetryPolicy{MaxAttempts: 1},
		Logger:       testLogger(),
	})
	svc := newTestService(t, nil, nil)
	svc.resolver = resolver

	_, err := svc.ExtractFigma(context.Background(), Request{
		FigmaURL: testFigmaURL,
		Mode:     provider.ModeDesktop,
	})
	require.Error(t, err)
	// The connection failure, not a generic missing-token message.
	assert.Equal(t, fault.Connection, fault.CategoryOf(err))
}

// deadPort returns a loopback port that was just released, so nothing is
// listening on it.
func deadPort(t *testing.T) int {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	srv.Close()
	p, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return p
}

func TestRequestSettingsDefault(t *testing.T) {
	assert.Equal(t, schema.DefaultSettings(), Request{}.settings())

	custom := schema.DefaultSettings()
	custom.Threshold = 0.9
	got := Request{Settings: &custom}.settings()
	assert.Equal(t, 0.9, got.Threshold)
}
