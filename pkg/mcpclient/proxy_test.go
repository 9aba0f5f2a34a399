package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/designparity/pkg/fault"
)

type mockRelay struct {
	mu      sync.Mutex
	starts  int
	runs    []runRequest
	probes  int
	failRun bool
}

func (m *mockRelay) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/mcp/start":
			m.mu.Lock()
			m.starts++
			m.mu.Unlock()
			fmt.Fprint(w, `{"sessionId":"relay-session-1"}`)
		case "/mcp/run":
			body, _ := io.ReadAll(r.Body)
			var req runRequest
			_ = json.Unmarshal(body, &req)
			m.mu.Lock()
			m.runs = append(m.runs, req)
			fail := m.failRun
			m.mu.Unlock()
			if fail {
				w.WriteHeader(http.StatusBadGateway)
				fmt.Fprint(w, "relay upstream unavailable")
				return
			}
			var result string
			switch req.Method {
			case "tools/list":
				result = `{"tools":[{"name":"get_variable_defs"}]}`
			case "tools/call":
				result = `{"content":[{"type":"text","text":"relayed"}]}`
			default:
				result = `{}`
			}
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":%s}`, result)
		case "/mcp/test":
			m.mu.Lock()
			m.probes++
			m.mu.Unlock()
			fmt.Fprint(w, `{"ok":true}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestProxyConnectAndCall(t *testing.T) {
	relay := &mockRelay{}
	srv := httptest.NewServer(relay.handler())
	defer srv.Close()

	tr, err := NewProxyTransport(ProxyConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tr.Connect(ctx))
	assert.Equal(t, "relay-session-1", tr.SessionID())
	assert.Equal(t, 1, relay.starts)

	tools, err := tr.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_variable_defs", tools[0].Name)

	res, err := tr.CallTool(ctx, "get_code", map[string]any{"nodeId": "1:2"})
	require.NoError(t, err)
	assert.Equal(t, "relayed", res.Text())

	require.Len(t, relay.runs, 2)
	assert.Equal(t, "relay-session-1", relay.runs[0].SessionID)
	assert.Equal(t, "tools/list", relay.runs[0].Method)
	assert.Equal(t, "tools/call", relay.runs[1].Method)
}

func TestProxyLazyConnect(t *testing.T) {
	relay := &mockRelay{}
	srv := httptest.NewServer(relay.handler())
	defer srv.Close()

	tr, err := NewProxyTransport(ProxyConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	// no explicit Connect: the first call starts the session itself
	_, err = tr.ListTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, relay.starts)
}

func TestProxyProbe(t *testing.T) {
	relay := &mockRelay{}
	srv := httptest.NewServer(relay.handler())
	defer srv.Close()

	tr, err := NewProxyTransport(ProxyConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	assert.NoError(t, tr.Probe(context.Background()))
	assert.Equal(t, 1, relay.probes)
}

func TestProxyRunFailureEmbedsStatus(t *testing.T) {
	relay := &mockRelay{failRun: true}
	srv := httptest.NewServer(relay.handler())
	defer srv.Close()

	tr, err := NewProxyTransport(ProxyConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = tr.ListTools(context.Background())
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Connection))
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "relay upstream unavailable")
}

func TestProxyStartFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr, err := NewProxyTransport(ProxyConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	err = tr.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Connection))
}

func TestProxyValidatesBaseURL(t *testing.T) {
	_, err := NewProxyTransport(ProxyConfig{BaseURL: "::bad::"})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Validation))
}

func TestProxyCloseDropsSession(t *testing.T) {
	relay := &mockRelay{}
	srv := httptest.NewServer(relay.handler())
	defer srv.Close()

	tr, err := NewProxyTransport(ProxyConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Close())
	assert.Empty(t, tr.SessionID())

	// next call re-starts a session
	_, err = tr.ListTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, relay.starts)
}
