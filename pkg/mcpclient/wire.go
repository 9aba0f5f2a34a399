// Package mcpclient implements the Model Context Protocol handshake and
// tool-call surface over HTTP, in the three deployment variants the
// pipeline meets: a local desktop server, a remote OAuth-backed server, and
// a proxy relay. All variants sit behind the Transport interface; the
// provider resolver picks one at construction time and nothing else in the
// system branches on the variant.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gnana997/designparity/pkg/fault"
)

// ProtocolVersion is the MCP revision sent in the initialize handshake.
const ProtocolVersion = "2024-11-05"

// rpcRequest is a JSON-RPC 2.0 request envelope. Notifications leave ID
// nil so the field is omitted entirely.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type resourceCaps struct {
	Subscribe bool `json:"subscribe"`
}

type clientCaps struct {
	Tools     struct{}     `json:"tools"`
	Resources resourceCaps `json:"resources"`
}

type initializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    clientCaps `json:"capabilities"`
	ClientInfo      clientInfo `json:"clientInfo"`
}

func newInitializeParams(name, version string) initializeParams {
	return initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    clientCaps{Resources: resourceCaps{Subscribe: true}},
		ClientInfo:      clientInfo{Name: name, Version: version},
	}
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Tool describes one tool advertised by an MCP server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ContentBlock is one entry of a tool result: text, or base64 binary with a
// mime type.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolResult is the payload of a tools/call response. IsError marks a
// tool-level failure reported inside an otherwise successful RPC exchange.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// Text concatenates the text blocks of the result.
func (r *ToolResult) Text() string {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" && c.Text != "" {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// Err returns a typed extraction error when the result is marked IsError,
// nil otherwise.
func (r *ToolResult) Err() error {
	if r == nil || !r.IsError {
		return nil
	}
	msg := r.Text()
	if msg == "" {
		msg = "tool reported an error"
	}
	return fault.New(fault.Extraction, fault.Infrastructure, "%s", msg)
}

// Transport is the one client contract all MCP variants satisfy. A
// transport owns exactly one session; tool calls on one instance are issued
// serially by the caller. Connection failure surfaces as an error from
// Connect; tool-call failure embeds the upstream status and body. The
// transport never falls back across variants on its own.
type Transport interface {
	Connect(ctx context.Context) error
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error)
	SessionID() string
	Close() error
}

// TokenProvider supplies bearer tokens for authenticated variants. Refresh
// is consulted exactly once after an HTTP 401; returning the same token
// again, or an error, makes the call fail permanently with an
// authentication error.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error)   { return string(s), nil }
func (s staticToken) Refresh(context.Context) (string, error) { return string(s), nil }

// StaticToken wraps a fixed token. Refresh hands back the same value, so a
// 401 against a static token fails permanently after the single retry rule.
func StaticToken(tok string) TokenProvider { return staticToken(tok) }
