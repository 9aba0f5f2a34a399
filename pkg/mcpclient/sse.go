package mcpclient

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// maxSSELine bounds a single SSE data line. Figma code payloads can be
// large, so this is generous.
const maxSSELine = 4 * 1024 * 1024

// decodeResponse extracts a JSON-RPC response from an HTTP body that may be
// raw JSON or SSE-framed. Framing is detected by sniffing: a leading '{'
// means plain JSON; otherwise the body is scanned for "data:" lines and the
// last payload carrying the wanted id wins. A negative id disables id
// matching and takes the last well-formed payload, which the proxy variant
// needs because the relay assigns its own request ids.
//
// This is a pure function so both framings can be tested for equivalence
// without a transport.
func decodeResponse(body []byte, id int64) (*rpcResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty response body")
	}

	if trimmed[0] == '{' {
		var resp rpcResponse
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return nil, fmt.Errorf("decode json response: %w", err)
		}
		return &resp, nil
	}

	var last *rpcResponse
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal([]byte(payload), &resp); err != nil {
			// keep-alives and non-JSON events are skipped, not fatal
			continue
		}
		if id >= 0 && resp.ID != id {
			continue
		}
		r := resp
		last = &r
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan sse stream: %w", err)
	}
	if last == nil {
		return nil, fmt.Errorf("no json-rpc response for id %d in stream", id)
	}
	return last, nil
}
