package figma

import (
	"net/url"
	"strings"

	"github.com/gnana997/designparity/pkg/fault"
)

// FileRef identifies a Figma file and, optionally, a node within it.
type FileRef struct {
	Key    string
	NodeID string
}

// pathKinds are the figma.com path segments that carry a file key in the
// following segment.
var pathKinds = map[string]bool{
	"file":   true,
	"design": true,
	"proto":  true,
	"board":  true,
}

// ParseURL extracts the file key and optional node id from a figma.com
// share URL. Modern URLs encode node ids as "1-2"; the REST API and MCP
// tools expect "1:2", so dashes are normalized to colons.
func ParseURL(raw string) (FileRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return FileRef{}, fault.Wrap(fault.Validation, fault.Configuration, err, "invalid figma url %q", raw)
	}
	host := strings.ToLower(u.Hostname())
	if host != "figma.com" && !strings.HasSuffix(host, ".figma.com") {
		return FileRef{}, fault.New(fault.Validation, fault.Configuration, "not a figma.com url: %q", raw)
	}
	segs := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	if len(segs) < 2 || !pathKinds[segs[0]] || segs[1] == "" {
		return FileRef{}, fault.New(fault.Validation, fault.Configuration, "figma url %q has no file key", raw)
	}
	ref := FileRef{Key: segs[1]}
	if nodeID := u.Query().Get("node-id"); nodeID != "" {
		ref.NodeID = strings.ReplaceAll(nodeID, "-", ":")
	}
	return ref, nil
}

// IsFigmaURL reports whether raw looks like a parseable Figma share URL.
func IsFigmaURL(raw string) bool {
	_, err := ParseURL(raw)
	return err == nil
}
