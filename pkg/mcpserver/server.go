// Package mcpserver exposes the comparison pipeline as MCP tools over
// stdio: full design-vs-page comparison, single-side extraction, screenshot
// diffing, and provider diagnostics.
package mcpserver

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gnana997/designparity/pkg/fault"
	"github.com/gnana997/designparity/pkg/mcplog"
	"github.com/gnana997/designparity/pkg/pipeline"
	"github.com/gnana997/designparity/pkg/pixeldiff"
	"github.com/gnana997/designparity/pkg/provider"
	"github.com/gnana997/designparity/pkg/schema"
)

const serverVersion = "0.1.0-dev"

const (
	defaultCacheSize = 64
	defaultCacheTTL  = 5 * time.Minute
)

// Config wires a Server.
type Config struct {
	// Service runs extractions and comparisons. Required.
	Service *pipeline.Service
	// Pixels serves the screenshot comparison tool. Nil disables it with a
	// tool error rather than at registration, so clients see a stable tool
	// list.
	Pixels *pixeldiff.Comparator
	// Resolver backs the provider_status tool. Optional.
	Resolver *provider.Resolver
	// Defaults seed the comparison settings; per-call arguments override
	// them. Zero value means schema.DefaultSettings().
	Defaults *schema.ComparisonSettings
	// CallLog records one JSONL entry per tool call. Nil disables it.
	CallLog *mcplog.Logger
	Logger  *slog.Logger

	// CacheSize and CacheTTL bound the comparison result cache.
	CacheSize int
	CacheTTL  time.Duration
}

// Server implements the MCP server for design comparison.
type Server struct {
	mcpServer *server.MCPServer
	svc       *pipeline.Service
	pixels    *pixeldiff.Comparator
	resolver  *provider.Resolver
	logger    *mcplog.Logger
	log       *slog.Logger

	mu       sync.RWMutex
	defaults schema.ComparisonSettings

	// cache holds comparison results keyed by (figma url, web url,
	// settings hash). Results are immutable once produced, so entries are
	// shared across calls.
	cache *expirable.LRU[string, *schema.ComparisonResult]
}

// NewServer builds the MCP server and registers every tool. The JSONL
// middleware is only installed when a call log is configured.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, fault.New(fault.Validation, fault.Configuration, "mcp server requires a pipeline service")
	}
	defaults := schema.DefaultSettings()
	if cfg.Defaults != nil {
		if errs := cfg.Defaults.Validate(); len(errs) > 0 {
			return nil, fault.New(fault.Validation, fault.Configuration, "default comparison settings invalid: %v", errs)
		}
		defaults = *cfg.Defaults
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	s := &Server{
		svc:      cfg.Service,
		pixels:   cfg.Pixels,
		resolver: cfg.Resolver,
		logger:   cfg.CallLog,
		log:      log,
		defaults: defaults,
		cache:    expirable.NewLRU[string, *schema.ComparisonResult](size, nil, ttl),
	}

	opts := []server.ServerOption{
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	}
	if s.logger != nil {
		opts = append(opts, server.WithToolHandlerMiddleware(s.loggingMiddleware()))
	}
	s.mcpServer = server.NewMCPServer(
		"designparity",
		serverVersion,
		opts...,
	)

	s.mcpServer.AddTools(
		server.ServerTool{Tool: compareDesignsTool(), Handler: s.handleCompareDesigns},
		server.ServerTool{Tool: extractFigmaTool(), Handler: s.handleExtractFigma},
		server.ServerTool{Tool: extractWebTool(), Handler: s.handleExtractWeb},
		server.ServerTool{Tool: compareScreenshotsTool(), Handler: s.handleCompareScreenshots},
		server.ServerTool{Tool: providerStatusTool(), Handler: s.handleProviderStatus},
	)

	return s, nil
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// UpdateSettings swaps the default comparison settings, the hook behind
// config hot-reload. Invalid settings are rejected and the old defaults
// stay in force. The result cache is purged because old entries were keyed
// under the previous defaults.
func (s *Server) UpdateSettings(settings schema.ComparisonSettings) error {
	if errs := settings.Validate(); len(errs) > 0 {
		return fault.New(fault.Validation, fault.Configuration, "comparison settings invalid: %v", errs)
	}
	s.mu.Lock()
	s.defaults = settings
	s.mu.Unlock()
	s.cache.Purge()
	s.log.Info("comparison defaults updated", slog.Float64("threshold", settings.Threshold))
	return nil
}

func (s *Server) defaultSettings() schema.ComparisonSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}
