// Package pipeline orchestrates full comparison runs. It decides how the
// Figma side is reached (MCP through the provider resolver, REST when MCP
// is unavailable), runs both extractions concurrently, and feeds whatever
// settled into the comparison engine. One side failing never cancels the
// other; a run only errors outright when both sides fail or the request
// itself is invalid.
package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gnana997/designparity/pkg/compare"
	"github.com/gnana997/designparity/pkg/fault"
	"github.com/gnana997/designparity/pkg/figma"
	"github.com/gnana997/designparity/pkg/provider"
	"github.com/gnana997/designparity/pkg/schema"
	"github.com/gnana997/designparity/pkg/webx"
)

// Config wires a Service.
type Config struct {
	// Resolver picks the Figma connection per request. Nil skips MCP
	// entirely and goes straight to REST.
	Resolver *provider.Resolver
	// Web extracts the live page side. Required.
	Web *webx.Extractor
	// Getenv supplies REST token fallbacks. Defaults to os.Getenv.
	Getenv func(string) string
	// HTTPClient and RESTBase configure the Figma REST client; both exist
	// mainly so tests can point at a stub.
	HTTPClient *http.Client
	RESTBase   string
	Logger     *slog.Logger
}

// Service runs extractions and comparisons.
type Service struct {
	resolver *provider.Resolver
	web      *webx.Extractor
	fx       *figma.Extractor
	getenv   func(string) string
	hc       *http.Client
	restBase string
	log      *slog.Logger
	now      func() time.Time
}

// New builds a Service. The web extractor is the only hard requirement.
func New(cfg Config) (*Service, error) {
	if cfg.Web == nil {
		return nil, fault.New(fault.Validation, fault.Configuration, "pipeline requires a web extractor")
	}
	getenv := cfg.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		resolver: cfg.Resolver,
		web:      cfg.Web,
		fx:       figma.NewExtractor(log),
		getenv:   getenv,
		hc:       cfg.HTTPClient,
		restBase: cfg.RESTBase,
		log:      log,
		now:      time.Now,
	}, nil
}

// Request describes one comparison or extraction run.
type Request struct {
	FigmaURL string
	WebURL   string

	// Settings override the defaults for this run only. Nil uses
	// schema.DefaultSettings().
	Settings *schema.ComparisonSettings

	// FigmaToken overrides every other token source for this run.
	FigmaToken string
	// UserID keys OAuth token lookups in the resolver.
	UserID string
	// Mode forces a connection mode, bypassing detection.
	Mode provider.Mode

	// Login authenticates the web page through a form before extraction.
	Login *webx.LoginCredentials
	// Screenshot captures the web render alongside the element tree.
	Screenshot bool
	FullPage   bool

	// Timeout bounds the whole run. Zero means the caller's context rules.
	Timeout time.Duration
}

func (r Request) settings() schema.ComparisonSettings {
	if r.Settings != nil {
		return *r.Settings
	}
	return schema.DefaultSettings()
}

// CompareURLs extracts both sides concurrently and compares them. A failed
// side becomes an empty extraction carrying the failure in its metadata, so
// the engine still reports every element of the surviving side as missing
// or extra. Both sides failing is the only extraction outcome that errors.
func (s *Service) CompareURLs(ctx context.Context, req Request) (*schema.ComparisonResult, error) {
	if req.FigmaURL == "" || req.WebURL == "" {
		return nil, fault.New(fault.Validation, fault.Configuration, "comparison needs both a figma url and a web url")
	}
	engine, err := compare.New(req.settings(), s.log)
	if err != nil {
		return nil, err
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var (
		wg       sync.WaitGroup
		figmaRes *schema.ExtractionResult
		webRes   *schema.ExtractionResult
		figmaErr error
		webErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		figmaRes, figmaErr = s.ExtractFigma(ctx, req)
	}()
	go func() {
		defer wg.Done()
		webRes, webErr = s.ExtractWeb(ctx, req)
	}()
	wg.Wait()

	if figmaErr != nil && webErr != nil {
		return nil, fault.Both(figmaErr, webErr)
	}
	if figmaErr != nil {
		s.log.Warn("figma extraction failed, comparing against empty design",
			slog.String("url", req.FigmaURL),
			slog.String("error", figmaErr.Error()))
		figmaRes = s.failedSide(schema.SourceFigma, req.FigmaURL, figmaErr)
	}
	if webErr != nil {
		s.log.Warn("web extraction failed, comparing against empty page",
			slog.String("url", req.WebURL),
			slog.String("error", webErr.Error()))
		webRes = s.failedSide(schema.SourceWeb, req.WebURL, webErr)
	}
	return engine.Compare(figmaRes, webRes)
}

// failedSide stands in for an extraction that errored. Empty but valid, so
// the comparison can still describe everything the other side found.
func (s *Service) failedSide(src schema.Source, url string, err error) *schema.ExtractionResult {
	return &schema.ExtractionResult{
		Elements: []schema.Element{},
		Tokens:   schema.NewTokenCollector().Tokens(),
		Metadata: schema.Metadata{
			Source:      src,
			URL:         url,
			ExtractedAt: s.now(),
			Error:       err.Error(),
		},
	}
}

// ExtractFigma pulls the design side. The MCP path is tried first when the
// resolver selects one; any MCP failure falls back to the REST API here, at
// the orchestration layer, so transports stay oblivious to REST. With no
// REST token either, the MCP failure is what the caller sees.
func (s *Service) ExtractFigma(ctx context.Context, req Request) (*schema.ExtractionResult, error) {
	ref, err := figma.ParseURL(req.FigmaURL)
	if err != nil {
		return nil, err
	}

	var mcpErr error
	if s.resolver != nil {
		transport, cerr := s.resolver.Client(ctx, provider.Options{
			UserID:            req.UserID,
			FigmaToken:        req.FigmaToken,
			Mode:              req.Mode,
			AutoDetectDesktop: true,
		})
		switch {
		case cerr != nil:
			mcpErr = cerr
			s.log.Warn("mcp connection unavailable, trying REST",
				slog.String("error", cerr.Error()))
		case transport != nil:
			res, xerr := figma.NewMCPSource(transport, s.fx, s.log).Extract(ctx, ref, req.FigmaURL)
			if xerr == nil {
				return res, nil
			}
			mcpErr = xerr
			s.log.Warn("mcp extraction failed, trying REST",
				slog.String("error", xerr.Error()))
		}
	}

	token := s.restToken(req)
	if token == "" {
		if mcpErr != nil {
			return nil, mcpErr
		}
		return nil, fault.New(fault.Authentication, fault.Configuration,
			"no figma access: set %s or %s, or connect through MCP", provider.EnvAccessToken, provider.EnvServiceToken)
	}
	client, err := figma.NewClient(figma.ClientConfig{
		Token:      token,
		BaseURL:    s.restBase,
		HTTPClient: s.hc,
		Logger:     s.log,
	})
	if err != nil {
		return nil, err
	}
	return figma.NewRESTSource(client, s.fx).Extract(ctx, ref, req.FigmaURL)
}

// restToken applies the REST token ladder: explicit request token, personal
// access token, service token.
func (s *Service) restToken(req Request) string {
	if req.FigmaToken != "" {
		return req.FigmaToken
	}
	if tok := s.getenv(provider.EnvAccessToken); tok != "" {
		return tok
	}
	return s.getenv(provider.EnvServiceToken)
}

// ExtractWeb pulls the live page side.
func (s *Service) ExtractWeb(ctx context.Context, req Request) (*schema.ExtractionResult, error) {
	if req.WebURL == "" {
		return nil, fault.New(fault.Validation, fault.Configuration, "web url is empty")
	}
	return s.web.Extract(ctx, req.WebURL, webx.Options{
		Login:      req.Login,
		Screenshot: req.Screenshot,
		FullPage:   req.FullPage,
	})
}
