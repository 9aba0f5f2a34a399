package webx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-rod/rod"

	"github.com/gnana997/designparity/pkg/fault"
	"github.com/gnana997/designparity/pkg/schema"
)

// Config wires an Extractor. A nil Browser switches every extraction to the
// static fallback.
type Config struct {
	Browser    *Browser
	Navigator  *Navigator
	Stability  StabilityConfig
	ElementCap int
	// HTTPClient serves the static fallback fetches.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Options tune one extraction call.
type Options struct {
	// Login authenticates through a form before extracting.
	Login *LoginCredentials
	// Screenshot captures the page render alongside the element tree.
	Screenshot bool
	// FullPage extends the screenshot past the viewport.
	FullPage bool
}

// Extractor pulls the normalized model out of live pages.
type Extractor struct {
	browser *Browser
	nav     *Navigator
	stab    StabilityConfig
	static  *StaticFetcher
	cap     int
	log     *slog.Logger
	now     func() time.Time
}

func NewExtractor(cfg Config) *Extractor {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	elementCap := cfg.ElementCap
	if elementCap <= 0 {
		elementCap = DefaultElementCap
	}
	nav := cfg.Navigator
	if nav == nil {
		nav = NewNavigator(0, nil, log)
	}
	return &Extractor{
		browser: cfg.Browser,
		nav:     nav,
		stab:    cfg.Stability,
		static:  NewStaticFetcher(cfg.HTTPClient, elementCap, log),
		cap:     elementCap,
		log:     log,
		now:     time.Now,
	}
}

// Extract loads the page and walks its DOM. When no browser is available,
// or a page cannot be acquired, it degrades to the static fetcher instead
// of failing.
func (e *Extractor) Extract(ctx context.Context, rawURL string, opts Options) (*schema.ExtractionResult, error) {
	if e.browser == nil {
		e.log.Warn("no browser configured, extracting statically", slog.String("url", rawURL))
		return e.static.Extract(ctx, rawURL)
	}
	page, lease, err := e.browser.Acquire(ctx)
	if err != nil {
		e.log.Warn("browser page unavailable, extracting statically",
			slog.String("url", rawURL),
			slog.String("error", err.Error()))
		return e.static.Extract(ctx, rawURL)
	}
	defer lease.Release()

	strategy, err := e.nav.Navigate(ctx, page, rawURL)
	if err != nil {
		return nil, err
	}
	if opts.Login != nil {
		performLogin(ctx, page, *opts.Login, e.log)
	}
	waitStable(ctx, page, e.stab, e.log)

	res, err := page.Eval(domScript, e.cap)
	if err != nil {
		return nil, fault.Wrap(fault.Extraction, fault.Target, err, "dom walk failed on %s", rawURL)
	}
	payload, err := parseDOMPayload(res.Value.Str())
	if err != nil {
		return nil, err
	}
	elements, tc := payloadToModel(payload)
	if payload.Truncated {
		e.log.Info("element cap reached mid-walk",
			slog.Int("cap", e.cap),
			slog.Int("nodesVisited", payload.Total))
	}

	var shot []byte
	if opts.Screenshot {
		shot = e.screenshot(ctx, page, opts.FullPage)
	}

	e.log.Info("web extraction finished",
		slog.String("url", rawURL),
		slog.String("strategy", string(strategy)),
		slog.Int("elements", len(elements)))
	return &schema.ExtractionResult{
		Elements:   elements,
		Tokens:     tc.Tokens(),
		Screenshot: shot,
		Metadata: schema.Metadata{
			Source:       schema.SourceWeb,
			URL:          rawURL,
			ExtractedAt:  e.now(),
			ElementCount: schema.CountElements(elements),
		},
	}, nil
}

// screenshot captures the viewport, retrying twice. Screenshots are
// auxiliary: after three failures the extraction carries on without one.
func (e *Extractor) screenshot(ctx context.Context, page *rod.Page, fullPage bool) []byte {
	for attempt := 1; attempt <= 3; attempt++ {
		bin, err := page.Screenshot(fullPage, nil)
		if err == nil {
			return bin
		}
		e.log.Warn("screenshot attempt failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		if attempt < 3 && sleepCtx(ctx, time.Duration(attempt)*500*time.Millisecond) != nil {
			break
		}
	}
	return nil
}
