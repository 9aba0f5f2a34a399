// Package webx extracts the normalized element/token model from live web
// pages through a headless browser, with a static-HTML fallback when no
// browser is reachable.
package webx

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/gnana997/designparity/pkg/browserpool"
	"github.com/gnana997/designparity/pkg/fault"
)

const (
	defaultViewportWidth  = 1920
	defaultViewportHeight = 1080
	defaultPageMaxAge     = 2 * time.Minute
)

// BrowserConfig controls how the browser is obtained and how pages are
// prepared.
type BrowserConfig struct {
	// AttachURL connects to an already-running browser over its devtools
	// websocket instead of launching one. Empty means launch.
	AttachURL string
	// Headful launches a visible browser, mainly for local debugging.
	Headful bool

	ViewportWidth  int
	ViewportHeight int

	// PoolCapacity bounds concurrent pages. 0 means the pool default.
	PoolCapacity int
	// PageMaxAge is how long an extraction may hold a page before the pool
	// reclaims it.
	PageMaxAge time.Duration

	Logger *slog.Logger
}

// Browser wraps one browser process and a pool of its pages.
type Browser struct {
	rod  *rod.Browser
	lc   *launcher.Launcher
	pool *browserpool.Pool
	vw   int
	vh   int
	log  *slog.Logger
}

// Launch starts (or attaches to) a browser and prepares the page pool.
func Launch(cfg BrowserConfig) (*Browser, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	vw, vh := cfg.ViewportWidth, cfg.ViewportHeight
	if vw <= 0 {
		vw = defaultViewportWidth
	}
	if vh <= 0 {
		vh = defaultViewportHeight
	}

	var lc *launcher.Launcher
	controlURL := cfg.AttachURL
	if controlURL == "" {
		lc = launcher.New().Headless(!cfg.Headful)
		u, err := lc.Launch()
		if err != nil {
			return nil, fault.Wrap(fault.Connection, fault.Infrastructure, err, "launch browser")
		}
		controlURL = u
	}

	client := rod.New().ControlURL(controlURL)
	if err := client.Connect(); err != nil {
		if lc != nil {
			lc.Kill()
		}
		return nil, fault.Wrap(fault.Connection, fault.Infrastructure, err, "connect to browser at %s", controlURL)
	}

	b := &Browser{rod: client, lc: lc, vw: vw, vh: vh, log: log}
	maxAge := cfg.PageMaxAge
	if maxAge <= 0 {
		maxAge = defaultPageMaxAge
	}
	b.pool = browserpool.New(b.newPage, browserpool.Config{
		Capacity: cfg.PoolCapacity,
		MaxAge:   maxAge,
		Logger:   log,
	})
	log.Info("browser ready",
		slog.Bool("attached", cfg.AttachURL != ""),
		slog.Int("pages", b.pool.Stats().Capacity))
	return b, nil
}

type pageResource struct {
	page *rod.Page
}

func (r *pageResource) Close() error { return r.page.Close() }

func (b *Browser) newPage(ctx context.Context) (browserpool.Resource, error) {
	page, err := b.rod.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.vw,
		Height:            b.vh,
		DeviceScaleFactor: 1,
		Mobile:            false,
	})
	if err != nil {
		_ = page.Close()
		return nil, err
	}
	return &pageResource{page: page}, nil
}

// Acquire leases a fresh page. Release the lease on every exit path; the
// pool reclaims forgotten leases after PageMaxAge.
func (b *Browser) Acquire(ctx context.Context) (*rod.Page, *browserpool.Lease, error) {
	lease, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return lease.Resource.(*pageResource).page, lease, nil
}

// Stats exposes the page pool counters.
func (b *Browser) Stats() browserpool.Stats { return b.pool.Stats() }

// Close tears down the pool, the browser connection, and the launched
// process if this Browser owns one.
func (b *Browser) Close() {
	b.pool.Close()
	if err := b.rod.Close(); err != nil {
		b.log.Debug("browser close failed", slog.String("error", err.Error()))
	}
	if b.lc != nil {
		b.lc.Cleanup()
	}
}
