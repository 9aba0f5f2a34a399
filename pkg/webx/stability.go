package webx

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
)

// spaProbeJS detects client-rendered apps: known framework globals, typical
// mount points, or an unusually script-heavy document.
const spaProbeJS = `() => {
	const globals = !!(window.React || window.__NEXT_DATA__ || window.Vue || window.__NUXT__ || window.ng);
	const mounts = !!document.querySelector('[data-reactroot], #__next, #root, [ng-version]');
	return globals || mounts || document.querySelectorAll('script').length > 10;
}`

// stableProbeJS reports whether the page looks done rendering: no visible
// loading indicator and a minimally populated document.
const stableProbeJS = `() => {
	const indicators = document.querySelectorAll('[class*="loading"], [class*="spinner"], [class*="skeleton"], [aria-busy="true"]');
	for (const el of indicators) {
		if (el.offsetWidth > 0 || el.offsetHeight > 0) return false;
	}
	const nodes = document.querySelectorAll('body *').length;
	const text = ((document.body && document.body.innerText) || '').trim();
	return nodes >= 30 && text.length >= 10;
}`

// StabilityConfig tunes the post-navigation settle phase.
type StabilityConfig struct {
	PollInterval time.Duration
	MaxPolls     int
	// Settle is the unconditional delay after the checks, giving late
	// transitions and font swaps a chance to finish.
	Settle time.Duration
}

func DefaultStabilityConfig() StabilityConfig {
	return StabilityConfig{
		PollInterval: 500 * time.Millisecond,
		MaxPolls:     10,
		Settle:       500 * time.Millisecond,
	}
}

// waitStable gives client-rendered pages a bounded window to finish
// painting. Static pages only pay the fixed settle delay. Best-effort: probe
// failures end the wait rather than the extraction.
func waitStable(ctx context.Context, page *rod.Page, cfg StabilityConfig, log *slog.Logger) {
	if cfg.PollInterval <= 0 {
		cfg = DefaultStabilityConfig()
	}
	if evalBool(page, spaProbeJS) {
		settled := false
		for i := 0; i < cfg.MaxPolls; i++ {
			if evalBool(page, stableProbeJS) {
				settled = true
				break
			}
			if sleepCtx(ctx, cfg.PollInterval) != nil {
				return
			}
		}
		if !settled {
			log.Debug("spa never reported stable, continuing anyway")
		}
	}
	_ = sleepCtx(ctx, cfg.Settle)
}

func evalBool(page *rod.Page, js string) bool {
	res, err := page.Eval(js)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}
