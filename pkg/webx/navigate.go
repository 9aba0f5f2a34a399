package webx

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-rod/rod"

	"github.com/gnana997/designparity/pkg/fault"
)

// NavStrategy names one wait condition for page navigation.
type NavStrategy string

const (
	// StrategyNetworkIdle waits for the load event and then for the
	// resource count to stop growing.
	StrategyNetworkIdle NavStrategy = "networkidle0"
	// StrategyDOMContent waits for the document to become interactive.
	StrategyDOMContent NavStrategy = "domcontentloaded"
	// StrategyLoad waits for the plain load event.
	StrategyLoad NavStrategy = "load"
)

const (
	defaultNavTimeout   = 30 * time.Second
	readyPollInterval   = 100 * time.Millisecond
	idlePollInterval    = 300 * time.Millisecond
	idleMaxPolls        = 20
	idleStableThreshold = 2
)

var errNetworkBusy = errors.New("network never went idle")

// Navigator drives page navigation through a strategy chain. Strategies are
// tried strictest first; known-slow sites get the cheaper waits first so a
// never-idle network does not burn the whole budget.
type Navigator struct {
	// Timeout caps a single strategy attempt. The context deadline shrinks
	// it further when less budget remains.
	Timeout time.Duration
	// SlowPatterns are doublestar URL patterns selecting the reordered
	// chain.
	SlowPatterns []string
	Logger       *slog.Logger
}

func NewNavigator(timeout time.Duration, slowPatterns []string, logger *slog.Logger) *Navigator {
	if timeout <= 0 {
		timeout = defaultNavTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{Timeout: timeout, SlowPatterns: slowPatterns, Logger: logger}
}

// strategyOrder picks the chain for a URL.
func strategyOrder(rawURL string, slowPatterns []string) []NavStrategy {
	if MatchAny(slowPatterns, rawURL) {
		return []NavStrategy{StrategyDOMContent, StrategyLoad, StrategyNetworkIdle}
	}
	return []NavStrategy{StrategyNetworkIdle, StrategyDOMContent, StrategyLoad}
}

// Navigate loads rawURL, walking the strategy chain with a growing backoff
// between attempts. Returns the strategy that settled the page, or the last
// attempt's error once the chain is exhausted.
func (n *Navigator) Navigate(ctx context.Context, page *rod.Page, rawURL string) (NavStrategy, error) {
	order := strategyOrder(rawURL, n.SlowPatterns)
	var lastErr error
	for attempt, strategy := range order {
		if attempt > 0 {
			if err := sleepCtx(ctx, time.Duration(attempt)*time.Second); err != nil {
				break
			}
		}
		budget, err := n.attemptBudget(ctx)
		if err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		start := time.Now()
		err = n.attempt(ctx, page, rawURL, strategy, budget)
		if err == nil {
			n.Logger.Debug("navigation settled",
				slog.String("url", rawURL),
				slog.String("strategy", string(strategy)),
				slog.Duration("elapsed", time.Since(start)))
			return strategy, nil
		}
		lastErr = err
		n.Logger.Warn("navigation attempt failed",
			slog.String("url", rawURL),
			slog.String("strategy", string(strategy)),
			slog.String("error", err.Error()))
	}
	return "", navFault(lastErr, rawURL)
}

// attemptBudget derives the per-attempt timeout from the remaining context
// deadline, capped at the configured timeout.
func (n *Navigator) attemptBudget(ctx context.Context) (time.Duration, error) {
	budget := n.Timeout
	if budget <= 0 {
		budget = defaultNavTimeout
	}
	if dl, ok := ctx.Deadline(); ok {
		remaining := time.Until(dl)
		if remaining <= 0 {
			return 0, fault.Wrap(fault.Timeout, fault.Target, context.DeadlineExceeded, "navigation budget exhausted")
		}
		if remaining < budget {
			budget = remaining
		}
	}
	return budget, nil
}

func (n *Navigator) attempt(ctx context.Context, page *rod.Page, rawURL string, strategy NavStrategy, budget time.Duration) error {
	p := page.Context(ctx).Timeout(budget)
	defer p.CancelTimeout()
	if err := p.Navigate(rawURL); err != nil {
		return err
	}
	switch strategy {
	case StrategyLoad:
		return p.WaitLoad()
	case StrategyDOMContent:
		return waitReadyState(ctx, p)
	default:
		if err := p.WaitLoad(); err != nil {
			return err
		}
		return waitNetworkIdle(ctx, p)
	}
}

// waitReadyState polls document.readyState until the DOM is usable. The
// page's own deadline terminates the loop through an Eval error.
func waitReadyState(ctx context.Context, p *rod.Page) error {
	for {
		res, err := p.Eval(`() => document.readyState`)
		if err != nil {
			return err
		}
		switch res.Value.Str() {
		case "interactive", "complete":
			return nil
		}
		if err := sleepCtx(ctx, readyPollInterval); err != nil {
			return err
		}
	}
}

// waitNetworkIdle waits for the page's resource count to hold steady across
// consecutive polls, a cheap stand-in for true network-idle tracking.
func waitNetworkIdle(ctx context.Context, p *rod.Page) error {
	prev := -1
	stable := 0
	for i := 0; i < idleMaxPolls; i++ {
		res, err := p.Eval(`() => performance.getEntriesByType('resource').length`)
		if err != nil {
			return err
		}
		count := res.Value.Int()
		if count == prev {
			stable++
			if stable >= idleStableThreshold {
				return nil
			}
		} else {
			stable = 0
			prev = count
		}
		if err := sleepCtx(ctx, idlePollInterval); err != nil {
			return err
		}
	}
	return errNetworkBusy
}

// navFault maps the last attempt error onto the failure taxonomy. Deadline
// errors become timeouts; everything else is a connection-level failure of
// the target site.
func navFault(err error, rawURL string) error {
	if err == nil {
		err = errors.New("no navigation strategy settled")
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fault.Wrap(fault.Timeout, fault.Target, err, "navigation to %s timed out", rawURL)
	}
	if fault.CategoryOf(err) != "" {
		return err
	}
	return fault.Wrap(fault.Connection, fault.Target, err, "navigation to %s failed", rawURL)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
