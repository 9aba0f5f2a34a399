// Package resilience provides the circuit breaker guarding MCP reachability
// probes and remote calls, plus the one retry policy shared by navigation,
// connect, and screenshot loops.
package resilience

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gnana997/designparity/pkg/fault"
)

// State of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes one breaker. All fields must be positive.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
}

// DefaultBreakerConfig matches the probe-guarding defaults: trip after 3
// consecutive failures, re-close after 2 half-open successes, hold open for
// 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		ResetTimeout:     30 * time.Second,
	}
}

// CircuitBreaker implements the closed/open/half-open state machine.
//
// Closed counts consecutive failures and trips open at FailureThreshold.
// Open short-circuits every call until ResetTimeout has elapsed, then
// admits exactly one trial at a time (half-open). SuccessThreshold
// consecutive trial successes close the breaker; any trial failure reopens
// it immediately.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	openedAt    time.Time
	probing     bool
	trips       uint64

	now func() time.Time
}

// BreakerStats is a point-in-time snapshot for logging and status tools.
type BreakerStats struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	TrialSuccesses      int       `json:"trialSuccesses"`
	Trips               uint64    `json:"trips"`
	LastFailure         time.Time `json:"lastFailure,omitempty"`
}

// NewCircuitBreaker builds a breaker named for the resource it guards.
// Non-positive config fields fall back to the defaults.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	return &CircuitBreaker{name: name, cfg: cfg, now: time.Now}
}

// Execute runs action under the breaker. When the breaker rejects the call,
// fallback runs instead; with no fallback the caller gets a CircuitOpen
// error. The action's own error passes through unchanged and counts toward
// the breaker state.
func (b *CircuitBreaker) Execute(ctx context.Context, action, fallback func(context.Context) error) error {
	if !b.allow() {
		if fallback != nil {
			return fallback(ctx)
		}
		return fault.New(fault.CircuitOpen, fault.Infrastructure, "circuit %q is open", b.name)
	}
	err := action(ctx)
	b.record(err == nil)
	return err
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
			b.state = StateHalfOpen
			b.successes = 0
			b.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		// one trial in flight at a time
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

func (b *CircuitBreaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if ok {
			b.failures = 0
			return
		}
		b.failures++
		b.lastFailure = b.now()
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case StateHalfOpen:
		b.probing = false
		if ok {
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.state = StateClosed
				b.failures = 0
				b.successes = 0
			}
			return
		}
		b.lastFailure = b.now()
		b.successes = 0
		b.trip()
	case StateOpen:
		// a slow action finishing after the breaker already tripped
		if !ok {
			b.lastFailure = b.now()
		}
	}
}

func (b *CircuitBreaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.probing = false
	b.trips++
}

// State returns the current state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the breaker's counters.
func (b *CircuitBreaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		Name:                b.name,
		State:               b.state.String(),
		ConsecutiveFailures: b.failures,
		TrialSuccesses:      b.successes,
		Trips:               b.trips,
		LastFailure:         b.lastFailure,
	}
}

// BreakerRegistry hands out one breaker per resource key, created on
// demand with a shared config. State is scoped to the registry instance,
// not the process, so tests can isolate breakers by constructing their own
// registry.
type BreakerRegistry struct {
	cfg      BreakerConfig
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewBreakerRegistry(cfg BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for key, creating it on first use.
func (r *BreakerRegistry) Get(key string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	b := NewCircuitBreaker(key, r.cfg)
	r.breakers[key] = b
	return b
}

// Stats snapshots every breaker, sorted by name for stable output.
func (r *BreakerRegistry) Stats() []BreakerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BreakerStats, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
