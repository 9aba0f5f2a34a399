// Package browserpool bounds how many browser pages are live at once and
// reclaims pages abandoned by callers that never released their lease.
package browserpool

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gnana997/designparity/pkg/fault"
)

// Resource is whatever the pool hands out, usually a browser page. Close
// is called exactly once, by Release or by the sweeper.
type Resource interface {
	Close() error
}

// Factory creates a fresh resource for an acquired slot.
type Factory func(ctx context.Context) (Resource, error)

// Config tunes the pool.
type Config struct {
	// Capacity is the number of concurrent leases. 0 means DefaultCapacity.
	Capacity int
	// MaxAge is how long a lease may stay out before the sweeper reclaims
	// it. 0 disables sweeping.
	MaxAge time.Duration
	// SweepEvery is the sweeper interval. Defaults to MaxAge / 2.
	SweepEvery time.Duration
	Logger     *slog.Logger
}

// DefaultCapacity sizes the pool for browser pages. Each page holds a
// renderer process, so the count stays well under the CPU count.
//
//	min(max(NumCPU/2, 1), 4)
func DefaultCapacity() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	if n > 4 {
		n = 4
	}
	return n
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Capacity    int   `json:"capacity"`
	InUse       int   `json:"inUse"`
	Acquired    int64 `json:"acquired"`
	Released    int64 `json:"released"`
	Swept       int64 `json:"swept"`
	FactoryErrs int64 `json:"factoryErrs"`
}

// Pool hands out leased resources with bounded concurrency.
type Pool struct {
	factory Factory
	slots   chan struct{}
	maxAge  time.Duration
	log     *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	leases map[int64]*Lease

	nextID atomic.Int64
	closed atomic.Bool
	done   chan struct{}
	sweepW sync.WaitGroup

	acquired    atomic.Int64
	released    atomic.Int64
	swept       atomic.Int64
	factoryErrs atomic.Int64
}

// Lease is one checked-out resource. Release is idempotent and safe to
// defer on every exit path.
type Lease struct {
	ID       int64
	Resource Resource

	pool     *Pool
	issuedAt time.Time
	done     atomic.Bool
}

// New builds a pool and, when MaxAge is set, starts the sweeper.
func New(factory Factory, cfg Config) *Pool {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{
		factory: factory,
		slots:   make(chan struct{}, capacity),
		maxAge:  cfg.MaxAge,
		log:     log,
		now:     time.Now,
		leases:  make(map[int64]*Lease),
		done:    make(chan struct{}),
	}
	if cfg.MaxAge > 0 {
		every := cfg.SweepEvery
		if every <= 0 {
			every = cfg.MaxAge / 2
		}
		p.sweepW.Add(1)
		go p.sweepLoop(every)
	}
	return p
}

// Acquire blocks until a slot frees up or the context ends, then builds a
// resource for it. The caller owns the returned lease and must Release it.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p.closed.Load() {
		return nil, fault.New(fault.Validation, fault.Infrastructure, "browser pool is closed")
	}
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fault.Wrap(fault.Timeout, fault.Infrastructure, ctx.Err(), "waiting for a browser page slot")
	case <-p.done:
		return nil, fault.New(fault.Validation, fault.Infrastructure, "browser pool is closed")
	}
	if p.closed.Load() {
		<-p.slots
		return nil, fault.New(fault.Validation, fault.Infrastructure, "browser pool is closed")
	}

	res, err := p.factory(ctx)
	if err != nil {
		<-p.slots
		p.factoryErrs.Add(1)
		return nil, fault.Wrap(fault.Connection, fault.Infrastructure, err, "open browser page")
	}

	lease := &Lease{
		ID:       p.nextID.Add(1),
		Resource: res,
		pool:     p,
		issuedAt: p.now(),
	}
	p.mu.Lock()
	p.leases[lease.ID] = lease
	p.mu.Unlock()
	p.acquired.Add(1)
	return lease, nil
}

// Release returns the lease's slot and closes the resource. Calling it
// after the sweeper already reclaimed the lease is a no-op.
func (l *Lease) Release() {
	if l == nil || !l.done.CompareAndSwap(false, true) {
		return
	}
	l.pool.reclaim(l, false)
}

func (p *Pool) reclaim(l *Lease, swept bool) {
	p.mu.Lock()
	delete(p.leases, l.ID)
	p.mu.Unlock()
	if err := l.Resource.Close(); err != nil {
		p.log.Debug("closing pooled page failed", slog.Int64("lease", l.ID), slog.String("error", err.Error()))
	}
	<-p.slots
	if swept {
		p.swept.Add(1)
	} else {
		p.released.Add(1)
	}
}

func (p *Pool) sweepLoop(every time.Duration) {
	defer p.sweepW.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-p.done:
			return
		}
	}
}

// sweep reclaims leases older than MaxAge. CompareAndSwap on the lease
// settles the race against a concurrent Release.
func (p *Pool) sweep() {
	cutoff := p.now().Add(-p.maxAge)
	p.mu.Lock()
	var stale []*Lease
	for _, l := range p.leases {
		if l.issuedAt.Before(cutoff) {
			stale = append(stale, l)
		}
	}
	p.mu.Unlock()
	for _, l := range stale {
		if l.done.CompareAndSwap(false, true) {
			p.log.Warn("reclaiming abandoned browser page",
				slog.Int64("lease", l.ID),
				slog.Duration("age", p.now().Sub(l.issuedAt)))
			p.reclaim(l, true)
		}
	}
}

// Close stops the sweeper and reclaims every outstanding lease. The pool
// rejects further Acquire calls.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.done)
	p.sweepW.Wait()
	p.mu.Lock()
	outstanding := make([]*Lease, 0, len(p.leases))
	for _, l := range p.leases {
		outstanding = append(outstanding, l)
	}
	p.mu.Unlock()
	for _, l := range outstanding {
		if l.done.CompareAndSwap(false, true) {
			p.reclaim(l, true)
		}
	}
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	inUse := len(p.leases)
	p.mu.Unlock()
	return Stats{
		Capacity:    cap(p.slots),
		InUse:       inUse,
		Acquired:    p.acquired.Load(),
		Released:    p.released.Load(),
		Swept:       p.swept.Load(),
		FactoryErrs: p.factoryErrs.Load(),
	}
}
