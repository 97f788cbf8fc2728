package engine

import (
	"context"
	"sync"
)

// Coalescer guards shared state against stale async responses. Each fetch
// kind ("list", "detail", "stats", "sync") carries a monotonically
// increasing generation; starting a new fetch of a kind cancels the previous
// one, and a completion may only be applied while its generation is still
// the latest. A superseded fetch is silently dropped, never an error.
type Coalescer struct {
	mu      sync.Mutex
	flights map[string]*flight
}

type flight struct {
	gen    uint64
	cancel context.CancelFunc
}

// NewCoalescer returns an empty coalescer.
func NewCoalescer() *Coalescer {
	return &Coalescer{flights: make(map[string]*flight)}
}

// Begin registers a new fetch of the given kind: any in-flight fetch of the
// same kind is cancelled, the kind's generation advances, and the returned
// context is bound to the new fetch's cancellation handle.
func (c *Coalescer) Begin(ctx context.Context, kind string) (context.Context, uint64) {
	fctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	f := c.flights[kind]
	if f == nil {
		f = &flight{}
		c.flights[kind] = f
	}
	if f.cancel != nil {
		f.cancel()
	}
	f.gen++
	f.cancel = cancel
	return fctx, f.gen
}

// Current reports whether gen is still the latest issued for kind.
func (c *Coalescer) Current(kind string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.flights[kind]
	return f != nil && f.gen == gen
}

// Commit runs apply only if gen is still the latest for kind, and reports
// whether it ran. The check and the apply happen under the coalescer lock
// so a committed response is never interleaved with a superseding Begin;
// apply must therefore be a short state application and must not call back
// into the Coalescer.
func (c *Coalescer) Commit(kind string, gen uint64, apply func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := c.flights[kind]
	if f == nil || f.gen != gen {
		return false
	}
	apply()
	if f.cancel != nil {
		// Release the finished fetch's context resources; the work is done
		// so cancelling it has no observable effect.
		f.cancel()
		f.cancel = nil
	}
	return true
}

// Cancel aborts the in-flight fetch of kind, if any, and invalidates its
// generation so a late completion cannot commit.
func (c *Coalescer) Cancel(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := c.flights[kind]
	if f == nil {
		return
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.gen++
}

// CancelAll aborts every outstanding fetch. Used on shutdown and when the
// owning surface goes away.
func (c *Coalescer) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range c.flights {
		if f.cancel != nil {
			f.cancel()
			f.cancel = nil
		}
		f.gen++
	}
}
