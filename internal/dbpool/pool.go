// Package dbpool implements a fixed-cardinality resource pool for the
// database connection layer: a FIFO of opaque handles guarded by a
// counting semaphore, sized once at startup.
//
// A per-worker chan net.Conn connection cache behind a semaphore, used
// elsewhere for backpressure, is promoted here to the whole component:
// one FIFO, one semaphore, no worker selection layer, generic over the
// handle type so it can hold anything opaque — a *sql.DB-style handle, a
// net.Conn, or a test double.
package dbpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// ErrClosed is returned by Acquire once the pool has been closed.
var ErrClosed = errors.New("dbpool: pool is closed")

// DefaultPoolSize is the default pool size bound to the -s flag.
const DefaultPoolSize = 8

// Factory creates one handle. It is called exactly Size times, during New,
// to pre-establish the pool's handles — mirroring the original source's
// connection_pool::init, which opens every MySQL connection up front.
type Factory[H any] func() (H, error)

// Closer releases a single handle's underlying resource when the pool
// itself is closed. It may be nil if handles need no cleanup.
type Closer[H any] func(H) error

// Pool is a fixed-size FIFO of handles of type H, guarded by a counting
// semaphore. The invariant held at every quiescent point is:
// len(free) + outstanding == size.
type Pool[H any] struct {
	mu     sync.Mutex
	free   []H
	sem    chan struct{}
	size   int
	closer Closer[H]
	closed bool
}

// New creates a pool of the given size, calling factory size times to
// populate it. If factory returns an error partway through, already-created
// handles are passed to closer (if non-nil) and the error is returned — a
// setup failure meant to abort the process, not to be retried.
func New[H any](size int, factory Factory[H], closer Closer[H]) (*Pool[H], error) {
	if size <= 0 {
		return nil, fmt.Errorf("dbpool: size must be > 0, got %d", size)
	}

	p := &Pool[H]{
		free:   make([]H, 0, size),
		sem:    make(chan struct{}, size),
		size:   size,
		closer: closer,
	}

	for i := 0; i < size; i++ {
		h, err := factory()
		if err != nil {
			p.closeAll()
			return nil, fmt.Errorf("dbpool: creating handle %d/%d: %w", i+1, size, err)
		}
		p.free = append(p.free, h)
		p.sem <- struct{}{}
	}

	return p, nil
}

// Lease is a scoped acquisition: it holds exactly one handle checked out of
// the pool, and guarantees the handle is returned on every exit path when
// Release is deferred, matching an RAII-style guard.
type Lease[H any] struct {
	pool *Pool[H]
	h    H
	once sync.Once
}

// Handle returns the leased handle.
func (l *Lease[H]) Handle() H { return l.h }

// Release returns the handle to the pool. It is safe to call multiple
// times; only the first call has any effect.
func (l *Lease[H]) Release() {
	l.once.Do(func() {
		l.pool.release(l.h)
	})
}

// Acquire blocks until a handle is available or ctx is done, whichever
// happens first. Blocking on the semaphore, not the mutex, is what lets
// Release post the semaphore after unlocking the mutex — avoiding a lost
// wake-up between the check and the wait.
func (p *Pool[H]) Acquire(ctx context.Context) (*Lease[H], error) {
	select {
	case <-p.sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem <- struct{}{}
		return nil, ErrClosed
	}
	h := p.free[0]
	p.free = p.free[1:]
	p.mu.Unlock()

	return &Lease[H]{pool: p, h: h}, nil
}

func (p *Pool[H]) release(h H) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if p.closer != nil {
			_ = p.closer(h)
		}
		return
	}
	p.free = append(p.free, h)
	p.mu.Unlock()
	p.sem <- struct{}{}
}

// Close drains the pool, waiting for nothing — it closes whatever handles
// are currently idle and marks the pool closed so further Acquire calls
// fail fast. Handles checked out at the time of Close are closed when
// their Lease is eventually Released.
func (p *Pool[H]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.closeAll()
}

func (p *Pool[H]) closeAll() error {
	if p.closer == nil {
		return nil
	}

	p.mu.Lock()
	handles := p.free
	p.free = nil
	p.mu.Unlock()

	var err error
	for _, h := range handles {
		if cerr := p.closer(h); cerr != nil {
			err = multierr.Append(err, cerr)
		}
	}
	return err
}

// Size returns the pool's fixed capacity.
func (p *Pool[H]) Size() int { return p.size }

// Available returns the number of idle handles currently in the free list.
// It is intended for metrics and tests.
func (p *Pool[H]) Available() int { return len(p.sem) }
