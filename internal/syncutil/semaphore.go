// Package syncutil provides the small synchronization primitives used by
// the worker pool's queue and the per-connection handshake: a counting
// semaphore and a resettable broadcast latch. The resource pool in
// internal/dbpool keeps its own buffered-channel semaphore instead. Everything else in this
// repository builds on the standard library's sync.Mutex/sync.RWMutex
// directly.
package syncutil

// Semaphore is a counting semaphore backed by a buffered channel. Acquire
// blocks until a permit is available; Release returns one. It is the Go
// analogue of the POSIX counting semaphore, used here for the worker
// queue's non-empty condition.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore creates a semaphore with n initial permits and capacity n.
func NewSemaphore(n int) *Semaphore {
	return NewSemaphoreCap(n, n)
}

// NewSemaphoreCap creates a semaphore with capacity cap and initial permits
// n (n may be less than cap — the worker queue's non-empty semaphore starts
// at 0 permits with capacity C plus the worker count, one permit posted per
// enqueued item and one per worker on shutdown).
func NewSemaphoreCap(cap, n int) *Semaphore {
	s := &Semaphore{slots: make(chan struct{}, cap)}
	for i := 0; i < n; i++ {
		s.slots <- struct{}{}
	}
	return s
}

// Acquire blocks until a permit is available.
func (s *Semaphore) Acquire() {
	<-s.slots
}

// TryAcquire takes a permit without blocking, reporting whether one was
// available.
func (s *Semaphore) TryAcquire() bool {
	select {
	case <-s.slots:
		return true
	default:
		return false
	}
}

// Release returns a permit. Releasing more permits than were ever
// allocated panics, since that would mean the invariant the caller relies
// on (outstanding + available == capacity) has already been broken.
func (s *Semaphore) Release() {
	select {
	case s.slots <- struct{}{}:
	default:
		panic("syncutil: semaphore released more permits than it was given")
	}
}

// Available returns the number of permits currently free. It is intended
// for tests and metrics, not for synchronization decisions.
func (s *Semaphore) Available() int {
	return len(s.slots)
}
