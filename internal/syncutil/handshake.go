package syncutil

import "sync"

// Handshake replaces the busy-spin the original source uses to synchronize
// a worker's completion of an I/O operation with the event loop observing
// it. A worker calls Publish once it is done; the loop calls Wait, which
// blocks (not spins) until Publish has happened, and returns the handshake
// bits the original `improv`/`timer_flag` fields carried, plus a third bit
// (Incomplete) a plain bool pair can't express: a Reactor-mode read that
// succeeded at the socket level but didn't yet buffer a full request, so
// the loop must keep watching for read readiness instead of switching to
// write readiness.
//
// The contract: the loop must observe Failed and Incomplete no later than
// it observes completion, i.e. all three fields are visible together.
// Publish takes the lock, sets all three fields, then broadcasts, so there
// is a single happens-before edge instead of independently-published flags
// racing each other.
type Handshake struct {
	mu         sync.Mutex
	cond       *sync.Cond
	done       bool
	failed     bool
	incomplete bool
}

// NewHandshake returns a ready-to-use, already-armed handshake.
func NewHandshake() *Handshake {
	h := &Handshake{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Reset re-arms the handshake for another round. It must only be called
// after a previous Wait has returned — never concurrently with Publish.
func (h *Handshake) Reset() {
	h.mu.Lock()
	h.done = false
	h.failed = false
	h.incomplete = false
	h.mu.Unlock()
}

// Publish marks the handshake complete. failed flags that the operation
// itself failed (read/write error or EOF) and the connection must close;
// incomplete flags that a Reactor-mode read succeeded but only buffered a
// partial request, so the loop must re-arm for another read instead of
// treating a response as ready to send. Safe to call from a worker
// goroutine while the loop is blocked in Wait.
func (h *Handshake) Publish(failed, incomplete bool) {
	h.mu.Lock()
	h.done = true
	h.failed = failed
	h.incomplete = incomplete
	h.mu.Unlock()
	h.cond.Broadcast()
}

// Wait blocks until Publish has been called, returning the failed and
// incomplete bits it was published with.
func (h *Handshake) Wait() (failed, incomplete bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for !h.done {
		h.cond.Wait()
	}
	return h.failed, h.incomplete
}
