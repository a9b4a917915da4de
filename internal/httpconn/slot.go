// Package httpconn holds the per-connection state the event loop and
// worker pool share: a dense, preallocated table of slots indexed by file
// descriptor, each carrying the handshake bits Reactor mode uses to signal
// completion back to the loop, plus a minimal HTTP/1.1 request parser and
// static-file responder.
package httpconn

import (
	"net"
	"sync"

	"github.com/avarga/reactorhttpd/internal/epoll"
	"github.com/avarga/reactorhttpd/internal/syncutil"
	"github.com/avarga/reactorhttpd/internal/timerlist"
)

// Slot is one connection's state, equivalent to the original source's
// http_conn plus client_data combined. FD is -1 when the slot is unused.
type Slot struct {
	mu sync.Mutex

	FD          int
	Peer        net.Addr
	TriggerMode epoll.TriggerMode
	Timer       timerlist.Handle
	hasTimer    bool

	// Handshake carries the improv/timer_flag signal Reactor-mode workers
	// use to tell the loop an I/O attempt finished, and whether it also
	// requires the timer callback to run. See syncutil.Handshake for why
	// this is a condition variable instead of a busy spin.
	Handshake *syncutil.Handshake

	parser *requestParser
	resp   *responseWriter
}

// Table is the dense, preallocated array of connection slots, indexed by
// file descriptor — the Go equivalent of `users = new http_conn[MAX_FD]`.
type Table struct {
	slots []*Slot
}

// NewTable preallocates maxFD slots, all initially unused.
func NewTable(maxFD int) *Table {
	t := &Table{slots: make([]*Slot, maxFD)}
	for i := range t.slots {
		t.slots[i] = &Slot{FD: -1}
	}
	return t
}

// Get returns the slot for fd. fd must be in [0, maxFD); callers that
// accept arbitrary fds are expected to have already checked MAX_FD.
func (t *Table) Get(fd int) *Slot {
	return t.slots[fd]
}

// Len returns the capacity of the table (MAX_FD), not the number in use.
func (t *Table) Len() int { return len(t.slots) }

// ActiveCount walks the table counting slots with FD >= 0, i.e. the
// active-user count: the number of connection slots currently in use.
// Callers needing a fast counter in the hot path should prefer
// internal/metrics's atomic counter instead and reserve this for tests.
func (t *Table) ActiveCount() int {
	n := 0
	for _, s := range t.slots {
		s.mu.Lock()
		if s.FD >= 0 {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Init (re)initializes a slot for a freshly accepted connection. stats may
// be nil, in which case every path falls through to static file serving.
func (s *Slot) Init(fd int, peer net.Addr, mode epoll.TriggerMode, root string, stats StatsHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.FD = fd
	s.Peer = peer
	s.TriggerMode = mode
	s.hasTimer = false
	s.Handshake = syncutil.NewHandshake()
	s.parser = newRequestParser()
	s.resp = newResponseWriter(root, stats)
}

// BindTimer records the timer list handle owning this slot's expiry.
func (s *Slot) BindTimer(h timerlist.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Timer = h
	s.hasTimer = true
}

// TimerHandle returns the slot's timer handle and whether one is bound.
func (s *Slot) TimerHandle() (timerlist.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Timer, s.hasTimer
}

// Address returns the peer address captured at accept, mirroring
// get_address().
func (s *Slot) Address() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Peer
}

// Live reports whether the slot still refers to an open connection. Work
// items for a slot whose fd has already been closed must be benign; this
// is the liveness check callers are required to make before touching the
// socket.
func (s *Slot) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FD >= 0
}

// MarkClosed zeroes the fd, guarding the timer callback's idempotence:
// calling it a second time after the slot has already been closed is then
// always a no-op.
func (s *Slot) MarkClosed() (fd int, was bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fd, was = s.FD, s.FD >= 0
	s.FD = -1
	return fd, was
}

// ReadOnce reads whatever is available into the connection's buffer,
// reporting false on EOF or error, mirroring read_once's bool return.
func (s *Slot) ReadOnce(conn net.Conn) bool {
	s.mu.Lock()
	p := s.parser
	s.mu.Unlock()
	return p.readOnce(conn)
}

// Process parses whatever has been buffered and prepares the response,
// mirroring process(). It returns false without preparing a response if
// the buffered bytes aren't a complete request yet, so the caller knows
// to keep watching for read readiness instead of switching the fd to
// write-only.
func (s *Slot) Process(root string) bool {
	s.mu.Lock()
	p, r := s.parser, s.resp
	s.mu.Unlock()
	req, ok, complete := p.parse()
	if !complete {
		return false
	}
	r.prepare(req, ok, root)
	return true
}

// Write flushes the prepared response, reporting false on a write error,
// mirroring write()'s bool return.
func (s *Slot) Write(conn net.Conn) bool {
	s.mu.Lock()
	r := s.resp
	s.mu.Unlock()
	return r.flush(conn)
}

// Done reports whether the response has been fully flushed.
func (s *Slot) Done() bool {
	s.mu.Lock()
	r := s.resp
	s.mu.Unlock()
	return r.done()
}

// StatusCode returns the HTTP status of the last response Process
// prepared, for metrics classification only.
func (s *Slot) StatusCode() int {
	s.mu.Lock()
	r := s.resp
	s.mu.Unlock()
	return r.StatusCode()
}
