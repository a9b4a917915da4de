package server

import (
	"context"
	"net"
	"time"

	"github.com/avarga/reactorhttpd/internal/config"
	"github.com/avarga/reactorhttpd/internal/epoll"
	"github.com/avarga/reactorhttpd/internal/httpconn"
	"github.com/avarga/reactorhttpd/internal/workerpool"
)

// acceptReady drains (edge-triggered listen mode) or accepts once
// (level-triggered) newly arrived connections, mirroring dealclientdata.
// Over MAX_FD, the connection is answered with BusyMessage and closed
// immediately without ever entering the slot table.
func (s *Server) acceptReady() {
	for {
		fd, addr, err := acceptOne(s.listenFD)
		if err != nil {
			return
		}

		if s.slots.ActiveCount() >= MaxFD {
			s.opts.Logger.ErrorContext(bgCtx, "server busy: MAX_FD reached", "fd", fd)
			writeBusyAndClose(fd)
			if s.listenMode == epoll.LevelTriggered {
				return
			}
			continue
		}

		s.acceptOne(fd, addr)

		if s.listenMode == epoll.LevelTriggered {
			return
		}
		// Edge-triggered: keep accepting until the backlog is drained.
	}
}

func writeBusyAndClose(fd int) {
	msg := httpconn.BusyMessage()
	for len(msg) > 0 {
		n, err := unixWrite(fd, msg)
		if err != nil {
			break
		}
		msg = msg[n:]
	}
	unixClose(fd)
}

// acceptOne finishes registering one freshly accepted fd: nonblocking mode,
// slot init, timer binding and epoll registration, mirroring timer() in
// the original source.
func (s *Server) acceptOne(fd int, addr net.Addr) {
	if err := epoll.SetNonblock(fd); err != nil {
		s.opts.Logger.ErrorContext(bgCtx, "set nonblock failed", "fd", fd, "error", err)
		unixClose(fd)
		return
	}

	slot := s.slots.Get(fd)
	slot.Init(fd, addr, s.connMode, s.opts.Config.DocumentRoot, s.statsHandler)

	deadline := time.Now().Add(config.ConnectionTimeout).Unix()
	h := s.timers.Add(deadline, fd, s.timerFired)
	slot.BindTimer(h)

	s.connsMu.Lock()
	s.conns[fd] = newFDConn(fd, addr)
	s.started[fd] = time.Now()
	s.connsMu.Unlock()

	s.opts.Counters.ConnectionOpened()
	s.touchPool()

	// Every connection fd is registered one-shot: after each readiness
	// event, the worker pool (or the inline Proactor path) must finish and
	// explicitly rearm the fd for the next phase (write after read, close
	// after write), so a second readiness notification for the same phase
	// can never race the first one's handling.
	if err := s.poller.Register(fd, s.connMode, true); err != nil {
		s.opts.Logger.ErrorContext(bgCtx, "register conn failed", "fd", fd, "error", err)
		s.closeConn(fd)
		return
	}
}

// timerFired is the callback bound to every connection's timer entry,
// equivalent to the original source's cb_func: deregister from epoll and
// close the socket. It is safe to invoke even if the connection was
// already closed by other means, since MarkClosed is idempotent.
func (s *Server) timerFired(fd int) {
	s.closeConn(fd)
}

// closeConn deregisters fd from epoll, closes the connection and frees its
// slot. Calling it twice for the same fd (e.g. once from a hangup event and
// once from the timer firing concurrently — though both only ever run on
// the single event-loop goroutine) is a no-op the second time.
func (s *Server) closeConn(fd int) {
	slot := s.slots.Get(fd)
	closedFD, was := slot.MarkClosed()
	if !was {
		return
	}

	if h, ok := slot.TimerHandle(); ok {
		s.timers.Del(h)
	}

	s.poller.Deregister(closedFD)

	s.connsMu.Lock()
	conn, ok := s.conns[closedFD]
	startedAt, hadStart := s.started[closedFD]
	delete(s.conns, closedFD)
	delete(s.started, closedFD)
	s.connsMu.Unlock()
	if ok {
		conn.Close()
	} else {
		unixClose(closedFD)
	}

	s.opts.Counters.ConnectionClosed()
	s.recordRequestOutcome(slot, startedAt, hadStart)
}

// recordRequestOutcome classifies the connection's single request by the
// status code the responder prepared, falling back to "timed out" for a
// connection that never got far enough to produce one.
func (s *Server) recordRequestOutcome(slot *httpconn.Slot, startedAt time.Time, hadStart bool) {
	if !hadStart {
		return
	}
	status := slot.StatusCode()
	latency := time.Since(startedAt)
	switch {
	case status == 0:
		s.opts.Counters.RequestFinished(false, true, latency)
	case status < 500:
		s.opts.Counters.RequestFinished(true, false, latency)
	default:
		s.opts.Counters.RequestFinished(false, false, latency)
	}
}

// handleReadable mirrors dealwithread: Reactor mode adjusts the timer up
// front, enqueues the raw read and blocks on the slot's handshake for the
// worker's result; Proactor mode reads inline and only enqueues the
// (already-buffered) request for handler processing.
func (s *Server) handleReadable(fd int) {
	conn, slot, found := s.Conn(fd)
	if !found || !slot.Live() {
		return
	}

	switch s.opts.Config.DispatchMode() {
	case workerpool.Reactor:
		s.adjustTimer(slot)
		if !s.pool.Enqueue(fd, workerpool.KindRead) {
			s.closeConn(fd)
			return
		}
		failed, incomplete := slot.Handshake.Wait()
		slot.Handshake.Reset()
		switch {
		case failed:
			s.closeConn(fd)
		case incomplete:
			// The socket read succeeded but didn't buffer a full request
			// yet (e.g. a client trickling bytes in one at a time) — keep
			// watching for read readiness instead of switching to write.
			s.rearmForRead(fd, slot)
		default:
			s.rearmForResponse(fd, slot)
		}

	default: // Proactor
		if slot.ReadOnce(conn) {
			if !s.pool.Enqueue(fd, workerpool.KindProcess) {
				s.closeConn(fd)
				return
			}
			s.adjustTimer(slot)
		} else {
			s.closeConn(fd)
		}
	}
}

// handleWritable mirrors dealwithwrite, the write-side twin of
// handleReadable: Reactor enqueues a write work item and waits; Proactor
// writes inline on the event-loop goroutine.
func (s *Server) handleWritable(fd int) {
	conn, slot, found := s.Conn(fd)
	if !found || !slot.Live() {
		return
	}

	switch s.opts.Config.DispatchMode() {
	case workerpool.Reactor:
		s.adjustTimer(slot)
		if !s.pool.Enqueue(fd, workerpool.KindWrite) {
			s.closeConn(fd)
			return
		}
		slot.Handshake.Wait()
		slot.Handshake.Reset()
		// One response per connection: whether the write succeeded or
		// failed, the connection is done once the worker reports back.
		s.closeConn(fd)

	default: // Proactor
		slot.Write(conn)
		s.closeConn(fd)
	}
}

// onProactorDone is the workerpool.Options.OnProactorDone callback: once a
// Proactor worker has finished running Process on a buffered read, either
// re-arm the fd for write readiness so the event loop's own goroutine
// performs the actual send (keeping writes inline the way Proactor mode
// does for reads), or, if the request is still incomplete, re-arm for
// another read instead of prematurely treating the connection as ready to
// answer.
func (s *Server) onProactorDone(fd int, complete bool) {
	slot := s.slots.Get(fd)
	if !slot.Live() {
		return
	}
	if complete {
		s.rearmForResponse(fd, slot)
	} else {
		s.rearmForRead(fd, slot)
	}
}

// rearmForResponse switches fd's epoll registration to watch for write
// readiness, since a response is now ready to be flushed.
func (s *Server) rearmForResponse(fd int, slot *httpconn.Slot) {
	mode := s.connMode
	if err := s.poller.RearmWrite(fd, mode); err != nil {
		s.opts.Logger.ErrorContext(bgCtx, "rearm write failed", "fd", fd, "error", err)
		s.closeConn(fd)
	}
}

// rearmForRead switches fd's epoll registration back to watching for read
// readiness, used when a request arrived split across more than one
// read — the parser needs another readable event before a response can
// be prepared.
func (s *Server) rearmForRead(fd int, slot *httpconn.Slot) {
	mode := s.connMode
	if err := s.poller.RearmRead(fd, mode); err != nil {
		s.opts.Logger.ErrorContext(bgCtx, "rearm read failed", "fd", fd, "error", err)
		s.closeConn(fd)
	}
}

// touchPool acquires and immediately releases one database handle from the
// configured resource pool, giving every accepted connection a bounded
// brush with the shared pool the way the original source's connection_pool
// is consulted once per request — without inventing request-level SQL work
// a static file server has no reason to do.
func (s *Server) touchPool() {
	if s.opts.Pool == nil {
		return
	}
	lease, err := s.opts.Pool.Acquire(context.Background())
	if err != nil {
		s.opts.Logger.ErrorContext(bgCtx, "db pool acquire failed", "error", err)
		return
	}
	lease.Release()
}

func (s *Server) adjustTimer(slot *httpconn.Slot) {
	h, ok := slot.TimerHandle()
	if !ok {
		return
	}
	deadline := time.Now().Add(config.ConnectionTimeout).Unix()
	_ = s.timers.Adjust(h, deadline)
}
