// Package workerpool implements the worker pool: N goroutines draining a
// bounded FIFO queue, dispatching each item as either raw connection I/O
// (Reactor mode) or a request-handler invocation on data the event loop
// already drained (Proactor mode).
//
// The outer shape — a fixed worker count, a bounded backlog, and a
// panic-safe goroutine lifecycle — generalizes a round-robin RPC dispatch
// pool to an intent-tagged work queue.
package workerpool

import (
	"fmt"
	"net"

	"github.com/sourcegraph/conc"

	"github.com/avarga/reactorhttpd/internal/httpconn"
)

// ConnSource resolves a file descriptor to its live connection and slot.
// The server package is the only implementation; workerpool is kept
// decoupled from epoll/net.Listener so it can be tested without a real
// socket.
type ConnSource interface {
	Conn(fd int) (net.Conn, *httpconn.Slot, bool)
}

// Options configures a Pool.
type Options struct {
	Workers      int
	QueueCap     int
	Mode         Mode
	DocumentRoot string
	Source       ConnSource

	// OnProactorDone, when set, is invoked after a Proactor-mode worker has
	// run Process on a buffered read. complete reports whether a full
	// request was parsed: true means the event loop should re-arm fd for
	// write readiness, false means the request is still incomplete and fd
	// must be re-armed for another read instead. Reactor mode has no
	// equivalent: the loop learns of completion by observing the slot's
	// handshake instead.
	OnProactorDone func(fd int, complete bool)
}

// Pool is the fixed-size worker pool: N goroutines, a single bounded
// queue, and a counting semaphore standing in for the queue's non-empty
// condition.
type Pool struct {
	opts  Options
	queue *queue
	wg    conc.WaitGroup
}

// New validates opts and constructs a Pool without starting any workers.
func New(opts Options) (*Pool, error) {
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("workerpool: workers must be > 0, got %d", opts.Workers)
	}
	if opts.QueueCap <= 0 {
		return nil, fmt.Errorf("workerpool: queue capacity must be > 0, got %d", opts.QueueCap)
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("workerpool: Source is required")
	}

	return &Pool{
		opts:  opts,
		queue: newQueue(opts.QueueCap, opts.Workers),
	}, nil
}

// Start launches the worker goroutines. conc.WaitGroup recovers and
// re-panics on Wait, so a bug in one handler invocation surfaces instead of
// silently killing a worker forever.
func (p *Pool) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Go(p.workerLoop)
	}
}

// Enqueue pushes a work item for fd, returning false if the queue is full
// (the append/append_p failure path). The server closes the connection on
// false without sending a response; no busy message is written, unlike the
// MAX_FD rejection.
func (p *Pool) Enqueue(fd int, kind Kind) bool {
	return p.queue.push(WorkItem{FD: fd, Kind: kind})
}

// Stop closes the queue, releasing every worker's pending pop, and waits
// for all worker goroutines to return.
func (p *Pool) Stop() {
	p.queue.close(p.opts.Workers)
	p.wg.Wait()
}

func (p *Pool) workerLoop() {
	for {
		item, ok := p.queue.pop()
		if !ok {
			return
		}
		p.handle(item)
	}
}

func (p *Pool) handle(item WorkItem) {
	conn, slot, found := p.opts.Source.Conn(item.FD)
	if !found || !slot.Live() {
		// The connection was closed (timeout or hangup) while this item sat
		// in the queue. A pending item for a dead slot is benign — do
		// nothing.
		return
	}

	switch p.opts.Mode {
	case Reactor:
		p.handleReactor(item, conn, slot)
	case Proactor:
		p.handleProactor(slot)
	}
}

func (p *Pool) handleReactor(item WorkItem, conn net.Conn, slot *httpconn.Slot) {
	switch item.Kind {
	case KindRead:
		ok := slot.ReadOnce(conn)
		if !ok {
			slot.Handshake.Publish(true, false)
			return
		}
		complete := slot.Process(p.opts.DocumentRoot)
		slot.Handshake.Publish(false, !complete)
	case KindWrite:
		ok := slot.Write(conn)
		slot.Handshake.Publish(!ok, false)
	}
}

func (p *Pool) handleProactor(slot *httpconn.Slot) {
	complete := slot.Process(p.opts.DocumentRoot)
	if p.opts.OnProactorDone != nil {
		p.opts.OnProactorDone(slot.FD, complete)
	}
}
