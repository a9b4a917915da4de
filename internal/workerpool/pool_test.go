package workerpool

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/avarga/reactorhttpd/internal/epoll"
	"github.com/avarga/reactorhttpd/internal/httpconn"
)

// fakeSource is an in-memory ConnSource backed by net.Pipe connections,
// letting tests drive Reactor/Proactor dispatch without a real socket.
type fakeSource struct {
	mu    sync.Mutex
	conns map[int]net.Conn
	slots map[int]*httpconn.Slot
}

func newFakeSource() *fakeSource {
	return &fakeSource{conns: map[int]net.Conn{}, slots: map[int]*httpconn.Slot{}}
}

func (f *fakeSource) add(fd int, conn net.Conn, slot *httpconn.Slot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns[fd] = conn
	f.slots[fd] = slot
}

func (f *fakeSource) Conn(fd int) (net.Conn, *httpconn.Slot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conns[fd]
	if !ok {
		return nil, nil, false
	}
	return c, f.slots[fd], true
}

func newTestSlot(fd int, root string) *httpconn.Slot {
	tbl := httpconn.NewTable(fd + 1)
	s := tbl.Get(fd)
	s.Init(fd, fakeAddr{}, epoll.LevelTriggered, root, nil)
	return s
}

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:0" }

func TestNewRejectsInvalidOptions(t *testing.T) {
	src := newFakeSource()
	if _, err := New(Options{Workers: 0, QueueCap: 4, Source: src}); err == nil {
		t.Fatal("expected error for zero workers")
	}
	if _, err := New(Options{Workers: 4, QueueCap: 0, Source: src}); err == nil {
		t.Fatal("expected error for zero queue capacity")
	}
	if _, err := New(Options{Workers: 4, QueueCap: 4, Source: nil}); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestReactorReadSuccessPublishesNoTimeout(t *testing.T) {
	root := t.TempDir()
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	slot := newTestSlot(5, root)
	src := newFakeSource()
	src.add(5, serverConn, slot)

	p, err := New(Options{Workers: 1, QueueCap: 4, Mode: Reactor, DocumentRoot: root, Source: src})
	if err != nil {
		t.Fatal(err)
	}
	p.Start()
	defer p.Stop()

	go func() {
		_, _ = clientConn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	}()

	if !p.Enqueue(5, KindRead) {
		t.Fatal("enqueue should succeed with room in the queue")
	}

	failed, incomplete := slot.Handshake.Wait()
	if failed {
		t.Fatal("expected a successful read to publish failed=false")
	}
	if incomplete {
		t.Fatal("expected a complete request to publish incomplete=false")
	}
}

func TestReactorReadFailurePublishesTimeout(t *testing.T) {
	root := t.TempDir()
	serverConn, clientConn := net.Pipe()

	slot := newTestSlot(7, root)
	src := newFakeSource()
	src.add(7, serverConn, slot)

	p, err := New(Options{Workers: 1, QueueCap: 4, Mode: Reactor, DocumentRoot: root, Source: src})
	if err != nil {
		t.Fatal(err)
	}
	p.Start()
	defer p.Stop()

	clientConn.Close() // forces the worker's read to fail with EOF

	if !p.Enqueue(7, KindRead) {
		t.Fatal("enqueue should succeed")
	}

	failed, _ := slot.Handshake.Wait()
	if !failed {
		t.Fatal("expected a failed read to publish failed=true")
	}
}

func TestProactorInvokesOnDoneCallback(t *testing.T) {
	root := t.TempDir()
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	slot := newTestSlot(9, root)
	// net.Pipe has no buffering, so a read with no writer blocks until a
	// deadline passes; an expired deadline makes this read return at once.
	_ = serverConn.SetReadDeadline(time.Now())
	slot.ReadOnce(serverConn) // nothing buffered yet; Process still runs deterministically
	src := newFakeSource()
	src.add(9, serverConn, slot)

	type doneResult struct {
		fd       int
		complete bool
	}
	done := make(chan doneResult, 1)
	p, err := New(Options{
		Workers: 1, QueueCap: 4, Mode: Proactor, DocumentRoot: root, Source: src,
		OnProactorDone: func(fd int, complete bool) { done <- doneResult{fd, complete} },
	})
	if err != nil {
		t.Fatal(err)
	}
	p.Start()
	defer p.Stop()

	if !p.Enqueue(9, KindProcess) {
		t.Fatal("enqueue should succeed")
	}

	select {
	case r := <-done:
		if r.fd != 9 {
			t.Fatalf("expected fd 9, got %d", r.fd)
		}
		if r.complete {
			t.Fatal("expected an empty buffered read to report an incomplete request")
		}
	case <-time.After(time.Second):
		t.Fatal("OnProactorDone was never called")
	}
}

func TestEnqueueFailsWhenQueueIsFull(t *testing.T) {
	root := t.TempDir()
	src := newFakeSource()

	// No workers started: nothing drains the queue, so it fills up.
	p, err := New(Options{Workers: 1, QueueCap: 2, Mode: Reactor, DocumentRoot: root, Source: src})
	if err != nil {
		t.Fatal(err)
	}

	if !p.Enqueue(1, KindRead) || !p.Enqueue(2, KindRead) {
		t.Fatal("first two enqueues should succeed")
	}
	if p.Enqueue(3, KindRead) {
		t.Fatal("third enqueue should fail: queue capacity is 2")
	}
}

func TestDeadSlotIsBenign(t *testing.T) {
	root := t.TempDir()
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	slot := newTestSlot(11, root)
	slot.MarkClosed()
	src := newFakeSource()
	src.add(11, serverConn, slot)

	p, err := New(Options{Workers: 1, QueueCap: 4, Mode: Reactor, DocumentRoot: root, Source: src})
	if err != nil {
		t.Fatal(err)
	}
	p.Start()

	p.Enqueue(11, KindRead)
	p.Stop() // returns cleanly; a dead slot must never hang a worker
}
