//go:build linux

package server

import (
	"bufio"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/avarga/reactorhttpd/internal/config"
	"github.com/avarga/reactorhttpd/internal/metrics"
	"github.com/avarga/reactorhttpd/internal/rlog"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func testServer(t *testing.T, root string, actorModel int) (*Server, int) {
	t.Helper()
	port := freePort(t)
	cfg := &config.Config{
		Port:         port,
		TriggerMode:  0,
		LingerOn:     false,
		WorkerCount:  4,
		ActorModel:   actorModel,
		DocumentRoot: root,
		Logging:      config.LoggingConfig{Level: "error", Format: "text"},
	}
	logger := rlog.New(rlog.Config{Level: "error", Format: "text"})
	counters := metrics.New(0)

	s, err := New(Options{Config: cfg, Logger: logger, Counters: counters})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, port
}

func runServer(t *testing.T, s *Server) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Run() }()
	t.Cleanup(func() {
		s.Stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("server did not stop in time")
		}
		s.Close()
	})
	// Give the event loop goroutine a moment to reach epoll_wait.
	time.Sleep(50 * time.Millisecond)
}

func TestServeStaticFileProactor(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("hello reactor"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	s, port := testServer(t, root, 0)
	runServer(t, s)

	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(port), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	resp, err := io.ReadAll(conn)
	if err != nil && err != io.EOF {
		t.Fatalf("read response: %v", err)
	}
	text := string(resp)
	if !strings.HasPrefix(text, "HTTP/1.1 200") {
		t.Fatalf("expected 200 OK, got: %q", firstLine(text))
	}
	if !strings.Contains(text, "hello reactor") {
		t.Fatalf("expected body in response, got: %q", text)
	}
}

func TestServeStaticFileReactor(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("hello worker"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	s, port := testServer(t, root, 1)
	runServer(t, s)

	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(port), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /index.html HTTP/1.1\r\nHost: localhost\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.HasPrefix(line, "HTTP/1.1 200") {
		t.Fatalf("expected 200 OK, got: %q", line)
	}
}

func TestMissingFileIs404(t *testing.T) {
	root := t.TempDir()
	s, port := testServer(t, root, 0)
	runServer(t, s)

	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(port), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.Write([]byte("GET /nope.html HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.HasPrefix(line, "HTTP/1.1 404") {
		t.Fatalf("expected 404, got: %q", line)
	}
}

func TestTimerFiredClosesIdleConnection(t *testing.T) {
	root := t.TempDir()
	s, port := testServer(t, root, 0)
	runServer(t, s)

	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(port), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the accept-side handling time to register the slot.
	time.Sleep(100 * time.Millisecond)

	var fd int
	found := false
	for candidate := 0; candidate < MaxFD; candidate++ {
		if s.slots.Get(candidate).Live() {
			fd = candidate
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected a live connection slot after dialing")
	}

	s.timerFired(fd)

	if s.slots.Get(fd).Live() {
		t.Fatal("expected timerFired to close the connection slot")
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
