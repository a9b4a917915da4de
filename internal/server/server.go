// Package server assembles the reactor: the epoll poller, the self-pipe
// signal bridge, the connection slot table, the timer list and the worker
// pool, wired together the way the original source's WebServer::eventLoop
// does it. Everything else in this repository is a component this package
// drives; this is the one place their lifecycles actually touch.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/avarga/reactorhttpd/internal/config"
	"github.com/avarga/reactorhttpd/internal/dbpool"
	"github.com/avarga/reactorhttpd/internal/epoll"
	"github.com/avarga/reactorhttpd/internal/httpconn"
	"github.com/avarga/reactorhttpd/internal/metrics"
	"github.com/avarga/reactorhttpd/internal/rlog"
	"github.com/avarga/reactorhttpd/internal/timerlist"
	"github.com/avarga/reactorhttpd/internal/workerpool"
)

// MaxFD bounds the number of simultaneously open connections, mirroring
// the original source's `http_conn users[MAX_FD]` array.
const MaxFD = 65536

// maxEventBatch is the event buffer epoll_wait decodes into per call.
const maxEventBatch = 1024

// bgCtx is used for log lines the event loop emits outside any single
// connection's lifetime (accept failures, epoll errors, timer sweeps).
var bgCtx = context.Background()

// Options configures a Server.
type Options struct {
	Config   *config.Config
	Logger   *rlog.Logger
	Counters *metrics.Counters

	// Pool, when non-nil, is acquired once per accepted connection and
	// released immediately — giving the resource pool a live, exercised
	// caller without inventing a fake workload for it. The database
	// interface is deliberately opaque about what a handle is used for.
	Pool *dbpool.Pool[int]
}

// Server owns the reactor, the timer list, the connection table and the
// worker pool started from it. Exactly one goroutine ever calls Run.
type Server struct {
	opts Options

	listenMode, connMode epoll.TriggerMode
	listenFD             int
	poller               *epoll.Poller
	selfPipe             *epoll.SelfPipe
	slots                *httpconn.Table
	timers               *timerlist.List
	pool                 *workerpool.Pool
	statsHandler         httpconn.StatsHandler

	connsMu sync.Mutex
	conns   map[int]net.Conn
	started map[int]time.Time
}

// New builds a Server bound to a listening socket on opts.Config.Port and
// registers the listening socket and the self-pipe's read end with epoll.
// The signal bridge and the worker goroutines start only when Run is called.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("server: Config is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("server: Logger is required")
	}
	if opts.Counters == nil {
		opts.Counters = metrics.New(0)
	}

	triggers := opts.Config.Triggers()

	s := &Server{
		opts:       opts,
		listenMode: triggers.Listen,
		connMode:   triggers.Conn,
		slots:      httpconn.NewTable(MaxFD),
		timers:     timerlist.New(time.Now),
		conns:      make(map[int]net.Conn, MaxFD),
		started:    make(map[int]time.Time, MaxFD),
	}
	s.statsHandler = metrics.NewHandler(opts.Counters).Serve

	listenFD, err := openListener(opts.Config.Port, opts.Config.LingerOn)
	if err != nil {
		return nil, err
	}
	s.listenFD = listenFD

	poller, err := epoll.New()
	if err != nil {
		unix.Close(listenFD)
		return nil, err
	}
	s.poller = poller

	if err := poller.Register(listenFD, s.listenMode, false); err != nil {
		s.Close()
		return nil, err
	}

	selfPipe, err := epoll.NewSelfPipe()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.selfPipe = selfPipe
	if err := poller.Register(selfPipe.ReadFd(), epoll.LevelTriggered, false); err != nil {
		s.Close()
		return nil, err
	}

	pool, err := workerpool.New(workerpool.Options{
		Workers:        opts.Config.WorkerCount,
		QueueCap:       opts.Config.WorkerCount * 16,
		Mode:           opts.Config.DispatchMode(),
		DocumentRoot:   opts.Config.DocumentRoot,
		Source:         s,
		OnProactorDone: s.onProactorDone,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.pool = pool

	return s, nil
}

// Conn implements workerpool.ConnSource.
func (s *Server) Conn(fd int) (net.Conn, *httpconn.Slot, bool) {
	s.connsMu.Lock()
	conn, ok := s.conns[fd]
	s.connsMu.Unlock()
	if !ok {
		return nil, nil, false
	}
	return conn, s.slots.Get(fd), true
}

// Run installs the self-pipe's signal bridge, starts the worker pool and
// runs the event loop until a termination signal is observed or the loop
// hits an unrecoverable epoll error.
func (s *Server) Run() error {
	s.selfPipe.Start(config.AlarmPeriod)
	s.pool.Start()
	defer s.pool.Stop()

	buf := make([]epoll.Event, 0, maxEventBatch)
	for {
		events, err := s.poller.Wait(buf)
		if err != nil {
			s.opts.Logger.ErrorContext(bgCtx, "epoll wait failed", "error", err)
			return err
		}

		timeout := false
		stop := false

		for _, ev := range events {
			switch {
			case ev.Fd == s.listenFD:
				s.acceptReady()
			case ev.Fd == s.selfPipe.ReadFd():
				sigs, derr := s.selfPipe.Drain()
				if derr != nil {
					continue
				}
				for _, sig := range sigs {
					switch sig {
					case epoll.SignalAlarm:
						timeout = true
					case epoll.SignalTerm:
						stop = true
					}
				}
			case ev.Closed:
				s.closeConn(ev.Fd)
			case ev.Readable:
				s.handleReadable(ev.Fd)
			case ev.Writable:
				s.handleWritable(ev.Fd)
			}
		}

		if timeout {
			fired := s.timers.Tick()
			if fired > 0 {
				s.opts.Logger.DebugContext(bgCtx, "timer tick", "fired", fired)
			}
			s.selfPipe.Rearm(config.AlarmPeriod)
		}

		if stop {
			return nil
		}
	}
}

// Stop requests a graceful shutdown without waiting for an actual SIGTERM,
// used by cmd/reactorhttpd's signal handler and by tests.
func (s *Server) Stop() {
	s.selfPipe.RaiseTerm()
}

// Close releases every fd the server owns. Run must not be called
// afterward.
func (s *Server) Close() error {
	s.connsMu.Lock()
	for fd, conn := range s.conns {
		conn.Close()
		delete(s.conns, fd)
	}
	s.connsMu.Unlock()
	if s.selfPipe != nil {
		s.selfPipe.Stop()
	}
	if s.poller != nil {
		s.poller.Close()
	}
	if s.listenFD != 0 {
		unix.Close(s.listenFD)
	}
	return nil
}
