//go:build linux

package epoll

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// SelfPipe is an unnamed, connected pair of nonblocking descriptors used to
// make SIGALRM and the termination signal observable through the same
// epoll set as every connection fd — the classic self-pipe trick.
//
// Go's os/signal already delivers signals onto a channel without the
// self-pipe problem the original C handler has (no async-signal-safety
// constraint on the receiving end). The pipe is kept anyway because
// signal delivery needs to be a participant in the reactor's own
// readiness set, not a side channel the loop has to select over
// separately. A small bridge goroutine turns signal.Notify into a
// best-effort nonblocking write to the pipe, which is exactly what the
// original signal handler did by hand.
type SelfPipe struct {
	readFd  int
	writeFd int

	mu      sync.Mutex
	stopCh  chan struct{}
	started bool
}

// NewSelfPipe creates the pipe pair and sets the write end nonblocking.
func NewSelfPipe() (*SelfPipe, error) {
	fds, err := unix.Pipe2(unix.O_CLOEXEC | unix.O_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("epoll: selfpipe pipe2: %w", err)
	}
	return &SelfPipe{readFd: fds[0], writeFd: fds[1]}, nil
}

// ReadFd is the end the event loop registers with epoll (level-triggered,
// one-shot disabled, per §4.5 step 4).
func (s *SelfPipe) ReadFd() int { return s.readFd }

// Start installs handlers for SIGALRM and SIGTERM, ignores SIGPIPE, and
// begins bridging delivered signals into best-effort writes on the pipe's
// write end. The initial alarm is armed for alarmPeriod; re-arming after
// each tick is the event loop's job (it calls unix.Alarm again after
// draining the pipe and sweeping the timer list), matching the original
// source's timer_handler re-arm placement.
func (s *SelfPipe) Start(alarmPeriod time.Duration) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	IgnoreSIGPIPE()

	notifyCh := make(chan os.Signal, 16)
	signal.Notify(notifyCh, syscall.SIGALRM, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-notifyCh:
				s.write(byteForSignal(sig))
			case <-s.stopCh:
				signal.Stop(notifyCh)
				return
			}
		}
	}()

	_ = unix.Alarm(uint(alarmPeriod.Seconds()))
}

// Rearm re-arms the alarm for another period, called by the event loop
// after it has processed a timeout signal.
func (s *SelfPipe) Rearm(alarmPeriod time.Duration) {
	_ = unix.Alarm(uint(alarmPeriod.Seconds()))
}

// RaiseTerm writes a synthetic termination byte directly, without waiting
// for an actual SIGTERM delivery. Used for programmatic graceful shutdown
// and in tests, where sending a real process signal would affect the whole
// test binary.
func (s *SelfPipe) RaiseTerm() {
	s.write(byte(syscall.SIGTERM))
}

func byteForSignal(sig os.Signal) byte {
	if s, ok := sig.(syscall.Signal); ok {
		return byte(s)
	}
	return 0
}

func (s *SelfPipe) write(b byte) {
	for {
		_, err := unix.Write(s.writeFd, []byte{b})
		if err == nil || err == unix.EAGAIN {
			return
		}
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// Drain reads up to 1024 pending bytes and decodes each into a Signal,
// mirroring dealwithsignal's recv(..., 1024, ...) loop.
func (s *SelfPipe) Drain() ([]Signal, error) {
	buf := make([]byte, 1024)
	n, err := unix.Read(s.readFd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		return nil, fmt.Errorf("epoll: selfpipe read: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("epoll: selfpipe closed")
	}

	out := make([]Signal, 0, n)
	for i := 0; i < n; i++ {
		switch syscall.Signal(buf[i]) {
		case syscall.SIGALRM:
			out = append(out, SignalAlarm)
		case syscall.SIGTERM:
			out = append(out, SignalTerm)
		default:
			out = append(out, SignalNone)
		}
	}
	return out, nil
}

// Stop ends the signal bridge goroutine and closes both pipe ends.
func (s *SelfPipe) Stop() error {
	s.mu.Lock()
	if s.started {
		close(s.stopCh)
		s.started = false
	}
	s.mu.Unlock()

	err1 := unix.Close(s.readFd)
	err2 := unix.Close(s.writeFd)
	if err1 != nil {
		return err1
	}
	return err2
}
