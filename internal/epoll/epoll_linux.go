//go:build linux

package epoll

import (
	"fmt"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// Poller wraps a single epoll instance. One Poller is created per server
// and owned exclusively by the event-loop goroutine — the reactor is
// never shared across goroutines.
type Poller struct {
	fd int
}

// New creates an epoll instance via epoll_create1.
func New() (*Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll: epoll_create1: %w", err)
	}
	return &Poller{fd: fd}, nil
}

// Close releases the epoll instance.
func (p *Poller) Close() error {
	return unix.Close(p.fd)
}

func epollEvents(mode TriggerMode, oneshot bool, write bool) uint32 {
	ev := uint32(unix.EPOLLIN | unix.EPOLLRDHUP)
	if write {
		ev = unix.EPOLLOUT | unix.EPOLLRDHUP
	}
	if mode == EdgeTriggered {
		ev |= unix.EPOLLET
	}
	if oneshot {
		ev |= unix.EPOLLONESHOT
	}
	return ev
}

// Register adds fd to the epoll set watching for readability, per mode and
// one-shot as configured.
func (p *Poller) Register(fd int, mode TriggerMode, oneshot bool) error {
	ev := &unix.EpollEvent{Events: epollEvents(mode, oneshot, false), Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return fmt.Errorf("epoll: epoll_ctl(ADD, %d): %w", fd, err)
	}
	return nil
}

// RearmRead re-enables a one-shot fd for another read readiness
// notification, used after the event loop has finished handling a batch
// for that connection.
func (p *Poller) RearmRead(fd int, mode TriggerMode) error {
	ev := &unix.EpollEvent{Events: epollEvents(mode, true, false), Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return fmt.Errorf("epoll: epoll_ctl(MOD read, %d): %w", fd, err)
	}
	return nil
}

// RearmWrite re-enables a one-shot fd watching for write readiness.
func (p *Poller) RearmWrite(fd int, mode TriggerMode) error {
	ev := &unix.EpollEvent{Events: epollEvents(mode, true, true), Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return fmt.Errorf("epoll: epoll_ctl(MOD write, %d): %w", fd, err)
	}
	return nil
}

// Deregister removes fd from the epoll set. It is safe to call on an fd
// that has already been closed, since the kernel drops it from the set
// automatically on close — the error, if any, is only reported for
// diagnostics.
func (p *Poller) Deregister(fd int) error {
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll: epoll_ctl(DEL, %d): %w", fd, err)
	}
	return nil
}

// Wait blocks until at least one fd is ready, appending decoded events into
// buf (its backing array is reused across calls; the raw kernel event array
// is allocated on each call) and returning the resulting slice. EINTR is retried transparently, so the loop resumes
// silently on signal interruption.
func (p *Poller) Wait(buf []Event) ([]Event, error) {
	raw := make([]unix.EpollEvent, cap(buf)+16)
	for {
		n, err := unix.EpollWait(p.fd, raw, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, fmt.Errorf("epoll: epoll_wait: %w", err)
		}

		out := buf[:0]
		for i := 0; i < n; i++ {
			e := raw[i]
			out = append(out, Event{
				Fd:       int(e.Fd),
				Readable: e.Events&unix.EPOLLIN != 0,
				Writable: e.Events&unix.EPOLLOUT != 0,
				Closed:   e.Events&(unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			})
		}
		return out, nil
	}
}

// SetNonblock sets fd to nonblocking mode.
func SetNonblock(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("epoll: set nonblock fd %d: %w", fd, err)
	}
	return nil
}

// SetReuseAddr sets SO_REUSEADDR on fd, letting the listener rebind a
// recently-used port immediately.
func SetReuseAddr(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

// Linger configures SO_LINGER. onoff == 0 turns lingering off: close returns
// at once and the kernel finishes sending and the normal FIN shutdown in the
// background. onoff == 1 makes close block until pending data is flushed or
// linger seconds elapse.
func Linger(fd int, onoff, linger int) error {
	l := &unix.Linger{Onoff: int32(onoff), Linger: int32(linger)}
	if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, l); err != nil {
		return fmt.Errorf("epoll: setsockopt SO_LINGER: %w", err)
	}
	return nil
}

// IgnoreSIGPIPE installs the ignore disposition for SIGPIPE, matching the
// original source's addsig(SIGPIPE, SIG_IGN) — a client closing its read
// side must not be allowed to kill the process via a write.
func IgnoreSIGPIPE() {
	signal.Ignore(syscall.SIGPIPE)
}
