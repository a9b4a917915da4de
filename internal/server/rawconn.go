//go:build linux

package server

import (
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// fdConn adapts a raw, already-nonblocking socket fd to net.Conn without
// duplicating the descriptor — the event loop registers this exact fd
// number with epoll, so Read/Write must operate on that same fd rather
// than on a dup'd copy the way net.FileConn would produce.
type fdConn struct {
	fd   int
	addr net.Addr
}

func newFDConn(fd int, addr net.Addr) *fdConn {
	return &fdConn{fd: fd, addr: addr}
}

func (c *fdConn) Read(b []byte) (int, error) {
	n, err := unix.Read(c.fd, b)
	if err != nil {
		if err == unix.EAGAIN {
			return 0, fmt.Errorf("fdConn: read would block: %w", err)
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (c *fdConn) Write(b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := unix.Write(c.fd, b[total:])
		if n > 0 {
			total += n
		}
		if err != nil {
			switch err {
			case unix.EINTR:
				continue
			case unix.EAGAIN:
				// The socket's send buffer is full for a slow client; block
				// until the kernel reports it writable again rather than
				// treating a would-block as a hard send failure.
				if werr := c.waitWritable(); werr != nil {
					return total, werr
				}
				continue
			default:
				return total, err
			}
		}
	}
	return total, nil
}

// waitWritable blocks until c.fd is ready for another write, retrying
// across interrupted polls.
func (c *fdConn) waitWritable() error {
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLOUT}}
	for {
		n, err := unix.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n > 0 {
			return nil
		}
	}
}

func (c *fdConn) Close() error                    { return unix.Close(c.fd) }
func (c *fdConn) LocalAddr() net.Addr             { return nil }
func (c *fdConn) RemoteAddr() net.Addr            { return c.addr }
func (c *fdConn) SetDeadline(time.Time) error     { return nil }
func (c *fdConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fdConn) SetWriteDeadline(time.Time) error { return nil }
