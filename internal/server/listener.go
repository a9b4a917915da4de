//go:build linux

package server

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/avarga/reactorhttpd/internal/epoll"
)

// listenBacklog matches the original source's listen(fd, 5).
const listenBacklog = 5

// openListener builds the raw, nonblocking IPv4 listening socket the
// pre-loop setup needs: SO_REUSEADDR, the configured SO_LINGER policy,
// bind, then listen.
func openListener(port int, lingerOn bool) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("server: socket: %w", err)
	}

	if err := epoll.SetReuseAddr(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}

	// {0,1} leaves lingering off (close returns at once); {1,1} makes close
	// wait up to one second for unsent data.
	onoff := 0
	if lingerOn {
		onoff = 1
	}
	if err := epoll.Linger(fd, onoff, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}

	sa := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: bind port %d: %w", port, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: listen: %w", err)
	}
	if err := epoll.SetNonblock(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

// acceptOne accepts a single pending connection off listenFD, returning the
// new fd already set nonblocking and its peer address.
func acceptOne(listenFD int) (int, net.Addr, error) {
	nfd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK)
	if err != nil {
		return -1, nil, err
	}
	return nfd, sockaddrToAddr(sa), nil
}

// unixWrite and unixClose give conn.go's busy-rejection path raw socket
// access without routing a connection that never enters the slot table
// through fdConn.
func unixWrite(fd int, b []byte) (int, error) {
	return unix.Write(fd, b)
}

func unixClose(fd int) {
	unix.Close(fd)
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IPv4(a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3])
		return &net.TCPAddr{IP: ip, Port: a.Port}
	default:
		return nil
	}
}
