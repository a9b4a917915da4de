package dbpool

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DialFactory returns a Factory that opens a network handle to addr,
// retrying with a short backoff until timeout elapses — a net.Conn handle
// standing in for a MySQL-style connection, for callers that configure the
// pool against a real upstream rather than the package default.
func DialFactory(network, addr string, timeout time.Duration) Factory[net.Conn] {
	return func() (net.Conn, error) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		const retryDelay = 100 * time.Millisecond
		for {
			conn, err := net.Dial(network, addr)
			if err == nil {
				return conn, nil
			}

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("dbpool: dial %s %s: %w", network, addr, ctx.Err())
			case <-time.After(retryDelay):
			}
		}
	}
}

// ConnCloser closes a net.Conn handle. It is the Closer counterpart to
// DialFactory.
func ConnCloser(c net.Conn) error {
	return c.Close()
}
