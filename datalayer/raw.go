// File: datalayer/raw.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pass-through data layer: bytes move unmodified between the consumer
// and the socket descriptor. There is nothing to negotiate, so the
// handshake completes immediately and connections using Raw establish
// without ever raising a handshake flag.

package datalayer

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-conn/conn"
)

// Raw is the pass-through data layer. Stateless and shareable across
// connections; per-connection state would live in the connection's
// data-layer fields, which Raw does not need.
type Raw struct{}

// NewRaw returns the shared pass-through data layer.
func NewRaw() *Raw { return &Raw{} }

// Handshake has nothing to negotiate.
func (Raw) Handshake(c *conn.Conn) (conn.HandshakeStatus, error) {
	return conn.HandshakeDone, nil
}

// Recv reads from the descriptor. EAGAIN maps to the would-block
// sentinel; a zero-length read is the peer's end-of-input.
func (Raw) Recv(c *conn.Conn, p []byte) (int, error) {
	fd, ok := c.Descriptor()
	if !ok {
		return 0, conn.ErrNotSocket
	}
	n, err := unix.Read(fd, p)
	switch {
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		return 0, conn.ErrWouldBlock
	case err != nil:
		return 0, fmt.Errorf("raw read: %w", err)
	case n == 0 && len(p) > 0:
		return 0, conn.ErrClosed
	default:
		return n, nil
	}
}

// Send writes to the descriptor. Partial writes are returned as-is; the
// connection core turns them into a would-block for the remainder.
func (Raw) Send(c *conn.Conn, p []byte) (int, error) {
	fd, ok := c.Descriptor()
	if !ok {
		return 0, conn.ErrNotSocket
	}
	n, err := unix.Write(fd, p)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, conn.ErrWouldBlock
	}
	if err != nil {
		return 0, fmt.Errorf("raw write: %w", err)
	}
	return n, nil
}

// Shutdown closes one transport direction. ENOTCONN after a peer reset
// is not an error: the direction is gone either way.
func (Raw) Shutdown(c *conn.Conn, d conn.Dir) error {
	fd, ok := c.Descriptor()
	if !ok {
		return conn.ErrNotSocket
	}
	how := unix.SHUT_RD
	if d == conn.DirWrite {
		how = unix.SHUT_WR
	}
	if err := unix.Shutdown(fd, how); err != nil && err != unix.ENOTCONN {
		return fmt.Errorf("raw shutdown %s: %w", d, err)
	}
	return nil
}
