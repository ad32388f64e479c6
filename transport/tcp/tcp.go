//go:build linux
// +build linux

// File: transport/tcp/tcp.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking TCP control layer. One shared Ops value serves any number
// of connections; it keeps no per-connection state.

package tcp

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-conn/conn"
)

// Ops is the TCP control-layer capability set. Stateless and shareable.
type Ops struct{}

// NewOps returns the shared TCP control layer.
func NewOps() *Ops { return &Ops{} }

// NewSocket creates a non-blocking stream socket for the address family.
func NewSocket(family int) (int, error) {
	fd, err := unix.Socket(family,
		unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("tcp: socket: %w", err)
	}
	return fd, nil
}

// Family returns the address family matching a sockaddr.
func Family(addr unix.Sockaddr) int {
	if _, ok := addr.(*unix.SockaddrInet6); ok {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

// Connect starts an outbound connect on the connection's descriptor.
// EINPROGRESS maps to Pending; the engine resolves completion when the
// descriptor turns writable.
func (o *Ops) Connect(c *conn.Conn, addr unix.Sockaddr) (conn.ConnectStatus, error) {
	fd, ok := c.Descriptor()
	if !ok {
		return conn.ConnectFailed, conn.ErrNotSocket
	}
	err := unix.Connect(fd, addr)
	switch err {
	case nil:
		return conn.ConnectDone, nil
	case unix.EINPROGRESS:
		return conn.ConnectPending, nil
	default:
		return conn.ConnectFailed, fmt.Errorf("tcp: connect: %w", err)
	}
}

// Bind creates a listening descriptor on addr.
func (o *Ops) Bind(addr unix.Sockaddr, backlog int) (int, error) {
	fd, err := NewSocket(Family(addr))
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("tcp: reuseaddr: %w", err)
	}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("tcp: bind: %w", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("tcp: listen: %w", err)
	}
	return fd, nil
}

// Accept takes one pending connection off the listening descriptor.
// ErrWouldBlock when the backlog is empty.
func (o *Ops) Accept(listenFD int) (conn.Endpoint, unix.Sockaddr, error) {
	fd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, nil, conn.ErrWouldBlock
		}
		return nil, nil, fmt.Errorf("tcp: accept: %w", err)
	}
	return conn.Socket{FD: fd}, sa, nil
}
