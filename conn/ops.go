// File: conn/ops.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The two capability sets a connection is built from. Both are shared,
// read-only references: one implementation typically serves many
// connections and must outlive all of them.

package conn

import "golang.org/x/sys/unix"

// Dir names one transfer direction of a connection.
type Dir int

const (
	DirRead Dir = iota
	DirWrite
)

// String returns "read" or "write".
func (d Dir) String() string {
	if d == DirRead {
		return "read"
	}
	return "write"
}

// HandshakeStatus is the outcome of one handshake step.
type HandshakeStatus int

const (
	// HandshakeProgress: the step advanced but more steps remain; invoke
	// again without waiting for readiness.
	HandshakeProgress HandshakeStatus = iota
	// HandshakeDone: the data layer is ready to carry payload.
	HandshakeDone
	// HandshakeAgain: the step could not progress; poll before retrying.
	HandshakeAgain
	// HandshakeFailed: the handshake is unrecoverable; the connection
	// must latch its error flag.
	HandshakeFailed
)

// DataOps is the data-layer capability set: how bytes are produced and
// consumed over an established transport (raw copy, an encrypted codec,
// or an applet). The core invokes these based on flag state only and
// translates every result back into flag transitions.
//
// Recv and Send report would-block via ErrWouldBlock and peer end-of-input
// via ErrClosed; any other error is treated as fatal for the connection.
type DataOps interface {
	Handshake(c *Conn) (HandshakeStatus, error)
	Recv(c *Conn, p []byte) (int, error)
	Send(c *Conn, p []byte) (int, error)
	Shutdown(c *Conn, d Dir) error
}

// ConnectStatus is the outcome of an outbound connect attempt.
type ConnectStatus int

const (
	ConnectPending ConnectStatus = iota
	ConnectDone
	ConnectFailed
)

// CtrlOps is the control-layer capability set: how the underlying
// transport is connected, bound and accepted. The core invokes it only
// during the connecting states and otherwise treats it as inert.
type CtrlOps interface {
	// Connect starts an outbound connect on c's endpoint.
	Connect(c *Conn, addr unix.Sockaddr) (ConnectStatus, error)

	// Bind creates a listening descriptor on addr with the given backlog.
	Bind(addr unix.Sockaddr, backlog int) (int, error)

	// Accept takes one pending connection off a listening descriptor and
	// returns its endpoint and peer address. ErrWouldBlock when none is
	// pending.
	Accept(listenFD int) (Endpoint, unix.Sockaddr, error)
}
