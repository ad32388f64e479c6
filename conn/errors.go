// File: conn/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sentinel results exchanged between the core and the capability sets.

package conn

import "fmt"

var (
	// ErrWouldBlock is the control-flow signal for a transport that cannot
	// progress right now. It is not a failure: the core records a poll
	// marker and returns to the event loop.
	ErrWouldBlock = fmt.Errorf("operation would block")

	// ErrClosed reports the peer ended its side; returned by Recv exactly
	// once, after which the read direction is shut.
	ErrClosed = fmt.Errorf("endpoint closed by peer")

	// ErrFatal rejects an operation on a connection whose error flag has
	// latched. Only teardown may proceed.
	ErrFatal = fmt.Errorf("connection in fatal state")

	// ErrShutdown rejects I/O on a direction that was already shut down.
	ErrShutdown = fmt.Errorf("direction is shut down")

	// ErrNotSocket reports a descriptor-only operation on a non-socket
	// endpoint variant.
	ErrNotSocket = fmt.Errorf("endpoint has no descriptor")

	// ErrHandshake wraps a data-layer handshake failure before it is
	// promoted to the fatal state.
	ErrHandshake = fmt.Errorf("handshake failed")
)
