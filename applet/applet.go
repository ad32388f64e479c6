// File: applet/applet.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// In-process endpoint: a service living inside the engine process stands
// in for a network peer. It shares the whole connection abstraction —
// flags, capability sets, lifecycle — but has no descriptor, so the
// engine schedules it from its run queue and backpressure surfaces as
// would-block from the data layer rather than from the poller.

package applet

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-conn/conn"
)

// Applet is one in-process service endpoint. It implements both
// capability sets for its connection: the data layer moves bytes through
// two bounded queues, the control layer is inert (an in-process endpoint
// is connected the moment it exists).
type Applet struct {
	name string

	mu sync.Mutex
	// toService buffers what the connection sent to the service;
	// fromService buffers what the service produced for the connection.
	toService   byteQueue
	fromService byteQueue
}

// Session is the data-layer context an applet attaches to its
// connection; it tallies transfer totals for introspection.
type Session struct {
	BytesIn  int // consumed by the service
	BytesOut int // produced by the service
}

// New creates an applet whose queues hold up to capacity bytes each way.
func New(name string, capacity int) *Applet {
	return &Applet{
		name:        name,
		toService:   byteQueue{capacity: capacity},
		fromService: byteQueue{capacity: capacity},
	}
}

// Endpoint returns the connection-facing endpoint variant.
func (a *Applet) Endpoint() conn.Endpoint {
	return conn.Applet{Name: a.name, Handle: a}
}

// NewConn builds an established connection facing this applet. In-process
// endpoints need no connect step and have no peer address.
func (a *Applet) NewConn() *conn.Conn {
	return conn.NewAccepted(a, a, a.Endpoint(), nil)
}

func (a *Applet) session(c *conn.Conn) *Session {
	s, ok := c.DataContext().(*Session)
	if !ok {
		s = &Session{}
		c.SetDataContext(s)
	}
	return s
}

// --- data-layer capability set -------------------------------------------

// Handshake has nothing to negotiate.
func (a *Applet) Handshake(c *conn.Conn) (conn.HandshakeStatus, error) {
	return conn.HandshakeDone, nil
}

// Recv hands the consumer what the service produced. Empty and open maps
// to would-block; empty and closed is end-of-input.
func (a *Applet) Recv(c *conn.Conn, p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, open := a.fromService.pop(p)
	if n == 0 && len(p) > 0 {
		if !open {
			return 0, conn.ErrClosed
		}
		return 0, conn.ErrWouldBlock
	}
	a.session(c).BytesOut += n
	return n, nil
}

// Send queues consumer bytes for the service, taking what fits. A full
// queue is backpressure, reported as would-block.
func (a *Applet) Send(c *conn.Conn, p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.toService.closed {
		return 0, conn.ErrShutdown
	}
	n := a.toService.push(p)
	if n == 0 && len(p) > 0 {
		return 0, conn.ErrWouldBlock
	}
	a.session(c).BytesIn += n
	return n, nil
}

// Shutdown closes one direction of the queues.
func (a *Applet) Shutdown(c *conn.Conn, d conn.Dir) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d == conn.DirRead {
		a.fromService.closed = true
	} else {
		a.toService.closed = true
	}
	return nil
}

// --- control-layer capability set ----------------------------------------

// Connect completes immediately: an in-process endpoint is connected the
// moment it exists.
func (a *Applet) Connect(c *conn.Conn, addr unix.Sockaddr) (conn.ConnectStatus, error) {
	return conn.ConnectDone, nil
}

// Bind is meaningless for an in-process endpoint.
func (a *Applet) Bind(addr unix.Sockaddr, backlog int) (int, error) {
	return -1, conn.ErrNotSocket
}

// Accept is meaningless for an in-process endpoint.
func (a *Applet) Accept(listenFD int) (conn.Endpoint, unix.Sockaddr, error) {
	return nil, nil, conn.ErrNotSocket
}

// --- service-side API ----------------------------------------------------

// ServiceRead takes bytes the connection sent. ok is false once the
// direction is closed and drained.
func (a *Applet) ServiceRead(p []byte) (n int, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, open := a.toService.pop(p)
	return n, open || n > 0
}

// ServiceWrite queues bytes for the connection to receive, returning how
// many fit.
func (a *Applet) ServiceWrite(p []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fromService.closed {
		return 0
	}
	return a.fromService.push(p)
}

// ServiceClose signals end-of-output: the connection will observe
// end-of-input once the queue drains.
func (a *Applet) ServiceClose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fromService.closed = true
}

// byteQueue is a bounded FIFO of bytes with a close mark.
type byteQueue struct {
	buf      []byte
	capacity int
	closed   bool
}

// push appends what fits and returns the count taken.
func (q *byteQueue) push(p []byte) int {
	room := q.capacity - len(q.buf)
	if room <= 0 {
		return 0
	}
	if len(p) > room {
		p = p[:room]
	}
	q.buf = append(q.buf, p...)
	return len(p)
}

// pop moves up to len(p) bytes out; open reports whether more may come.
func (q *byteQueue) pop(p []byte) (n int, open bool) {
	n = copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, !q.closed
}
