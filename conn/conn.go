// File: conn/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The connection record and the gated wrappers around its capability sets.
// A connection is owned by exactly one event loop at a time; nothing here
// locks, and the flag word is only ever mutated by the current owner.

package conn

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-conn/flags"
)

// Conn aggregates one transport endpoint with its data-layer and
// control-layer capability sets and the packed flag word all three actors
// share. The capability references are immutable after creation.
type Conn struct {
	data DataOps
	ctrl CtrlOps
	ep   Endpoint

	fl flags.Flags

	// dataState and dataCtx belong to the attached data layer; the core
	// never interprets them and never frees dataCtx.
	dataState int
	dataCtx   any

	// peer is the remote address, nil while unset. Unset is valid and
	// distinct from a zero-valued address.
	peer unix.Sockaddr

	// proxyHdr holds the unsent tail of a requested PROXY protocol line.
	proxyHdr []byte
}

// New creates a connection around an endpoint that still needs a connect
// step. The capability sets must outlive the connection.
func New(data DataOps, ctrl CtrlOps, ep Endpoint) *Conn {
	return &Conn{data: data, ctrl: ctrl, ep: ep}
}

// NewAccepted creates a connection for an already-established endpoint,
// e.g. an accepted socket. No handshake flags are raised; the connection
// starts established.
func NewAccepted(data DataOps, ctrl CtrlOps, ep Endpoint, peer unix.Sockaddr) *Conn {
	return &Conn{
		data: data,
		ctrl: ctrl,
		ep:   ep,
		fl:   flags.Connected,
		peer: peer,
	}
}

// Endpoint returns the transport variant. The variant never changes.
func (c *Conn) Endpoint() Endpoint { return c.ep }

// Descriptor returns the endpoint's file descriptor when the endpoint is
// socket-backed. Non-socket variants expose no descriptor.
func (c *Conn) Descriptor() (int, bool) {
	if s, ok := c.ep.(Socket); ok {
		return s.FD, true
	}
	return -1, false
}

// Flags returns the current flag word snapshot.
func (c *Conn) Flags() flags.Flags { return c.fl }

// Peer returns the remote address, or ok=false while unset.
func (c *Conn) Peer() (unix.Sockaddr, bool) { return c.peer, c.peer != nil }

// SetPeer records the remote address once known.
func (c *Conn) SetPeer(sa unix.Sockaddr) { c.peer = sa }

// DataState returns the data layer's private integer state.
func (c *Conn) DataState() int { return c.dataState }

// SetDataState stores the data layer's private integer state.
func (c *Conn) SetDataState(st int) { c.dataState = st }

// DataContext returns the data layer's opaque context, nil until attached.
func (c *Conn) DataContext() any { return c.dataCtx }

// SetDataContext attaches the data layer's opaque context. Ownership stays
// with the data layer; its teardown must release it.
func (c *Conn) SetDataContext(ctx any) { c.dataCtx = ctx }

// --- data-layer interest, consumed by the poll diff ----------------------

// WantRecv declares that the stream logic wants incoming payload.
func (c *Conn) WantRecv() { c.fl = c.fl.EnableRead(flags.LayerData) }

// StopRecv withdraws read interest. A pending poll marker is kept.
func (c *Conn) StopRecv() { c.fl = c.fl.DisableRead(flags.LayerData) }

// WantSend declares that the stream logic has payload to push.
func (c *Conn) WantSend() { c.fl = c.fl.EnableWrite(flags.LayerData) }

// StopSend withdraws write interest. A pending poll marker is kept.
func (c *Conn) StopSend() { c.fl = c.fl.DisableWrite(flags.LayerData) }

// --- poller bookkeeping --------------------------------------------------

// CommitPolling records the window that was just armed at the poller.
func (c *Conn) CommitPolling(w flags.Flags) {
	c.fl = c.fl.ReplaceWindow(flags.LayerCurr, w)
}

// NoteReadable clears read poll markers after the poller reported the
// endpoint readable; the next receive may be attempted speculatively.
func (c *Conn) NoteReadable() {
	c.fl = c.fl.ClearReadPoll(flags.LayerData).ClearReadPoll(flags.LayerSock)
}

// NoteWritable clears write poll markers after a writability report.
func (c *Conn) NoteWritable() {
	c.fl = c.fl.ClearWritePoll(flags.LayerData).ClearWritePoll(flags.LayerSock)
}

// --- consumer notification ----------------------------------------------

// RequestNotify asks the engine to wake the stream logic once the current
// flag change settles.
func (c *Conn) RequestNotify() { c.fl = c.fl.Set(flags.NotifyConsumer) }

// ClearNotify acknowledges a delivered notification.
func (c *Conn) ClearNotify() { c.fl = c.fl.Clear(flags.NotifyConsumer) }

// NotifyRequested reports a pending consumer notification.
func (c *Conn) NotifyRequested() bool { return c.fl.Has(flags.NotifyConsumer) }

// --- error latch ---------------------------------------------------------

// Fail latches the terminal error flag and requests a consumer wakeup.
// The flag is never cleared; only teardown may follow.
func (c *Conn) Fail() { c.fl = c.fl.Set(flags.Error | flags.NotifyConsumer) }

// Failed reports whether the terminal error flag has latched.
func (c *Conn) Failed() bool { return c.fl.Has(flags.Error) }

// --- connect and handshake phases ---------------------------------------

// BeginConnect starts the outbound connect through the control layer.
// A pending result raises WaitL4 and socket-layer write interest so the
// poller watches for connect completion.
func (c *Conn) BeginConnect(addr unix.Sockaddr) error {
	if c.Failed() {
		return ErrFatal
	}
	c.peer = addr
	st, err := c.ctrl.Connect(c, addr)
	switch st {
	case ConnectPending:
		c.fl = c.fl.Set(flags.WaitL4).MarkWriteWouldBlock(flags.LayerSock)
		return nil
	case ConnectDone:
		return c.L4Connected()
	default:
		c.Fail()
		if err == nil {
			err = fmt.Errorf("connect refused by control layer")
		}
		return err
	}
}

// L4Connected is invoked by the engine (or BeginConnect) once the
// transport-level connect completed. The data layer is probed for a
// handshake: layers with nothing to negotiate complete immediately and
// the connection establishes with no handshake flags ever raised.
func (c *Conn) L4Connected() error {
	c.fl = c.fl.Clear(flags.WaitL4).
		DisableWrite(flags.LayerSock).
		ClearWritePoll(flags.LayerSock)
	return c.driveHandshake()
}

// L4Failed is invoked by the engine when connect completion reported a
// transport error.
func (c *Conn) L4Failed(err error) error {
	c.Fail()
	return fmt.Errorf("l4 connect: %w", err)
}

// ContinueHandshake resumes a blocked data-layer handshake. A no-op
// unless WaitL6 is up.
func (c *Conn) ContinueHandshake() error {
	if c.Failed() {
		return ErrFatal
	}
	if !c.fl.Has(flags.WaitL6) {
		return nil
	}
	return c.driveHandshake()
}

// driveHandshake steps the data layer until it completes, blocks or
// fails. WaitL6 is raised only when a step actually blocks, so a layer
// with nothing to negotiate establishes without any handshake flag ever
// being visible.
func (c *Conn) driveHandshake() error {
	for {
		st, err := c.data.Handshake(c)
		switch st {
		case HandshakeProgress:
			// Advanced without blocking; take the next step now.
		case HandshakeDone:
			c.fl = c.fl.Clear(flags.WaitL6).
				DisableRead(flags.LayerSock).
				DisableWrite(flags.LayerSock).
				Set(flags.Connected)
			c.RequestNotify()
			return nil
		case HandshakeAgain:
			// The status carries no direction: a blocked step may be
			// waiting to read the peer's flight or to flush its own,
			// so both directions get poll markers.
			c.fl = c.fl.Set(flags.WaitL6).
				MarkReadWouldBlock(flags.LayerSock).
				MarkWriteWouldBlock(flags.LayerSock)
			return nil
		default:
			c.Fail()
			if err == nil {
				err = ErrHandshake
			}
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
	}
}

// Established reports whether the connection is fully set up.
func (c *Conn) Established() bool { return c.fl.Has(flags.Connected) }

// --- PROXY protocol header ----------------------------------------------

// RequestProxyHeader arranges for line to be written on the wire before
// any payload. Only socket endpoints carry descriptors to write to.
func (c *Conn) RequestProxyHeader(line []byte) error {
	if _, ok := c.Descriptor(); !ok {
		return ErrNotSocket
	}
	c.proxyHdr = line
	c.fl = c.fl.Set(flags.SendProxy).MarkWriteWouldBlock(flags.LayerSock)
	return nil
}

// FlushProxyHeader pushes the pending PROXY line. A short write keeps the
// SendProxy obligation and the socket-layer poll marker; completion clears
// both and hands polling back to the data layer.
func (c *Conn) FlushProxyHeader() error {
	if !c.fl.Has(flags.SendProxy) {
		return nil
	}
	fd, ok := c.Descriptor()
	if !ok {
		return ErrNotSocket
	}
	for len(c.proxyHdr) > 0 {
		n, err := unix.Write(fd, c.proxyHdr)
		if err == unix.EAGAIN {
			c.fl = c.fl.MarkWriteWouldBlock(flags.LayerSock)
			return ErrWouldBlock
		}
		if err != nil {
			c.Fail()
			return fmt.Errorf("proxy header: %w", err)
		}
		c.proxyHdr = c.proxyHdr[n:]
	}
	c.fl = c.fl.Clear(flags.SendProxy).
		DisableWrite(flags.LayerSock).
		ClearWritePoll(flags.LayerSock)
	return nil
}

// --- gated data transfer -------------------------------------------------

// Recv asks the data layer for incoming bytes. Rejected before dispatch
// once the error flag latched or the read direction is shut. Would-block
// raises the DATA read poll marker; peer end-of-input shuts the read
// direction; any other failure latches the error flag.
func (c *Conn) Recv(p []byte) (int, error) {
	if c.Failed() {
		return 0, ErrFatal
	}
	if c.fl.ReadShut() {
		return 0, ErrShutdown
	}
	n, err := c.data.Recv(c, p)
	switch err {
	case nil:
		return n, nil
	case ErrWouldBlock:
		c.fl = c.fl.MarkReadWouldBlock(flags.LayerData)
		return n, ErrWouldBlock
	case ErrClosed:
		_ = c.ShutRead()
		c.RequestNotify()
		return n, ErrClosed
	default:
		c.Fail()
		return n, fmt.Errorf("recv: %w", err)
	}
}

// Send pushes outgoing bytes through the data layer. A would-block result,
// including a partial write, raises the DATA write poll marker.
func (c *Conn) Send(p []byte) (int, error) {
	if c.Failed() {
		return 0, ErrFatal
	}
	if c.fl.WriteShut() {
		return 0, ErrShutdown
	}
	n, err := c.data.Send(c, p)
	switch err {
	case nil:
		if n < len(p) {
			c.fl = c.fl.MarkWriteWouldBlock(flags.LayerData)
			return n, ErrWouldBlock
		}
		return n, nil
	case ErrWouldBlock:
		c.fl = c.fl.MarkWriteWouldBlock(flags.LayerData)
		return n, ErrWouldBlock
	default:
		c.Fail()
		return n, fmt.Errorf("send: %w", err)
	}
}

// --- shutdown ------------------------------------------------------------

// ShutRead shuts the read direction. Monotonic and idempotent: the first
// call notifies the data layer and withdraws read interest, repeats are
// no-ops. The socket-layer bit records the transport's confirmation.
func (c *Conn) ShutRead() error {
	if c.fl.ReadShut() {
		return nil
	}
	c.fl = c.fl.Set(flags.DataRdShut).DisableRead(flags.LayerData)
	if err := c.data.Shutdown(c, DirRead); err != nil {
		return fmt.Errorf("shutdown read: %w", err)
	}
	c.fl = c.fl.Set(flags.SockRdShut)
	return nil
}

// ShutWrite shuts the write direction; same contract as ShutRead.
func (c *Conn) ShutWrite() error {
	if c.fl.WriteShut() {
		return nil
	}
	c.fl = c.fl.Set(flags.DataWrShut).DisableWrite(flags.LayerData)
	if err := c.data.Shutdown(c, DirWrite); err != nil {
		return fmt.Errorf("shutdown write: %w", err)
	}
	c.fl = c.fl.Set(flags.SockWrShut)
	return nil
}

// Close releases the transport descriptor after shutting both directions.
// The data layer's context is deliberately left alone: the data layer owns
// it and must release it in its own teardown.
func (c *Conn) Close() error {
	if !c.Failed() {
		_ = c.ShutRead()
		_ = c.ShutWrite()
	}
	if fd, ok := c.Descriptor(); ok {
		return unix.Close(fd)
	}
	return nil
}
