// File: flags/flags.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Packed connection flag word. For each direction a layer keeps 2 bits:
// ENA states whether suspected activity should invoke the I/O callback,
// POL states that the last attempt returned would-block and the descriptor
// must be polled before retrying:
//
//	POL ENA  state
//	 0   0   STOPPED : activity on this direction is ignored
//	 0   1   ENABLED : any suspected activity may invoke the callback
//	 1   0   STOPPED : as above
//	 1   1   POLLED  : the descriptor is being polled for activity
//
// The last state actually requested from the poller is remembered in the
// CURR window so that only differential changes are applied. Backends
// without speculative I/O treat POLLED as ENABLED and may ignore POL.

package flags

import "strings"

// Flags is the packed per-connection state word. It is mutated only by the
// connection's current owner (poller, data layer or control layer callback
// running on the owning loop), never concurrently.
type Flags uint32

// Layer selects one of the shifted readiness windows by its bit offset.
type Layer uint

const (
	// LayerBase addresses the unshifted window; it holds no live state and
	// exists for window arithmetic and tests.
	LayerBase Layer = 0
	// LayerData is what the data layer currently wants from the descriptor.
	LayerData Layer = 20
	// LayerSock is what the socket/control layer currently wants.
	LayerSock Layer = 24
	// LayerCurr is what was last actually requested from the poller.
	LayerCurr Layer = 28
)

// Per-window readiness bits, before shifting by a Layer offset.
const (
	RdEna Flags = 0x1 // receiving is currently desired
	RdPol Flags = 0x2 // receive returned would-block; poll before retrying
	WrEna Flags = 0x4 // sending is currently desired
	WrPol Flags = 0x8 // send returned would-block; poll before retrying

	windowMask Flags = RdEna | RdPol | WrEna | WrPol
)

// Standalone flags outside the readiness windows.
const (
	// Error latches a fatal transport failure. Once set it is never
	// cleared; no further send or receive reaches the data layer.
	Error Flags = 0x00000001
	// Connected is set once the endpoint is fully established (L4 done
	// and, when applicable, the L6 handshake completed).
	Connected Flags = 0x00000002
	// WaitL4 marks an outbound connect still in progress.
	WaitL4 Flags = 0x00000004
	// WaitL6 marks a data-layer handshake (e.g. TLS) still in progress.
	WaitL6 Flags = 0x00000008
	// NotifyConsumer asks the engine to wake the stream logic after the
	// current flag change settles. The consumer clears it once handled.
	NotifyConsumer Flags = 0x00000010
	// SendProxy requests a PROXY protocol header before any payload.
	SendProxy Flags = 0x00000020

	// Handshake groups every pre-payload obligation of the data path.
	Handshake Flags = SendProxy

	// PollSock selects socket-layer polling: while any of these bits is
	// set the data layer cannot move payload yet, so the engine arms the
	// poller from the SOCK window instead of the DATA window.
	PollSock Flags = Handshake | WaitL4 | WaitL6

	// Shutdown progress, one monotonic bit per layer and direction.
	DataRdShut Flags = 0x00010000 // data layer saw read0 / end-of-input
	DataWrShut Flags = 0x00020000 // data layer asked for write shutdown
	SockRdShut Flags = 0x00040000 // transport confirmed read shutdown
	SockWrShut Flags = 0x00080000 // transport confirmed write shutdown
)

// Has reports whether every bit of mask is set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// HasAny reports whether at least one bit of mask is set.
func (f Flags) HasAny(mask Flags) bool { return f&mask != 0 }

// Set returns f with every bit of mask set.
func (f Flags) Set(mask Flags) Flags { return f | mask }

// Clear returns f with every bit of mask cleared. Shutdown and Error bits
// are monotonic by contract; callers never pass them here.
func (f Flags) Clear(mask Flags) Flags { return f &^ mask }

// EnableRead marks receiving as desired in the given window.
func (f Flags) EnableRead(l Layer) Flags { return f | RdEna<<l }

// EnableWrite marks sending as desired in the given window.
func (f Flags) EnableWrite(l Layer) Flags { return f | WrEna<<l }

// DisableRead withdraws read interest in the given window. The POL bit is
// deliberately left as-is: a pending poll marker survives a disable so a
// re-enable does not flap the poller.
func (f Flags) DisableRead(l Layer) Flags { return f &^ (RdEna << l) }

// DisableWrite withdraws write interest; same POL semantics as DisableRead.
func (f Flags) DisableWrite(l Layer) Flags { return f &^ (WrEna << l) }

// MarkReadWouldBlock records a would-block receive: the direction stays
// enabled and must be polled before the next attempt.
func (f Flags) MarkReadWouldBlock(l Layer) Flags { return f | (RdEna|RdPol)<<l }

// MarkWriteWouldBlock records a would-block send.
func (f Flags) MarkWriteWouldBlock(l Layer) Flags { return f | (WrEna|WrPol)<<l }

// ClearReadPoll drops the read poll marker, typically after the poller
// reported readability.
func (f Flags) ClearReadPoll(l Layer) Flags { return f &^ (RdPol << l) }

// ClearWritePoll drops the write poll marker.
func (f Flags) ClearWritePoll(l Layer) Flags { return f &^ (WrPol << l) }

// ReadEnabled reports whether receiving is desired in the window.
func (f Flags) ReadEnabled(l Layer) bool { return f&(RdEna<<l) != 0 }

// WriteEnabled reports whether sending is desired in the window.
func (f Flags) WriteEnabled(l Layer) bool { return f&(WrEna<<l) != 0 }

// ReadPolled reports whether the read direction carries a poll marker.
func (f Flags) ReadPolled(l Layer) bool { return f&(RdPol<<l) != 0 }

// WritePolled reports whether the write direction carries a poll marker.
func (f Flags) WritePolled(l Layer) bool { return f&(WrPol<<l) != 0 }

// Window extracts a layer's 4 readiness bits normalized to the base
// position, suitable for comparing windows across layers.
func (f Flags) Window(l Layer) Flags { return (f >> l) & windowMask }

// ReplaceWindow returns f with the layer's window overwritten by w
// (a base-position 4-bit value). Used by the engine to commit the CURR
// state after arming the poller.
func (f Flags) ReplaceWindow(l Layer, w Flags) Flags {
	return f&^(windowMask<<l) | (w&windowMask)<<l
}

// SockGoverned reports whether polling is currently defined by the socket
// layer rather than the data layer. True exactly while a handshake-phase
// obligation (PROXY header, L4 connect, L6 handshake) is outstanding.
func (f Flags) SockGoverned() bool { return f&PollSock != 0 }

// AnyShut reports whether at least one direction has begun shutting down.
func (f Flags) AnyShut() bool {
	return f&(DataRdShut|DataWrShut|SockRdShut|SockWrShut) != 0
}

// ReadShut reports whether the read direction is shut at the data layer.
func (f Flags) ReadShut() bool { return f&DataRdShut != 0 }

// WriteShut reports whether the write direction is shut at the data layer.
func (f Flags) WriteShut() bool { return f&DataWrShut != 0 }

// FullyShut reports whether both directions are shut at the data layer.
func (f Flags) FullyShut() bool { return f.Has(DataRdShut | DataWrShut) }

// String renders the word for debug dumps, low bits first.
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	add := func(mask Flags, name string) {
		if f&mask != 0 {
			parts = append(parts, name)
		}
	}
	add(Error, "error")
	add(Connected, "connected")
	add(WaitL4, "wait-l4")
	add(WaitL6, "wait-l6")
	add(NotifyConsumer, "notify")
	add(SendProxy, "send-proxy")
	add(DataRdShut, "data-rd-shut")
	add(DataWrShut, "data-wr-shut")
	add(SockRdShut, "sock-rd-shut")
	add(SockWrShut, "sock-wr-shut")
	for _, w := range []struct {
		l    Layer
		name string
	}{{LayerData, "data"}, {LayerSock, "sock"}, {LayerCurr, "curr"}} {
		win := f.Window(w.l)
		if win == 0 {
			continue
		}
		var b strings.Builder
		b.WriteString(w.name)
		b.WriteByte('[')
		if win&RdEna != 0 {
			b.WriteString("r")
		}
		if win&RdPol != 0 {
			b.WriteString("R")
		}
		if win&WrEna != 0 {
			b.WriteString("w")
		}
		if win&WrPol != 0 {
			b.WriteString("W")
		}
		b.WriteByte(']')
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "|")
}
