// File: conn/state.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Lifecycle state derived from the flag word. There is no stored enum:
// the flags are the single source of truth and the state is recomputed
// from them on demand.

package conn

import "github.com/momentics/hioload-conn/flags"

// State is the derived lifecycle position of a connection.
type State int

const (
	// StateConnecting4: transport-level connect still in progress.
	StateConnecting4 State = iota
	// StateConnecting6: data-layer handshake still in progress.
	StateConnecting6
	// StateEstablished: payload may flow in both directions.
	StateEstablished
	// StateHalfShutRead: read direction shut, write still open.
	StateHalfShutRead
	// StateHalfShutWrite: write direction shut, read still open.
	StateHalfShutWrite
	// StateShut: both directions shut; only release remains.
	StateShut
	// StateErrored: the terminal error flag latched. No further I/O.
	StateErrored
)

var stateNames = map[State]string{
	StateConnecting4:   "connecting-l4",
	StateConnecting6:   "connecting-l6",
	StateEstablished:   "established",
	StateHalfShutRead:  "half-shut-read",
	StateHalfShutWrite: "half-shut-write",
	StateShut:          "shut",
	StateErrored:       "errored",
}

// String returns the state's dump name.
func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// State derives the lifecycle position from the current flag word.
// Errored dominates everything; shutdown progress dominates the
// connecting phases because shutdown flags are monotonic.
func (c *Conn) State() State {
	fl := c.fl
	switch {
	case fl.Has(flags.Error):
		return StateErrored
	case fl.FullyShut():
		return StateShut
	case fl.ReadShut():
		return StateHalfShutRead
	case fl.WriteShut():
		return StateHalfShutWrite
	case fl.Has(flags.WaitL4):
		return StateConnecting4
	case fl.Has(flags.WaitL6):
		return StateConnecting6
	default:
		return StateEstablished
	}
}
