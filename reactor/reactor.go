// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral event reactor interface for IO multiplexing. The
// engine issues only differential Add/Modify/Remove calls, so backends
// never see redundant re-arms.

package reactor

// EventReactor defines the multiplexer operations the engine consumes.
type EventReactor interface {
	// Add starts watching a descriptor for the given directions.
	Add(fd int, read, write bool) error

	// Modify changes the watched directions of a registered descriptor.
	Modify(fd int, read, write bool) error

	// Remove stops watching a descriptor entirely.
	Remove(fd int) error

	// Wait blocks up to timeoutMs (-1 = forever) and fills events.
	// Returns the number of events written.
	Wait(events []Event, timeoutMs int) (n int, err error)

	// Close releases the multiplexer resources.
	Close() error
}

// Event is one readiness report from the multiplexer.
type Event struct {
	FD       int
	Readable bool
	Writable bool
	Err      bool // error or hangup condition on the descriptor
}
