//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor implementation and factory. Level-triggered:
// the engine re-arms by diffing interest windows, so edge semantics would
// only add missed-wakeup hazards.

package reactor

import (
	"golang.org/x/sys/unix"
)

// linuxReactor is an epoll-based event reactor.
type linuxReactor struct {
	epfd int
}

// NewReactor constructs a new platform-specific EventReactor for Linux.
func NewReactor() (EventReactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &linuxReactor{epfd: epfd}, nil
}

func epollMask(read, write bool) uint32 {
	var ev uint32 = unix.EPOLLRDHUP
	if read {
		ev |= unix.EPOLLIN
	}
	if write {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Add registers a file descriptor with the requested directions.
func (r *linuxReactor) Add(fd int, read, write bool) error {
	event := &unix.EpollEvent{
		Events: epollMask(read, write),
		Fd:     int32(fd),
	}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, event)
}

// Modify rewrites the watched directions of a registered descriptor.
func (r *linuxReactor) Modify(fd int, read, write bool) error {
	event := &unix.EpollEvent{
		Events: epollMask(read, write),
		Fd:     int32(fd),
	}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, event)
}

// Remove drops a descriptor from the watch set.
func (r *linuxReactor) Remove(fd int) error {
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait waits for epoll events and fills the result into events.
func (r *linuxReactor) Wait(events []Event, timeoutMs int) (int, error) {
	rawEvents := make([]unix.EpollEvent, len(events))
	n, err := unix.EpollWait(r.epfd, rawEvents, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		raw := rawEvents[i]
		events[i] = Event{
			FD: int(raw.Fd),
			// RDHUP surfaces as readable so the data layer observes
			// end-of-input through a normal zero-length read.
			Readable: raw.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			Writable: raw.Events&unix.EPOLLOUT != 0,
			Err:      raw.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		}
	}
	return n, nil
}

// Close closes the epoll instance.
func (r *linuxReactor) Close() error {
	return unix.Close(r.epfd)
}
