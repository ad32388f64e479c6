// File: conn/endpoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Endpoint variants a connection can face. The set is sealed: transport
// kinds are added here as new variants, never by widening an existing one.

package conn

// Endpoint is the transport identity of a connection. Exactly one variant
// is live per connection and it never changes after creation.
type Endpoint interface {
	endpoint()
}

// Socket is a kernel-backed endpoint identified by a file descriptor.
type Socket struct {
	FD int
}

func (Socket) endpoint() {}

// Applet is an in-process service standing in for a network endpoint. It
// has no descriptor; the engine schedules it through its run queue instead
// of the poller.
type Applet struct {
	Name   string
	Handle any
}

func (Applet) endpoint() {}
