// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// applet_test.go — Data transfer, backpressure and end-of-input through
// an in-process endpoint.
package applet

import (
	"bytes"
	"errors"
	"testing"

	"github.com/momentics/hioload-conn/conn"
)

// TestApplet_ServiceToConsumer moves bytes from the service into the
// consumer through the gated Recv wrapper.
func TestApplet_ServiceToConsumer(t *testing.T) {
	a := New("upstream", 64)
	c := a.NewConn()

	if c.State() != conn.StateEstablished {
		t.Fatalf("applet conn state = %v", c.State())
	}
	if n := a.ServiceWrite([]byte("hello")); n != 5 {
		t.Fatalf("ServiceWrite = %d", n)
	}

	buf := make([]byte, 16)
	n, err := c.Recv(buf)
	if err != nil || n != 5 || !bytes.Equal(buf[:n], []byte("hello")) {
		t.Fatalf("Recv = %d %q %v", n, buf[:n], err)
	}

	// Drained queue is backpressure, not closure.
	if _, err := c.Recv(buf); !errors.Is(err, conn.ErrWouldBlock) {
		t.Fatalf("empty recv: %v", err)
	}
}

// TestApplet_ConsumerToServiceBackpressure fills the service queue until
// the connection observes would-block, then drains from the service side.
func TestApplet_ConsumerToServiceBackpressure(t *testing.T) {
	a := New("sink", 8)
	c := a.NewConn()

	n, err := c.Send([]byte("12345678"))
	if err != nil || n != 8 {
		t.Fatalf("first send = %d %v", n, err)
	}
	if _, err := c.Send([]byte("x")); !errors.Is(err, conn.ErrWouldBlock) {
		t.Fatalf("send into full queue: %v", err)
	}

	buf := make([]byte, 8)
	if n, ok := a.ServiceRead(buf); !ok || n != 8 {
		t.Fatalf("ServiceRead = %d %v", n, ok)
	}
	if n, err := c.Send([]byte("x")); err != nil || n != 1 {
		t.Fatalf("send after drain = %d %v", n, err)
	}
}

// TestApplet_PartialSendIsWouldBlock: a send bigger than the remaining
// room takes what fits and reports would-block for the rest.
func TestApplet_PartialSendIsWouldBlock(t *testing.T) {
	a := New("sink", 4)
	c := a.NewConn()

	n, err := c.Send([]byte("123456"))
	if !errors.Is(err, conn.ErrWouldBlock) || n != 4 {
		t.Fatalf("partial send = %d %v", n, err)
	}
}

// TestApplet_EndOfInput: service close is observed as end-of-input only
// after the queue drains, and it shuts the read direction.
func TestApplet_EndOfInput(t *testing.T) {
	a := New("upstream", 64)
	c := a.NewConn()

	a.ServiceWrite([]byte("bye"))
	a.ServiceClose()

	buf := make([]byte, 16)
	if n, err := c.Recv(buf); err != nil || n != 3 {
		t.Fatalf("drain recv = %d %v", n, err)
	}
	if _, err := c.Recv(buf); !errors.Is(err, conn.ErrClosed) {
		t.Fatalf("post-close recv: %v", err)
	}
	if c.State() != conn.StateHalfShutRead {
		t.Fatalf("state = %v", c.State())
	}
	// Write side still open towards the service.
	if _, err := c.Send([]byte("late")); err != nil {
		t.Fatalf("send after read close: %v", err)
	}
}

// TestApplet_SessionContext: the applet attaches its session context to
// the connection and tallies both directions.
func TestApplet_SessionContext(t *testing.T) {
	a := New("upstream", 64)
	c := a.NewConn()

	if c.DataContext() != nil {
		t.Fatal("context attached before first transfer")
	}
	a.ServiceWrite([]byte("abcd"))
	buf := make([]byte, 4)
	if _, err := c.Recv(buf); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Send([]byte("ab")); err != nil {
		t.Fatal(err)
	}

	s, ok := c.DataContext().(*Session)
	if !ok {
		t.Fatalf("unexpected context %T", c.DataContext())
	}
	if s.BytesOut != 4 || s.BytesIn != 2 {
		t.Fatalf("session tally = %+v", s)
	}
}
