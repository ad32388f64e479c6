//go:build linux

// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// proxy_linux_test.go — The socket-governed PROXY stage end to end: the
// line goes out on the first writability report, before any consumer
// payload, and polling hands back to the DATA window afterwards.
package reactor

import (
	"bytes"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-conn/conn"
	"github.com/momentics/hioload-conn/datalayer"
)

func TestEngine_ProxyHeaderPrecedesPayload(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})

	r := &fakeReactor{}
	e := NewEngineWith(r, nil)
	c := conn.NewAccepted(datalayer.NewRaw(), inertCtrl{}, conn.Socket{FD: fds[0]}, nil)

	line := []byte("PROXY TCP4 192.0.2.1 192.0.2.9 40000 443\r\n")
	if err := c.RequestProxyHeader(line); err != nil {
		t.Fatalf("RequestProxyHeader: %v", err)
	}
	payload := []byte("hello upstream")
	sends := 0
	c.WantSend()
	if err := e.Attach(c, func(c *conn.Conn, readable, writable bool) {
		if !writable {
			return
		}
		sends++
		if _, err := c.Send(payload); err != nil {
			t.Errorf("send: %v", err)
		}
		c.StopSend()
	}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	// The pending line governs arming; payload interest waits its turn.
	if len(r.ops) != 1 || r.ops[0] != fmt.Sprintf("add %d r=false w=true", fds[0]) {
		t.Fatalf("arm ops = %v", r.ops)
	}

	r.pending = []Event{{FD: fds[0], Writable: true}}
	if err := e.PollOnce(); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if sends != 0 {
		t.Fatal("consumer ran during the socket-governed stage")
	}
	if c.Flags().SockGoverned() {
		t.Fatalf("obligation kept after flush: %v", c.Flags())
	}

	r.pending = []Event{{FD: fds[0], Writable: true}}
	if err := e.PollOnce(); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if sends != 1 {
		t.Fatalf("consumer ran %d times, want 1", sends)
	}

	var got []byte
	buf := make([]byte, 256)
	for {
		n, err := unix.Read(fds[1], buf)
		if err == unix.EAGAIN {
			break
		}
		if err != nil {
			t.Fatalf("peer read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	want := append(append([]byte{}, line...), payload...)
	if !bytes.Equal(got, want) {
		t.Fatalf("wire bytes = %q, want %q", got, want)
	}
}
