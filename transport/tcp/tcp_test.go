//go:build linux
// +build linux

// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// tcp_test.go — Loopback integration of the TCP control layer with the
// raw data layer: bind, non-blocking connect, accept, byte exchange.
package tcp

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-conn/conn"
	"github.com/momentics/hioload-conn/datalayer"
)

func acceptRetry(t *testing.T, ops *Ops, lfd int) (conn.Endpoint, unix.Sockaddr) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ep, peer, err := ops.Accept(lfd)
		if err == nil {
			return ep, peer
		}
		if !errors.Is(err, conn.ErrWouldBlock) {
			t.Fatalf("accept: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("accept timed out")
		}
		time.Sleep(time.Millisecond)
	}
}

func waitWritable(t *testing.T, fd int) {
	t.Helper()
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	n, err := unix.Poll(fds, 2000)
	if err != nil && err != unix.EINTR {
		t.Fatalf("poll: %v", err)
	}
	if n == 0 {
		t.Fatal("connect did not complete")
	}
}

func TestOps_ConnectAcceptExchange(t *testing.T) {
	ops := NewOps()
	raw := datalayer.NewRaw()

	lfd, err := ops.Bind(&unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}, 8)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer unix.Close(lfd)

	bound, err := unix.Getsockname(lfd)
	if err != nil {
		t.Fatalf("getsockname: %v", err)
	}

	cfd, err := NewSocket(unix.AF_INET)
	if err != nil {
		t.Fatal(err)
	}
	client := conn.New(raw, ops, conn.Socket{FD: cfd})
	defer client.Close()

	if err := client.BeginConnect(bound); err != nil {
		t.Fatalf("BeginConnect: %v", err)
	}

	ep, peer := acceptRetry(t, ops, lfd)
	server := conn.NewAccepted(raw, ops, ep, peer)
	defer server.Close()

	if sa, ok := server.Peer(); !ok || sa == nil {
		t.Fatal("accepted connection lost its peer address")
	}

	// Resolve a pending loopback connect the way the engine would:
	// writability plus an SO_ERROR check.
	if client.State() == conn.StateConnecting4 {
		waitWritable(t, cfd)
		soerr, err := unix.GetsockoptInt(cfd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil || soerr != 0 {
			t.Fatalf("connect failed: %v / %d", err, soerr)
		}
		if err := client.L4Connected(); err != nil {
			t.Fatalf("L4Connected: %v", err)
		}
	}
	if client.State() != conn.StateEstablished {
		t.Fatalf("client state = %v", client.State())
	}

	if _, err := client.Send([]byte("ping")); err != nil {
		t.Fatalf("send: %v", err)
	}

	buf := make([]byte, 16)
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := server.Recv(buf)
		if err == nil {
			if string(buf[:n]) != "ping" {
				t.Fatalf("server read %q", buf[:n])
			}
			break
		}
		if !errors.Is(err, conn.ErrWouldBlock) {
			t.Fatalf("server recv: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("server recv timed out")
		}
		time.Sleep(time.Millisecond)
	}

	// Half-duplex shutdown: client stops writing, server drains to EOF.
	if err := client.ShutWrite(); err != nil {
		t.Fatalf("ShutWrite: %v", err)
	}
	deadline = time.Now().Add(2 * time.Second)
	for {
		_, err := server.Recv(buf)
		if errors.Is(err, conn.ErrClosed) {
			break
		}
		if err != nil && !errors.Is(err, conn.ErrWouldBlock) {
			t.Fatalf("server recv after shutw: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("end-of-input not observed")
		}
		time.Sleep(time.Millisecond)
	}
	if server.State() != conn.StateHalfShutRead {
		t.Fatalf("server state = %v", server.State())
	}
}

func TestOps_ConnectRefused(t *testing.T) {
	ops := NewOps()
	raw := datalayer.NewRaw()

	// Bind then close to get a port with no listener.
	lfd, err := ops.Bind(&unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	bound, err := unix.Getsockname(lfd)
	if err != nil {
		t.Fatal(err)
	}
	unix.Close(lfd)

	cfd, err := NewSocket(unix.AF_INET)
	if err != nil {
		t.Fatal(err)
	}
	c := conn.New(raw, ops, conn.Socket{FD: cfd})
	defer c.Close()

	if err := c.BeginConnect(bound); err != nil {
		// Refused synchronously: the error flag must have latched.
		if c.State() != conn.StateErrored {
			t.Fatalf("state after failed connect = %v", c.State())
		}
		return
	}
	// Pending: completion must surface the failure through SO_ERROR.
	waitWritable(t, cfd)
	soerr, err := unix.GetsockoptInt(cfd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		t.Fatal(err)
	}
	if soerr == 0 {
		t.Skip("connect unexpectedly succeeded; port was reused")
	}
	if err := c.L4Failed(unix.Errno(soerr)); err == nil {
		t.Fatal("L4Failed returned nil")
	}
	if c.State() != conn.StateErrored {
		t.Fatalf("state = %v", c.State())
	}
}
