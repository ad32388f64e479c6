//go:build linux

// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// proxy_linux_test.go — PROXY line flushing over a real socket pair:
// completion hands polling back to the data layer, a blocked flush keeps
// the obligation and its poll marker.
package conn

import (
	"bytes"
	"errors"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-conn/flags"
)

func connPair(t *testing.T) (local, peer int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestConn_ProxyHeaderFlush(t *testing.T) {
	local, peer := connPair(t)
	c := NewAccepted(newFakeData(), &fakeCtrl{}, Socket{FD: local}, testAddr)

	line := []byte("PROXY TCP4 192.0.2.1 192.0.2.2 56324 443\r\n")
	if err := c.RequestProxyHeader(line); err != nil {
		t.Fatalf("RequestProxyHeader: %v", err)
	}
	fl := c.Flags()
	if !fl.Has(flags.SendProxy) || !fl.SockGoverned() {
		t.Fatalf("obligation not raised: %v", fl)
	}
	if !fl.WriteEnabled(flags.LayerSock) || !fl.WritePolled(flags.LayerSock) {
		t.Fatalf("sock write interest not armed: %v", fl)
	}

	if err := c.FlushProxyHeader(); err != nil {
		t.Fatalf("FlushProxyHeader: %v", err)
	}
	fl = c.Flags()
	if fl.Has(flags.SendProxy) || fl.SockGoverned() {
		t.Fatalf("obligation not cleared: %v", fl)
	}
	if fl.WriteEnabled(flags.LayerSock) || fl.WritePolled(flags.LayerSock) {
		t.Fatalf("sock write interest kept after flush: %v", fl)
	}

	buf := make([]byte, 128)
	n, err := unix.Read(peer, buf)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if !bytes.Equal(buf[:n], line) {
		t.Fatalf("peer saw %q, want %q", buf[:n], line)
	}
}

func TestConn_ProxyHeaderBlockedFlushKeepsObligation(t *testing.T) {
	local, peer := connPair(t)

	// Shrink the send buffer and fill it so the flush cannot proceed.
	_ = unix.SetsockoptInt(local, unix.SOL_SOCKET, unix.SO_SNDBUF, 4096)
	filler := make([]byte, 4096)
	for i := 0; ; i++ {
		if _, err := unix.Write(local, filler); err == unix.EAGAIN {
			break
		} else if err != nil {
			t.Fatalf("fill: %v", err)
		}
		if i > 10000 {
			t.Fatal("send buffer never filled")
		}
	}

	c := NewAccepted(newFakeData(), &fakeCtrl{}, Socket{FD: local}, testAddr)
	line := []byte("PROXY TCP4 192.0.2.1 192.0.2.2 56324 443\r\n")
	if err := c.RequestProxyHeader(line); err != nil {
		t.Fatalf("RequestProxyHeader: %v", err)
	}
	if err := c.FlushProxyHeader(); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("flush into full buffer: %v", err)
	}
	fl := c.Flags()
	if !fl.Has(flags.SendProxy) || !fl.WritePolled(flags.LayerSock) {
		t.Fatalf("blocked flush dropped the obligation: %v", fl)
	}

	// Drain the peer side and retry; the line lands after the filler.
	drain := make([]byte, 64*1024)
	for {
		if _, err := unix.Read(peer, drain); err == unix.EAGAIN {
			break
		} else if err != nil {
			t.Fatalf("drain: %v", err)
		}
	}
	if err := c.FlushProxyHeader(); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if c.Flags().Has(flags.SendProxy) {
		t.Fatal("obligation kept after completed flush")
	}

	buf := make([]byte, 128)
	n, err := unix.Read(peer, buf)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if !bytes.Equal(buf[:n], line) {
		t.Fatalf("peer saw %q, want %q", buf[:n], line)
	}
}
