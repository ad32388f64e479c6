// File: transport/tcp/proxy.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// PROXY protocol v1 line formatting and sockaddr rendering. The line is
// handed to a connection via RequestProxyHeader and flushed by the engine
// during the socket-governed phase, before any payload.

package tcp

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// FormatSockaddr renders an IPv4/IPv6 sockaddr as "ip" and port.
// ok is false for non-IP families.
func FormatSockaddr(sa unix.Sockaddr) (ip string, port int, ok bool) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrFrom4(a.Addr).String(), a.Port, true
	case *unix.SockaddrInet6:
		return netip.AddrFrom16(a.Addr).String(), a.Port, true
	default:
		return "", 0, false
	}
}

// ProxyLine builds the PROXY v1 header for a connection from src to dst.
// Mixed or non-IP families degrade to the UNKNOWN form, which a compliant
// receiver must accept and ignore.
func ProxyLine(src, dst unix.Sockaddr) []byte {
	srcIP, srcPort, sok := FormatSockaddr(src)
	dstIP, dstPort, dok := FormatSockaddr(dst)
	if !sok || !dok {
		return []byte("PROXY UNKNOWN\r\n")
	}
	fam := "TCP4"
	_, src6 := src.(*unix.SockaddrInet6)
	_, dst6 := dst.(*unix.SockaddrInet6)
	if src6 != dst6 {
		return []byte("PROXY UNKNOWN\r\n")
	}
	if src6 {
		fam = "TCP6"
	}
	return []byte(fmt.Sprintf("PROXY %s %s %s %d %d\r\n",
		fam, srcIP, dstIP, srcPort, dstPort))
}
