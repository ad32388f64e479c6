// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp implements the control-layer capability set over
// non-blocking kernel TCP sockets: outbound connect, bind/listen and
// accept, plus sockaddr helpers and PROXY protocol line formatting.
package tcp
