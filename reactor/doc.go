// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the poll-mode event reactor abstraction, its
// epoll (Linux) implementation, and the engine that multiplexes
// connections over one reactor by diffing each connection's desired
// readiness window against the CURR window last armed at the poller.
package reactor
