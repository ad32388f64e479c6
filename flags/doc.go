// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package flags implements the packed per-connection readiness word shared
// between the poller, the data layer and the control layer. Three shifted
// 4-bit windows (DATA, SOCK, CURR) carry independent read/write interest,
// and a handful of standalone bits track handshake phases, shutdown
// progress and the terminal error state.
package flags
