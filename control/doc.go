// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and configuration control for the connection engine.
// Provides concurrent-safe state handling primitives:
//   - Immutable snapshot config reads and atomic updates
//   - Runtime observers for hot-reload
//   - Counter telemetry for the poll loop
package control
