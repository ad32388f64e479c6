// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package conn defines the connection record shared by the poller, the
// data layer and the control layer, together with the two capability sets
// those layers implement. A connection may face a kernel socket or an
// in-process applet; all readiness and lifecycle state lives in one packed
// flag word, and every capability-set invocation goes through the gated
// wrappers that translate layer results into flag transitions.
package conn
