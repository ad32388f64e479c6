// File: reactor/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The engine owns one reactor and multiplexes every attached connection
// through it. Readiness interest is derived per connection from either
// the SOCK or the DATA flag window (socket-governed while any handshake
// obligation is outstanding) and diffed against the CURR window, so the
// reactor sees only minimal changes. Applet endpoints have no descriptor
// and are driven from a run queue instead.

package reactor

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-conn/conn"
	"github.com/momentics/hioload-conn/control"
	"github.com/momentics/hioload-conn/flags"
)

// IOCallback is the consumer/stream-logic entry point. The engine invokes
// it at most once per poll cycle per connection, after handshake phases
// complete; the callback performs its I/O through the connection's gated
// Recv/Send wrappers.
type IOCallback func(c *conn.Conn, readable, writable bool)

// NotifySink receives consumer-notification wakeups. The sink must clear
// the connection's notify flag once handled.
type NotifySink func(c *conn.Conn)

type registration struct {
	c  *conn.Conn
	cb IOCallback
}

// Engine drives the flag-transition protocol for a set of connections
// over one reactor. Single-threaded: one engine per worker loop, every
// attached connection owned by that loop.
type Engine struct {
	r       EventReactor
	cfg     *Config
	metrics *control.MetricsRegistry

	conns   map[int]*registration // by descriptor
	applets []*registration

	notifyq *queue.Queue
	sink    NotifySink

	// Staged by reload listeners, applied at the top of a poll cycle.
	pendingCfg atomic.Pointer[Config]
}

// NewEngine creates an engine on the platform reactor.
func NewEngine(cfg *Config) (*Engine, error) {
	r, err := NewReactor()
	if err != nil {
		return nil, err
	}
	return NewEngineWith(r, cfg), nil
}

// NewEngineWith creates an engine on a caller-supplied reactor.
func NewEngineWith(r EventReactor, cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{
		r:       r,
		cfg:     cfg,
		metrics: control.NewMetricsRegistry(),
		conns:   make(map[int]*registration),
		notifyq: queue.New(),
	}
}

// Metrics exposes the engine's counter registry.
func (e *Engine) Metrics() *control.MetricsRegistry { return e.metrics }

// SetNotifySink installs the consumer-notification receiver.
func (e *Engine) SetNotifySink(s NotifySink) { e.sink = s }

// BindConfig subscribes the engine to a config store. Recognized keys
// (max_events, wait_timeout_ms, notify_backlog, applet_budget) override
// the engine's tuning at the start of the next poll cycle. Listeners
// run off-loop, so updates go through the staged slot.
func (e *Engine) BindConfig(cs *control.ConfigStore) {
	base := *e.cfg
	stage := func() {
		next := base
		if v := cs.Int("max_events", 0); v > 0 {
			next.MaxEvents = v
		}
		if v := cs.Int("wait_timeout_ms", base.WaitTimeoutMs); v >= -1 {
			next.WaitTimeoutMs = v
		}
		if v := cs.Int("notify_backlog", 0); v > 0 {
			next.NotifyBacklog = v
		}
		if v := cs.Int("applet_budget", 0); v > 0 {
			next.AppletBudget = v
		}
		e.pendingCfg.Store(&next)
	}
	cs.OnReload(stage)
	stage()
}

// Attach hands a connection to the engine and arms its initial interest.
func (e *Engine) Attach(c *conn.Conn, cb IOCallback) error {
	reg := &registration{c: c, cb: cb}
	fd, ok := c.Descriptor()
	if !ok {
		e.applets = append(e.applets, reg)
		return nil
	}
	if _, dup := e.conns[fd]; dup {
		return fmt.Errorf("engine: descriptor %d already attached", fd)
	}
	e.conns[fd] = reg
	return e.syncPolling(c)
}

// Detach withdraws a connection; its descriptor is removed from the
// reactor if armed. The caller still owns release of the connection.
func (e *Engine) Detach(c *conn.Conn) error {
	fd, ok := c.Descriptor()
	if !ok {
		for i, reg := range e.applets {
			if reg.c == c {
				e.applets = append(e.applets[:i], e.applets[i+1:]...)
				break
			}
		}
		return nil
	}
	if _, attached := e.conns[fd]; !attached {
		return nil
	}
	delete(e.conns, fd)
	if c.Flags().Window(flags.LayerCurr).HasAny(flags.RdEna | flags.WrEna) {
		c.CommitPolling(0)
		return e.r.Remove(fd)
	}
	return nil
}

// desiredWindow selects the window that governs polling right now.
func desiredWindow(c *conn.Conn) flags.Flags {
	fl := c.Flags()
	if fl.Has(flags.Error) {
		return 0
	}
	if fl.SockGoverned() {
		return fl.Window(flags.LayerSock)
	}
	return fl.Window(flags.LayerData)
}

// syncPolling diffs the governing window against CURR and issues at most
// one reactor call. POL collapses into ENA here: the backend is
// level-triggered, so ENABLED and POLLED arm identically and the POL bit
// stays a hint for speculative backends.
func (e *Engine) syncPolling(c *conn.Conn) error {
	fd, ok := c.Descriptor()
	if !ok {
		return nil
	}
	want := desiredWindow(c)
	curr := c.Flags().Window(flags.LayerCurr)
	if want == curr {
		return nil
	}

	wantR := want.HasAny(flags.RdEna)
	wantW := want.HasAny(flags.WrEna)
	wasArmed := curr.HasAny(flags.RdEna | flags.WrEna)

	var err error
	issued := false
	switch {
	case !wantR && !wantW:
		if wasArmed {
			err = e.r.Remove(fd)
			issued = true
		}
	case !wasArmed:
		err = e.r.Add(fd, wantR, wantW)
		issued = true
	default:
		if currR, currW := curr.HasAny(flags.RdEna), curr.HasAny(flags.WrEna); wantR != currR || wantW != currW {
			err = e.r.Modify(fd, wantR, wantW)
			issued = true
		}
	}
	if err != nil {
		return fmt.Errorf("engine: arm fd %d: %w", fd, err)
	}
	if issued {
		e.metrics.Inc("rearms", 1)
	}
	c.CommitPolling(want)
	return nil
}

// dispatch routes one readiness report to the connection's current phase.
func (e *Engine) dispatch(reg *registration, ev Event) {
	c := reg.c
	if ev.Err {
		c.Fail()
		e.metrics.Inc("conn_errors", 1)
		e.queueNotify(c)
		_ = e.syncPolling(c)
		return
	}
	if ev.Readable {
		c.NoteReadable()
	}
	if ev.Writable {
		c.NoteWritable()
	}

	if c.Flags().SockGoverned() {
		e.advanceSockPhase(c, ev)
	} else if reg.cb != nil {
		// Exactly one consumer invocation per readiness report.
		reg.cb(c, ev.Readable, ev.Writable)
	}

	// The callback may have detached the connection; once it is no
	// longer ours we must not re-arm its descriptor.
	if _, attached := e.conns[ev.FD]; !attached {
		return
	}

	if c.NotifyRequested() {
		e.queueNotify(c)
	}
	_ = e.syncPolling(c)
}

// advanceSockPhase drives the pre-payload obligations in wire order:
// L4 connect completion, then the PROXY header, then the L6 handshake.
func (e *Engine) advanceSockPhase(c *conn.Conn, ev Event) {
	fl := c.Flags()

	if fl.Has(flags.WaitL4) {
		if !ev.Writable {
			return
		}
		fd, _ := c.Descriptor()
		soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err == nil && soerr != 0 {
			err = unix.Errno(soerr)
		}
		if err != nil {
			_ = c.L4Failed(err)
			return
		}
		if err := c.L4Connected(); err != nil {
			e.metrics.Inc("handshake_failures", 1)
			return
		}
		fl = c.Flags()
	}

	if fl.Has(flags.SendProxy) && ev.Writable {
		if err := c.FlushProxyHeader(); err != nil && err != conn.ErrWouldBlock {
			e.metrics.Inc("conn_errors", 1)
			return
		}
		fl = c.Flags()
	}

	if fl.Has(flags.WaitL6) && (ev.Readable || ev.Writable) {
		if err := c.ContinueHandshake(); err != nil {
			e.metrics.Inc("handshake_failures", 1)
		}
	}
}

// queueNotify enqueues one consumer wakeup. The notify flag dedupes:
// a connection already flagged and queued is delivered once.
func (e *Engine) queueNotify(c *conn.Conn) {
	c.RequestNotify()
	e.notifyq.Add(c)
}

// drainNotify delivers queued wakeups to the sink, bounded per cycle.
func (e *Engine) drainNotify() {
	budget := e.cfg.NotifyBacklog
	for e.notifyq.Length() > 0 && budget > 0 {
		c := e.notifyq.Remove().(*conn.Conn)
		if !c.NotifyRequested() {
			continue // already delivered this cycle
		}
		budget--
		e.metrics.Inc("notifies", 1)
		if e.sink != nil {
			e.sink(c)
		} else {
			c.ClearNotify()
		}
	}
}

// runApplets activates applet connections whose governing window wants
// I/O. Applets are always "ready": backpressure comes back as would-block
// from their data layer, not from the poller.
func (e *Engine) runApplets() {
	budget := e.cfg.AppletBudget
	for _, reg := range e.applets {
		if budget == 0 {
			return
		}
		want := desiredWindow(reg.c)
		if !want.HasAny(flags.RdEna | flags.WrEna) {
			continue
		}
		budget--
		e.metrics.Inc("applet_runs", 1)
		if reg.c.Flags().SockGoverned() {
			e.advanceSockPhase(reg.c, Event{Readable: true, Writable: true})
		} else if reg.cb != nil {
			reg.cb(reg.c, want.HasAny(flags.RdEna), want.HasAny(flags.WrEna))
		}
		if reg.c.NotifyRequested() {
			e.queueNotify(reg.c)
		}
	}
}

// PollOnce runs a single poll cycle: wait, dispatch, applets, wakeups.
func (e *Engine) PollOnce() error {
	if next := e.pendingCfg.Swap(nil); next != nil {
		e.cfg = next
	}
	events := make([]Event, e.cfg.MaxEvents)
	n, err := e.r.Wait(events, e.cfg.WaitTimeoutMs)
	if err != nil {
		return fmt.Errorf("engine: wait: %w", err)
	}
	e.metrics.Inc("polls", 1)
	e.metrics.Inc("events", uint64(n))
	for i := 0; i < n; i++ {
		if reg, ok := e.conns[events[i].FD]; ok {
			e.dispatch(reg, events[i])
		}
	}
	e.runApplets()
	e.drainNotify()
	return nil
}

// Run loops PollOnce until the context is canceled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.PollOnce(); err != nil {
			return err
		}
	}
}

// Close releases the reactor. Attached connections are not closed; their
// owners release them.
func (e *Engine) Close() error {
	return e.r.Close()
}
