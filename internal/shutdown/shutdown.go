// Package shutdown coordinates graceful daemon termination: stop every
// managed process, persist a final snapshot, then let the process exit. It
// does not close the IPC listener; cmd/adasa closes it only after the
// coordinator returns. Grounded on the teacher's cmd/provisr/main.go signal
// handling (signal.Notify on SIGINT/SIGTERM followed by a single blocking
// wait and a best-effort Close of the running server), generalized from
// "close one HTTP server" to "stop every entry in the registry and persist".
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/adasa/internal/dispatcher"
	"github.com/loykin/adasa/internal/lifecycle"
	"github.com/loykin/adasa/internal/persistence"
	"github.com/loykin/adasa/internal/registry"
)

// Grace is the overall budget given to stopping every managed process before
// giving up on the ones still outstanding and persisting regardless.
const Grace = 30 * time.Second

// Coordinator drives the stop-everything-then-persist sequence once
// triggered, either by an OS signal or an explicit daemon-shutdown IPC
// request.
type Coordinator struct {
	reg        *registry.Registry
	disp       *dispatcher.Dispatcher
	statePath  string
	log        *slog.Logger
	nextIDFunc func() int64
}

// New builds a Coordinator. nextIDFunc reports the registry's current id
// counter for inclusion in the final snapshot.
func New(reg *registry.Registry, disp *dispatcher.Dispatcher, statePath string, nextIDFunc func() int64, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{reg: reg, disp: disp, statePath: statePath, nextIDFunc: nextIDFunc, log: log}
}

// WaitForSignal blocks until SIGINT or SIGTERM arrives, or ctx is canceled,
// then runs Shutdown. Intended to be the last call in the daemon's main
// goroutine, mirroring the teacher's <-sigCh pattern in cmd/provisr/main.go.
func (c *Coordinator) WaitForSignal(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		c.log.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}
	c.Shutdown(context.Background())
}

// Shutdown stops every non-terminal entry in the registry, waits up to
// Grace for them to settle, and writes a final snapshot regardless of
// whether every entry was reaped in time. ctx lets a caller (a second,
// impatient signal, or a test with its own deadline) cut the poll short;
// the snapshot is still written either way.
func (c *Coordinator) Shutdown(ctx context.Context) {
	deadline := time.Now().Add(Grace)

	for _, p := range c.reg.List() {
		if !lifecycle.CanStop(p.State) {
			continue
		}
		if err := c.disp.Stop(p.Name, false); err != nil {
			c.log.Warn("stop failed during shutdown", "name", p.Name, "error", err)
		}
	}

	c.waitAllSettled(ctx, deadline)

	snap := persistence.FromRegistry(c.reg, c.nextIDFunc())
	if err := persistence.Save(c.statePath, snap); err != nil {
		c.log.Error("failed to persist final snapshot", "error", err)
	}
}

// waitAllSettled polls the registry until no entry remains in a
// Stopping/Restarting/Starting transitional state, deadline passes, or ctx
// is canceled.
func (c *Coordinator) waitAllSettled(ctx context.Context, deadline time.Time) {
	const pollInterval = 100 * time.Millisecond
	for time.Now().Before(deadline) {
		if c.allSettled() {
			return
		}
		select {
		case <-ctx.Done():
			c.log.Warn("shutdown context canceled with entries still transitional")
			return
		case <-time.After(pollInterval):
		}
	}
	c.log.Warn("shutdown grace period elapsed with entries still transitional")
}

func (c *Coordinator) allSettled() bool {
	for _, p := range c.reg.List() {
		switch p.State {
		case lifecycle.Starting, lifecycle.Stopping, lifecycle.Restarting:
			return false
		}
	}
	return true
}
