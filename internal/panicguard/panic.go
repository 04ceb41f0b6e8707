// Package panicguard implements the process-wide kill switch (C14). Its
// presence check is read by the gate chain and the risk engine before any
// new entry; it never blocks an exit. The canonical signal is a sentinel
// file — presence (not content) means "panic active" — so an operator can
// trip it with a bare `touch` and clear it with `rm`.
package panicguard

import (
	"log/slog"
	"os"
	"sync/atomic"
)

// Sentinel reads the panic flag. IsActive is safe for concurrent use by
// every gate and risk check in the pipeline.
type Sentinel struct {
	path    string
	forced  atomic.Bool // set via Trip/Clear for in-process control-plane use
	forcedSet atomic.Bool
	logger  *slog.Logger
}

// New creates a sentinel backed by the given file path.
func New(path string, logger *slog.Logger) *Sentinel {
	return &Sentinel{path: path, logger: logger.With("component", "panic")}
}

// IsActive reports whether the panic sentinel is currently tripped, either
// by file presence or by an explicit in-process Trip call.
func (s *Sentinel) IsActive() bool {
	if s.forcedSet.Load() {
		return s.forced.Load()
	}
	_, err := os.Stat(s.path)
	return err == nil
}

// Trip engages the kill switch from within the process (e.g. a control
// message), bypassing the filesystem check.
func (s *Sentinel) Trip(reason string) {
	s.forcedSet.Store(true)
	s.forced.Store(true)
	s.logger.Error("panic sentinel tripped", "reason", reason)
}

// Clear releases an in-process Trip, falling back to the filesystem check.
func (s *Sentinel) Clear() {
	s.forcedSet.Store(false)
	s.logger.Info("panic sentinel cleared")
}

// RequireNoPanic returns a non-nil fault if the panic sentinel is active.
// Every entry gate must call this; exits are never blocked by it.
func (s *Sentinel) RequireNoPanic() error {
	if s.IsActive() {
		return ErrPanicActive
	}
	return nil
}

// ErrPanicActive is returned by RequireNoPanic while the sentinel is tripped.
var ErrPanicActive = panicActiveError{}

type panicActiveError struct{}

func (panicActiveError) Error() string { return "panic sentinel active: new entries blocked" }
