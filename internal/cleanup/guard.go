// Package cleanup provides scoped release guards for disposable
// resources such as session workspaces and child processes. A guard's
// release logic runs exactly once no matter how many exit paths touch
// it, so resources are neither leaked nor double-released.
package cleanup

import (
	"log/slog"
	"os"
	"sync"

	"audiobook-builder/internal/apperr"
)

// Guard owns one disposable resource. Callers defer Release at
// acquisition time and may also call it early on explicit paths.
type Guard struct {
	sessionID string
	resource  string
	release   func() error
	logger    *slog.Logger

	mu   sync.Mutex
	done bool
}

// New creates a guard around a release function. A nil logger falls
// back to slog.Default.
func New(sessionID, resource string, logger *slog.Logger, release func() error) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		sessionID: sessionID,
		resource:  resource,
		release:   release,
		logger:    logger,
	}
}

// Release runs the release logic once. Every later call is a no-op
// returning nil, so guards are safe to trigger from both an explicit
// call and a deferred one. Failures are logged and returned as
// ResourceCleanup errors; callers must not let them mask the error
// that put them on the unwind path.
func (g *Guard) Release() error {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return nil
	}
	g.done = true
	g.mu.Unlock()

	if g.release == nil {
		return nil
	}
	if err := g.release(); err != nil {
		g.logger.Warn("resource cleanup failed",
			"session", g.sessionID,
			"resource", g.resource,
			"error", err,
		)
		return apperr.Wrap(apperr.KindResourceCleanup, "cleanup "+g.resource, err)
	}

	g.logger.Debug("resource released", "session", g.sessionID, "resource", g.resource)
	return nil
}

// Released reports whether the release logic has already run.
func (g *Guard) Released() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}

// Disarm marks the guard as done without running the release logic,
// for resources whose ownership moved elsewhere.
func (g *Guard) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.done = true
}

// NewDir creates a guard that removes a directory tree. The removeAll
// function is injectable for tests; nil uses os.RemoveAll.
func NewDir(sessionID, dir string, logger *slog.Logger, removeAll func(string) error) *Guard {
	if removeAll == nil {
		removeAll = os.RemoveAll
	}
	return New(sessionID, "workspace "+dir, logger, func() error {
		return removeAll(dir)
	})
}
