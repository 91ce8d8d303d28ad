// Package session issues processing sessions and enforces the
// single-active-session rule. In-process exclusivity is a mutex-held
// active marker; a lock file under the temp root extends the same rule
// across application instances.
package session

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"audiobook-builder/internal/apperr"
	"audiobook-builder/internal/domain"
)

// ErrBusy is returned when a session is requested while one is active.
var ErrBusy = errors.New("another processing session is already active")

// ErrNotFound is returned when cancel targets an unknown session.
var ErrNotFound = errors.New("no matching processing session")

// Session is one in-flight processing request and its mutable state.
type Session struct {
	id string

	mu        sync.RWMutex
	cancelled bool
	progress  domain.ProgressUpdate
}

// ID returns the unique session identifier.
func (s *Session) ID() string {
	return s.id
}

// Cancel sets the cancellation flag. The flag is monotonic: once set it
// stays set, and repeated calls are no-ops.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

// Cancelled reports whether cancellation was requested.
func (s *Session) Cancelled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelled
}

// SetProgress stores the latest progress snapshot.
func (s *Session) SetProgress(update domain.ProgressUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = update
}

// Progress returns the latest progress snapshot.
func (s *Session) Progress() domain.ProgressUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// Registry owns the active session and the process-wide exclusivity
// token backing it.
type Registry struct {
	lockPath string
	logger   *slog.Logger

	mu       sync.Mutex
	active   *Session
	fileLock *flock.Flock
}

// NewRegistry creates a registry whose exclusivity lock file lives at
// lockPath. A nil logger falls back to slog.Default.
func NewRegistry(lockPath string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{lockPath: lockPath, logger: logger}
}

// DefaultLockPath returns the lock file location under the OS temp root.
func DefaultLockPath() string {
	return filepath.Join(os.TempDir(), "audiobook-builder", "processing.lock")
}

// Begin issues a new session, or fails immediately with ErrBusy when
// one is active. It never blocks waiting for the lock.
func (r *Registry) Begin() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return nil, ErrBusy
	}

	if err := os.MkdirAll(filepath.Dir(r.lockPath), 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "prepare session lock directory", err)
	}

	fileLock := flock.New(r.lockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "acquire session lock", err)
	}
	if !locked {
		return nil, ErrBusy
	}

	sess := &Session{
		id: uuid.NewString(),
		progress: domain.ProgressUpdate{
			Stage:   domain.StageAnalyzing,
			Message: "Starting",
		},
	}
	r.active = sess
	r.fileLock = fileLock
	r.logger.Info("session started", "session", sess.id)
	return sess, nil
}

// Cancel sets the cancellation flag on the identified session. It is
// idempotent; cancelling twice is not an error.
func (r *Registry) Cancel(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil || r.active.id != sessionID {
		return ErrNotFound
	}
	r.active.Cancel()
	r.logger.Info("session cancellation requested", "session", sessionID)
	return nil
}

// CancelActive cancels whichever session is active, if any.
func (r *Registry) CancelActive() error {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()

	if active == nil {
		return ErrNotFound
	}
	return r.Cancel(active.id)
}

// Active returns the currently active session, or nil.
func (r *Registry) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// End clears the active marker and releases the exclusivity token. The
// orchestrator calls it exactly once per session regardless of outcome;
// ending an already-ended or foreign session is a no-op.
func (r *Registry) End(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil || r.active.id != sessionID {
		return
	}
	if r.fileLock != nil {
		if err := r.fileLock.Unlock(); err != nil {
			r.logger.Warn("release session lock failed", "session", sessionID, "error", err)
		}
		r.fileLock = nil
	}
	r.active = nil
	r.logger.Info("session ended", "session", sessionID)
}
