package cleanup

import (
	"errors"
	"testing"

	"audiobook-builder/internal/apperr"
)

// TestGuardReleasesExactlyOnce checks repeated releases are no-ops.
func TestGuardReleasesExactlyOnce(t *testing.T) {
	calls := 0
	guard := New("sess-1", "workspace", nil, func() error {
		calls++
		return nil
	})

	if err := guard.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := guard.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("release calls = %d, want 1", calls)
	}
	if !guard.Released() {
		t.Fatalf("Released() = false, want true")
	}
}

// TestGuardReleaseFailureIsWrapped checks cleanup errors keep their kind.
func TestGuardReleaseFailureIsWrapped(t *testing.T) {
	cause := errors.New("directory busy")
	guard := New("sess-1", "workspace", nil, func() error { return cause })

	err := guard.Release()
	if !apperr.IsKind(err, apperr.KindResourceCleanup) {
		t.Fatalf("kind = %q, want resource_cleanup", apperr.KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false, want true")
	}

	// The failed attempt still consumes the guard.
	if err := guard.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
}

// TestGuardDisarm checks a disarmed guard never runs its release.
func TestGuardDisarm(t *testing.T) {
	calls := 0
	guard := New("sess-1", "process", nil, func() error {
		calls++
		return nil
	})

	guard.Disarm()
	if err := guard.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if calls != 0 {
		t.Fatalf("release calls = %d, want 0", calls)
	}
}

// TestNewDirRemovesDirectory checks the directory guard wiring.
func TestNewDirRemovesDirectory(t *testing.T) {
	var removed string
	guard := NewDir("sess-1", "/tmp/audiobook-builder/sess-1", nil, func(path string) error {
		removed = path
		return nil
	})

	if err := guard.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if removed != "/tmp/audiobook-builder/sess-1" {
		t.Fatalf("removed = %q", removed)
	}
}
