package apperr

import (
	"errors"
	"fmt"
	"testing"
)

// TestErrorFormatting checks message rendering with and without cause.
func TestErrorFormatting(t *testing.T) {
	plain := New(KindIO, "write failed")
	if plain.Error() != "write failed" {
		t.Fatalf("Error() = %q, want %q", plain.Error(), "write failed")
	}

	cause := errors.New("disk full")
	wrapped := Wrap(KindIO, "write failed", cause)
	if wrapped.Error() != "write failed: disk full" {
		t.Fatalf("Error() = %q", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("errors.Is(wrapped, cause) = false, want true")
	}
}

// TestKindOf checks kind extraction through wrapping layers.
func TestKindOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(KindMetadata, "no tags"))
	if got := KindOf(err); got != KindMetadata {
		t.Fatalf("KindOf() = %q, want %q", got, KindMetadata)
	}
	if got := KindOf(errors.New("plain")); got != KindGeneral {
		t.Fatalf("KindOf(plain) = %q, want %q", got, KindGeneral)
	}
	if !IsKind(err, KindMetadata) {
		t.Fatalf("IsKind() = false, want true")
	}
}

// TestUserMessageAppendsDiagnosticTail checks tool output is surfaced.
func TestUserMessageAppendsDiagnosticTail(t *testing.T) {
	err := &Error{
		Kind:           KindExternalTool,
		Message:        "ffmpeg merge failed with exit code 1",
		DiagnosticTail: []string{"line one", "line two"},
	}

	got := UserMessage(err)
	want := "ffmpeg merge failed with exit code 1\nline one\nline two"
	if got != want {
		t.Fatalf("UserMessage() = %q, want %q", got, want)
	}
}

// TestUserMessagePlainErrors checks passthrough of foreign errors.
func TestUserMessagePlainErrors(t *testing.T) {
	if got := UserMessage(errors.New("boom")); got != "boom" {
		t.Fatalf("UserMessage() = %q, want boom", got)
	}
	if got := UserMessage(nil); got != "" {
		t.Fatalf("UserMessage(nil) = %q, want empty", got)
	}
}
