// Package apperr defines the error taxonomy shared across the
// processing pipeline. Errors keep their kind for logging while the UI
// boundary collapses them to user-readable strings.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindFileValidation covers bad, missing, or oversized input files.
	KindFileValidation Kind = "file_validation"
	// KindInvalidInput covers malformed settings or request parameters.
	KindInvalidInput Kind = "invalid_input"
	// KindExternalTool covers spawn failures and non-zero exits of the
	// transcoder; it carries a diagnostic output tail.
	KindExternalTool Kind = "external_tool"
	// KindIO covers generic filesystem failures.
	KindIO Kind = "io"
	// KindMetadata covers tag read/write failures.
	KindMetadata Kind = "metadata"
	// KindProcessTermination covers a process that would not die on
	// cancel or cleanup.
	KindProcessTermination Kind = "process_termination"
	// KindTempDirectory covers workspace creation failures.
	KindTempDirectory Kind = "temp_directory"
	// KindResourceCleanup covers best-effort cleanup failures; these are
	// secondary diagnostics and never mask the triggering error.
	KindResourceCleanup Kind = "resource_cleanup"
	// KindGeneral covers everything else.
	KindGeneral Kind = "general"
)

// Error is a kind-aware error with an optional wrapped cause and, for
// external tool failures, the tail of the tool's diagnostic output.
type Error struct {
	Kind           Kind
	Message        string
	DiagnosticTail []string
	Err            error
}

// Error formats the failure for logs and UI strings.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindGeneral for foreign errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindGeneral
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage collapses err to the string surfaced to the UI. External
// tool failures append their diagnostic tail so users can see why the
// transcoder stopped.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		return err.Error()
	}
	if len(appErr.DiagnosticTail) == 0 {
		return appErr.Error()
	}
	return appErr.Error() + "\n" + strings.Join(appErr.DiagnosticTail, "\n")
}
