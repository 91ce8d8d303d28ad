// Package diagnostics runs environment checks so tool or permission
// problems surface before a merge is started.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"audiobook-builder/internal/domain"
)

// Checker validates external tools and required filesystem paths.
type Checker struct {
	ffmpegVersion func(context.Context) (string, error)

	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	tempRoot   string
}

// NewChecker builds a checker using real OS dependencies. The version
// function may be nil when only path checks are wanted.
func NewChecker(ffmpegVersion func(context.Context) (string, error)) *Checker {
	return &Checker{
		ffmpegVersion: ffmpegVersion,
		lookPath:      exec.LookPath,
		mkdirAll:      os.MkdirAll,
		createTemp:    os.CreateTemp,
		remove:        os.Remove,
		tempRoot:      filepath.Join(os.TempDir(), "audiobook-builder"),
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(ctx context.Context, prefs domain.Preferences) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("ffmpeg"),
		c.checkTool("ffprobe"),
		c.checkWritableDir("output_dir", "Output directory", prefs.OutputDir,
			"Choose a writable directory for finished audiobooks."),
		c.checkWritableDir("temp_root", "Temp workspace", c.tempRoot,
			"Processing needs a writable temp directory for intermediate files."),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	report := domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}

	if c.ffmpegVersion != nil {
		if version, err := c.ffmpegVersion(ctx); err == nil {
			report.FFmpegVersion = version
		}
	}
	return report
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Install ffmpeg and ensure the binary is available on PATH before merging.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, name, dir, hint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   id,
		Name: name,
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = name + " is empty."
		item.Hint = hint
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = hint
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = hint
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	ffmpegVersion func(context.Context) (string, error),
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	tempRoot string,
) *Checker {
	return &Checker{
		ffmpegVersion: ffmpegVersion,
		lookPath:      lookPath,
		mkdirAll:      mkdirAll,
		createTemp:    createTemp,
		remove:        remove,
		tempRoot:      tempRoot,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
