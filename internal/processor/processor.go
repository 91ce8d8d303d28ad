// Package processor sequences a merge session end to end: validate,
// prepare the workspace, supervise the transcode, write metadata, and
// move the finished audiobook into place.
package processor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"audiobook-builder/internal/apperr"
	"audiobook-builder/internal/domain"
	"audiobook-builder/internal/media"
	"audiobook-builder/internal/progress"
	"audiobook-builder/internal/transcode"
	"audiobook-builder/internal/workspace"
)

// SessionInfo is the slice of a session the processor needs.
type SessionInfo interface {
	ID() string
	Cancelled() bool
}

// preparer abstracts input validation and workspace construction.
type preparer interface {
	ValidateSettings(domain.Settings) error
	ValidateFiles(ctx context.Context, paths []string) ([]domain.AudioFile, error)
	Prepare(sessionID string, files []domain.AudioFile) (*workspace.Workflow, error)
}

// transcoder abstracts the supervised merge run.
type transcoder interface {
	Run(ctx context.Context, sess transcode.Canceller, job transcode.Job, engine *progress.Engine) error
}

// tagWriter abstracts metadata embedding on the merged file.
type tagWriter interface {
	Write(ctx context.Context, path string, meta domain.Metadata) error
}

// Summary describes a completed merge for logging and the UI.
type Summary struct {
	OutputPath   string  `json:"output_path"`
	FileCount    int     `json:"file_count"`
	AudioSeconds float64 `json:"audio_seconds"`
	OutputBytes  int64   `json:"output_bytes"`
	ElapsedMS    int64   `json:"elapsed_ms"`
}

// Processor owns the stage sequence for one merge session.
type Processor struct {
	preparer   preparer
	transcoder transcoder
	tags       tagWriter
	logger     *slog.Logger

	now      func() time.Time
	rename   func(string, string) error
	mkdirAll func(string, os.FileMode) error
	stat     func(string) (os.FileInfo, error)
	remove   func(string) error
}

// New constructs the production processor.
func New(prep *workspace.Preparer, sup *transcode.Supervisor, tags *media.TagWriter, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		preparer:   prep,
		transcoder: sup,
		tags:       tags,
		logger:     logger,
		now:        time.Now,
		rename:     os.Rename,
		mkdirAll:   os.MkdirAll,
		stat:       os.Stat,
		remove:     os.Remove,
	}
}

// Process runs the full merge sequence for one session. It drives the
// engine's terminal event itself, so callers only observe progress.
// The returned error is transcode.ErrCancelled for user cancellation.
func (p *Processor) Process(
	ctx context.Context,
	sess SessionInfo,
	paths []string,
	settings domain.Settings,
	meta domain.Metadata,
	engine *progress.Engine,
) (Summary, error) {
	started := p.now()

	engine.Analyzing(0, "Validating settings")
	if err := p.preparer.ValidateSettings(settings); err != nil {
		return p.fail(engine, err)
	}

	engine.Analyzing(0.2, "Analyzing input files")
	files, err := p.preparer.ValidateFiles(ctx, paths)
	if err != nil {
		return p.fail(engine, err)
	}
	if p.cancelled(sess, ctx) {
		engine.Cancelled("Processing cancelled")
		return Summary{}, transcode.ErrCancelled
	}

	engine.Analyzing(0.7, "Preparing workspace")
	workflow, err := p.preparer.Prepare(sess.ID(), files)
	if err != nil {
		return p.fail(engine, err)
	}
	// The workspace guard must fire on every exit path from here on.
	defer p.releaseWorkspace(sess.ID(), workflow)

	sampleRate := settings.SampleRate.Explicit
	if settings.SampleRate.Auto {
		sampleRate = media.DetectSampleRate(files)
		p.logger.Info("sample rate auto-detected", "session", sess.ID(), "rate", sampleRate)
	}
	engine.Analyzing(1, "Analysis complete")

	if p.cancelled(sess, ctx) {
		engine.Cancelled("Processing cancelled")
		return Summary{}, transcode.ErrCancelled
	}

	validFiles := make([]domain.AudioFile, 0, len(files))
	for _, file := range files {
		if file.Valid {
			validFiles = append(validFiles, file)
		}
	}

	job := transcode.Job{
		SessionID:     sess.ID(),
		ManifestPath:  workflow.ManifestPath,
		OutputPath:    workflow.OutputPath(),
		Bitrate:       settings.Bitrate,
		SampleRate:    sampleRate,
		Channels:      settings.Channels.Count(),
		TotalDuration: workflow.TotalDuration,
		Files:         validFiles,
	}
	if err := p.transcoder.Run(ctx, sess, job, engine); err != nil {
		if errors.Is(err, transcode.ErrCancelled) {
			engine.Cancelled("Processing cancelled")
			return Summary{}, transcode.ErrCancelled
		}
		return p.fail(engine, err)
	}

	if p.cancelled(sess, ctx) {
		engine.Cancelled("Processing cancelled")
		return Summary{}, transcode.ErrCancelled
	}

	engine.WritingMetadata(0, "Writing metadata")
	if !meta.IsZero() {
		if err := p.tags.Write(ctx, workflow.OutputPath(), meta); err != nil {
			// Metadata failure leaves a playable audiobook; keep going.
			p.logger.Warn("metadata write failed", "session", sess.ID(), "error", err)
		}
	}
	engine.WritingMetadata(1, "Metadata written")

	engine.Finalizing(0, "Moving audiobook to destination")
	if err := p.moveIntoPlace(workflow.OutputPath(), settings.OutputPath); err != nil {
		return p.fail(engine, err)
	}

	summary := Summary{
		OutputPath:   settings.OutputPath,
		FileCount:    len(validFiles),
		AudioSeconds: workflow.TotalDuration,
		ElapsedMS:    p.now().Sub(started).Milliseconds(),
	}
	if info, err := p.stat(settings.OutputPath); err == nil {
		summary.OutputBytes = info.Size()
	}

	p.logger.Info("merge complete",
		"session", sess.ID(),
		"output", summary.OutputPath,
		"files", summary.FileCount,
		"audio_seconds", summary.AudioSeconds,
		"output_bytes", summary.OutputBytes,
		"elapsed_ms", summary.ElapsedMS,
	)
	engine.Complete("Audiobook created successfully")
	return summary, nil
}

// fail reports a terminal failure through the engine and returns it.
func (p *Processor) fail(engine *progress.Engine, err error) (Summary, error) {
	engine.Fail(apperr.UserMessage(err))
	return Summary{}, err
}

// cancelled folds session and context cancellation into one check.
func (p *Processor) cancelled(sess SessionInfo, ctx context.Context) bool {
	return sess.Cancelled() || ctx.Err() != nil
}

// releaseWorkspace tears down the session temp directory; failures are
// logged, never surfaced, so cleanup cannot mask the real outcome.
func (p *Processor) releaseWorkspace(sessionID string, workflow *workspace.Workflow) {
	if err := workflow.Guard.Release(); err != nil {
		p.logger.Warn("workspace cleanup failed", "session", sessionID, "error", err)
	}
}

// moveIntoPlace renames the merged file to its destination, falling
// back to copy-and-remove when the rename crosses filesystems.
func (p *Processor) moveIntoPlace(src, dest string) error {
	if err := p.mkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return apperr.Wrap(apperr.KindIO, "create destination directory", err)
	}
	if err := p.rename(src, dest); err == nil {
		return nil
	}
	if err := copyFile(src, dest); err != nil {
		return apperr.Wrap(apperr.KindIO, "copy audiobook to destination", err)
	}
	if err := p.remove(src); err != nil {
		p.logger.Warn("could not remove merged temp file", "path", src, "error", err)
	}
	return nil
}

// copyFile copies src to dest, syncing before close.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// NewForTests constructs a processor with injectable dependencies.
func NewForTests(
	prep preparer,
	trans transcoder,
	tags tagWriter,
	logger *slog.Logger,
	now func() time.Time,
	rename func(string, string) error,
	mkdirAll func(string, os.FileMode) error,
	stat func(string) (os.FileInfo, error),
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		preparer:   prep,
		transcoder: trans,
		tags:       tags,
		logger:     logger,
		now:        now,
		rename:     rename,
		mkdirAll:   mkdirAll,
		stat:       stat,
		remove:     os.Remove,
	}
}
