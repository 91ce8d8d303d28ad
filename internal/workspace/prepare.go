// Package workspace validates processing inputs and prepares the
// session-scoped temp directory with the ordered transcoder manifest.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"audiobook-builder/internal/apperr"
	"audiobook-builder/internal/cleanup"
	"audiobook-builder/internal/domain"
	"audiobook-builder/internal/media"
)

// Per-file acceptance bounds. Inputs past these are rejected during
// validation rather than discovered as transcoder failures mid-run.
const (
	maxInputBytes      = int64(4) << 30
	maxInputDurationS  = 100 * 60 * 60
	manifestFileName   = "concat.txt"
	mergedOutputName   = "merged.m4b"
	workspaceDirPrefix = "audiobook-builder"
)

// prober abstracts file inspection for testability.
type prober interface {
	Probe(ctx context.Context, path string) (media.Info, error)
}

// Workflow is the prepared per-session workspace handed to the
// transcode and finalize stages.
type Workflow struct {
	SessionID    string
	Dir          string
	ManifestPath string
	// TotalDuration sums the durations of valid inputs with a known
	// duration; unknown-duration files still get processed but do not
	// contribute to progress math.
	TotalDuration float64
	// Guard removes the workspace directory; the orchestrator owns it.
	Guard *cleanup.Guard
}

// OutputPath returns where the transcoder writes its merged result.
func (w *Workflow) OutputPath() string {
	return filepath.Join(w.Dir, mergedOutputName)
}

// Preparer validates inputs and builds session workspaces.
type Preparer struct {
	prober   prober
	tempRoot string
	logger   *slog.Logger

	mkdirAll  func(string, os.FileMode) error
	writeFile func(string, []byte, os.FileMode) error
	stat      func(string) (os.FileInfo, error)
	removeAll func(string) error
}

// NewPreparer creates a preparer rooted at the OS temp directory.
func NewPreparer(p *media.Prober, logger *slog.Logger) *Preparer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preparer{
		prober:    p,
		tempRoot:  filepath.Join(os.TempDir(), workspaceDirPrefix),
		logger:    logger,
		mkdirAll:  os.MkdirAll,
		writeFile: os.WriteFile,
		stat:      os.Stat,
		removeAll: os.RemoveAll,
	}
}

// ValidateFiles inspects every path and returns one descriptor per
// input, in the given order. Per-file problems mark the descriptor
// invalid instead of failing the call.
func (p *Preparer) ValidateFiles(ctx context.Context, paths []string) ([]domain.AudioFile, error) {
	if len(paths) == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "no files provided for validation")
	}

	files := make([]domain.AudioFile, 0, len(paths))
	for _, path := range paths {
		files = append(files, p.validateSingle(ctx, path))
	}
	return files, nil
}

// validateSingle builds the descriptor for one input path.
func (p *Preparer) validateSingle(ctx context.Context, path string) domain.AudioFile {
	file := domain.AudioFile{Path: path}

	info, err := p.stat(path)
	if err != nil {
		file.Error = fmt.Sprintf("File not found: %s", path)
		return file
	}
	file.Size = info.Size()
	if file.Size > maxInputBytes {
		file.Error = fmt.Sprintf("File exceeds the %d GiB input limit", maxInputBytes>>30)
		return file
	}

	probed, err := p.prober.Probe(ctx, path)
	if err != nil {
		file.Error = err.Error()
		return file
	}
	if probed.Duration > maxInputDurationS {
		file.Error = "File duration exceeds the 100 hour input limit"
		return file
	}

	file.Format = probed.Format
	file.Duration = probed.Duration
	file.Bitrate = probed.Bitrate
	file.SampleRate = probed.SampleRate
	file.Channels = probed.Channels
	file.Valid = true
	return file
}

// FileListInfo validates paths and aggregates totals for the UI.
func (p *Preparer) FileListInfo(ctx context.Context, paths []string) (domain.FileListInfo, error) {
	files, err := p.ValidateFiles(ctx, paths)
	if err != nil {
		return domain.FileListInfo{}, err
	}

	info := domain.FileListInfo{Files: files}
	for _, file := range files {
		if !file.Valid {
			info.InvalidCount++
			continue
		}
		info.ValidCount++
		info.TotalDuration += file.Duration
		info.TotalSize += file.Size
	}
	return info, nil
}

// Prepare creates the session workspace and writes the ordered
// manifest. The directory is registered with a cleanup guard before
// any further fallible step, so a manifest write failure still tears
// the workspace down.
func (p *Preparer) Prepare(sessionID string, files []domain.AudioFile) (*Workflow, error) {
	valid := make([]domain.AudioFile, 0, len(files))
	for _, file := range files {
		if file.Valid {
			valid = append(valid, file)
		}
	}
	if len(valid) == 0 {
		return nil, apperr.New(apperr.KindFileValidation, "no valid input files to process")
	}

	// Deterministic per-session path; only one session runs at a time,
	// so this mainly aids debugging leftover directories.
	dir := filepath.Join(p.tempRoot, sessionID)
	if err := p.mkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindTempDirectory, "create session workspace", err)
	}
	guard := cleanup.NewDir(sessionID, dir, p.logger, p.removeAll)

	manifestPath := filepath.Join(dir, manifestFileName)
	if err := p.writeFile(manifestPath, []byte(Manifest(valid)), 0o644); err != nil {
		releaseErr := guard.Release()
		if releaseErr != nil {
			p.logger.Warn("workspace cleanup after manifest failure", "session", sessionID, "error", releaseErr)
		}
		return nil, apperr.Wrap(apperr.KindIO, "write transcoder manifest", err)
	}

	var total float64
	for _, file := range valid {
		total += file.Duration
	}

	p.logger.Info("workspace prepared",
		"session", sessionID,
		"dir", dir,
		"files", len(valid),
		"total_duration_s", total,
	)
	return &Workflow{
		SessionID:     sessionID,
		Dir:           dir,
		ManifestPath:  manifestPath,
		TotalDuration: total,
		Guard:         guard,
	}, nil
}

// Manifest renders the ffmpeg concat listing, preserving the caller's
// order exactly: merge order is user-controlled.
func Manifest(files []domain.AudioFile) string {
	var b strings.Builder
	for _, file := range files {
		b.WriteString(ManifestLine(file.Path))
	}
	return b.String()
}

// ManifestLine renders one concat entry with single quotes escaped
// the way the concat demuxer expects.
func ManifestLine(path string) string {
	escaped := strings.ReplaceAll(path, "'", `'\''`)
	return "file '" + escaped + "'\n"
}

// NewPreparerForTests creates a preparer with injectable dependencies.
func NewPreparerForTests(
	p prober,
	tempRoot string,
	logger *slog.Logger,
	stat func(string) (os.FileInfo, error),
) *Preparer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preparer{
		prober:    p,
		tempRoot:  tempRoot,
		logger:    logger,
		mkdirAll:  os.MkdirAll,
		writeFile: os.WriteFile,
		stat:      stat,
		removeAll: os.RemoveAll,
	}
}
