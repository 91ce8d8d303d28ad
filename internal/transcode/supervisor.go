// Package transcode supervises the ffmpeg merge process: it builds the
// concat command, streams its progress output into the progress engine,
// and enforces cooperative cancellation with a bounded kill wait.
package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"audiobook-builder/internal/apperr"
	"audiobook-builder/internal/cleanup"
	"audiobook-builder/internal/domain"
	"audiobook-builder/internal/progress"
)

// ErrCancelled signals that a merge stopped because the user asked for
// it, not because anything failed.
var ErrCancelled = errors.New("processing cancelled")

const (
	// diagnosticTailLines is how much trailing stderr is kept for error
	// reports when ffmpeg exits non-zero.
	diagnosticTailLines = 20

	// Kill grace: poll up to 20 times at 100ms for the process to die.
	termWaitAttempts = 20
	termWaitInterval = 100 * time.Millisecond
)

// Job describes one merge run. SampleRate must already be resolved to
// a concrete rate; auto-detection happens before the job is built.
type Job struct {
	SessionID     string
	ManifestPath  string
	OutputPath    string
	Bitrate       int
	SampleRate    int
	Channels      int
	TotalDuration float64
	Files         []domain.AudioFile
}

// Canceller reports whether the owning session was cancelled.
type Canceller interface {
	Cancelled() bool
}

// processHandle abstracts a started merge process for testability.
type processHandle interface {
	Stderr() io.Reader
	Wait() error
	Kill() error
	ExitCode() int
}

// Supervisor runs merge jobs against a real or injected process starter.
type Supervisor struct {
	ffmpegPath string
	start      func(ctx context.Context, name string, args ...string) (processHandle, error)
	stat       func(string) (os.FileInfo, error)
	logger     *slog.Logger
}

// NewSupervisor constructs the production supervisor.
func NewSupervisor(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		ffmpegPath: "ffmpeg",
		start:      startProcess,
		stat:       os.Stat,
		logger:     logger,
	}
}

// Run executes the merge, reporting progress through the engine until
// the process exits, fails, or the session is cancelled.
func (s *Supervisor) Run(ctx context.Context, sess Canceller, job Job, engine *progress.Engine) error {
	args := buildMergeArgs(job)
	s.logger.Info("starting merge", "output", job.OutputPath, "files", len(job.Files), "args", args)

	handle, err := s.start(ctx, s.ffmpegPath, args...)
	if err != nil {
		return apperr.Wrap(apperr.KindExternalTool, "start ffmpeg", err)
	}

	// The process guard outlives every early return below; once Wait
	// has been observed the guard is disarmed instead.
	guard := cleanup.New(job.SessionID, "ffmpeg process", s.logger, func() error {
		return s.terminate(handle)
	})

	tail := newTailBuffer(diagnosticTailLines)
	speed := 0.0
	scanner := bufio.NewScanner(handle.Stderr())
	for scanner.Scan() {
		line := scanner.Text()
		tail.Add(line)

		if sess.Cancelled() || ctx.Err() != nil {
			if err := guard.Release(); err != nil {
				return err
			}
			return ErrCancelled
		}

		if v, ok := progress.ParseSpeed(line); ok {
			speed = v
		}
		if pos, ok := progress.ParsePositionSeconds(line); ok {
			s.reportPosition(engine, job, pos, speed)
			continue
		}
		if progress.IsEndMarker(line) {
			engine.Converting(1, "Conversion complete", "")
		}
	}

	waitErr := handle.Wait()
	guard.Disarm()

	if sess.Cancelled() || ctx.Err() != nil {
		return ErrCancelled
	}
	if waitErr != nil {
		s.logger.Error("merge failed", "exit_code", handle.ExitCode(), "error", waitErr)
		return &apperr.Error{
			Kind:           apperr.KindExternalTool,
			Message:        fmt.Sprintf("ffmpeg merge failed with exit code %d", handle.ExitCode()),
			DiagnosticTail: tail.Lines(),
			Err:            waitErr,
		}
	}
	if _, err := s.stat(job.OutputPath); err != nil {
		return &apperr.Error{
			Kind:           apperr.KindExternalTool,
			Message:        "ffmpeg exited cleanly but produced no output file",
			DiagnosticTail: tail.Lines(),
			Err:            err,
		}
	}

	engine.Converting(1, "Conversion complete", "")
	return nil
}

// reportPosition maps a stream position to a converting-band update.
func (s *Supervisor) reportPosition(engine *progress.Engine, job Job, pos, speed float64) {
	fraction := 0.0
	if job.TotalDuration > 0 {
		fraction = pos / job.TotalDuration
		if fraction > 1 {
			fraction = 1
		}
	}

	msg := fmt.Sprintf("Converting %s of %s", formatClock(pos), formatClock(job.TotalDuration))
	if speed > 0 {
		msg += fmt.Sprintf(" (%.1fx)", speed)
	}
	engine.Converting(fraction, msg, currentFileAt(job.Files, pos))
}

// currentFileAt locates the input whose span covers the stream position.
func currentFileAt(files []domain.AudioFile, pos float64) string {
	var cumulative float64
	for _, file := range files {
		cumulative += file.Duration
		if pos < cumulative {
			return filepath.Base(file.Path)
		}
	}
	if len(files) > 0 {
		return filepath.Base(files[len(files)-1].Path)
	}
	return ""
}

// terminate kills the process and waits a bounded interval for it to
// actually exit, so cancellation cannot hang the orchestrator.
func (s *Supervisor) terminate(handle processHandle) error {
	if err := handle.Kill(); err != nil {
		return apperr.Wrap(apperr.KindProcessTermination, "kill ffmpeg", err)
	}

	done := make(chan struct{})
	go func() {
		_ = handle.Wait()
		close(done)
	}()

	for i := 0; i < termWaitAttempts; i++ {
		select {
		case <-done:
			return nil
		case <-time.After(termWaitInterval):
		}
	}
	return apperr.New(apperr.KindProcessTermination, "ffmpeg did not exit after kill")
}

// formatClock renders seconds as H:MM:SS for progress messages.
func formatClock(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
}

// buildMergeArgs builds the concat-demuxer merge command line.
func buildMergeArgs(job Job) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-f", "concat",
		"-safe", "0",
		"-i", job.ManifestPath,
		"-vn",
		"-map", "0:a",
		"-map_metadata", "0",
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", job.Bitrate),
		"-ar", strconv.Itoa(job.SampleRate),
		"-ac", strconv.Itoa(job.Channels),
		"-movflags", "+faststart",
		"-progress", "pipe:2",
		"-nostats",
		"-y",
		job.OutputPath,
	}
}

// NewSupervisorForTests constructs a supervisor with injectable deps.
func NewSupervisorForTests(
	ffmpegPath string,
	start func(ctx context.Context, name string, args ...string) (processHandle, error),
	stat func(string) (os.FileInfo, error),
	logger *slog.Logger,
) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		ffmpegPath: ffmpegPath,
		start:      start,
		stat:       stat,
		logger:     logger,
	}
}

// execHandle wraps a started os/exec command.
type execHandle struct {
	cmd    *exec.Cmd
	stderr io.ReadCloser
}

// startProcess launches a command with its stderr available for
// streaming progress consumption.
func startProcess(ctx context.Context, name string, args ...string) (processHandle, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execHandle{cmd: cmd, stderr: stderr}, nil
}

// Stderr exposes the process stderr stream.
func (h *execHandle) Stderr() io.Reader { return h.stderr }

// Wait blocks until the process exits.
func (h *execHandle) Wait() error { return h.cmd.Wait() }

// Kill forcefully stops the process.
func (h *execHandle) Kill() error { return h.cmd.Process.Kill() }

// ExitCode returns the exit code after Wait, or -1 when unknown.
func (h *execHandle) ExitCode() int {
	if h.cmd.ProcessState == nil {
		return -1
	}
	return h.cmd.ProcessState.ExitCode()
}

// tailBuffer keeps the last n lines of process output.
type tailBuffer struct {
	max   int
	lines []string
}

// newTailBuffer creates a bounded line buffer.
func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

// Add appends a line, evicting the oldest when full.
func (b *tailBuffer) Add(line string) {
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[1:]
	}
}

// Lines returns the retained tail in order.
func (b *tailBuffer) Lines() []string {
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
