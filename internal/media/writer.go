package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"audiobook-builder/internal/apperr"
	"audiobook-builder/internal/domain"
)

// TagWriter writes audiobook tags and cover art into a finished file.
// It remuxes through ffmpeg with stream copy, so the audio itself is
// never re-encoded, then replaces the original in place.
type TagWriter struct {
	ffmpegPath string
	runner     commandRunner
	logger     *slog.Logger

	writeFile func(string, []byte, os.FileMode) error
	rename    func(string, string) error
	remove    func(string) error
}

// NewTagWriter creates a writer using ffmpeg from PATH.
func NewTagWriter(logger *slog.Logger) *TagWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TagWriter{
		ffmpegPath: "ffmpeg",
		runner:     &execRunner{},
		logger:     logger,
		writeFile:  os.WriteFile,
		rename:     os.Rename,
		remove:     os.Remove,
	}
}

// Write applies metadata to the file at path. Tags land in the
// container's native atoms; cover art is attached as an embedded
// picture stream when supplied.
func (w *TagWriter) Write(ctx context.Context, path string, meta domain.Metadata) error {
	if meta.IsZero() {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return apperr.Newf(apperr.KindFileValidation, "file not found: %s", path)
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tagged := filepath.Join(dir, ".tagged-"+base)

	args := []string{"-hide_banner", "-nostdin", "-y", "-i", path}

	var coverPath string
	if len(meta.CoverArt) > 0 {
		coverPath = filepath.Join(dir, ".cover-"+base+".jpg")
		if err := w.writeFile(coverPath, meta.CoverArt, 0o644); err != nil {
			return apperr.Wrap(apperr.KindIO, "stage cover art", err)
		}
		defer func() { _ = w.remove(coverPath) }()
		args = append(args,
			"-i", coverPath,
			"-map", "0:a", "-map", "1:v",
			"-c:v", "mjpeg",
			"-disposition:v:0", "attached_pic",
		)
	} else {
		args = append(args, "-map", "0:a")
	}

	args = append(args, "-c:a", "copy")
	args = append(args, tagArgs(meta)...)
	args = append(args, tagged)

	result, err := w.runner.Run(ctx, w.ffmpegPath, args...)
	if err != nil {
		_ = w.remove(tagged)
		w.logger.Error("metadata write failed",
			"path", path,
			"exit_code", result.ExitCode,
			"stderr", tail(result.Stderr, 5),
		)
		return apperr.Wrap(apperr.KindMetadata, "write metadata to "+base, err)
	}

	if err := w.rename(tagged, path); err != nil {
		_ = w.remove(tagged)
		return apperr.Wrap(apperr.KindMetadata, "replace "+base+" with tagged copy", err)
	}
	return nil
}

// Version returns the detected ffmpeg version line.
func (w *TagWriter) Version(ctx context.Context) (string, error) {
	result, err := w.runner.Run(ctx, w.ffmpegPath, "-version")
	if err != nil {
		return "", apperr.Wrap(apperr.KindExternalTool, "query ffmpeg version", err)
	}
	line, _, _ := strings.Cut(result.Stdout, "\n")
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "ffmpeg version") {
		return "", apperr.Newf(apperr.KindExternalTool, "unexpected ffmpeg version output: %q", line)
	}
	return line, nil
}

// tagArgs converts metadata fields into ffmpeg -metadata flags.
func tagArgs(meta domain.Metadata) []string {
	var args []string
	add := func(key, value string) {
		if value != "" {
			args = append(args, "-metadata", fmt.Sprintf("%s=%s", key, value))
		}
	}
	add("title", meta.Title)
	add("artist", meta.Author)
	add("album", meta.Album)
	add("album_artist", meta.Narrator)
	if meta.Year > 0 {
		add("date", strconv.Itoa(meta.Year))
	}
	add("genre", meta.Genre)
	add("description", meta.Description)
	add("comment", meta.Description)
	return args
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// NewTagWriterForTests creates a writer with injectable dependencies.
func NewTagWriterForTests(ffmpegPath string, runner commandRunner, logger *slog.Logger) *TagWriter {
	w := NewTagWriter(logger)
	w.ffmpegPath = ffmpegPath
	w.runner = runner
	return w
}
