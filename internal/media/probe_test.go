package media

import (
	"context"
	"errors"
	"testing"

	"audiobook-builder/internal/apperr"
	"audiobook-builder/internal/domain"
)

// fakeRunner simulates command execution outcomes.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (commandResult, error)
}

// Run delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

const probeJSON = `{
  "format": {"duration": "3125.5", "bit_rate": "128000"},
  "streams": [
    {"codec_type": "video"},
    {"codec_type": "audio", "sample_rate": "44100", "channels": 2}
  ]
}`

// TestProbeParsesPayload checks the happy path against ffprobe JSON.
func TestProbeParsesPayload(t *testing.T) {
	var gotName string
	var gotArgs []string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			gotName = name
			gotArgs = append([]string{}, args...)
			return commandResult{Stdout: probeJSON}, nil
		},
	}

	prober := NewProberForTests("ffprobe-custom", runner, nil)
	info, err := prober.Probe(context.Background(), "/books/ch01.mp3")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	if gotName != "ffprobe-custom" {
		t.Fatalf("command = %q, want ffprobe-custom", gotName)
	}
	if gotArgs[len(gotArgs)-1] != "/books/ch01.mp3" {
		t.Fatalf("last arg = %q, want input path", gotArgs[len(gotArgs)-1])
	}
	if info.Format != "MP3" {
		t.Fatalf("format = %q, want MP3", info.Format)
	}
	if info.Duration != 3125.5 {
		t.Fatalf("duration = %v, want 3125.5", info.Duration)
	}
	if info.Bitrate != 128 {
		t.Fatalf("bitrate = %d, want 128", info.Bitrate)
	}
	if info.SampleRate != 44100 || info.Channels != 2 {
		t.Fatalf("stream info = %d Hz / %d ch", info.SampleRate, info.Channels)
	}
}

// TestProbeRejectsUnsupportedExtension checks the format gate.
func TestProbeRejectsUnsupportedExtension(t *testing.T) {
	prober := NewProberForTests("ffprobe", &fakeRunner{}, nil)

	_, err := prober.Probe(context.Background(), "/books/notes.txt")
	if !apperr.IsKind(err, apperr.KindInvalidInput) {
		t.Fatalf("kind = %q, want invalid_input", apperr.KindOf(err))
	}

	_, err = prober.Probe(context.Background(), "/books/noext")
	if !apperr.IsKind(err, apperr.KindInvalidInput) {
		t.Fatalf("kind for extensionless = %q, want invalid_input", apperr.KindOf(err))
	}
}

// TestProbeRunFailure checks ffprobe errors map to file validation.
func TestProbeRunFailure(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{ExitCode: 1}, errors.New("exit status 1")
		},
	}
	prober := NewProberForTests("ffprobe", runner, nil)

	_, err := prober.Probe(context.Background(), "/books/broken.mp3")
	if !apperr.IsKind(err, apperr.KindFileValidation) {
		t.Fatalf("kind = %q, want file_validation", apperr.KindOf(err))
	}
}

// TestProbeZeroDuration checks zero-length files are rejected.
func TestProbeZeroDuration(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{Stdout: `{"format": {"duration": "0"}, "streams": []}`}, nil
		},
	}
	prober := NewProberForTests("ffprobe", runner, nil)

	_, err := prober.Probe(context.Background(), "/books/empty.mp3")
	if !apperr.IsKind(err, apperr.KindInvalidInput) {
		t.Fatalf("kind = %q, want invalid_input", apperr.KindOf(err))
	}
}

// TestDetectSampleRateMostCommon checks the majority rule with a
// first-seen tie-break and invalid files skipped.
func TestDetectSampleRateMostCommon(t *testing.T) {
	files := []domain.AudioFile{
		{Valid: true, SampleRate: 22050},
		{Valid: true, SampleRate: 44100},
		{Valid: true, SampleRate: 44100},
		{Valid: false, SampleRate: 48000},
		{Valid: false, SampleRate: 48000},
	}
	if got := DetectSampleRate(files); got != 44100 {
		t.Fatalf("DetectSampleRate = %d, want 44100", got)
	}

	tie := []domain.AudioFile{
		{Valid: true, SampleRate: 48000},
		{Valid: true, SampleRate: 22050},
	}
	if got := DetectSampleRate(tie); got != 48000 {
		t.Fatalf("tie DetectSampleRate = %d, want first-seen 48000", got)
	}

	if got := DetectSampleRate(nil); got != 44100 {
		t.Fatalf("empty DetectSampleRate = %d, want fallback 44100", got)
	}
}

// TestFormatForPath checks extension mapping is case-insensitive.
func TestFormatForPath(t *testing.T) {
	format, ok := FormatForPath("/books/Chapter.M4B")
	if !ok || format != "M4A/M4B" {
		t.Fatalf("FormatForPath = %q, %v", format, ok)
	}
	if _, ok := FormatForPath("/books/cover.jpg"); ok {
		t.Fatalf("FormatForPath(jpg) ok = true, want false")
	}
}
