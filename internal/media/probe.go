package media

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"audiobook-builder/internal/apperr"
	"audiobook-builder/internal/domain"
)

// supportedFormats maps accepted input extensions to display names.
var supportedFormats = map[string]string{
	".mp3":  "MP3",
	".m4a":  "M4A/M4B",
	".m4b":  "M4A/M4B",
	".aac":  "AAC",
	".wav":  "WAV",
	".flac": "FLAC",
}

// Info is the technical description of one audio file.
type Info struct {
	Format     string
	Duration   float64
	Bitrate    int
	SampleRate int
	Channels   int
}

// Prober inspects audio files through ffprobe.
type Prober struct {
	ffprobePath string
	runner      commandRunner
	logger      *slog.Logger
}

// NewProber creates a prober using ffprobe from PATH.
func NewProber(logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		ffprobePath: "ffprobe",
		runner:      &execRunner{},
		logger:      logger,
	}
}

// ffprobe -print_format json payload, numbers arrive as strings.
type probePayload struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

// Probe inspects one file and returns its technical properties.
func (p *Prober) Probe(ctx context.Context, path string) (Info, error) {
	format, ok := FormatForPath(path)
	if !ok {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if ext == "" {
			return Info{}, apperr.New(apperr.KindInvalidInput, "cannot determine file format: file has no extension")
		}
		return Info{}, apperr.Newf(apperr.KindInvalidInput, "unsupported audio format: %s", ext)
	}

	result, err := p.runner.Run(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return Info{}, apperr.Wrap(apperr.KindFileValidation, "cannot read audio properties of "+path, err)
	}

	var payload probePayload
	if err := json.Unmarshal([]byte(result.Stdout), &payload); err != nil {
		return Info{}, apperr.Wrap(apperr.KindFileValidation, "unexpected ffprobe output for "+path, err)
	}

	info := Info{Format: format}
	info.Duration, _ = strconv.ParseFloat(payload.Format.Duration, 64)
	if bps, err := strconv.Atoi(payload.Format.BitRate); err == nil {
		info.Bitrate = bps / 1000
	}
	for _, stream := range payload.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		info.SampleRate, _ = strconv.Atoi(stream.SampleRate)
		info.Channels = stream.Channels
		break
	}

	if info.Duration <= 0 {
		return info, apperr.New(apperr.KindInvalidInput, "audio file has invalid duration (0 seconds)")
	}
	return info, nil
}

// DetectSampleRate returns the most common sample rate among the
// already-validated inputs, falling back to 44100 Hz when none report
// one. Ties resolve to the rate seen first.
func DetectSampleRate(files []domain.AudioFile) int {
	counts := make(map[int]int)
	var order []int
	for _, file := range files {
		if !file.Valid || file.SampleRate <= 0 {
			continue
		}
		if counts[file.SampleRate] == 0 {
			order = append(order, file.SampleRate)
		}
		counts[file.SampleRate]++
	}
	if len(order) == 0 {
		return 44100
	}

	best := order[0]
	for _, rate := range order {
		if counts[rate] > counts[best] {
			best = rate
		}
	}
	return best
}

// FormatForPath maps a file extension to its display format name.
func FormatForPath(path string) (string, bool) {
	format, ok := supportedFormats[strings.ToLower(filepath.Ext(path))]
	return format, ok
}

// NewProberForTests creates a prober with an injectable runner.
func NewProberForTests(ffprobePath string, runner commandRunner, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{ffprobePath: ffprobePath, runner: runner, logger: logger}
}
