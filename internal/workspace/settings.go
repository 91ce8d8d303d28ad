package workspace

import (
	"fmt"
	"path/filepath"
	"strings"

	"audiobook-builder/internal/apperr"
	"audiobook-builder/internal/domain"
)

// Accepted encode parameter ranges.
const (
	minBitrate = 32
	maxBitrate = 128
)

var allowedSampleRates = map[int]bool{
	22050: true,
	32000: true,
	44100: true,
	48000: true,
}

// ValidateSettings checks the encode settings before any workspace is
// created, so bad parameters fail fast with a clear message.
func (p *Preparer) ValidateSettings(settings domain.Settings) error {
	if settings.Bitrate < minBitrate || settings.Bitrate > maxBitrate {
		return apperr.Newf(apperr.KindInvalidInput,
			"bitrate %d kbps is out of range (%d-%d)", settings.Bitrate, minBitrate, maxBitrate)
	}
	if settings.Channels != domain.ChannelMono && settings.Channels != domain.ChannelStereo {
		return apperr.Newf(apperr.KindInvalidInput, "unknown channel mode %q", settings.Channels)
	}
	if !settings.SampleRate.Auto && !allowedSampleRates[settings.SampleRate.Explicit] {
		return apperr.Newf(apperr.KindInvalidInput,
			"sample rate %d Hz is not supported", settings.SampleRate.Explicit)
	}

	if settings.OutputPath == "" {
		return apperr.New(apperr.KindInvalidInput, "output path is required")
	}
	if !strings.EqualFold(filepath.Ext(settings.OutputPath), ".m4b") {
		return apperr.Newf(apperr.KindInvalidInput,
			"output path %q must end in .m4b", filepath.Base(settings.OutputPath))
	}
	parent := filepath.Dir(settings.OutputPath)
	info, err := p.stat(parent)
	if err != nil {
		return apperr.New(apperr.KindInvalidInput,
			fmt.Sprintf("output directory %q does not exist", parent))
	}
	if !info.IsDir() {
		return apperr.Newf(apperr.KindInvalidInput, "output parent %q is not a directory", parent)
	}
	return nil
}
