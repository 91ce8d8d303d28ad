package config

import (
	"os"
	"path/filepath"

	"audiobook-builder/internal/domain"
)

// DefaultPreferences returns baseline local configuration for first launch.
func DefaultPreferences() domain.Preferences {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Preferences{
		Bitrate:    64,
		Channels:   domain.ChannelMono,
		SampleRate: domain.SampleRate{Auto: true},
		OutputDir:  filepath.Join(homeDir, "Audiobooks"),
	}
}

// Normalize replaces out-of-range or missing fields with defaults so a
// hand-edited preferences file cannot leave the app unusable.
func Normalize(prefs domain.Preferences) domain.Preferences {
	defaults := DefaultPreferences()

	if prefs.Bitrate < 32 || prefs.Bitrate > 128 {
		prefs.Bitrate = defaults.Bitrate
	}
	if prefs.Channels != domain.ChannelMono && prefs.Channels != domain.ChannelStereo {
		prefs.Channels = defaults.Channels
	}
	if !prefs.SampleRate.Auto {
		switch prefs.SampleRate.Explicit {
		case 22050, 32000, 44100, 48000:
		default:
			prefs.SampleRate = defaults.SampleRate
		}
	}
	if prefs.OutputDir == "" {
		prefs.OutputDir = defaults.OutputDir
	}

	return prefs
}
