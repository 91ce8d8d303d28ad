package config

import (
	"os"
	"path/filepath"
	"testing"

	"audiobook-builder/internal/domain"
)

// TestLoadMissingFileReturnsDefaults checks first-launch behavior.
func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "settings.json"))

	prefs, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if prefs.Bitrate != 64 {
		t.Fatalf("default bitrate = %d, want 64", prefs.Bitrate)
	}
	if prefs.Channels != domain.ChannelMono {
		t.Fatalf("default channels = %q, want Mono", prefs.Channels)
	}
	if !prefs.SampleRate.Auto {
		t.Fatalf("default sample rate is not auto")
	}
	if prefs.OutputDir == "" {
		t.Fatalf("default output dir is empty")
	}
}

// TestSaveAndLoadRoundTrip checks persistence through the JSON file.
func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	store := NewJSONStore(path)

	saved := domain.Preferences{
		Bitrate:    96,
		Channels:   domain.ChannelStereo,
		SampleRate: domain.SampleRateExplicit(48000),
		OutputDir:  "/books/out",
	}
	if err := store.Save(saved); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded != saved {
		t.Fatalf("loaded = %+v, want %+v", loaded, saved)
	}
}

// TestLoadRejectsCorruptJSON checks parse errors surface.
func TestLoadRejectsCorruptJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewJSONStore(path).Load(); err == nil {
		t.Fatalf("Load() error = nil, want parse error")
	}
}

// TestNormalizeRepairsOutOfRangeFields checks hand-edited values are
// replaced with defaults.
func TestNormalizeRepairsOutOfRangeFields(t *testing.T) {
	got := Normalize(domain.Preferences{
		Bitrate:    9000,
		Channels:   "Surround",
		SampleRate: domain.SampleRateExplicit(12345),
	})

	if got.Bitrate != 64 {
		t.Fatalf("bitrate = %d, want 64", got.Bitrate)
	}
	if got.Channels != domain.ChannelMono {
		t.Fatalf("channels = %q, want Mono", got.Channels)
	}
	if !got.SampleRate.Auto {
		t.Fatalf("sample rate not reset to auto")
	}
	if got.OutputDir == "" {
		t.Fatalf("output dir not defaulted")
	}
}

// TestNormalizeKeepsValidFields checks in-range values survive.
func TestNormalizeKeepsValidFields(t *testing.T) {
	prefs := domain.Preferences{
		Bitrate:    128,
		Channels:   domain.ChannelStereo,
		SampleRate: domain.SampleRateExplicit(22050),
		OutputDir:  "/books/out",
	}
	if got := Normalize(prefs); got != prefs {
		t.Fatalf("Normalize() = %+v, want unchanged", got)
	}
}
