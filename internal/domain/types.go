package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Stage identifies one phase of the audiobook build pipeline.
type Stage string

const (
	StageAnalyzing       Stage = "analyzing"
	StageConverting      Stage = "converting"
	StageWritingMetadata Stage = "writing"
	StageCompleted       Stage = "completed"
	StageFailed          Stage = "failed"
	StageCancelled       Stage = "cancelled"
)

// ParseStage resolves a wire stage string, accepting the legacy
// "merging" alias for the converting stage.
func ParseStage(raw string) (Stage, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "analyzing":
		return StageAnalyzing, true
	case "converting", "merging":
		return StageConverting, true
	case "writing", "writing_metadata":
		return StageWritingMetadata, true
	case "completed":
		return StageCompleted, true
	case "failed":
		return StageFailed, true
	case "cancelled":
		return StageCancelled, true
	default:
		return "", false
	}
}

// IsTerminal reports whether the stage ends a session.
func (s Stage) IsTerminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageCancelled:
		return true
	default:
		return false
	}
}

// ChannelMode selects the output channel layout.
type ChannelMode string

const (
	ChannelMono   ChannelMode = "Mono"
	ChannelStereo ChannelMode = "Stereo"
)

// Count returns the number of audio channels for the mode.
func (c ChannelMode) Count() int {
	if c == ChannelStereo {
		return 2
	}
	return 1
}

// SampleRate is either automatic detection or an explicit rate in Hz.
// Wire form: the string "auto" or {"explicit": 44100}.
type SampleRate struct {
	Auto     bool
	Explicit int
}

// SampleRateAuto returns the auto-detect sample rate configuration.
func SampleRateAuto() SampleRate {
	return SampleRate{Auto: true}
}

// SampleRateExplicit returns an explicit sample rate configuration.
func SampleRateExplicit(hz int) SampleRate {
	return SampleRate{Explicit: hz}
}

// MarshalJSON encodes "auto" or an explicit rate object.
func (s SampleRate) MarshalJSON() ([]byte, error) {
	if s.Auto {
		return json.Marshal("auto")
	}
	return json.Marshal(struct {
		Explicit int `json:"explicit"`
	}{Explicit: s.Explicit})
}

// UnmarshalJSON decodes both wire forms of the sample rate setting.
func (s *SampleRate) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if !strings.EqualFold(strings.TrimSpace(str), "auto") {
			return fmt.Errorf("unknown sample rate mode: %q", str)
		}
		*s = SampleRate{Auto: true}
		return nil
	}

	var explicit struct {
		Explicit int `json:"explicit"`
	}
	if err := json.Unmarshal(data, &explicit); err != nil {
		return fmt.Errorf("invalid sample rate value: %w", err)
	}
	*s = SampleRate{Explicit: explicit.Explicit}
	return nil
}

// Settings holds per-request encode parameters and the destination path.
type Settings struct {
	Bitrate    int         `json:"bitrate"`
	Channels   ChannelMode `json:"channels"`
	SampleRate SampleRate  `json:"sampleRate"`
	OutputPath string      `json:"outputPath"`
}

// AudioFile describes one validated input file.
type AudioFile struct {
	Path string `json:"path"`
	// Size in bytes, zero when unreadable.
	Size int64 `json:"size"`
	// Duration in seconds, zero when unknown.
	Duration   float64 `json:"duration"`
	Format     string  `json:"format,omitempty"`
	Bitrate    int     `json:"bitrate,omitempty"`
	SampleRate int     `json:"sampleRate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	Valid      bool    `json:"isValid"`
	Error      string  `json:"error,omitempty"`
}

// FileListInfo summarizes a validated input list for the UI file table.
type FileListInfo struct {
	Files         []AudioFile `json:"files"`
	TotalDuration float64     `json:"totalDuration"`
	TotalSize     int64       `json:"totalSize"`
	ValidCount    int         `json:"validCount"`
	InvalidCount  int         `json:"invalidCount"`
}

// Metadata carries audiobook tag fields and optional embedded cover art.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	Album       string `json:"album,omitempty"`
	Narrator    string `json:"narrator,omitempty"`
	Year        int    `json:"year,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Description string `json:"description,omitempty"`
	CoverArt    []byte `json:"coverArt,omitempty"`
}

// IsZero reports whether no metadata field is set.
func (m Metadata) IsZero() bool {
	return m.Title == "" && m.Author == "" && m.Album == "" &&
		m.Narrator == "" && m.Year == 0 && m.Genre == "" &&
		m.Description == "" && len(m.CoverArt) == 0
}

// ProgressUpdate is one progress event pushed to the UI.
type ProgressUpdate struct {
	Stage       Stage   `json:"stage"`
	Percentage  float64 `json:"percentage"`
	Message     string  `json:"message"`
	CurrentFile string  `json:"current_file,omitempty"`
	// ETASeconds is nil until enough samples exist for an estimate.
	ETASeconds *float64 `json:"eta_seconds,omitempty"`
}

// Preferences are the persisted application defaults.
type Preferences struct {
	Bitrate    int         `json:"bitrate"`
	Channels   ChannelMode `json:"channels"`
	SampleRate SampleRate  `json:"sampleRate"`
	OutputDir  string      `json:"outputDir"`
}
