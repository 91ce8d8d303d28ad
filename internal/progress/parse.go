package progress

import (
	"strconv"
	"strings"
)

// ParsePositionSeconds extracts the elapsed output position from one
// transcoder status line. It recognizes the key=value stream produced
// by ffmpeg's -progress flag (out_time_us, out_time_ms, out_time) and
// the legacy stats format (time=HH:MM:SS.cc). Unrecognized lines are
// not an error; they report ok=false and are skipped by callers.
func ParsePositionSeconds(line string) (float64, bool) {
	line = strings.TrimSpace(line)

	if key, value, found := strings.Cut(line, "="); found {
		switch strings.TrimSpace(key) {
		case "out_time_us", "out_time_ms":
			// Both keys carry microseconds in current ffmpeg builds.
			us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil || us < 0 {
				return 0, false
			}
			return float64(us) / 1e6, true
		case "out_time":
			return parseClock(strings.TrimSpace(value))
		}
	}

	// Legacy stats lines embed "time=HH:MM:SS.cc" mid-line.
	if idx := strings.Index(line, "time="); idx >= 0 {
		rest := line[idx+len("time="):]
		if end := strings.IndexByte(rest, ' '); end >= 0 {
			rest = rest[:end]
		}
		return parseClock(rest)
	}

	return 0, false
}

// IsEndMarker reports whether the line terminates the progress stream.
func IsEndMarker(line string) bool {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	return found && strings.TrimSpace(key) == "progress" && strings.TrimSpace(value) == "end"
}

// ParseSpeed extracts the encode speed multiplier from a "speed=1.23x"
// fragment anywhere in the line.
func ParseSpeed(line string) (float64, bool) {
	idx := strings.Index(line, "speed=")
	if idx < 0 {
		return 0, false
	}
	rest := line[idx+len("speed="):]
	end := strings.IndexByte(rest, 'x')
	if end < 0 {
		return 0, false
	}
	speed, err := strconv.ParseFloat(strings.TrimSpace(rest[:end]), 64)
	if err != nil || speed <= 0 {
		return 0, false
	}
	return speed, true
}

// parseClock converts HH:MM:SS.cc to seconds.
func parseClock(value string) (float64, bool) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, false
	}
	hours, err1 := strconv.ParseFloat(parts[0], 64)
	minutes, err2 := strconv.ParseFloat(parts[1], 64)
	seconds, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	total := hours*3600 + minutes*60 + seconds
	if total < 0 {
		return 0, false
	}
	return total, true
}
