package progress

import "testing"

// TestParsePositionSecondsProgressKeys checks the -progress key forms.
func TestParsePositionSecondsProgressKeys(t *testing.T) {
	cases := []struct {
		line string
		want float64
	}{
		{"out_time_us=90500000", 90.5},
		{"out_time_ms=90500000", 90.5},
		{"out_time=00:01:30.500000", 90.5},
		{"out_time=01:00:00.000000", 3600},
	}
	for _, tc := range cases {
		got, ok := ParsePositionSeconds(tc.line)
		if !ok {
			t.Fatalf("ParsePositionSeconds(%q) ok = false", tc.line)
		}
		if got != tc.want {
			t.Fatalf("ParsePositionSeconds(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}

// TestParsePositionSecondsLegacyStats checks mid-line time= parsing.
func TestParsePositionSecondsLegacyStats(t *testing.T) {
	line := "size=    1024kB time=00:02:00.00 bitrate=  64.0kbits/s speed=12.1x"
	got, ok := ParsePositionSeconds(line)
	if !ok {
		t.Fatalf("ParsePositionSeconds ok = false")
	}
	if got != 120 {
		t.Fatalf("position = %v, want 120", got)
	}
}

// TestParsePositionSecondsRejectsGarbage checks unknown lines are skipped.
func TestParsePositionSecondsRejectsGarbage(t *testing.T) {
	for _, line := range []string{"", "frame=12", "out_time_us=abc", "out_time=bogus", "out_time_us=-5"} {
		if _, ok := ParsePositionSeconds(line); ok {
			t.Fatalf("ParsePositionSeconds(%q) ok = true, want false", line)
		}
	}
}

// TestIsEndMarker checks detection of the stream terminator.
func TestIsEndMarker(t *testing.T) {
	if !IsEndMarker("progress=end") {
		t.Fatalf("IsEndMarker(progress=end) = false")
	}
	if IsEndMarker("progress=continue") {
		t.Fatalf("IsEndMarker(progress=continue) = true")
	}
	if IsEndMarker("out_time_us=1") {
		t.Fatalf("IsEndMarker(out_time_us=1) = true")
	}
}

// TestParseSpeed checks speed multiplier extraction.
func TestParseSpeed(t *testing.T) {
	got, ok := ParseSpeed("speed=12.3x")
	if !ok || got != 12.3 {
		t.Fatalf("ParseSpeed = %v, %v, want 12.3, true", got, ok)
	}

	got, ok = ParseSpeed("size=1kB time=00:00:01.00 speed=0.98x")
	if !ok || got != 0.98 {
		t.Fatalf("ParseSpeed mid-line = %v, %v, want 0.98, true", got, ok)
	}

	if _, ok := ParseSpeed("speed=N/A"); ok {
		t.Fatalf("ParseSpeed(N/A) ok = true, want false")
	}
}
