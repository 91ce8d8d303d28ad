package bootstrap

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"audiobook-builder/internal/domain"
	"audiobook-builder/internal/processor"
	"audiobook-builder/internal/progress"
	"audiobook-builder/internal/session"
)

// fakeStore keeps preferences in memory.
type fakeStore struct {
	prefs domain.Preferences
}

func (f *fakeStore) Load() (domain.Preferences, error) {
	return f.prefs, nil
}

func (f *fakeStore) Save(prefs domain.Preferences) error {
	f.prefs = prefs
	return nil
}

// fakeProcessor blocks until released, then completes the session.
type fakeProcessor struct {
	started chan struct{}
	release chan struct{}
	sess    processor.SessionInfo
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (f *fakeProcessor) Process(
	ctx context.Context,
	sess processor.SessionInfo,
	paths []string,
	settings domain.Settings,
	meta domain.Metadata,
	engine *progress.Engine,
) (processor.Summary, error) {
	f.sess = sess
	close(f.started)
	<-f.release

	engine.Converting(1, "Conversion complete", "")
	engine.Complete("Audiobook created successfully")
	return processor.Summary{OutputPath: settings.OutputPath}, nil
}

// newTestApp wires an App around fakes, skipping Wails startup.
func newTestApp(t *testing.T, proc sessionProcessor) *App {
	t.Helper()
	logger := slog.Default()
	return &App{
		Preferences: domain.Preferences{Bitrate: 64, Channels: domain.ChannelMono, SampleRate: domain.SampleRateAuto()},
		Store:       &fakeStore{},
		Sessions:    session.NewRegistry(filepath.Join(t.TempDir(), "processing.lock"), logger),
		processor:   proc,
		events:      progress.NewBuffer(100),
		logger:      logger,
	}
}

// waitForIdle polls until the active session clears.
func waitForIdle(t *testing.T, app *App) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if app.Sessions.Active() == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session did not end in time")
}

// TestStartProcessingRunsToCompletion checks the async session flow
// publishes sequenced progress ending in completed.
func TestStartProcessingRunsToCompletion(t *testing.T) {
	proc := newFakeProcessor()
	app := newTestApp(t, proc)

	id, err := app.StartProcessing([]string{"/books/ch01.mp3"}, domain.Settings{OutputPath: "/out/book.m4b"}, domain.Metadata{})
	if err != nil {
		t.Fatalf("StartProcessing() error = %v", err)
	}
	if id == "" {
		t.Fatalf("session id is empty")
	}

	<-proc.started
	close(proc.release)
	waitForIdle(t, app)

	events := app.ProgressEvents(0)
	if len(events) == 0 {
		t.Fatalf("no progress events buffered")
	}
	last := events[len(events)-1]
	if last.Stage != domain.StageCompleted || last.Percentage != 100 {
		t.Fatalf("final event = %+v, want completed at 100", last)
	}
	if last.SessionID != id {
		t.Fatalf("event session = %q, want %q", last.SessionID, id)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Fatalf("event sequence not increasing at %d", i)
		}
	}
}

// TestStartProcessingRejectsConcurrentSession checks busy rejection.
func TestStartProcessingRejectsConcurrentSession(t *testing.T) {
	proc := newFakeProcessor()
	app := newTestApp(t, proc)

	if _, err := app.StartProcessing([]string{"/books/ch01.mp3"}, domain.Settings{}, domain.Metadata{}); err != nil {
		t.Fatalf("StartProcessing() error = %v", err)
	}
	<-proc.started

	_, err := app.StartProcessing([]string{"/books/ch02.mp3"}, domain.Settings{}, domain.Metadata{})
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("second StartProcessing() error = %v, want busy message", err)
	}

	close(proc.release)
	waitForIdle(t, app)
}

// TestCancelProcessing checks the cancel flag reaches the session.
func TestCancelProcessing(t *testing.T) {
	proc := newFakeProcessor()
	app := newTestApp(t, proc)

	if _, err := app.StartProcessing([]string{"/books/ch01.mp3"}, domain.Settings{}, domain.Metadata{}); err != nil {
		t.Fatalf("StartProcessing() error = %v", err)
	}
	<-proc.started

	if err := app.CancelProcessing(); err != nil {
		t.Fatalf("CancelProcessing() error = %v", err)
	}
	if !proc.sess.Cancelled() {
		t.Fatalf("session not flagged cancelled")
	}

	close(proc.release)
	waitForIdle(t, app)
}

// TestCancelProcessingWithoutSession checks the no-session error.
func TestCancelProcessingWithoutSession(t *testing.T) {
	app := newTestApp(t, newFakeProcessor())

	err := app.CancelProcessing()
	if err == nil || !strings.Contains(err.Error(), "no conversion") {
		t.Fatalf("CancelProcessing() error = %v, want no-session message", err)
	}
}

// TestCurrentProgressSnapshot checks snapshot reads for active and
// idle states.
func TestCurrentProgressSnapshot(t *testing.T) {
	proc := newFakeProcessor()
	app := newTestApp(t, proc)

	if got := app.CurrentProgress(); got.Stage != "" {
		t.Fatalf("idle progress = %+v, want zero", got)
	}

	if _, err := app.StartProcessing([]string{"/books/ch01.mp3"}, domain.Settings{}, domain.Metadata{}); err != nil {
		t.Fatalf("StartProcessing() error = %v", err)
	}
	<-proc.started

	if got := app.CurrentProgress(); got.Stage != domain.StageAnalyzing {
		t.Fatalf("active progress stage = %q, want analyzing", got.Stage)
	}

	close(proc.release)
	waitForIdle(t, app)
}

// TestSaveSettingsNormalizes checks persistence applies defaults to
// out-of-range values.
func TestSaveSettingsNormalizes(t *testing.T) {
	app := newTestApp(t, newFakeProcessor())

	saved, err := app.SaveSettings(domain.Preferences{Bitrate: 9000, Channels: "Surround"})
	if err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}
	if saved.Bitrate != 64 || saved.Channels != domain.ChannelMono {
		t.Fatalf("saved = %+v, want normalized defaults", saved)
	}

	loaded, err := app.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	if loaded != saved {
		t.Fatalf("loaded = %+v, want %+v", loaded, saved)
	}
}
