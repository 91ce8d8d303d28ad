// Package bootstrap wires configuration, the session registry, the
// processing pipeline, and the Wails UI runtime into one application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"audiobook-builder/internal/apperr"
	"audiobook-builder/internal/config"
	"audiobook-builder/internal/diagnostics"
	"audiobook-builder/internal/domain"
	"audiobook-builder/internal/media"
	"audiobook-builder/internal/processor"
	"audiobook-builder/internal/progress"
	"audiobook-builder/internal/session"
	"audiobook-builder/internal/transcode"
	"audiobook-builder/internal/workspace"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// progressEventName is the push channel the frontend subscribes to.
const progressEventName = "processing-progress"

var audioDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Audio files",
		Pattern:     "*.mp3;*.m4a;*.m4b;*.aac;*.wav;*.flac",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var coverDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Images",
		Pattern:     "*.jpg;*.jpeg;*.png",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var audiobookDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Audiobook",
		Pattern:     "*.m4b",
	},
}

// App exposes the backend API bound to the frontend.
type App struct {
	Preferences domain.Preferences
	Store       config.Store
	Sessions    *session.Registry
	Diagnostics domain.DiagnosticReport

	preparer  *workspace.Preparer
	processor sessionProcessor
	checker   *diagnostics.Checker
	events    *progress.Buffer
	logger    *slog.Logger
	assets    fs.FS

	mu         sync.Mutex
	runtimeCtx context.Context
	cancelRun  context.CancelFunc
}

// sessionProcessor isolates the merge pipeline behind an interface.
type sessionProcessor interface {
	Process(
		ctx context.Context,
		sess processor.SessionInfo,
		paths []string,
		settings domain.Settings,
		meta domain.Metadata,
		engine *progress.Engine,
	) (processor.Summary, error)
}

// New builds the application with persisted preferences and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	store := config.NewJSONStore(config.DefaultPath())
	prefs, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	prober := media.NewProber(logger)
	tags := media.NewTagWriter(logger)
	checker := diagnostics.NewChecker(tags.Version)
	report := checker.Run(context.Background(), prefs)

	preparer := workspace.NewPreparer(prober, logger)
	supervisor := transcode.NewSupervisor(logger)

	return &App{
		Preferences: prefs,
		Store:       store,
		Sessions:    session.NewRegistry(session.DefaultLockPath(), logger),
		Diagnostics: report,
		preparer:    preparer,
		processor:   processor.New(preparer, supervisor, tags, logger),
		checker:     checker,
		events:      progress.NewBuffer(500),
		logger:      logger,
		assets:      assets,
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Audiobook Builder",
		Width:       1100,
		Height:      760,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// GetFileListInfo validates the given paths and returns per-file
// details plus aggregate totals for the file list view.
func (a *App) GetFileListInfo(paths []string) (domain.FileListInfo, error) {
	info, err := a.preparer.FileListInfo(context.Background(), paths)
	if err != nil {
		return domain.FileListInfo{}, errors.New(apperr.UserMessage(err))
	}
	return info, nil
}

// ReadFileMetadata reads embedded tags from one audio file so the UI
// can prefill the audiobook metadata form.
func (a *App) ReadFileMetadata(path string) (domain.Metadata, error) {
	meta, err := media.ReadMetadata(path)
	if err != nil {
		return domain.Metadata{}, errors.New(apperr.UserMessage(err))
	}
	return meta, nil
}

// StartProcessing begins a merge session and returns its id. Only one
// session may run at a time; a second start fails immediately.
func (a *App) StartProcessing(paths []string, settings domain.Settings, meta domain.Metadata) (string, error) {
	sess, err := a.Sessions.Begin()
	if err != nil {
		if errors.Is(err, session.ErrBusy) {
			return "", errors.New("another conversion is already running")
		}
		return "", errors.New(apperr.UserMessage(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.cancelRun = cancel
	a.mu.Unlock()

	engine := progress.NewEngine(progress.MultiSink{
		progress.SinkFunc(sess.SetProgress),
		progress.SinkFunc(func(update domain.ProgressUpdate) {
			a.publishProgress(sess.ID(), update)
		}),
	})

	a.logger.Info("processing started", "session", sess.ID(), "files", len(paths))
	go a.runSession(ctx, sess, paths, settings, meta, engine)
	return sess.ID(), nil
}

// CancelProcessing requests cancellation of the active session.
func (a *App) CancelProcessing() error {
	a.mu.Lock()
	cancel := a.cancelRun
	a.mu.Unlock()

	if err := a.Sessions.CancelActive(); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return errors.New("no conversion is currently running")
		}
		return err
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// CurrentProgress returns the latest snapshot for the active session,
// or a zero update when nothing is running.
func (a *App) CurrentProgress() domain.ProgressUpdate {
	if sess := a.Sessions.Active(); sess != nil {
		return sess.Progress()
	}
	return domain.ProgressUpdate{}
}

// ProgressEvents returns buffered events with sequence greater than
// sinceSeq, letting a reloading frontend catch up.
func (a *App) ProgressEvents(sinceSeq int64) []progress.Event {
	return a.events.Since(sinceSeq)
}

// GetSettings loads and returns the latest persisted preferences.
func (a *App) GetSettings() (domain.Preferences, error) {
	prefs, err := a.Store.Load()
	if err != nil {
		return domain.Preferences{}, fmt.Errorf("load preferences: %w", err)
	}

	a.mu.Lock()
	a.Preferences = prefs
	a.mu.Unlock()

	return prefs, nil
}

// SaveSettings normalizes and persists preferences, then refreshes diagnostics.
func (a *App) SaveSettings(prefs domain.Preferences) (domain.Preferences, error) {
	normalized := config.Normalize(prefs)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Preferences{}, fmt.Errorf("save preferences: %w", err)
	}

	a.mu.Lock()
	a.Preferences = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(context.Background(), normalized)
	}
	a.mu.Unlock()

	return normalized, nil
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// RefreshDiagnostics reloads preferences and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	prefs, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load preferences: %w", err)
	}

	a.mu.Lock()
	a.Preferences = prefs
	a.Diagnostics = a.checker.Run(context.Background(), prefs)
	report := a.Diagnostics
	a.mu.Unlock()
	return report, nil
}

// PickInputFiles opens a native multi-select dialog for audio files.
func (a *App) PickInputFiles() ([]string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return nil, err
	}

	paths, err := wailsruntime.OpenMultipleFilesDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select audio files",
		Filters: audioDialogFilter,
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// PickCoverArt opens a native file dialog for cover image selection.
func (a *App) PickCoverArt() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select cover art",
		Filters: coverDialogFilter,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(path), nil
}

// PickOutputFile opens a native save dialog for the audiobook path.
func (a *App) PickOutputFile(defaultName string) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	defaultDir := a.Preferences.OutputDir
	a.mu.Unlock()

	if strings.TrimSpace(defaultName) == "" {
		defaultName = "audiobook.m4b"
	}
	path, err := wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
		Title:            "Save audiobook as",
		DefaultDirectory: defaultDir,
		DefaultFilename:  defaultName,
		Filters:          audiobookDialogFilter,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Preferences.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// runSession executes the pipeline and releases the session when done.
func (a *App) runSession(
	ctx context.Context,
	sess *session.Session,
	paths []string,
	settings domain.Settings,
	meta domain.Metadata,
	engine *progress.Engine,
) {
	defer func() {
		a.Sessions.End(sess.ID())
		a.mu.Lock()
		a.cancelRun = nil
		a.mu.Unlock()
	}()

	summary, err := a.processor.Process(ctx, sess, paths, settings, meta, engine)
	switch {
	case errors.Is(err, transcode.ErrCancelled), errors.Is(err, context.Canceled):
		a.logger.Info("processing cancelled", "session", sess.ID())
	case err != nil:
		a.logger.Error("processing failed", "session", sess.ID(), "error", err)
	default:
		a.logger.Info("processing finished", "session", sess.ID(), "output", summary.OutputPath)
	}
}

// publishProgress stores the event and pushes it to the frontend.
func (a *App) publishProgress(sessionID string, update domain.ProgressUpdate) {
	published := a.events.Publish(progress.Event{
		SessionID:      sessionID,
		ProgressUpdate: update,
	})

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, progressEventName, published)
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
