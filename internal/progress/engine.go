// Package progress converts stage-local signals into the single
// monotonic percentage stream consumed by the UI.
package progress

import (
	"sync"
	"time"

	"audiobook-builder/internal/domain"
)

// Stage bands. Percent within a stage is band lower + fraction * width.
const (
	analyzingLower  = 0.0
	analyzingWidth  = 10.0
	convertingLower = 10.0
	convertingWidth = 70.0
	metadataLower   = 80.0
	metadataWidth   = 15.0
	finalizingLower = 95.0
	finalizingWidth = 5.0
)

// minETASamples is the number of progress reports required before an
// ETA is published; earlier extrapolations are wildly off.
const minETASamples = 5

// Sink receives emitted progress events. Implementations must not
// block: emission is fire-and-forget from the pipeline's perspective.
type Sink interface {
	Emit(update domain.ProgressUpdate)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(update domain.ProgressUpdate)

// Emit calls the wrapped function.
func (f SinkFunc) Emit(update domain.ProgressUpdate) {
	f(update)
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []Sink

// Emit forwards the update to every sink.
func (m MultiSink) Emit(update domain.ProgressUpdate) {
	for _, sink := range m {
		sink.Emit(update)
	}
}

// Engine owns percentage mapping, monotonicity, and the ETA policy for
// one session. Callers report band-local fractions; the engine never
// trusts them to keep percent non-decreasing and enforces it itself.
// After a terminal event no further events are emitted.
type Engine struct {
	sink Sink
	now  func() time.Time

	mu          sync.Mutex
	started     time.Time
	samples     int
	lastPercent float64
	terminal    bool
}

// NewEngine creates an engine emitting to sink.
func NewEngine(sink Sink) *Engine {
	e := &Engine{sink: sink, now: time.Now}
	e.started = e.now()
	return e
}

// Analyzing reports validation progress in the 0-10 band.
func (e *Engine) Analyzing(fraction float64, message string) {
	e.report(domain.StageAnalyzing, analyzingLower, analyzingWidth, fraction, message, "", false)
}

// Converting reports transcode progress in the 10-80 band, with the
// file currently being written.
func (e *Engine) Converting(fraction float64, message, currentFile string) {
	e.report(domain.StageConverting, convertingLower, convertingWidth, fraction, message, currentFile, true)
}

// WritingMetadata reports tag writing progress in the 80-95 band.
func (e *Engine) WritingMetadata(fraction float64, message string) {
	e.report(domain.StageWritingMetadata, metadataLower, metadataWidth, fraction, message, "", true)
}

// Finalizing reports move-and-cleanup progress in the 95-100 band. It
// stays under the writing stage on the wire; "completed" is reserved
// for the single terminal event.
func (e *Engine) Finalizing(fraction float64, message string) {
	e.report(domain.StageWritingMetadata, finalizingLower, finalizingWidth, fraction, message, "", true)
}

// Complete emits the single terminal completed event at exactly 100.
func (e *Engine) Complete(message string) {
	e.emitTerminal(domain.StageCompleted, 100.0, message)
}

// Fail emits the single terminal failed event. Percent keeps its last
// value so the UI bar does not jump backwards.
func (e *Engine) Fail(message string) {
	e.mu.Lock()
	percent := e.lastPercent
	e.mu.Unlock()
	e.emitTerminal(domain.StageFailed, percent, message)
}

// Cancelled emits the single terminal cancelled event.
func (e *Engine) Cancelled(message string) {
	e.mu.Lock()
	percent := e.lastPercent
	e.mu.Unlock()
	e.emitTerminal(domain.StageCancelled, percent, message)
}

// Percent returns the last emitted percentage.
func (e *Engine) Percent() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPercent
}

// report maps a band-local fraction onto the global scale and emits.
func (e *Engine) report(stage domain.Stage, lower, width, fraction float64, message, currentFile string, withETA bool) {
	e.mu.Lock()
	if e.terminal {
		e.mu.Unlock()
		return
	}

	percent := lower + clampFraction(fraction)*width
	if percent > lower+width {
		percent = lower + width
	}
	if percent < e.lastPercent {
		percent = e.lastPercent
	}
	e.lastPercent = percent
	e.samples++

	var eta *float64
	if withETA && e.samples >= minETASamples && percent > 0 {
		elapsed := e.now().Sub(e.started).Seconds()
		remaining := elapsed * (100.0 - percent) / percent
		if remaining > 0 {
			eta = &remaining
		}
	}
	e.mu.Unlock()

	e.sink.Emit(domain.ProgressUpdate{
		Stage:       stage,
		Percentage:  percent,
		Message:     message,
		CurrentFile: currentFile,
		ETASeconds:  eta,
	})
}

// emitTerminal emits at most one terminal event for the session.
func (e *Engine) emitTerminal(stage domain.Stage, percent float64, message string) {
	e.mu.Lock()
	if e.terminal {
		e.mu.Unlock()
		return
	}
	e.terminal = true
	if percent > e.lastPercent {
		e.lastPercent = percent
	}
	percent = e.lastPercent
	e.mu.Unlock()

	e.sink.Emit(domain.ProgressUpdate{
		Stage:      stage,
		Percentage: percent,
		Message:    message,
	})
}

// clampFraction bounds a stage-local fraction to [0, 1].
func clampFraction(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// NewEngineForTests creates an engine with an injectable clock.
func NewEngineForTests(sink Sink, now func() time.Time) *Engine {
	e := &Engine{sink: sink, now: now}
	e.started = now()
	return e
}
