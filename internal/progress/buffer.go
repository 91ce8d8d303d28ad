package progress

import (
	"sync"
	"time"

	"audiobook-builder/internal/domain"
)

// Event is a sequenced progress update retained for UI catch-up reads.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId"`
	domain.ProgressUpdate
}

// Buffer stores recent events and provides incremental reads, so a
// frontend reconnecting mid-session can replay what it missed.
type Buffer struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewBuffer creates a bounded in-memory event buffer.
func NewBuffer(maxEvents int) *Buffer {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &Buffer{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event, assigning sequence and timestamp.
func (b *Buffer) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *Buffer) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
