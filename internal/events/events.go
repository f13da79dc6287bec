// Package events provides a typed publish/subscribe bus for pipeline notifications.
package events

import (
	"sync"
	"time"

	"github.com/hyperjump/nikki/internal/models"
	"go.uber.org/zap"
)

// Kind identifies what happened.
type Kind string

const (
	// ChunkTranscribed fires after a chunk's segments are persisted.
	ChunkTranscribed Kind = "chunk.transcribed"
	// ChunkFailed fires when transcription of a chunk fails.
	ChunkFailed Kind = "chunk.failed"
	// SummaryUpdated fires for every summary row written (session or period).
	SummaryUpdated Kind = "summary.updated"
	// PeriodsUpdated fires once after a session summary change has propagated through its periods.
	PeriodsUpdated Kind = "periods.updated"
)

// Event is a single notification. Summary is set for SummaryUpdated; ChunkID and Err for chunk events.
type Event struct {
	Kind      Kind
	SessionID string
	ChunkID   string
	Summary   *models.Summary
	Err       error
	At        time.Time
}

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(ev Event)
}

// Bus delivers events synchronously to subscribers in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
	logger *zap.Logger
}

type subscription struct {
	id int
	fn func(Event)
}

// NewBus returns an empty bus. logger may be nil.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every subscriber. A panicking subscriber is recovered and logged
// so one bad observer cannot break the pipeline.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()
	for _, s := range subs {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked", zap.String("kind", string(ev.Kind)), zap.Any("panic", r))
		}
	}()
	s.fn(ev)
}

// Recorder collects events, for tests and diagnostics.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish records ev.
func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Nop discards events.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(Event) {}
