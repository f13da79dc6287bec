// Package rollup maintains the summary hierarchy: one summary per session, rolled up into
// day, week, month and year summaries, plus the on-demand year wrap.
package rollup

import (
	"time"

	"github.com/hyperjump/nikki/internal/events"
	"github.com/hyperjump/nikki/internal/guard"
	"github.com/hyperjump/nikki/internal/storage"
	"github.com/hyperjump/nikki/internal/summarizer"
	"go.uber.org/zap"
)

// Coordinator generates session summaries and period rollups.
type Coordinator struct {
	store        storage.Storage
	engine       summarizer.Engine
	guard        guard.Guard
	events       events.Publisher
	loc          *time.Location
	includeNotes bool
	logger       *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithGuard replaces the default in-process generation guard.
func WithGuard(g guard.Guard) Option {
	return func(c *Coordinator) { c.guard = g }
}

// WithPublisher sets where summary events are published.
func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) { c.events = p }
}

// WithLocation sets the time zone used for period boundaries.
func WithLocation(loc *time.Location) Option {
	return func(c *Coordinator) { c.loc = loc }
}

// WithIncludeNotes makes automatic session summaries include session notes and category.
func WithIncludeNotes(include bool) Option {
	return func(c *Coordinator) { c.includeNotes = include }
}

// New creates a coordinator. Without options it uses an in-process guard, discards events,
// and computes boundaries in the local time zone.
func New(store storage.Storage, engine summarizer.Engine, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		engine: engine,
		guard:  guard.NewMemory(),
		events: events.Nop{},
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	return c
}

// Location returns the time zone used for period boundaries.
func (c *Coordinator) Location() *time.Location {
	return c.loc
}

// IncludeNotes reports whether automatic session summaries include notes.
func (c *Coordinator) IncludeNotes() bool {
	return c.includeNotes
}
