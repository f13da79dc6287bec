package transcription

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/nikki/internal/config"
	"github.com/hyperjump/nikki/internal/events"
	"github.com/hyperjump/nikki/internal/guard"
	"github.com/hyperjump/nikki/internal/metrics"
	"github.com/hyperjump/nikki/internal/models"
	"github.com/hyperjump/nikki/internal/rollup"
	"github.com/hyperjump/nikki/internal/storage"
	"go.uber.org/zap"
)

// SessionTrigger is notified after each chunk of a session is transcribed.
type SessionTrigger interface {
	CheckAndGenerateSessionSummary(ctx context.Context, sessionID string)
}

// StatusSnapshot lists chunk IDs by transcription state, each sorted.
type StatusSnapshot struct {
	Transcribing []string `json:"transcribing"`
	Transcribed  []string `json:"transcribed"`
	Failed       []string `json:"failed"`
	Pending      []string `json:"pending"`
}

// Coordinator transcribes queued chunks, at most ceiling at a time. A finished chunk frees its
// slot for the next queued chunk immediately.
type Coordinator struct {
	store       storage.Storage
	transcriber Transcriber
	trigger     SessionTrigger
	events      events.Publisher
	loc         *time.Location
	ceiling     int
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	queue        []string
	queued       map[string]bool
	active       int
	transcribing map[string]bool
	transcribed  map[string]bool
	failed       map[string]bool
	closed       bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithConcurrency sets how many chunks are transcribed at once.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) { c.ceiling = n }
}

// WithPublisher sets where chunk events are published.
func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) { c.events = p }
}

// WithLocation sets the time zone of the daily insight buckets.
func WithLocation(loc *time.Location) Option {
	return func(c *Coordinator) { c.loc = loc }
}

// NewCoordinator creates a coordinator. trigger may be nil.
func NewCoordinator(store storage.Storage, transcriber Transcriber, trigger SessionTrigger, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		store:        store,
		transcriber:  transcriber,
		trigger:      trigger,
		events:       events.Nop{},
		loc:          time.Local,
		ceiling:      config.DefaultConcurrency,
		ctx:          ctx,
		cancel:       cancel,
		queued:       make(map[string]bool),
		transcribing: make(map[string]bool),
		transcribed:  make(map[string]bool),
		failed:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.ceiling <= 0 {
		c.ceiling = config.DefaultConcurrency
	}
	return c
}

// Enqueue queues chunkID for transcription. It returns false when the chunk is already queued
// or being transcribed, or the coordinator is closed.
func (c *Coordinator) Enqueue(chunkID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.queued[chunkID] || c.transcribing[chunkID] {
		return false
	}
	c.queue = append(c.queue, chunkID)
	c.queued[chunkID] = true
	c.drainLocked()
	return true
}

// Retry clears a failed chunk and queues it again. There is no retry limit.
func (c *Coordinator) Retry(chunkID string) bool {
	c.mu.Lock()
	delete(c.failed, chunkID)
	c.mu.Unlock()
	return c.Enqueue(chunkID)
}

// EnqueuePending queues every stored chunk without segments. It is run at startup to recover
// chunks left untranscribed by a previous process.
func (c *Coordinator) EnqueuePending(ctx context.Context) (int, error) {
	chunks, err := c.store.ListUntranscribedChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list untranscribed chunks: %w", err)
	}
	n := 0
	for _, ch := range chunks {
		if c.Enqueue(ch.ID) {
			n++
		}
	}
	return n, nil
}

// Status returns the current state of every chunk seen by this coordinator.
func (c *Coordinator) Status() StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := append([]string{}, c.queue...)
	sort.Strings(pending)
	return StatusSnapshot{
		Transcribing: sortedKeys(c.transcribing),
		Transcribed:  sortedKeys(c.transcribed),
		Failed:       sortedKeys(c.failed),
		Pending:      pending,
	}
}

// Wait blocks until the queue is empty and no transcription is running.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close drops queued chunks, cancels running transcriptions and waits for them to return.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.queue = nil
	c.queued = make(map[string]bool)
	metrics.QueuedChunks.Set(0)
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// drainLocked starts queued chunks while slots are free. c.mu must be held.
func (c *Coordinator) drainLocked() {
	for len(c.queue) > 0 && c.active < c.ceiling {
		id := c.queue[0]
		c.queue = c.queue[1:]
		delete(c.queued, id)
		c.active++
		c.transcribing[id] = true
		c.wg.Add(1)
		go c.run(id)
	}
	metrics.QueuedChunks.Set(float64(len(c.queue)))
	metrics.ActiveTranscriptions.Set(float64(c.active))
}

func (c *Coordinator) run(chunkID string) {
	defer func() {
		c.mu.Lock()
		c.active--
		if !c.closed {
			c.drainLocked()
		} else {
			metrics.ActiveTranscriptions.Set(float64(c.active))
		}
		c.mu.Unlock()
		c.wg.Done()
	}()

	chunk, err := c.transcribe(c.ctx, chunkID)

	c.mu.Lock()
	delete(c.transcribing, chunkID)
	if err != nil {
		c.failed[chunkID] = true
		delete(c.transcribed, chunkID)
	} else {
		c.transcribed[chunkID] = true
		delete(c.failed, chunkID)
	}
	c.mu.Unlock()

	if err != nil {
		metrics.Transcriptions.WithLabelValues("failed").Inc()
		c.logger.Warn("transcription failed", zap.String("chunk_id", chunkID), zap.Error(err))
		ev := events.Event{Kind: events.ChunkFailed, ChunkID: chunkID, Err: err}
		if chunk != nil {
			ev.SessionID = chunk.SessionID
		}
		c.events.Publish(ev)
		return
	}

	metrics.Transcriptions.WithLabelValues("transcribed").Inc()
	c.events.Publish(events.Event{Kind: events.ChunkTranscribed, ChunkID: chunkID, SessionID: chunk.SessionID})
	if c.trigger != nil {
		c.trigger.CheckAndGenerateSessionSummary(c.ctx, chunk.SessionID)
	}
}

// transcribe runs one chunk and persists its segments. The chunk is returned when it was loaded.
func (c *Coordinator) transcribe(ctx context.Context, chunkID string) (*models.AudioChunk, error) {
	chunk, err := c.store.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	began := time.Now()
	segments, err := c.transcriber.Transcribe(ctx, chunk)
	if err != nil {
		return chunk, err
	}
	if len(segments) == 0 {
		// a silent chunk still counts as transcribed
		segments = []*models.TranscriptSegment{{EndOffset: chunk.Duration().Seconds()}}
	}
	if err := c.store.ReplaceSegments(ctx, chunkID, segments); err != nil {
		return chunk, fmt.Errorf("failed to store segments: %w", err)
	}

	dayStart, dayEnd := rollup.Bounds(guard.LevelDay, chunk.StartedAt, c.loc)
	if err := c.store.RefreshInsights(ctx, dayStart, dayEnd); err != nil {
		c.logger.Warn("failed to refresh insights", zap.String("chunk_id", chunkID), zap.Error(err))
	}
	c.logger.Info("chunk transcribed",
		zap.String("chunk_id", chunkID),
		zap.String("session_id", chunk.SessionID),
		zap.Int("segments", len(segments)),
		zap.Duration("took", time.Since(began)))
	return chunk, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
