package rollup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/nikki/internal/digest"
	"github.com/hyperjump/nikki/internal/events"
	"github.com/hyperjump/nikki/internal/guard"
	"github.com/hyperjump/nikki/internal/metrics"
	"github.com/hyperjump/nikki/internal/models"
	"github.com/hyperjump/nikki/internal/storage"
	"github.com/hyperjump/nikki/internal/summarizer"
	"go.uber.org/zap"
)

// ErrEmptyTranscript is returned when a session has no transcribed text.
var ErrEmptyTranscript = errors.New("session transcript is empty")

const levelSession = "session"

// SessionOptions controls GenerateSessionSummary.
type SessionOptions struct {
	// Force skips the cache check and invalidates chunk summaries whose text changed.
	Force bool
	// IncludeNotes passes the session's category and notes to the engine and includes them in the hash.
	IncludeNotes bool
}

// GenerateSessionSummary produces or refreshes the single summary of a session, then
// propagates the change through the day, week, month and year containing the session start.
// An unchanged transcript returns the stored summary without calling the engine.
func (c *Coordinator) GenerateSessionSummary(ctx context.Context, sessionID string, opts SessionOptions) (*models.Summary, error) {
	return c.generateSessionSummary(ctx, sessionID, opts, true)
}

func (c *Coordinator) generateSessionSummary(ctx context.Context, sessionID string, opts SessionOptions, propagate bool) (*models.Summary, error) {
	chunks, err := c.store.ListChunksBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, storage.ErrNotFound)
	}

	chunkTexts := make([]summarizer.ChunkText, 0, len(chunks))
	var parts []string
	for _, ch := range chunks {
		segments, err := c.store.ListSegments(ctx, ch.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list segments of chunk %s: %w", ch.ID, err)
		}
		var texts []string
		for _, seg := range segments {
			if t := strings.TrimSpace(seg.Text); t != "" {
				texts = append(texts, t)
			}
		}
		text := strings.Join(texts, " ")
		chunkTexts = append(chunkTexts, summarizer.ChunkText{ID: ch.ID, Text: text})
		if text != "" {
			parts = append(parts, text)
		}
	}
	transcript := strings.Join(parts, " ")
	if transcript == "" {
		return nil, ErrEmptyTranscript
	}

	hashInputs := []string{transcript}
	var sessionContext string
	if opts.IncludeNotes {
		meta, err := c.store.GetSessionMetadata(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to get session metadata: %w", err)
		}
		var notes string
		var category models.Category
		if meta != nil {
			notes = strings.TrimSpace(meta.Notes)
			category = meta.Category
		}
		sessionContext = notesContext(category, notes)
		hashInputs = append(hashInputs, "notes:"+notes, "category:"+string(category))
	}
	hash := digest.ComputeInputHash(hashInputs)

	if !opts.Force {
		existing, err := c.store.GetSessionSummary(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to get session summary: %w", err)
		}
		if existing != nil && existing.InputHash == hash {
			metrics.SummaryCacheHits.WithLabelValues(levelSession).Inc()
			c.logger.Debug("session summary up to date", zap.String("session_id", sessionID))
			return existing, nil
		}
	}

	start := chunks[0].StartedAt
	end := chunks[len(chunks)-1].EndedAt
	if end.Before(start) {
		end = start
	}

	if opts.Force {
		stale, err := c.engine.ClearChangedChunkSummaries(ctx, chunkTexts)
		if err != nil {
			c.logger.Warn("failed to invalidate chunk summaries", zap.String("session_id", sessionID), zap.Error(err))
		} else {
			c.logger.Info("chunk summaries invalidated",
				zap.String("session_id", sessionID),
				zap.Int("stale", len(stale)),
				zap.Int("chunks", len(chunkTexts)))
		}
	}

	began := time.Now()
	sum, err := c.engine.SummarizeSession(ctx, summarizer.SessionRequest{
		SessionID: sessionID,
		Chunks:    chunkTexts,
		Text:      transcript,
		Context:   sessionContext,
	})
	metrics.EngineLatency.WithLabelValues("session").Observe(time.Since(began).Seconds())
	if err != nil {
		metrics.RollupFailures.WithLabelValues(levelSession).Inc()
		return nil, fmt.Errorf("failed to summarize session %s: %w", sessionID, err)
	}

	sum.ID = uuid.New().String()
	sum.PeriodType = models.PeriodSession
	sum.PeriodStart = start
	sum.PeriodEnd = end
	sum.SessionID = sessionID
	sum.InputHash = hash
	sum.SourceIDs = digest.SourceIDsToJSON(chunkIDs(chunkTexts))
	if sum.EngineTier == "" {
		sum.EngineTier = c.engine.Tier()
	}
	if sum.TopicsJSON == "" {
		sum.TopicsJSON = "[]"
	}
	if err := c.store.ReplaceSessionSummary(ctx, sum); err != nil {
		return nil, fmt.Errorf("failed to store session summary: %w", err)
	}
	metrics.SummariesGenerated.WithLabelValues(levelSession).Inc()
	c.logger.Info("session summary generated",
		zap.String("session_id", sessionID),
		zap.String("engine", sum.EngineTier),
		zap.Duration("took", time.Since(began)))
	c.events.Publish(events.Event{Kind: events.SummaryUpdated, SessionID: sessionID, Summary: sum})

	if propagate {
		c.propagate(ctx, start)
		c.events.Publish(events.Event{Kind: events.PeriodsUpdated, SessionID: sessionID})
	}

	c.engine.Unload()
	return sum, nil
}

// CheckAndGenerateSessionSummary generates the session summary once every chunk of the session
// is transcribed and no summary exists yet. Failures are logged, never returned.
func (c *Coordinator) CheckAndGenerateSessionSummary(ctx context.Context, sessionID string) {
	complete, err := c.store.IsSessionTranscriptionComplete(ctx, sessionID)
	if err != nil {
		c.logger.Warn("failed to check session completion", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if !complete {
		return
	}
	existing, err := c.store.GetSessionSummary(ctx, sessionID)
	if err != nil {
		c.logger.Warn("failed to get session summary", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if existing != nil {
		return
	}

	_, err = c.GenerateSessionSummary(ctx, sessionID, SessionOptions{IncludeNotes: c.includeNotes})
	switch {
	case errors.Is(err, ErrEmptyTranscript):
		c.logger.Info("session has no speech, skipping summary", zap.String("session_id", sessionID))
	case err != nil:
		c.logger.Error("session summary failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// ApplySegmentEdit stores corrected segment text, refreshes the day's insights and regenerates
// the session summary when the session is complete. Only changed chunks are re-summarized.
// The returned summary is nil when the session is still being transcribed.
func (c *Coordinator) ApplySegmentEdit(ctx context.Context, segmentID, text string) (*models.TranscriptSegment, *models.Summary, error) {
	seg, err := c.store.UpdateSegmentText(ctx, segmentID, text)
	if err != nil {
		return nil, nil, err
	}
	chunk, err := c.store.GetChunk(ctx, seg.ChunkID)
	if err != nil {
		return seg, nil, err
	}
	dayStart, dayEnd := Bounds(guard.LevelDay, chunk.StartedAt, c.loc)
	if err := c.store.RefreshInsights(ctx, dayStart, dayEnd); err != nil {
		c.logger.Warn("failed to refresh insights", zap.Time("day", dayStart), zap.Error(err))
	}

	complete, err := c.store.IsSessionTranscriptionComplete(ctx, chunk.SessionID)
	if err != nil || !complete {
		return seg, nil, err
	}
	sum, err := c.GenerateSessionSummary(ctx, chunk.SessionID, SessionOptions{IncludeNotes: c.includeNotes})
	if err != nil {
		return seg, nil, err
	}
	return seg, sum, nil
}

// UpdateSessionMetadata saves metadata and refreshes the summaries that depend on it: the session
// summary when notes are summarized, and the rollups whose day hash includes the notes.
func (c *Coordinator) UpdateSessionMetadata(ctx context.Context, meta *models.SessionMetadata) error {
	if err := c.store.UpsertSessionMetadata(ctx, meta); err != nil {
		return err
	}
	session, err := c.store.GetSession(ctx, meta.SessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !session.Complete() {
		return nil
	}
	if c.includeNotes {
		_, err := c.GenerateSessionSummary(ctx, meta.SessionID, SessionOptions{IncludeNotes: true})
		if err != nil && !errors.Is(err, ErrEmptyTranscript) {
			return err
		}
		return nil
	}
	c.propagate(ctx, session.StartedAt)
	c.events.Publish(events.Event{Kind: events.PeriodsUpdated, SessionID: meta.SessionID})
	return nil
}

// propagate refreshes day, week, month and year for t, in that order.
func (c *Coordinator) propagate(ctx context.Context, t time.Time) {
	day := c.UpdateDailySummary(ctx, t, false)
	week := c.UpdateWeeklySummary(ctx, t, false)
	month := c.UpdateMonthlySummary(ctx, t, false)
	year := c.UpdateYearlySummary(ctx, t, false)
	c.logger.Debug("periods propagated",
		zap.Time("date", t),
		zap.Stringer("day", day),
		zap.Stringer("week", week),
		zap.Stringer("month", month),
		zap.Stringer("year", year))
}

func notesContext(category models.Category, notes string) string {
	var lines []string
	if category != models.CategoryNone {
		lines = append(lines, "Category: "+string(category))
	}
	if notes != "" {
		lines = append(lines, "Notes: "+notes)
	}
	return strings.Join(lines, "\n")
}

func chunkIDs(chunks []summarizer.ChunkText) []string {
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	return ids
}
