package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/nikki/internal/digest"
	"github.com/hyperjump/nikki/internal/events"
	"github.com/hyperjump/nikki/internal/guard"
	"github.com/hyperjump/nikki/internal/metrics"
	"github.com/hyperjump/nikki/internal/models"
	"github.com/hyperjump/nikki/internal/summarizer"
	"go.uber.org/zap"
)

// WrapUpYear asks the engine for a year in review built from the year's month summaries
// (week summaries when there are none). It is never part of automatic propagation.
func (c *Coordinator) WrapUpYear(ctx context.Context, date time.Time, force bool) Outcome {
	level := guard.LevelYearWrap
	start, end := Bounds(level, date, c.loc)
	key := guard.NewKey(level, start)
	log := c.logger.With(zap.Stringer("period", key))

	acquired, err := c.guard.TryBegin(ctx, key)
	if err != nil {
		log.Warn("failed to acquire generation guard", zap.Error(err))
		metrics.RollupFailures.WithLabelValues(level.String()).Inc()
		return OutcomeFailed
	}
	if !acquired {
		log.Debug("year wrap already in progress")
		metrics.GuardSkips.WithLabelValues(level.String()).Inc()
		return OutcomeInProgress
	}
	defer c.guard.End(ctx, key)

	children, err := c.gatherChildren(ctx, level, start, end)
	if err != nil {
		log.Warn("failed to gather child summaries", zap.Error(err))
		metrics.RollupFailures.WithLabelValues(level.String()).Inc()
		return OutcomeFailed
	}
	if len(children) == 0 {
		log.Debug("no summaries to wrap")
		return OutcomeEmpty
	}

	categoryContext, err := c.categoryContext(ctx, start, end)
	if err != nil {
		log.Warn("failed to build category context", zap.Error(err))
		metrics.RollupFailures.WithLabelValues(level.String()).Inc()
		return OutcomeFailed
	}

	hashTexts := make([]string, 0, len(children)+1)
	for _, ch := range children {
		hashTexts = append(hashTexts, ch.hashText)
	}
	hashTexts = append(hashTexts, categoryContext)
	hash := digest.ComputeInputHash(hashTexts)

	if !force {
		existing, err := c.store.GetPeriodSummary(ctx, models.PeriodYearWrap, start)
		if err != nil {
			log.Warn("failed to get year wrap", zap.Error(err))
			metrics.RollupFailures.WithLabelValues(level.String()).Inc()
			return OutcomeFailed
		}
		if existing != nil && existing.InputHash == hash {
			log.Debug("year wrap up to date")
			metrics.SummaryCacheHits.WithLabelValues(level.String()).Inc()
			return OutcomeCacheHit
		}
	}

	sources := summariesOf(children)
	began := time.Now()
	sum, err := c.engine.WrapYear(ctx, summarizer.YearWrapRequest{
		Start:           start,
		End:             end,
		Sources:         sources,
		CategoryContext: categoryContext,
	})
	metrics.EngineLatency.WithLabelValues("year_wrap").Observe(time.Since(began).Seconds())
	if err != nil {
		log.Error("year wrap failed", zap.Error(err))
		metrics.RollupFailures.WithLabelValues(level.String()).Inc()
		return OutcomeFailed
	}

	sum.PeriodType = models.PeriodYearWrap
	sum.PeriodStart = start
	sum.PeriodEnd = end
	sum.SessionID = ""
	sum.InputHash = hash
	sum.SourceIDs = digest.SourceIDsToJSON(summaryIDs(sources))
	if sum.EngineTier == "" {
		sum.EngineTier = c.engine.Tier()
	}
	if sum.TopicsJSON == "" {
		sum.TopicsJSON = "[]"
	}
	if err := c.store.UpsertPeriodSummary(ctx, sum); err != nil {
		log.Warn("failed to store year wrap", zap.Error(err))
		metrics.RollupFailures.WithLabelValues(level.String()).Inc()
		return OutcomeFailed
	}
	metrics.SummariesGenerated.WithLabelValues(level.String()).Inc()
	log.Info("year wrap generated",
		zap.Int("sources", len(sources)),
		zap.Duration("took", time.Since(began)))
	c.events.Publish(events.Event{Kind: events.SummaryUpdated, Summary: sum})

	c.engine.Unload()
	return OutcomeGenerated
}

// NewSessionsSinceYearWrap counts complete sessions of the year containing date created after
// the year wrap was last written. Without a wrap every complete session counts.
func (c *Coordinator) NewSessionsSinceYearWrap(ctx context.Context, date time.Time) (int, error) {
	start, end := Bounds(guard.LevelYearWrap, date, c.loc)
	wrap, err := c.store.GetPeriodSummary(ctx, models.PeriodYearWrap, start)
	if err != nil {
		return 0, fmt.Errorf("failed to get year wrap: %w", err)
	}
	sessions, err := c.store.ListSessionsInRange(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	n := 0
	for _, s := range sessions {
		if !s.Complete() {
			continue
		}
		if wrap == nil || s.CreatedAt.After(wrap.UpdatedAt) {
			n++
		}
	}
	return n, nil
}

// categoryContext describes the year's work/personal split for the engine. It is empty when
// no session of the year has a category.
func (c *Coordinator) categoryContext(ctx context.Context, start, end time.Time) (string, error) {
	sessions, err := c.store.ListSessionsInRange(ctx, start, end)
	if err != nil {
		return "", err
	}
	var work, personal, other int
	for _, s := range sessions {
		meta, err := c.store.GetSessionMetadata(ctx, s.ID)
		if err != nil {
			return "", err
		}
		switch {
		case meta == nil:
			other++
		case meta.Category == models.CategoryWork:
			work++
		case meta.Category == models.CategoryPersonal:
			personal++
		default:
			other++
		}
	}
	if work+personal == 0 {
		return "", nil
	}
	return fmt.Sprintf("This year had %d work sessions, %d personal sessions and %d uncategorized sessions. "+
		"Keep work and personal themes in separate arcs. When an entry mixes both, classify it by its main subject.",
		work, personal, other), nil
}
