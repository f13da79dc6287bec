package rollup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/nikki/internal/digest"
	"github.com/hyperjump/nikki/internal/events"
	"github.com/hyperjump/nikki/internal/guard"
	"github.com/hyperjump/nikki/internal/metrics"
	"github.com/hyperjump/nikki/internal/models"
	"go.uber.org/zap"
)

// UpdateDailySummary rolls the session summaries of the day containing date into a day summary.
// Complete sessions without a summary are summarized first; sessions still being transcribed are skipped.
func (c *Coordinator) UpdateDailySummary(ctx context.Context, date time.Time, force bool) Outcome {
	return c.updatePeriod(ctx, guard.LevelDay, date, force)
}

// UpdateWeeklySummary rolls the day summaries of the week (Monday first) containing date.
func (c *Coordinator) UpdateWeeklySummary(ctx context.Context, date time.Time, force bool) Outcome {
	return c.updatePeriod(ctx, guard.LevelWeek, date, force)
}

// UpdateMonthlySummary rolls the week summaries of the month containing date, or its day
// summaries when no week summary starts in the month.
func (c *Coordinator) UpdateMonthlySummary(ctx context.Context, date time.Time, force bool) Outcome {
	return c.updatePeriod(ctx, guard.LevelMonth, date, force)
}

// UpdateYearlySummary rolls the month summaries of the year containing date, or its week
// summaries when there are no month summaries.
func (c *Coordinator) UpdateYearlySummary(ctx context.Context, date time.Time, force bool) Outcome {
	return c.updatePeriod(ctx, guard.LevelYear, date, force)
}

// RefreshPeriod runs the rollup for level. LevelYearWrap runs WrapUpYear.
func (c *Coordinator) RefreshPeriod(ctx context.Context, level guard.Level, date time.Time, force bool) (Outcome, error) {
	switch level {
	case guard.LevelDay, guard.LevelWeek, guard.LevelMonth, guard.LevelYear:
		return c.updatePeriod(ctx, level, date, force), nil
	case guard.LevelYearWrap:
		return c.WrapUpYear(ctx, date, force), nil
	}
	return OutcomeFailed, fmt.Errorf("unsupported level %s", level)
}

// GetPeriodSummary returns the stored summary of level for the period containing date, or nil.
func (c *Coordinator) GetPeriodSummary(ctx context.Context, level guard.Level, date time.Time) (*models.Summary, error) {
	start, _ := Bounds(level, date, c.loc)
	return c.store.GetPeriodSummary(ctx, PeriodType(level), start)
}

// child is one input of a rollup with the text that feeds the hash.
type child struct {
	summary  *models.Summary
	hashText string
}

func (c *Coordinator) updatePeriod(ctx context.Context, level guard.Level, date time.Time, force bool) Outcome {
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
		log.Debug("rollup already in progress")
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
		log.Debug("no child summaries, nothing to roll up")
		return OutcomeEmpty
	}

	hashTexts := make([]string, len(children))
	for i, ch := range children {
		hashTexts[i] = ch.hashText
	}
	hash := digest.ComputeInputHash(hashTexts)

	periodType := PeriodType(level)
	if !force {
		existing, err := c.store.GetPeriodSummary(ctx, periodType, start)
		if err != nil {
			log.Warn("failed to get period summary", zap.Error(err))
			metrics.RollupFailures.WithLabelValues(level.String()).Inc()
			return OutcomeFailed
		}
		if existing != nil && existing.InputHash == hash {
			log.Debug("rollup up to date")
			metrics.SummaryCacheHits.WithLabelValues(level.String()).Inc()
			return OutcomeCacheHit
		}
	}

	sources := summariesOf(children)
	sum := &models.Summary{
		PeriodType:  periodType,
		PeriodStart: start,
		PeriodEnd:   end,
		Text:        bulletText(sources),
		TopicsJSON:  mergeTopics(sources),
		EngineTier:  models.EngineTierRollup,
		SourceIDs:   digest.SourceIDsToJSON(summaryIDs(sources)),
		InputHash:   hash,
	}
	if err := c.store.UpsertPeriodSummary(ctx, sum); err != nil {
		log.Warn("failed to store rollup", zap.Error(err))
		metrics.RollupFailures.WithLabelValues(level.String()).Inc()
		return OutcomeFailed
	}
	metrics.SummariesGenerated.WithLabelValues(level.String()).Inc()
	log.Info("rollup generated", zap.Int("children", len(children)))
	c.events.Publish(events.Event{Kind: events.SummaryUpdated, Summary: sum})
	return OutcomeGenerated
}

func (c *Coordinator) gatherChildren(ctx context.Context, level guard.Level, start, end time.Time) ([]child, error) {
	var sums []*models.Summary
	var err error
	switch level {
	case guard.LevelDay:
		return c.gatherDay(ctx, start, end)
	case guard.LevelWeek:
		sums, err = c.store.ListSummaries(ctx, models.PeriodDay, start, end)
	case guard.LevelMonth:
		sums, err = c.listWithFallback(ctx, models.PeriodWeek, models.PeriodDay, start, end)
	case guard.LevelYear, guard.LevelYearWrap:
		sums, err = c.listWithFallback(ctx, models.PeriodMonth, models.PeriodWeek, start, end)
	default:
		return nil, fmt.Errorf("unsupported level %s", level)
	}
	if err != nil {
		return nil, err
	}
	sortSummaries(sums)
	children := make([]child, len(sums))
	for i, s := range sums {
		children[i] = child{summary: s, hashText: s.Text}
	}
	return children, nil
}

func (c *Coordinator) listWithFallback(ctx context.Context, primary, fallback models.PeriodType, start, end time.Time) ([]*models.Summary, error) {
	sums, err := c.store.ListSummaries(ctx, primary, start, end)
	if err != nil || len(sums) > 0 {
		return sums, err
	}
	return c.store.ListSummaries(ctx, fallback, start, end)
}

// gatherDay collects the session summaries of sessions starting in [start, end), generating
// missing ones for complete sessions. Each child's hash text carries the session notes.
func (c *Coordinator) gatherDay(ctx context.Context, start, end time.Time) ([]child, error) {
	sessions, err := c.store.ListSessionsInRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var children []child
	inProgress := 0
	for _, session := range sessions {
		sum, err := c.store.GetSessionSummary(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get session summary: %w", err)
		}
		if sum == nil {
			if !session.Complete() {
				inProgress++
				continue
			}
			sum, err = c.generateSessionSummary(ctx, session.ID, SessionOptions{IncludeNotes: c.includeNotes}, false)
			if errors.Is(err, ErrEmptyTranscript) {
				continue
			}
			if err != nil {
				c.logger.Warn("failed to summarize session during day rollup",
					zap.String("session_id", session.ID), zap.Error(err))
				continue
			}
		}

		hashText := sum.Text
		meta, err := c.store.GetSessionMetadata(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get session metadata: %w", err)
		}
		if meta != nil && strings.TrimSpace(meta.Notes) != "" {
			hashText += "\nNotes: " + strings.TrimSpace(meta.Notes)
		}
		children = append(children, child{summary: sum, hashText: hashText})
	}
	if inProgress > 0 {
		c.logger.Debug("sessions still transcribing, skipped",
			zap.Time("day", start), zap.Int("sessions", inProgress))
	}

	sort.SliceStable(children, func(i, j int) bool {
		return lessSummary(children[i].summary, children[j].summary)
	})
	return children, nil
}

func lessSummary(a, b *models.Summary) bool {
	if !a.PeriodStart.Equal(b.PeriodStart) {
		return a.PeriodStart.Before(b.PeriodStart)
	}
	return a.ID < b.ID
}

func sortSummaries(sums []*models.Summary) {
	sort.SliceStable(sums, func(i, j int) bool { return lessSummary(sums[i], sums[j]) })
}

func summariesOf(children []child) []*models.Summary {
	out := make([]*models.Summary, len(children))
	for i, ch := range children {
		out[i] = ch.summary
	}
	return out
}

func summaryIDs(sums []*models.Summary) []string {
	ids := make([]string, len(sums))
	for i, s := range sums {
		ids[i] = s.ID
	}
	return ids
}

// bulletText renders one "• " line per child, oldest first.
func bulletText(sums []*models.Summary) string {
	lines := make([]string, len(sums))
	for i, s := range sums {
		lines[i] = "• " + s.Text
	}
	return strings.Join(lines, "\n")
}

// mergeTopics unions the children's topics in first-seen order.
func mergeTopics(sums []*models.Summary) string {
	seen := make(map[string]bool)
	topics := []string{}
	for _, s := range sums {
		var ts []string
		if err := json.Unmarshal([]byte(s.TopicsJSON), &ts); err != nil {
			continue
		}
		for _, t := range ts {
			key := strings.ToLower(t)
			if !seen[key] {
				seen[key] = true
				topics = append(topics, t)
			}
		}
	}
	data, err := json.Marshal(topics)
	if err != nil {
		return "[]"
	}
	return string(data)
}
