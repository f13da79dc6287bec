package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/nikki/internal/models"
)

const summaryColumns = `id, period_type, period_start, period_end, text, topics_json, entities_json,
	engine_tier, source_ids, input_hash, session_id, created_at, updated_at`

func scanSummary(row rowScanner) (*models.Summary, error) {
	var sum models.Summary
	var periodType string
	var start, end, createdAt, updatedAt int64
	if err := row.Scan(&sum.ID, &periodType, &start, &end, &sum.Text, &sum.TopicsJSON, &sum.EntitiesJSON,
		&sum.EngineTier, &sum.SourceIDs, &sum.InputHash, &sum.SessionID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sum.PeriodType = models.PeriodType(periodType)
	sum.PeriodStart = fromUnix(start)
	sum.PeriodEnd = fromUnix(end)
	sum.CreatedAt = fromUnix(createdAt)
	sum.UpdatedAt = fromUnix(updatedAt)
	return &sum, nil
}

func (s *SQLiteStorage) optionalSummary(ctx context.Context, query string, args ...any) (*models.Summary, error) {
	sum, err := scanSummary(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	return sum, nil
}

// GetSummary returns a summary by ID.
func (s *SQLiteStorage) GetSummary(ctx context.Context, id string) (*models.Summary, error) {
	sum, err := s.optionalSummary(ctx, `SELECT `+summaryColumns+` FROM summaries WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		return nil, fmt.Errorf("summary %s: %w", id, ErrNotFound)
	}
	return sum, nil
}

// GetSessionSummary returns the session-level summary for sessionID, or nil if none exists.
func (s *SQLiteStorage) GetSessionSummary(ctx context.Context, sessionID string) (*models.Summary, error) {
	return s.optionalSummary(ctx,
		`SELECT `+summaryColumns+` FROM summaries WHERE period_type = ? AND session_id = ?`,
		string(models.PeriodSession), sessionID)
}

// ReplaceSessionSummary deletes any existing summary for the session and inserts summary in one
// transaction, keeping at most one session-level summary per session.
func (s *SQLiteStorage) ReplaceSessionSummary(ctx context.Context, summary *models.Summary) error {
	if summary.SessionID == "" {
		return fmt.Errorf("session summary requires a session id")
	}
	summary.PeriodType = models.PeriodSession
	if summary.ID == "" {
		summary.ID = uuid.New().String()
	}
	now := time.Now()
	summary.CreatedAt = now
	summary.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM summaries WHERE period_type = ? AND session_id = ?`,
		string(models.PeriodSession), summary.SessionID); err != nil {
		return fmt.Errorf("delete session summary: %w", err)
	}
	if err := insertSummary(ctx, tx, summary); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteSessionSummary removes the session-level summary for sessionID, if any.
func (s *SQLiteStorage) DeleteSessionSummary(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM summaries WHERE period_type = ? AND session_id = ?`,
		string(models.PeriodSession), sessionID)
	return err
}

// GetPeriodSummary returns the summary for (periodType, start), or nil if none exists.
func (s *SQLiteStorage) GetPeriodSummary(ctx context.Context, periodType models.PeriodType, start time.Time) (*models.Summary, error) {
	return s.optionalSummary(ctx,
		`SELECT `+summaryColumns+` FROM summaries WHERE period_type = ? AND period_start = ?`,
		string(periodType), start.Unix())
}

// UpsertPeriodSummary updates the summary for (PeriodType, PeriodStart) in place, or inserts it.
// On update the existing ID and CreatedAt are kept and written back into summary.
func (s *SQLiteStorage) UpsertPeriodSummary(ctx context.Context, summary *models.Summary) error {
	if summary.PeriodType == models.PeriodSession {
		return fmt.Errorf("session summaries must use ReplaceSessionSummary")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	summary.UpdatedAt = now

	var existingID string
	var createdAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM summaries WHERE period_type = ? AND period_start = ?`,
		string(summary.PeriodType), summary.PeriodStart.Unix(),
	).Scan(&existingID, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if summary.ID == "" {
			summary.ID = uuid.New().String()
		}
		summary.CreatedAt = now
		if err := insertSummary(ctx, tx, summary); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("query period summary: %w", err)
	default:
		summary.ID = existingID
		summary.CreatedAt = fromUnix(createdAt)
		if _, err := tx.ExecContext(ctx,
			`UPDATE summaries SET period_end = ?, text = ?, topics_json = ?, entities_json = ?,
				engine_tier = ?, source_ids = ?, input_hash = ?, updated_at = ?
			 WHERE id = ?`,
			summary.PeriodEnd.Unix(), summary.Text, summary.TopicsJSON, summary.EntitiesJSON,
			summary.EngineTier, summary.SourceIDs, summary.InputHash, unix(summary.UpdatedAt), summary.ID,
		); err != nil {
			return fmt.Errorf("update period summary: %w", err)
		}
	}
	return tx.Commit()
}

func insertSummary(ctx context.Context, tx *sql.Tx, summary *models.Summary) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO summaries (`+summaryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID, string(summary.PeriodType), summary.PeriodStart.Unix(), summary.PeriodEnd.Unix(),
		summary.Text, summary.TopicsJSON, summary.EntitiesJSON, summary.EngineTier, summary.SourceIDs,
		summary.InputHash, summary.SessionID, unix(summary.CreatedAt), unix(summary.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

// ListSummaries returns summaries of periodType whose PeriodStart is in [start, end),
// ordered by PeriodStart ascending.
func (s *SQLiteStorage) ListSummaries(ctx context.Context, periodType models.PeriodType, start, end time.Time) ([]*models.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM summaries
		 WHERE period_type = ? AND period_start >= ? AND period_start < ?
		 ORDER BY period_start, id`,
		string(periodType), start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []*models.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// CountSummaries returns the number of summaries per period type.
func (s *SQLiteStorage) CountSummaries(ctx context.Context) (map[models.PeriodType]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT period_type, COUNT(*) FROM summaries GROUP BY period_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.PeriodType]int64)
	for rows.Next() {
		var pt string
		var n int64
		if err := rows.Scan(&pt, &n); err != nil {
			return nil, err
		}
		counts[models.PeriodType(pt)] = n
	}
	return counts, rows.Err()
}
