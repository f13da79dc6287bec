package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/nikki/internal/models"
)

// RefreshInsights recomputes the day bucket starting at bucketStart from the segments of
// chunks that started in [bucketStart, bucketEnd). Recomputing instead of incrementing keeps
// re-transcribed or edited chunks from being counted twice.
func (s *SQLiteStorage) RefreshInsights(ctx context.Context, bucketStart, bucketEnd time.Time) error {
	var words int
	var seconds float64
	var segments int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(s.word_count), 0),
			COALESCE(SUM(MAX(s.end_offset - s.start_offset, 0)), 0),
			COUNT(s.id)
		 FROM segments s JOIN chunks c ON c.id = s.chunk_id
		 WHERE c.started_at >= ? AND c.started_at < ?`,
		bucketStart.Unix(), bucketEnd.Unix(),
	).Scan(&words, &seconds, &segments)
	if err != nil {
		return fmt.Errorf("aggregate insights: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO insights_rollups (bucket_type, bucket_date, word_count, speaking_seconds, segment_count)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(bucket_type, bucket_date) DO UPDATE SET
			word_count = excluded.word_count,
			speaking_seconds = excluded.speaking_seconds,
			segment_count = excluded.segment_count`,
		models.InsightsBucketDay, bucketStart.Unix(), words, seconds, segments,
	)
	if err != nil {
		return fmt.Errorf("upsert insights: %w", err)
	}
	return nil
}

// ListInsights returns day buckets in [start, end), oldest first.
func (s *SQLiteStorage) ListInsights(ctx context.Context, start, end time.Time) ([]*models.InsightsRollup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bucket_type, bucket_date, word_count, speaking_seconds, segment_count
		 FROM insights_rollups
		 WHERE bucket_type = ? AND bucket_date >= ? AND bucket_date < ?
		 ORDER BY bucket_date`,
		models.InsightsBucketDay, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("query insights: %w", err)
	}
	defer rows.Close()

	var out []*models.InsightsRollup
	for rows.Next() {
		var r models.InsightsRollup
		var date int64
		if err := rows.Scan(&r.BucketType, &date, &r.WordCount, &r.SpeakingSeconds, &r.SegmentCount); err != nil {
			return nil, fmt.Errorf("scan insights: %w", err)
		}
		r.BucketDate = fromUnix(date)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Streak returns the number of consecutive active days ending at the last bucket in buckets.
// Buckets must be day buckets in ascending order; a day is active when it has any words.
// dayAfter advances a bucket date by one calendar day in the caller's time zone.
func Streak(buckets []*models.InsightsRollup, dayAfter func(time.Time) time.Time) int {
	streak := 0
	var next time.Time
	for i := len(buckets) - 1; i >= 0; i-- {
		b := buckets[i]
		if b.WordCount == 0 {
			break
		}
		if streak > 0 && !dayAfter(b.BucketDate).Equal(next) {
			break
		}
		streak++
		next = b.BucketDate
	}
	return streak
}
