// Package storage defines the persistence interface for chunks, transcripts, and summaries.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/nikki/internal/models"
)

// ErrNotFound is returned when a required row does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines transcript and summary persistence operations.
// Getters for optional rows (session summary, period summary, metadata) return nil, nil when absent.
type Storage interface {
	// Chunk operations
	CreateChunk(ctx context.Context, chunk *models.AudioChunk) error
	GetChunk(ctx context.Context, id string) (*models.AudioChunk, error)
	ListChunksBySession(ctx context.Context, sessionID string) ([]*models.AudioChunk, error)
	ListUntranscribedChunks(ctx context.Context) ([]*models.AudioChunk, error)

	// Segment operations
	ReplaceSegments(ctx context.Context, chunkID string, segments []*models.TranscriptSegment) error
	ListSegments(ctx context.Context, chunkID string) ([]*models.TranscriptSegment, error)
	GetSegment(ctx context.Context, id string) (*models.TranscriptSegment, error)
	UpdateSegmentText(ctx context.Context, id, text string) (*models.TranscriptSegment, error)

	// Session operations
	GetSession(ctx context.Context, id string) (*models.SessionInfo, error)
	ListSessionsInRange(ctx context.Context, start, end time.Time) ([]*models.SessionInfo, error)
	IsSessionTranscriptionComplete(ctx context.Context, id string) (bool, error)
	GetSessionMetadata(ctx context.Context, sessionID string) (*models.SessionMetadata, error)
	UpsertSessionMetadata(ctx context.Context, meta *models.SessionMetadata) error

	// Summary operations
	GetSummary(ctx context.Context, id string) (*models.Summary, error)
	GetSessionSummary(ctx context.Context, sessionID string) (*models.Summary, error)
	ReplaceSessionSummary(ctx context.Context, summary *models.Summary) error
	DeleteSessionSummary(ctx context.Context, sessionID string) error
	GetPeriodSummary(ctx context.Context, periodType models.PeriodType, start time.Time) (*models.Summary, error)
	UpsertPeriodSummary(ctx context.Context, summary *models.Summary) error
	ListSummaries(ctx context.Context, periodType models.PeriodType, start, end time.Time) ([]*models.Summary, error)

	// Insights
	RefreshInsights(ctx context.Context, bucketStart, bucketEnd time.Time) error
	ListInsights(ctx context.Context, start, end time.Time) ([]*models.InsightsRollup, error)

	// Stats
	CountChunks(ctx context.Context) (int64, error)
	CountSummaries(ctx context.Context) (map[models.PeriodType]int64, error)

	Close() error
}
