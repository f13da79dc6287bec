// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/nikki/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
// Timestamps are stored as Unix seconds.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		audio_path TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(session_id, chunk_index);
	CREATE INDEX IF NOT EXISTS idx_chunks_started_at ON chunks(started_at);

	CREATE TABLE IF NOT EXISTS segments (
		id TEXT PRIMARY KEY,
		chunk_id TEXT NOT NULL,
		start_offset REAL NOT NULL,
		end_offset REAL NOT NULL,
		text TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		language TEXT NOT NULL DEFAULT '',
		sentiment REAL,
		word_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (chunk_id) REFERENCES chunks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_segments_chunk ON segments(chunk_id, created_at);

	CREATE TABLE IF NOT EXISTS session_metadata (
		session_id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		favorite INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS summaries (
		id TEXT PRIMARY KEY,
		period_type TEXT NOT NULL,
		period_start INTEGER NOT NULL,
		period_end INTEGER NOT NULL,
		text TEXT NOT NULL,
		topics_json TEXT NOT NULL DEFAULT '',
		entities_json TEXT NOT NULL DEFAULT '',
		engine_tier TEXT NOT NULL DEFAULT '',
		source_ids TEXT NOT NULL DEFAULT '',
		input_hash TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_summaries_session
		ON summaries(session_id) WHERE period_type = 'session';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_summaries_period
		ON summaries(period_type, period_start) WHERE period_type <> 'session';
	CREATE INDEX IF NOT EXISTS idx_summaries_type_start ON summaries(period_type, period_start);

	CREATE TABLE IF NOT EXISTS insights_rollups (
		bucket_type TEXT NOT NULL,
		bucket_date INTEGER NOT NULL,
		word_count INTEGER NOT NULL DEFAULT 0,
		speaking_seconds REAL NOT NULL DEFAULT 0,
		segment_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (bucket_type, bucket_date)
	);
	`
	_, err := db.Exec(schema)
	return err
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// CreateChunk inserts a chunk. Inserting an ID that already exists is a no-op, since chunks are immutable.
func (s *SQLiteStorage) CreateChunk(ctx context.Context, chunk *models.AudioChunk) error {
	if chunk.ID == "" {
		chunk.ID = uuid.New().String()
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (id, session_id, chunk_index, audio_path, started_at, ended_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		chunk.ID, chunk.SessionID, chunk.ChunkIndex, chunk.AudioPath,
		unix(chunk.StartedAt), unix(chunk.EndedAt), unix(chunk.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

const chunkColumns = `id, session_id, chunk_index, audio_path, started_at, ended_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*models.AudioChunk, error) {
	var c models.AudioChunk
	var startedAt, endedAt, createdAt int64
	if err := row.Scan(&c.ID, &c.SessionID, &c.ChunkIndex, &c.AudioPath, &startedAt, &endedAt, &createdAt); err != nil {
		return nil, err
	}
	c.StartedAt = fromUnix(startedAt)
	c.EndedAt = fromUnix(endedAt)
	c.CreatedAt = fromUnix(createdAt)
	return &c, nil
}

func (s *SQLiteStorage) queryChunks(ctx context.Context, query string, args ...any) ([]*models.AudioChunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*models.AudioChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetChunk returns a chunk by ID.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.AudioChunk, error) {
	c, err := scanChunk(s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListChunksBySession returns the chunks of a session ordered by chunk index.
func (s *SQLiteStorage) ListChunksBySession(ctx context.Context, sessionID string) ([]*models.AudioChunk, error) {
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE session_id = ? ORDER BY chunk_index, started_at`,
		sessionID)
}

// ListUntranscribedChunks returns every chunk without transcript segments, oldest first.
func (s *SQLiteStorage) ListUntranscribedChunks(ctx context.Context) ([]*models.AudioChunk, error) {
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks c
		 WHERE NOT EXISTS (SELECT 1 FROM segments s WHERE s.chunk_id = c.id)
		 ORDER BY created_at, session_id, chunk_index`)
}

// ReplaceSegments atomically replaces all segments of a chunk. Missing IDs are generated and
// word counts are recomputed from the text.
func (s *SQLiteStorage) ReplaceSegments(ctx context.Context, chunkID string, segments []*models.TranscriptSegment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE chunk_id = ?`, chunkID); err != nil {
		return fmt.Errorf("delete segments: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO segments (id, chunk_id, start_offset, end_offset, text, confidence, language, sentiment, word_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, seg := range segments {
		if seg.ID == "" {
			seg.ID = uuid.New().String()
		}
		seg.ChunkID = chunkID
		seg.WordCount = models.CountWords(seg.Text)
		if seg.CreatedAt.IsZero() {
			seg.CreatedAt = now
		}
		var sentiment sql.NullFloat64
		if seg.Sentiment != nil {
			sentiment = sql.NullFloat64{Float64: *seg.Sentiment, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, seg.ID, seg.ChunkID, seg.StartOffset, seg.EndOffset, seg.Text,
			seg.Confidence, seg.Language, sentiment, seg.WordCount, unix(seg.CreatedAt)); err != nil {
			return fmt.Errorf("insert segment: %w", err)
		}
	}
	return tx.Commit()
}

const segmentColumns = `id, chunk_id, start_offset, end_offset, text, confidence, language, sentiment, word_count, created_at`

func scanSegment(row rowScanner) (*models.TranscriptSegment, error) {
	var seg models.TranscriptSegment
	var sentiment sql.NullFloat64
	var createdAt int64
	if err := row.Scan(&seg.ID, &seg.ChunkID, &seg.StartOffset, &seg.EndOffset, &seg.Text,
		&seg.Confidence, &seg.Language, &sentiment, &seg.WordCount, &createdAt); err != nil {
		return nil, err
	}
	if sentiment.Valid {
		v := sentiment.Float64
		seg.Sentiment = &v
	}
	seg.CreatedAt = fromUnix(createdAt)
	return &seg, nil
}

// ListSegments returns the segments of a chunk in creation order (ties broken by offset).
func (s *SQLiteStorage) ListSegments(ctx context.Context, chunkID string) ([]*models.TranscriptSegment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE chunk_id = ? ORDER BY created_at, start_offset, rowid`,
		chunkID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segments []*models.TranscriptSegment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// GetSegment returns a segment by ID.
func (s *SQLiteStorage) GetSegment(ctx context.Context, id string) (*models.TranscriptSegment, error) {
	seg, err := scanSegment(s.db.QueryRowContext(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("segment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return seg, nil
}

// UpdateSegmentText replaces a segment's text and recomputes its word count.
func (s *SQLiteStorage) UpdateSegmentText(ctx context.Context, id, text string) (*models.TranscriptSegment, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE segments SET text = ?, word_count = ? WHERE id = ?`,
		text, models.CountWords(text), id)
	if err != nil {
		return nil, fmt.Errorf("update segment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("segment %s: %w", id, ErrNotFound)
	}
	return s.GetSegment(ctx, id)
}

const sessionQuery = `
	SELECT c.session_id,
		MIN(c.started_at),
		MAX(c.ended_at),
		MIN(c.created_at),
		COUNT(*),
		SUM(CASE WHEN EXISTS (SELECT 1 FROM segments s WHERE s.chunk_id = c.id) THEN 1 ELSE 0 END)
	FROM chunks c`

func scanSession(row rowScanner) (*models.SessionInfo, error) {
	var info models.SessionInfo
	var startedAt, endedAt, createdAt int64
	if err := row.Scan(&info.ID, &startedAt, &endedAt, &createdAt, &info.ChunkCount, &info.TranscribedChunks); err != nil {
		return nil, err
	}
	info.StartedAt = fromUnix(startedAt)
	info.EndedAt = fromUnix(endedAt)
	info.CreatedAt = fromUnix(createdAt)
	return &info, nil
}

// GetSession returns the session derived from its chunks.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*models.SessionInfo, error) {
	info, err := scanSession(s.db.QueryRowContext(ctx,
		sessionQuery+` WHERE c.session_id = ? GROUP BY c.session_id`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}

// ListSessionsInRange returns sessions whose first chunk starts in [start, end), oldest first.
func (s *SQLiteStorage) ListSessionsInRange(ctx context.Context, start, end time.Time) ([]*models.SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		sessionQuery+` GROUP BY c.session_id
		HAVING MIN(c.started_at) >= ? AND MIN(c.started_at) < ?
		ORDER BY MIN(c.started_at), c.session_id`,
		start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.SessionInfo
	for rows.Next() {
		info, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// IsSessionTranscriptionComplete reports whether every chunk of the session has segments.
// An unknown session is not complete.
func (s *SQLiteStorage) IsSessionTranscriptionComplete(ctx context.Context, id string) (bool, error) {
	info, err := s.GetSession(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Complete(), nil
}

// GetSessionMetadata returns the metadata for a session, or nil if none was saved.
func (s *SQLiteStorage) GetSessionMetadata(ctx context.Context, sessionID string) (*models.SessionMetadata, error) {
	var meta models.SessionMetadata
	var favorite int
	var category string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, title, notes, favorite, category, updated_at
		 FROM session_metadata WHERE session_id = ?`, sessionID,
	).Scan(&meta.SessionID, &meta.Title, &meta.Notes, &favorite, &category, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session metadata: %w", err)
	}
	meta.Favorite = favorite != 0
	meta.Category = models.Category(category)
	meta.UpdatedAt = fromUnix(updatedAt)
	return &meta, nil
}

// UpsertSessionMetadata inserts or replaces the metadata for a session.
func (s *SQLiteStorage) UpsertSessionMetadata(ctx context.Context, meta *models.SessionMetadata) error {
	if !meta.Category.Valid() {
		return fmt.Errorf("invalid category %q", meta.Category)
	}
	meta.UpdatedAt = time.Now()
	favorite := 0
	if meta.Favorite {
		favorite = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_metadata (session_id, title, notes, favorite, category, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			title = excluded.title,
			notes = excluded.notes,
			favorite = excluded.favorite,
			category = excluded.category,
			updated_at = excluded.updated_at`,
		meta.SessionID, meta.Title, meta.Notes, favorite, string(meta.Category), unix(meta.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert session metadata: %w", err)
	}
	return nil
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
