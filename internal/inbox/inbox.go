// Package inbox registers recorded chunks from manifests dropped by the capture process.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/nikki/internal/models"
	"github.com/hyperjump/nikki/internal/storage"
	"go.uber.org/zap"
)

// ManifestSuffix is the file name suffix of chunk manifests.
const ManifestSuffix = ".chunk.json"

// Manifest describes one finished audio chunk. The capture process writes it after the
// audio file is closed, so its presence means the chunk is complete.
type Manifest struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	ChunkIndex int       `json:"chunk_index"`
	AudioPath  string    `json:"audio_path"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// ReadManifest parses and validates the manifest at path. A relative audio_path is
// resolved against the manifest's directory.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if m.AudioPath != "" && !filepath.IsAbs(m.AudioPath) {
		m.AudioPath = filepath.Join(filepath.Dir(path), m.AudioPath)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks required fields and time ordering.
func (m *Manifest) Validate() error {
	switch {
	case strings.TrimSpace(m.ID) == "":
		return errors.New("id is required")
	case strings.TrimSpace(m.SessionID) == "":
		return errors.New("session_id is required")
	case m.ChunkIndex < 0:
		return fmt.Errorf("chunk_index must not be negative, got %d", m.ChunkIndex)
	case m.AudioPath == "":
		return errors.New("audio_path is required")
	case m.StartedAt.IsZero() || m.EndedAt.IsZero():
		return errors.New("started_at and ended_at are required")
	case m.EndedAt.Before(m.StartedAt):
		return errors.New("ended_at is before started_at")
	}
	return nil
}

// Chunk converts the manifest to a chunk row.
func (m *Manifest) Chunk() *models.AudioChunk {
	return &models.AudioChunk{
		ID:         m.ID,
		SessionID:  m.SessionID,
		ChunkIndex: m.ChunkIndex,
		AudioPath:  m.AudioPath,
		StartedAt:  m.StartedAt,
		EndedAt:    m.EndedAt,
	}
}

// Enqueuer accepts chunks for transcription.
type Enqueuer interface {
	Enqueue(chunkID string) bool
}

// Ingestor stores chunks from manifests and queues them for transcription.
type Ingestor struct {
	store  storage.Storage
	queue  Enqueuer
	logger *zap.Logger
}

// NewIngestor creates an ingestor. queue may be nil to only register chunks.
func NewIngestor(store storage.Storage, queue Enqueuer, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{store: store, queue: queue, logger: logger}
}

// Ingest registers the chunk described by the manifest at path and enqueues it unless it
// already has a transcript. Ingesting the same manifest twice is harmless.
func (i *Ingestor) Ingest(ctx context.Context, path string) (*models.AudioChunk, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(m.AudioPath); err != nil {
		return nil, fmt.Errorf("audio for chunk %s: %w", m.ID, err)
	}
	return i.Register(ctx, m.Chunk())
}

// Register stores chunk and enqueues it unless it already has a transcript. A chunk ID that
// is already stored under another session is rejected.
func (i *Ingestor) Register(ctx context.Context, chunk *models.AudioChunk) (*models.AudioChunk, error) {
	if err := i.store.CreateChunk(ctx, chunk); err != nil {
		return nil, fmt.Errorf("failed to store chunk %s: %w", chunk.ID, err)
	}
	stored, err := i.store.GetChunk(ctx, chunk.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk %s: %w", chunk.ID, err)
	}
	if stored.SessionID != chunk.SessionID {
		return nil, fmt.Errorf("chunk %s already belongs to session %s", chunk.ID, stored.SessionID)
	}

	segments, err := i.store.ListSegments(ctx, stored.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	if len(segments) > 0 {
		i.logger.Debug("chunk already transcribed", zap.String("chunk_id", stored.ID))
		return stored, nil
	}
	if i.queue != nil && i.queue.Enqueue(stored.ID) {
		i.logger.Info("chunk queued",
			zap.String("chunk_id", stored.ID),
			zap.String("session_id", stored.SessionID),
			zap.Int("chunk_index", stored.ChunkIndex))
	}
	return stored, nil
}

// IsManifest reports whether path names a chunk manifest.
func IsManifest(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ManifestSuffix)
}
