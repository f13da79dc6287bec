// Package transcription turns audio chunks into transcript segments with bounded concurrency.
package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hyperjump/nikki/internal/config"
	"github.com/hyperjump/nikki/internal/models"
	"go.uber.org/zap"
)

// Transcriber converts one chunk's audio into segments. Offsets are seconds from the chunk start.
type Transcriber interface {
	Transcribe(ctx context.Context, chunk *models.AudioChunk) ([]*models.TranscriptSegment, error)
}

// New returns the transcriber selected by cfg.Engine ("sidecar" or "whisper").
func New(cfg *config.TranscriptionConfig, logger *zap.Logger) (Transcriber, error) {
	switch cfg.Engine {
	case "", "sidecar":
		return NewSidecar(logger), nil
	case "whisper":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("transcription engine whisper requires an api key")
		}
		return NewWhisper(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Language, logger), nil
	default:
		return nil, fmt.Errorf("unknown transcription engine: %s", cfg.Engine)
	}
}

// Sidecar reads transcripts written next to the audio by an on-device recognizer:
// "<audio>.transcript.json" (a segment array) or "<audio>.txt" (plain text).
type Sidecar struct {
	logger *zap.Logger
}

// NewSidecar returns a sidecar transcriber.
func NewSidecar(logger *zap.Logger) *Sidecar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sidecar{logger: logger}
}

type sidecarSegment struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	Language   string   `json:"language"`
	Sentiment  *float64 `json:"sentiment,omitempty"`
}

// Transcribe loads the sidecar transcript of chunk. JSON takes precedence over plain text.
func (s *Sidecar) Transcribe(_ context.Context, chunk *models.AudioChunk) ([]*models.TranscriptSegment, error) {
	data, err := os.ReadFile(chunk.AudioPath + ".transcript.json")
	if err == nil {
		var raw []sidecarSegment
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse sidecar transcript: %w", err)
		}
		segments := make([]*models.TranscriptSegment, 0, len(raw))
		for _, r := range raw {
			segments = append(segments, &models.TranscriptSegment{
				StartOffset: r.Start,
				EndOffset:   r.End,
				Text:        strings.TrimSpace(r.Text),
				Confidence:  r.Confidence,
				Language:    r.Language,
				Sentiment:   r.Sentiment,
			})
		}
		s.logger.Debug("sidecar transcript loaded", zap.String("chunk_id", chunk.ID), zap.Int("segments", len(segments)))
		return segments, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read sidecar transcript: %w", err)
	}

	data, err = os.ReadFile(chunk.AudioPath + ".txt")
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no transcript found next to %s", chunk.AudioPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sidecar transcript: %w", err)
	}
	text := models.NormalizeText(string(data))
	if text == "" {
		return nil, nil
	}
	return []*models.TranscriptSegment{{
		StartOffset: 0,
		EndOffset:   chunk.Duration().Seconds(),
		Text:        text,
		Confidence:  1,
	}}, nil
}
