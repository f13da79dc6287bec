// Package summarizer provides summarization engines that turn transcripts into session summaries
// and monthly summaries into a year wrap.
package summarizer

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/nikki/internal/config"
	"github.com/hyperjump/nikki/internal/models"
	"go.uber.org/zap"
)

// ChunkText is the transcript text of one chunk.
type ChunkText struct {
	ID   string
	Text string
}

// SessionRequest is the input for a session summary.
// Text is the full session transcript; Context optionally carries a category line and user notes.
type SessionRequest struct {
	SessionID string
	Chunks    []ChunkText
	Text      string
	Context   string
}

// YearWrapRequest is the input for a year wrap. Sources are ordered oldest first.
type YearWrapRequest struct {
	Start           time.Time
	End             time.Time
	Sources         []*models.Summary
	CategoryContext string
}

// Engine produces summaries. Implementations keep a per-chunk cache so that a forced
// regeneration only reprocesses chunks whose text changed.
type Engine interface {
	// Tier names the backend that produced a summary (stored as Summary.EngineTier).
	Tier() string
	SummarizeSession(ctx context.Context, req SessionRequest) (*models.Summary, error)
	WrapYear(ctx context.Context, req YearWrapRequest) (*models.Summary, error)
	// ClearChangedChunkSummaries drops cached chunk summaries whose text changed and returns
	// the IDs of chunks that need reprocessing.
	ClearChangedChunkSummaries(ctx context.Context, chunks []ChunkText) ([]string, error)
	// Unload releases model resources held between calls.
	Unload()
}

// New returns the engine selected by cfg.Engine ("extractive" or "openai").
func New(cfg *config.SummarizerConfig, logger *zap.Logger) (Engine, error) {
	cache := NewChunkCache(cfg.ChunkCacheSize)
	switch cfg.Engine {
	case "", "extractive":
		return NewExtractive(cache, cfg.MaxSentences, cfg.MaxTopics, logger), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("summarizer engine openai requires an api key")
		}
		return NewOpenAI(cfg.Endpoint, cfg.APIKey, cfg.Model, cache, logger), nil
	default:
		return nil, fmt.Errorf("unknown summarizer engine: %s", cfg.Engine)
	}
}
