// Package server provides the HTTP API for nikki.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/nikki/internal/config"
	"github.com/hyperjump/nikki/internal/inbox"
	"github.com/hyperjump/nikki/internal/rollup"
	"github.com/hyperjump/nikki/internal/search"
	"github.com/hyperjump/nikki/internal/storage"
	"github.com/hyperjump/nikki/internal/transcription"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TranscriptionQueue is the part of the transcription coordinator the API drives.
type TranscriptionQueue interface {
	Enqueue(chunkID string) bool
	Retry(chunkID string) bool
	Status() transcription.StatusSnapshot
}

// SummaryIndex answers full-text queries over summaries.
type SummaryIndex interface {
	Search(ctx context.Context, query string, limit int, opts search.Options) ([]search.Hit, error)
	Count() (uint64, error)
	Suggest(query string) (string, bool)
}

// Server is the HTTP server for the nikki API.
type Server struct {
	rollups *rollup.Coordinator
	queue   TranscriptionQueue
	ingest  *inbox.Ingestor
	index   SummaryIndex
	storage storage.Storage
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies. index may be nil when search is disabled.
func NewServer(
	rollups *rollup.Coordinator,
	queue TranscriptionQueue,
	ingest *inbox.Ingestor,
	index SummaryIndex,
	storage storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		rollups: rollups,
		queue:   queue,
		ingest:  ingest,
		index:   index,
		storage: storage,
		config:  cfg,
		logger:  logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// summarization engines can take minutes on a large year
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Post("/chunks", s.handleRegisterChunk)
		r.Post("/chunks/{id}/enqueue", s.handleEnqueueChunk)
		r.Post("/chunks/{id}/retry", s.handleRetryChunk)
		r.Get("/transcription", s.handleTranscriptionStatus)

		r.Get("/sessions/{id}/summary", s.handleGetSessionSummary)
		r.Post("/sessions/{id}/summary", s.handleGenerateSessionSummary)
		r.Put("/sessions/{id}/metadata", s.handleUpdateSessionMetadata)
		r.Patch("/segments/{id}", s.handleEditSegment)

		r.Get("/periods/{level}/{date}", s.handleGetPeriod)
		r.Post("/periods/{level}/{date}/refresh", s.handleRefreshPeriod)
		r.Post("/years/{year}/wrap", s.handleWrapYear)
		r.Get("/years/{year}/wrap/staleness", s.handleWrapStaleness)

		r.Get("/search", s.handleSearch)
		r.Get("/insights", s.handleInsights)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
