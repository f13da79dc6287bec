package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/nikki/internal/inbox"
	"github.com/hyperjump/nikki/internal/models"
	"github.com/hyperjump/nikki/internal/search"
	"github.com/hyperjump/nikki/internal/storage"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chunkCount, err := s.storage.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	summaryCounts, err := s.storage.CountSummaries(ctx)
	if err != nil {
		s.logger.Error("status: count summaries failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	queue := s.queue.Status()
	resp := map[string]interface{}{
		"chunks":    chunkCount,
		"summaries": summaryCounts,
		"transcription": map[string]int{
			"transcribing": len(queue.Transcribing),
			"transcribed":  len(queue.Transcribed),
			"failed":       len(queue.Failed),
			"pending":      len(queue.Pending),
		},
	}
	if s.index != nil {
		if n, err := s.index.Count(); err == nil {
			resp["search_documents"] = n
		}
	}

	configInfo := map[string]interface{}{
		"timezone":      s.rollups.Location().String(),
		"include_notes": s.rollups.IncludeNotes(),
	}
	if s.config != nil {
		configInfo["transcription_engine"] = s.config.Transcription.Engine
		configInfo["transcription_concurrency"] = s.config.Transcription.Concurrency
		configInfo["summarizer_engine"] = s.config.Summarizer.Engine
		configInfo["guard_backend"] = s.config.Guard.Backend
		configInfo["database_path"] = s.config.Storage.DatabasePath
		configInfo["search_index_path"] = s.config.Storage.SearchIndexPath
		configInfo["inbox_directories"] = s.config.Inbox.Directories

		diskBytes, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Storage.SearchIndexPath)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegisterChunk(w http.ResponseWriter, r *http.Request) {
	var m inbox.Manifest
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := m.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("register chunk request", zap.String("chunk_id", m.ID), zap.String("session_id", m.SessionID))
	chunk, err := s.ingest.Register(r.Context(), m.Chunk())
	if err != nil {
		s.logger.Error("register chunk failed", zap.Error(err))
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, chunk)
}

func (s *Server) handleEnqueueChunk(w http.ResponseWriter, r *http.Request) {
	s.queueChunk(w, r, s.queue.Enqueue)
}

func (s *Server) handleRetryChunk(w http.ResponseWriter, r *http.Request) {
	s.queueChunk(w, r, s.queue.Retry)
}

func (s *Server) queueChunk(w http.ResponseWriter, r *http.Request, enqueue func(string) bool) {
	id := chi.URLParam(r, "id")
	if _, err := s.storage.GetChunk(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "chunk not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	queued := enqueue(id)
	s.logger.Debug("chunk queue request", zap.String("chunk_id", id), zap.Bool("queued", queued))
	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{"chunk_id": id, "queued": queued})
}

func (s *Server) handleTranscriptionStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.queue.Status())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.respondError(w, http.StatusNotImplemented, "search not enabled")
		return
	}
	q := r.URL.Query()
	query := models.SearchQuery{
		Query:      q.Get("q"),
		PeriodType: models.PeriodType(q.Get("level")),
		Fuzzy:      q.Get("fuzzy") == "true",
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		query.Limit = n
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	start := time.Now()
	hits, err := s.index.Search(r.Context(), query.Query, query.Limit, search.Options{
		PeriodType: query.PeriodType,
		Fuzzy:      query.Fuzzy,
	})
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := &models.SearchResponse{Query: query.Query, Results: make([]*models.SearchResult, 0, len(hits))}
	for _, h := range hits {
		sum, err := s.storage.GetSummary(r.Context(), h.SummaryID)
		if errors.Is(err, storage.ErrNotFound) {
			// replaced since it was indexed
			continue
		}
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Results = append(resp.Results, &models.SearchResult{
			Summary: sum,
			Score:   h.Score,
			Rank:    len(resp.Results) + 1,
		})
	}
	resp.Total = len(resp.Results)
	if resp.Total == 0 {
		resp.Suggestion, _ = s.index.Suggest(query.Query)
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	s.respondJSON(w, http.StatusOK, resp)
}

// InsightsResponse is the body returned by GET /api/v1/insights.
type InsightsResponse struct {
	From            string                   `json:"from"`
	To              string                   `json:"to"`
	Days            []*models.InsightsRollup `json:"days"`
	WordCount       int                      `json:"word_count"`
	SpeakingSeconds float64                  `json:"speaking_seconds"`
	SegmentCount    int                      `json:"segment_count"`
	Streak          int                      `json:"streak"`
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	loc := s.rollups.Location()
	now := time.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	to, from := today, today.AddDate(0, 0, -29)

	var err error
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.ParseInLocation(dateLayout, v, loc); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid to date, want YYYY-MM-DD")
			return
		}
		from = to.AddDate(0, 0, -29)
	}
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.ParseInLocation(dateLayout, v, loc); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid from date, want YYYY-MM-DD")
			return
		}
	}
	if to.Before(from) {
		s.respondError(w, http.StatusBadRequest, "to is before from")
		return
	}

	days, err := s.storage.ListInsights(r.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		s.logger.Error("insights failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := InsightsResponse{
		From: from.Format(dateLayout),
		To:   to.Format(dateLayout),
		Days: days,
		Streak: storage.Streak(days, func(t time.Time) time.Time {
			return t.In(loc).AddDate(0, 0, 1)
		}),
	}
	if resp.Days == nil {
		resp.Days = []*models.InsightsRollup{}
	}
	for _, d := range days {
		resp.WordCount += d.WordCount
		resp.SpeakingSeconds += d.SpeakingSeconds
		resp.SegmentCount += d.SegmentCount
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
