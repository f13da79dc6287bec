package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/nikki/internal/guard"
	"github.com/hyperjump/nikki/internal/models"
	"github.com/hyperjump/nikki/internal/rollup"
	"github.com/hyperjump/nikki/internal/storage"
	"go.uber.org/zap"
)

func (s *Server) handleGetSessionSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sum, err := s.storage.GetSessionSummary(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sum == nil {
		s.respondError(w, http.StatusNotFound, "session summary not found")
		return
	}
	s.respondJSON(w, http.StatusOK, sum)
}

type generateRequest struct {
	Force        bool  `json:"force"`
	IncludeNotes *bool `json:"include_notes,omitempty"`
}

func (s *Server) handleGenerateSessionSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	includeNotes := s.rollups.IncludeNotes()
	if req.IncludeNotes != nil {
		includeNotes = *req.IncludeNotes
	}

	complete, err := s.storage.IsSessionTranscriptionComplete(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !complete {
		// also covers unknown sessions, which have no chunks
		if _, err := s.storage.GetSession(r.Context(), id); errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "session not found")
			return
		}
		s.respondError(w, http.StatusConflict, "session transcription is incomplete")
		return
	}

	s.logger.Debug("generate session summary request",
		zap.String("session_id", id),
		zap.Bool("force", req.Force),
		zap.Bool("include_notes", includeNotes))
	sum, err := s.rollups.GenerateSessionSummary(r.Context(), id, rollup.SessionOptions{
		Force:        req.Force,
		IncludeNotes: includeNotes,
	})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, rollup.ErrEmptyTranscript):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		s.logger.Error("session summary failed", zap.String("session_id", id), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.respondJSON(w, http.StatusOK, sum)
	}
}

type metadataRequest struct {
	Title    string          `json:"title"`
	Notes    string          `json:"notes"`
	Favorite bool            `json:"favorite"`
	Category models.Category `json:"category"`
}

func (s *Server) handleUpdateSessionMetadata(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req metadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Category.Valid() {
		s.respondError(w, http.StatusBadRequest, "category must be work, personal or empty")
		return
	}
	meta := &models.SessionMetadata{
		SessionID: id,
		Title:     req.Title,
		Notes:     req.Notes,
		Favorite:  req.Favorite,
		Category:  req.Category,
	}
	if err := s.rollups.UpdateSessionMetadata(r.Context(), meta); err != nil {
		s.logger.Error("update metadata failed", zap.String("session_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stored, err := s.storage.GetSessionMetadata(r.Context(), id)
	if err != nil || stored == nil {
		stored = meta
	}
	s.respondJSON(w, http.StatusOK, stored)
}

type segmentEditRequest struct {
	Text string `json:"text"`
}

// SegmentEditResponse is the body returned by PATCH /api/v1/segments/{id}. Summary is nil
// while the session is still being transcribed.
type SegmentEditResponse struct {
	Segment *models.TranscriptSegment `json:"segment"`
	Summary *models.Summary           `json:"summary"`
}

func (s *Server) handleEditSegment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req segmentEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text := strings.TrimSpace(req.Text)
	seg, sum, err := s.rollups.ApplySegmentEdit(r.Context(), id, text)
	switch {
	case seg == nil && errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "segment not found")
		return
	case seg == nil && err != nil:
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	case err != nil:
		// the edit is stored; only the summary refresh failed
		s.logger.Warn("summary refresh after edit failed", zap.String("segment_id", id), zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, SegmentEditResponse{Segment: seg, Summary: sum})
}

// RefreshResponse reports the outcome of a rollup and the stored summary afterwards.
type RefreshResponse struct {
	Outcome rollup.Outcome  `json:"outcome"`
	Summary *models.Summary `json:"summary"`
}

func (s *Server) parsePeriod(w http.ResponseWriter, r *http.Request) (guard.Level, time.Time, bool) {
	level, err := guard.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return 0, time.Time{}, false
	}
	date, err := time.ParseInLocation(dateLayout, chi.URLParam(r, "date"), s.rollups.Location())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return 0, time.Time{}, false
	}
	return level, date, true
}

func (s *Server) handleGetPeriod(w http.ResponseWriter, r *http.Request) {
	level, date, ok := s.parsePeriod(w, r)
	if !ok {
		return
	}
	sum, err := s.rollups.GetPeriodSummary(r.Context(), level, date)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sum == nil {
		s.respondError(w, http.StatusNotFound, level.String()+" summary not found")
		return
	}
	s.respondJSON(w, http.StatusOK, sum)
}

func (s *Server) handleRefreshPeriod(w http.ResponseWriter, r *http.Request) {
	level, date, ok := s.parsePeriod(w, r)
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "true"
	s.logger.Debug("refresh period request", zap.Stringer("level", level), zap.Time("date", date), zap.Bool("force", force))
	outcome, err := s.rollups.RefreshPeriod(r.Context(), level, date, force)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondOutcome(w, r, level, date, outcome)
}

func (s *Server) parseYear(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1 || year > 9999 {
		s.respondError(w, http.StatusBadRequest, "invalid year")
		return time.Time{}, false
	}
	return time.Date(year, time.January, 1, 0, 0, 0, 0, s.rollups.Location()), true
}

func (s *Server) handleWrapYear(w http.ResponseWriter, r *http.Request) {
	date, ok := s.parseYear(w, r)
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "true"
	outcome := s.rollups.WrapUpYear(r.Context(), date, force)
	s.respondOutcome(w, r, guard.LevelYearWrap, date, outcome)
}

// StalenessResponse tells whether a year wrap-up lags behind the journal.
type StalenessResponse struct {
	Year        int        `json:"year"`
	NewSessions int        `json:"new_sessions"`
	Stale       bool       `json:"stale"`
	WrappedAt   *time.Time `json:"wrapped_at,omitempty"`
}

func (s *Server) handleWrapStaleness(w http.ResponseWriter, r *http.Request) {
	date, ok := s.parseYear(w, r)
	if !ok {
		return
	}
	n, err := s.rollups.NewSessionsSinceYearWrap(r.Context(), date)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := StalenessResponse{Year: date.Year(), NewSessions: n, Stale: n > 0}
	wrap, err := s.rollups.GetPeriodSummary(r.Context(), guard.LevelYearWrap, date)
	if err == nil && wrap != nil {
		resp.WrappedAt = &wrap.UpdatedAt
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondOutcome(w http.ResponseWriter, r *http.Request, level guard.Level, date time.Time, outcome rollup.Outcome) {
	resp := RefreshResponse{Outcome: outcome}
	sum, err := s.rollups.GetPeriodSummary(r.Context(), level, date)
	if err == nil {
		resp.Summary = sum
	}
	status := http.StatusOK
	switch outcome {
	case rollup.OutcomeInProgress:
		status = http.StatusConflict
	case rollup.OutcomeFailed:
		status = http.StatusBadGateway
	}
	s.respondJSON(w, status, resp)
}
