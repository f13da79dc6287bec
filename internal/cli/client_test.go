package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/nikki/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SearchRetriesFuzzy(t *testing.T) {
	var fuzzyFlags []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/search", r.URL.Path)
		assert.Equal(t, "day", r.URL.Query().Get("level"))
		fuzzy := r.URL.Query().Get("fuzzy")
		fuzzyFlags = append(fuzzyFlags, fuzzy)
		resp := models.SearchResponse{Query: r.URL.Query().Get("q"), Results: []*models.SearchResult{}}
		if fuzzy == "true" {
			resp.Results = append(resp.Results, &models.SearchResult{Summary: daySummary(), Score: 0.5, Rank: 1})
			resp.Total = 1
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	resp, err := NewClient(ts.URL + "/").Search(&models.SearchQuery{Query: "sourdugh", Limit: 5, PeriodType: models.PeriodDay})
	require.NoError(t, err)
	assert.Equal(t, []string{"", "true"}, fuzzyFlags)
	assert.True(t, resp.AutoFuzzy)
	assert.Equal(t, 1, resp.Total)
}

func TestClient_RefreshAcceptsInProgress(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/periods/week/2024-03-13/refresh", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("force"))
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"outcome":"in_progress","summary":null}`))
	}))
	defer ts.Close()

	res, err := NewClient(ts.URL).RefreshPeriod("week", "2024-03-13", true)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", res.Outcome)
	assert.Nil(t, res.Summary)
}

func TestClient_GenerateSessionSummary(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sessions/s1/summary", r.URL.Path)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["force"])
		assert.Equal(t, false, body["include_notes"])
		sum := daySummary()
		sum.PeriodType = models.PeriodSession
		sum.SessionID = "s1"
		_ = json.NewEncoder(w).Encode(sum)
	}))
	defer ts.Close()

	notes := false
	sum, err := NewClient(ts.URL).GenerateSessionSummary("s1", true, &notes)
	require.NoError(t, err)
	assert.Equal(t, "s1", sum.SessionID)
}

func TestClient_ErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"session transcription is incomplete"}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).GenerateSessionSummary("s1", false, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "session transcription is incomplete")
}

func TestClient_RetryAndStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chunks/c1/retry", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"chunk_id":"c1","queued":true}`))
	})
	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chunks":2,"summaries":{"session":1},"search_documents":1}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := NewClient(ts.URL)
	queued, err := c.Retry("c1")
	require.NoError(t, err)
	assert.True(t, queued)

	status, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.Chunks)
	assert.Equal(t, int64(1), status.Summaries[models.PeriodSession])
	require.NotNil(t, status.SearchDocuments)
	assert.Equal(t, uint64(1), *status.SearchDocuments)
}
