package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/nikki/internal/models"
)

// Client calls a running nikki server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Status fetches daemon status.
func (c *Client) Status() (*Status, error) {
	var s Status
	if err := c.do(http.MethodGet, "/api/v1/status", nil, &s, http.StatusOK); err != nil {
		return nil, err
	}
	return &s, nil
}

// Search runs a summary search. An exact query that finds nothing is retried as fuzzy.
func (c *Client) Search(query *models.SearchQuery) (*models.SearchResponse, error) {
	resp, err := c.search(query)
	if err != nil {
		return nil, err
	}
	if !query.Fuzzy && resp.Total == 0 {
		fuzzy := *query
		fuzzy.Fuzzy = true
		if fuzzyResp, err := c.search(&fuzzy); err == nil && fuzzyResp.Total > 0 {
			fuzzyResp.AutoFuzzy = true
			return fuzzyResp, nil
		}
	}
	return resp, nil
}

func (c *Client) search(query *models.SearchQuery) (*models.SearchResponse, error) {
	v := url.Values{}
	v.Set("q", query.Query)
	if query.Limit > 0 {
		v.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.PeriodType != "" {
		v.Set("level", string(query.PeriodType))
	}
	if query.Fuzzy {
		v.Set("fuzzy", "true")
	}
	var resp models.SearchResponse
	if err := c.do(http.MethodGet, "/api/v1/search?"+v.Encode(), nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateSessionSummary asks the server to (re)generate a session summary.
func (c *Client) GenerateSessionSummary(sessionID string, force bool, includeNotes *bool) (*models.Summary, error) {
	body := map[string]interface{}{"force": force}
	if includeNotes != nil {
		body["include_notes"] = *includeNotes
	}
	var sum models.Summary
	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/summary"
	if err := c.do(http.MethodPost, path, body, &sum, http.StatusOK); err != nil {
		return nil, err
	}
	return &sum, nil
}

// RefreshPeriod runs the rollup of level for the period containing date (YYYY-MM-DD).
func (c *Client) RefreshPeriod(level, date string, force bool) (*RefreshResult, error) {
	path := fmt.Sprintf("/api/v1/periods/%s/%s/refresh?force=%t", url.PathEscape(level), url.PathEscape(date), force)
	return c.refresh(path)
}

// WrapYear runs the year wrap-up.
func (c *Client) WrapYear(year int, force bool) (*RefreshResult, error) {
	return c.refresh(fmt.Sprintf("/api/v1/years/%d/wrap?force=%t", year, force))
}

// in_progress and failed outcomes come back as 409 and 502 with the same body
func (c *Client) refresh(path string) (*RefreshResult, error) {
	var res RefreshResult
	err := c.do(http.MethodPost, path, nil, &res, http.StatusOK, http.StatusConflict, http.StatusBadGateway)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Retry re-queues a failed chunk. It reports whether the chunk was queued.
func (c *Client) Retry(chunkID string) (bool, error) {
	var res struct {
		Queued bool `json:"queued"`
	}
	path := "/api/v1/chunks/" + url.PathEscape(chunkID) + "/retry"
	if err := c.do(http.MethodPost, path, nil, &res, http.StatusAccepted); err != nil {
		return false, err
	}
	return res.Queued, nil
}

func (c *Client) do(method, path string, body, out interface{}, accept ...int) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	ok := false
	for _, code := range accept {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		b, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
