package summarizer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hyperjump/nikki/internal/models"
)

// Mock is a deterministic engine for tests. It records every call.
type Mock struct {
	mu sync.Mutex

	// Err, when set, is returned by SummarizeSession and WrapYear.
	Err error
	// StaleIDs is returned by ClearChangedChunkSummaries; nil returns every chunk ID.
	StaleIDs []string

	sessionCalls int
	wrapCalls    int
	clearCalls   int
	unloadCalls  int
	lastSession  SessionRequest
	lastWrap     YearWrapRequest
}

// NewMock returns a mock engine.
func NewMock() *Mock {
	return &Mock{}
}

// Tier returns "mock".
func (m *Mock) Tier() string { return "mock" }

// SummarizeSession returns "summary of <session>: <text>".
func (m *Mock) SummarizeSession(_ context.Context, req SessionRequest) (*models.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionCalls++
	m.lastSession = req
	if m.Err != nil {
		return nil, m.Err
	}
	return &models.Summary{
		PeriodType: models.PeriodSession,
		SessionID:  req.SessionID,
		Text:       fmt.Sprintf("summary of %s: %s", req.SessionID, req.Text),
		TopicsJSON: "[]",
		EngineTier: "mock",
	}, nil
}

// WrapYear returns the source texts joined with " | ".
func (m *Mock) WrapYear(_ context.Context, req YearWrapRequest) (*models.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wrapCalls++
	m.lastWrap = req
	if m.Err != nil {
		return nil, m.Err
	}
	texts := make([]string, len(req.Sources))
	for i, s := range req.Sources {
		texts[i] = s.Text
	}
	return &models.Summary{
		PeriodType:   models.PeriodYearWrap,
		PeriodStart:  req.Start,
		PeriodEnd:    req.End,
		Text:         strings.Join(texts, " | "),
		TopicsJSON:   "[]",
		EntitiesJSON: "{}",
		EngineTier:   "mock",
	}, nil
}

// ClearChangedChunkSummaries returns StaleIDs, or all chunk IDs when StaleIDs is nil.
func (m *Mock) ClearChangedChunkSummaries(_ context.Context, chunks []ChunkText) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
	if m.StaleIDs != nil {
		return m.StaleIDs, nil
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids, nil
}

// Unload counts calls.
func (m *Mock) Unload() {
	m.mu.Lock()
	m.unloadCalls++
	m.mu.Unlock()
}

// SetErr sets the error returned by summarize calls.
func (m *Mock) SetErr(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}

// SessionCalls returns the number of SummarizeSession calls.
func (m *Mock) SessionCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionCalls
}

// WrapCalls returns the number of WrapYear calls.
func (m *Mock) WrapCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wrapCalls
}

// ClearCalls returns the number of ClearChangedChunkSummaries calls.
func (m *Mock) ClearCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearCalls
}

// UnloadCalls returns the number of Unload calls.
func (m *Mock) UnloadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unloadCalls
}

// LastSession returns the most recent session request.
func (m *Mock) LastSession() SessionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSession
}

// LastWrap returns the most recent year wrap request.
func (m *Mock) LastWrap() YearWrapRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastWrap
}
