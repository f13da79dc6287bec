package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/nikki/internal/models"
	"go.uber.org/zap"
)

// OpenAI summarizes with an OpenAI-compatible chat completions endpoint.
// Each chunk is condensed to notes first; the notes are cached so a forced regeneration
// only resends chunks whose text changed.
type OpenAI struct {
	endpoint   string
	apiKey     string
	model      string
	cache      *ChunkCache
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOpenAI creates an engine that posts to endpoint (a full /v1/chat/completions URL).
func NewOpenAI(endpoint, apiKey, model string, cache *ChunkCache, logger *zap.Logger) *OpenAI {
	if cache == nil {
		cache = NewChunkCache(1000)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAI{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		cache:      cache,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     logger,
	}
}

// Tier returns the model name.
func (o *OpenAI) Tier() string { return o.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const chunkPrompt = `You condense one part of a personal voice journal into short notes.
Keep names, places, feelings and decisions. Write in the first person. Reply with the notes only.`

const sessionPrompt = `You summarize a personal voice journal entry from notes about its parts.
Respond ONLY with valid JSON: {"summary": "2-4 sentences in the first person", "topics": ["up to 5 short topics"]}`

const wrapPrompt = `You write a warm year-in-review for a personal voice journal from its monthly summaries.
Respond ONLY with valid JSON:
{"summary": "one paragraph", "arcs": ["story arcs across the year"], "wins": [], "losses": [], "people": [], "places": []}`

// SummarizeSession condenses changed chunks to notes, then summarizes the notes.
func (o *OpenAI) SummarizeSession(ctx context.Context, req SessionRequest) (*models.Summary, error) {
	chunks := req.Chunks
	if len(chunks) == 0 {
		chunks = []ChunkText{{ID: req.SessionID, Text: req.Text}}
	}

	notes := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		hash := ChunkHash(ch.Text)
		if n, ok := o.cache.Get(ch.ID, hash); ok {
			notes = append(notes, n)
			continue
		}
		n, err := o.complete(ctx, []chatMessage{
			{Role: "system", Content: chunkPrompt},
			{Role: "user", Content: ch.Text},
		}, false)
		if err != nil {
			return nil, fmt.Errorf("summarize chunk %s: %w", ch.ID, err)
		}
		n = strings.TrimSpace(n)
		o.cache.Set(ch.ID, hash, n)
		notes = append(notes, n)
	}

	user := strings.Join(notes, "\n\n")
	if req.Context != "" {
		user = req.Context + "\n\n" + user
	}
	content, err := o.complete(ctx, []chatMessage{
		{Role: "system", Content: sessionPrompt},
		{Role: "user", Content: user},
	}, true)
	if err != nil {
		return nil, fmt.Errorf("summarize session %s: %w", req.SessionID, err)
	}

	var out struct {
		Summary string   `json:"summary"`
		Topics  []string `json:"topics"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("failed to parse session summary: %w", err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return nil, fmt.Errorf("model returned an empty summary")
	}
	if out.Topics == nil {
		out.Topics = []string{}
	}
	topics, err := json.Marshal(out.Topics)
	if err != nil {
		return nil, fmt.Errorf("marshal topics: %w", err)
	}
	return &models.Summary{
		PeriodType: models.PeriodSession,
		SessionID:  req.SessionID,
		Text:       out.Summary,
		TopicsJSON: string(topics),
		EngineTier: o.Tier(),
	}, nil
}

// WrapYear asks the model for a structured year in review.
func (o *OpenAI) WrapYear(ctx context.Context, req YearWrapRequest) (*models.Summary, error) {
	if len(req.Sources) == 0 {
		return nil, fmt.Errorf("year wrap needs at least one source summary")
	}
	var b strings.Builder
	if req.CategoryContext != "" {
		b.WriteString(req.CategoryContext)
		b.WriteString("\n\n")
	}
	for _, src := range req.Sources {
		fmt.Fprintf(&b, "## %s\n%s\n\n", periodLabel(src), src.Text)
	}

	content, err := o.complete(ctx, []chatMessage{
		{Role: "system", Content: wrapPrompt},
		{Role: "user", Content: b.String()},
	}, true)
	if err != nil {
		return nil, fmt.Errorf("wrap year %d: %w", req.Start.Year(), err)
	}

	var out struct {
		Summary string   `json:"summary"`
		Arcs    []string `json:"arcs"`
		Wins    []string `json:"wins"`
		Losses  []string `json:"losses"`
		People  []string `json:"people"`
		Places  []string `json:"places"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("failed to parse year wrap: %w", err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return nil, fmt.Errorf("model returned an empty year wrap")
	}
	// keep the structured fields verbatim for the client
	entities, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal year wrap: %w", err)
	}
	topics := out.Arcs
	if topics == nil {
		topics = []string{}
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return nil, fmt.Errorf("marshal topics: %w", err)
	}
	return &models.Summary{
		PeriodType:   models.PeriodYearWrap,
		PeriodStart:  req.Start,
		PeriodEnd:    req.End,
		Text:         out.Summary,
		TopicsJSON:   string(topicsJSON),
		EntitiesJSON: string(entities),
		EngineTier:   o.Tier(),
	}, nil
}

// ClearChangedChunkSummaries drops cached notes for chunks whose text changed.
func (o *OpenAI) ClearChangedChunkSummaries(_ context.Context, chunks []ChunkText) ([]string, error) {
	return o.cache.Stale(chunks), nil
}

// Unload closes idle connections to the endpoint.
func (o *OpenAI) Unload() {
	o.httpClient.CloseIdleConnections()
}

func (o *OpenAI) complete(ctx context.Context, messages []chatMessage, jsonMode bool) (string, error) {
	body := chatRequest{Model: o.model, Messages: messages, Temperature: 0.3}
	if jsonMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	o.logger.Debug("chat completion",
		zap.String("model", o.model),
		zap.Duration("took", time.Since(start)))
	return cr.Choices[0].Message.Content, nil
}
