package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/hyperjump/nikki/internal/models"
	"go.uber.org/zap"
)

// Extractive summarizes locally by picking lead sentences and frequent terms. It needs no
// network or model and is deterministic for a given input.
type Extractive struct {
	cache        *ChunkCache
	maxSentences int
	maxTopics    int
	logger       *zap.Logger
}

// NewExtractive returns an extractive engine. maxSentences is the number of lead sentences
// kept per chunk; maxTopics the number of topic terms extracted.
func NewExtractive(cache *ChunkCache, maxSentences, maxTopics int, logger *zap.Logger) *Extractive {
	if cache == nil {
		cache = NewChunkCache(1000)
	}
	if maxSentences <= 0 {
		maxSentences = 2
	}
	if maxTopics <= 0 {
		maxTopics = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractive{cache: cache, maxSentences: maxSentences, maxTopics: maxTopics, logger: logger}
}

// Tier returns "extractive".
func (e *Extractive) Tier() string { return "extractive" }

// SummarizeSession joins the lead sentences of each chunk, reusing cached chunk summaries.
func (e *Extractive) SummarizeSession(ctx context.Context, req SessionRequest) (*models.Summary, error) {
	chunks := req.Chunks
	if len(chunks) == 0 {
		chunks = []ChunkText{{ID: req.SessionID, Text: req.Text}}
	}
	parts := make([]string, 0, len(chunks))
	reused := 0
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hash := ChunkHash(ch.Text)
		if s, ok := e.cache.Get(ch.ID, hash); ok {
			reused++
			if s != "" {
				parts = append(parts, s)
			}
			continue
		}
		s := strings.Join(leadSentences(ch.Text, e.maxSentences), " ")
		e.cache.Set(ch.ID, hash, s)
		if s != "" {
			parts = append(parts, s)
		}
	}
	e.logger.Debug("extractive session summary",
		zap.String("session_id", req.SessionID),
		zap.Int("chunks", len(chunks)),
		zap.Int("reused", reused))

	text := strings.Join(parts, " ")
	if text == "" {
		return nil, fmt.Errorf("no sentences extracted for session %s", req.SessionID)
	}
	if req.Context != "" {
		text = text + "\n\n" + req.Context
	}
	topics, err := json.Marshal(topTerms(req.Text, e.maxTopics))
	if err != nil {
		return nil, fmt.Errorf("marshal topics: %w", err)
	}
	return &models.Summary{
		PeriodType: models.PeriodSession,
		SessionID:  req.SessionID,
		Text:       text,
		TopicsJSON: string(topics),
		EngineTier: e.Tier(),
	}, nil
}

type yearWrapInsights struct {
	Arcs       []arc    `json:"arcs"`
	Highlights []string `json:"highlights"`
	Topics     []string `json:"topics"`
	Categories string   `json:"categories,omitempty"`
}

type arc struct {
	Period string `json:"period"`
	Text   string `json:"text"`
}

// WrapYear builds a recap with one arc per source period plus recurring topics.
func (e *Extractive) WrapYear(ctx context.Context, req YearWrapRequest) (*models.Summary, error) {
	if len(req.Sources) == 0 {
		return nil, fmt.Errorf("year wrap needs at least one source summary")
	}
	insights := yearWrapInsights{Categories: req.CategoryContext}
	var all strings.Builder
	for _, src := range req.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		plain := stripBullets(src.Text)
		all.WriteString(plain)
		all.WriteString(" ")
		lead := leadSentences(plain, 1)
		if len(lead) == 0 {
			continue
		}
		insights.Arcs = append(insights.Arcs, arc{Period: periodLabel(src), Text: lead[0]})
		insights.Highlights = append(insights.Highlights, lead[0])
	}
	insights.Topics = topTerms(all.String(), e.maxTopics)

	var b strings.Builder
	fmt.Fprintf(&b, "%d in review: %d periods recorded.", req.Start.Year(), len(req.Sources))
	if len(insights.Topics) > 0 {
		fmt.Fprintf(&b, " Recurring themes: %s.", strings.Join(insights.Topics, ", "))
	}
	for _, a := range insights.Arcs {
		fmt.Fprintf(&b, "\n%s: %s", a.Period, a.Text)
	}

	entities, err := json.Marshal(insights)
	if err != nil {
		return nil, fmt.Errorf("marshal year wrap insights: %w", err)
	}
	topics, err := json.Marshal(insights.Topics)
	if err != nil {
		return nil, fmt.Errorf("marshal topics: %w", err)
	}
	return &models.Summary{
		PeriodType:   models.PeriodYearWrap,
		PeriodStart:  req.Start,
		PeriodEnd:    req.End,
		Text:         b.String(),
		TopicsJSON:   string(topics),
		EntitiesJSON: string(entities),
		EngineTier:   e.Tier(),
	}, nil
}

// ClearChangedChunkSummaries drops cached chunk summaries whose text changed.
func (e *Extractive) ClearChangedChunkSummaries(_ context.Context, chunks []ChunkText) ([]string, error) {
	return e.cache.Stale(chunks), nil
}

// Unload is a no-op; the extractive engine holds no model.
func (e *Extractive) Unload() {}

func periodLabel(s *models.Summary) string {
	switch s.PeriodType {
	case models.PeriodMonth:
		return s.PeriodStart.Format("January")
	case models.PeriodWeek:
		return "Week of " + s.PeriodStart.Format("Jan 2")
	default:
		return s.PeriodStart.Format("Jan 2")
	}
}

// stripBullets turns a bullet rollup back into running text.
func stripBullets(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(l), "•-* "))
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, " ")
}

// leadSentences returns up to n sentences from the start of text.
func leadSentences(text string, n int) []string {
	text = models.NormalizeText(text)
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if len(out) == n {
			break
		}
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if len(out) < n {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true, "with": true, "was": true,
	"are": true, "but": true, "not": true, "you": true, "have": true, "had": true, "has": true,
	"just": true, "from": true, "they": true, "she": true, "him": true, "her": true, "his": true,
	"our": true, "out": true, "what": true, "when": true, "then": true, "them": true, "were": true,
	"been": true, "really": true, "about": true, "there": true, "which": true, "would": true,
	"could": true, "some": true, "like": true, "into": true, "also": true, "very": true,
	"today": true, "going": true, "think": true, "know": true, "well": true, "yeah": true,
	"its": true, "it's": true, "i'm": true, "don't": true, "can": true, "all": true, "one": true,
	"get": true, "got": true, "did": true, "too": true, "more": true, "lot": true, "much": true,
}

// topTerms returns the n most frequent non-stop words, ties broken alphabetically.
func topTerms(text string, n int) []string {
	counts := make(map[string]int)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}) {
		w = strings.Trim(w, "'")
		if len([]rune(w)) < 3 || stopWords[w] {
			continue
		}
		counts[w]++
	}
	terms := make([]string, 0, len(counts))
	for w := range counts {
		terms = append(terms, w)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}
