// Package search provides full-text search over journal summaries using Bleve.
package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/nikki/internal/events"
	"github.com/hyperjump/nikki/internal/models"
	"go.uber.org/zap"
)

// Index is a Bleve index with one document per summary slot: a session, or a period
// (type and start). Replacing a session summary overwrites its slot.
type Index struct {
	index  bleve.Index
	logger *zap.Logger
}

// Options narrows a search.
type Options struct {
	// PeriodType restricts hits to one level when set.
	PeriodType models.PeriodType
	// Fuzzy matches terms within edit distance 1 for typo tolerance.
	Fuzzy bool
}

// Hit is one search result.
type Hit struct {
	SummaryID  string            `json:"summary_id"`
	PeriodType models.PeriodType `json:"period_type"`
	Score      float64           `json:"score"`
}

type document struct {
	SummaryID  string `json:"summary_id"`
	PeriodType string `json:"period_type"`
	Text       string `json:"text"`
	Topics     string `json:"topics"`
}

// Open creates or opens a Bleve index at path. An existing index is reused; remove the
// directory after changing the mapping to rebuild it.
func Open(path string, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &Index{index: index, logger: logger}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &Index{index: index, logger: logger}, nil
}

// NewMemory returns an in-memory index, for tests.
func NewMemory(logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &Index{index: index, logger: logger}, nil
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// standard analyzer: lowercase and tokenize without stemming, so names match as spoken
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("topics", textFieldMapping)

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	keywordFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("summary_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("period_type", keywordFieldMapping)

	im.AddDocumentMapping("summary", docMapping)
	im.DefaultType = "summary"
	im.DefaultMapping = docMapping
	return im
}

// slot returns the document ID for a summary.
func slot(sum *models.Summary) string {
	if sum.PeriodType == models.PeriodSession {
		return "session/" + sum.SessionID
	}
	return fmt.Sprintf("%s/%d", sum.PeriodType, sum.PeriodStart.Unix())
}

// Index adds or replaces sum.
func (x *Index) Index(_ context.Context, sum *models.Summary) error {
	doc := document{
		SummaryID:  sum.ID,
		PeriodType: string(sum.PeriodType),
		Text:       sum.Text,
		Topics:     sum.TopicsJSON,
	}
	if err := x.index.Index(slot(sum), doc); err != nil {
		return fmt.Errorf("failed to index summary %s: %w", sum.ID, err)
	}
	return nil
}

// Delete removes the slot of sum.
func (x *Index) Delete(_ context.Context, sum *models.Summary) error {
	return x.index.Delete(slot(sum))
}

// Search runs a match query over text and topics and returns up to limit hits, best first.
func (x *Index) Search(_ context.Context, query string, limit int, opts Options) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var q blevequery.Query
	if opts.Fuzzy {
		q = fuzzyQuery(query)
	} else {
		q = bleve.NewMatchQuery(query)
	}
	if opts.PeriodType != "" {
		tq := bleve.NewTermQuery(string(opts.PeriodType))
		tq.SetField("period_type")
		q = bleve.NewConjunctionQuery(q, tq)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"summary_id", "period_type"}
	results, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	hits := make([]Hit, 0, len(results.Hits))
	for _, h := range results.Hits {
		id, _ := h.Fields["summary_id"].(string)
		pt, _ := h.Fields["period_type"].(string)
		hits = append(hits, Hit{SummaryID: id, PeriodType: models.PeriodType(pt), Score: h.Score})
	}
	return hits, nil
}

// fuzzyQuery matches any query term within edit distance 1 in text or topics.
func fuzzyQuery(query string) blevequery.Query {
	var disjuncts []blevequery.Query
	for _, term := range strings.Fields(strings.ToLower(query)) {
		for _, field := range []string{"text", "topics"} {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(1)
			fq.SetField(field)
			disjuncts = append(disjuncts, fq)
		}
	}
	return bleve.NewDisjunctionQuery(disjuncts...)
}

// Count returns the number of indexed summaries.
func (x *Index) Count() (uint64, error) {
	return x.index.DocCount()
}

// Subscribe indexes every summary published on bus and returns the unsubscribe function.
func (x *Index) Subscribe(bus *events.Bus) func() {
	return bus.Subscribe(func(ev events.Event) {
		if ev.Kind != events.SummaryUpdated || ev.Summary == nil {
			return
		}
		if err := x.Index(context.Background(), ev.Summary); err != nil {
			x.logger.Warn("failed to index summary", zap.String("summary_id", ev.Summary.ID), zap.Error(err))
		}
	})
}

// Close closes the index.
func (x *Index) Close() error {
	return x.index.Close()
}
