package summarizer

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/nikki/internal/models"
)

func TestLeadSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want []string
	}{
		{"two of three", "Hello there. I went to the park! Was it fun? Yes", 2, []string{"Hello there.", "I went to the park!"}},
		{"no punctuation", "no punctuation here", 2, []string{"no punctuation here"}},
		{"decimal kept", "It cost 3.50 today. Fine.", 1, []string{"It cost 3.50 today."}},
		{"whitespace", "  one.\n\n two.  ", 5, []string{"one.", "two."}},
		{"empty", "   ", 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := leadSentences(tt.text, tt.n)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("leadSentences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTopTerms(t *testing.T) {
	got := topTerms("Coffee coffee garden garden garden tea the the the", 2)
	want := []string{"garden", "coffee"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("topTerms() = %v, want %v", got, want)
	}
	if got := topTerms("", 3); len(got) != 0 {
		t.Errorf("expected no terms, got %v", got)
	}
}

func TestExtractive_SummarizeSession(t *testing.T) {
	cache := NewChunkCache(10)
	e := NewExtractive(cache, 1, 3, nil)
	req := SessionRequest{
		SessionID: "s1",
		Chunks: []ChunkText{
			{ID: "c1", Text: "Walked the dog in the morning. It rained."},
			{ID: "c2", Text: "Cooked pasta for dinner. The dog slept."},
		},
		Text:    "Walked the dog in the morning. It rained. Cooked pasta for dinner. The dog slept.",
		Context: "Notes: quiet day",
	}

	sum, err := e.SummarizeSession(context.Background(), req)
	if err != nil {
		t.Fatalf("SummarizeSession: %v", err)
	}
	wantText := "Walked the dog in the morning. Cooked pasta for dinner.\n\nNotes: quiet day"
	if sum.Text != wantText {
		t.Errorf("Text = %q, want %q", sum.Text, wantText)
	}
	if sum.PeriodType != models.PeriodSession || sum.SessionID != "s1" || sum.EngineTier != "extractive" {
		t.Errorf("unexpected summary fields: %+v", sum)
	}
	var topics []string
	if err := json.Unmarshal([]byte(sum.TopicsJSON), &topics); err != nil {
		t.Fatalf("TopicsJSON: %v", err)
	}
	if len(topics) == 0 || topics[0] != "dog" {
		t.Errorf("topics = %v, want dog first", topics)
	}
	if cache.Len() != 2 {
		t.Errorf("cache Len = %d, want 2", cache.Len())
	}

	stale, err := e.ClearChangedChunkSummaries(context.Background(), []ChunkText{
		{ID: "c1", Text: "Walked the dog in the morning. It rained."},
		{ID: "c2", Text: "Ordered takeout instead."},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(stale, []string{"c2"}) {
		t.Errorf("stale = %v, want [c2]", stale)
	}
}

func TestExtractive_EmptyText(t *testing.T) {
	e := NewExtractive(nil, 2, 5, nil)
	if _, err := e.SummarizeSession(context.Background(), SessionRequest{SessionID: "s", Text: "  "}); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestExtractive_WrapYear(t *testing.T) {
	e := NewExtractive(nil, 2, 3, nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	req := YearWrapRequest{
		Start: start,
		End:   end,
		Sources: []*models.Summary{
			{PeriodType: models.PeriodMonth, PeriodStart: start, Text: "• Started running again. Felt good.\n• Running in the snow."},
			{PeriodType: models.PeriodMonth, PeriodStart: start.AddDate(0, 1, 0), Text: "• First running race."},
		},
		CategoryContext: "Sessions: 3 work, 5 personal.",
	}
	sum, err := e.WrapYear(context.Background(), req)
	if err != nil {
		t.Fatalf("WrapYear: %v", err)
	}
	if !strings.HasPrefix(sum.Text, "2024 in review: 2 periods recorded.") {
		t.Errorf("Text = %q", sum.Text)
	}
	if !strings.Contains(sum.Text, "January: Started running again.") {
		t.Errorf("missing January arc: %q", sum.Text)
	}

	var insights struct {
		Arcs       []map[string]string `json:"arcs"`
		Highlights []string            `json:"highlights"`
		Topics     []string            `json:"topics"`
		Categories string              `json:"categories"`
	}
	if err := json.Unmarshal([]byte(sum.EntitiesJSON), &insights); err != nil {
		t.Fatalf("EntitiesJSON: %v", err)
	}
	if len(insights.Arcs) != 2 || insights.Arcs[1]["period"] != "February" {
		t.Errorf("arcs = %v", insights.Arcs)
	}
	if len(insights.Topics) == 0 || insights.Topics[0] != "running" {
		t.Errorf("topics = %v", insights.Topics)
	}
	if insights.Categories != req.CategoryContext {
		t.Errorf("categories = %q", insights.Categories)
	}

	if _, err := e.WrapYear(context.Background(), YearWrapRequest{Start: start, End: end}); err == nil {
		t.Error("expected error with no sources")
	}
}
