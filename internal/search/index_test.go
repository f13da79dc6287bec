package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/nikki/internal/events"
	"github.com/hyperjump/nikki/internal/models"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "summaries"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

var march = time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)

func TestIndex_SearchFindsText(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	session := &models.Summary{ID: "sum-1", PeriodType: models.PeriodSession, SessionID: "s1",
		Text: "Met Omnisyan at the bakery and talked about Lisbon.", TopicsJSON: `["travel"]`}
	day := &models.Summary{ID: "sum-2", PeriodType: models.PeriodDay, PeriodStart: march,
		Text: "• Met Omnisyan at the bakery", TopicsJSON: "[]"}
	for _, s := range []*models.Summary{session, day} {
		if err := idx.Index(ctx, s); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}

	hits, err := idx.Search(ctx, "omnisyan", 10, Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}

	hits, err = idx.Search(ctx, "omnisyan", 10, Options{PeriodType: models.PeriodDay})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].SummaryID != "sum-2" || hits[0].PeriodType != models.PeriodDay {
		t.Errorf("filtered hits = %+v", hits)
	}

	hits, err = idx.Search(ctx, "travel", 10, Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].SummaryID != "sum-1" {
		t.Errorf("topic hits = %+v", hits)
	}

	// level names are not searchable text
	hits, err = idx.Search(ctx, "day", 10, Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits for level name, got %+v", hits)
	}
}

func TestIndex_FuzzyToleratesTypos(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.Index(ctx, &models.Summary{ID: "a", PeriodType: models.PeriodSession, SessionID: "s", Text: "went climbing"}); err != nil {
		t.Fatal(err)
	}

	hits, _ := idx.Search(ctx, "climbimg", 10, Options{})
	if len(hits) != 0 {
		t.Errorf("exact search should miss a typo, got %+v", hits)
	}
	hits, err := idx.Search(ctx, "climbimg", 10, Options{Fuzzy: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("fuzzy search got %d hits, want 1", len(hits))
	}
}

func TestIndex_ReplacedSessionSummaryKeepsOneDocument(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	bus := events.NewBus(nil)
	unsubscribe := idx.Subscribe(bus)
	defer unsubscribe()

	bus.Publish(events.Event{Kind: events.SummaryUpdated, Summary: &models.Summary{
		ID: "old", PeriodType: models.PeriodSession, SessionID: "s1", Text: "first draft about gardening"}})
	bus.Publish(events.Event{Kind: events.SummaryUpdated, Summary: &models.Summary{
		ID: "new", PeriodType: models.PeriodSession, SessionID: "s1", Text: "gardening and tomatoes"}})
	bus.Publish(events.Event{Kind: events.PeriodsUpdated, SessionID: "s1"})

	n, err := idx.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
	hits, err := idx.Search(ctx, "gardening", 10, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].SummaryID != "new" {
		t.Errorf("hits = %+v", hits)
	}

	if err := idx.Delete(ctx, &models.Summary{PeriodType: models.PeriodSession, SessionID: "s1"}); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.Count(); n != 0 {
		t.Errorf("Count after delete = %d", n)
	}
}

func TestIndex_ReopenKeepsDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summaries")
	idx, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Index(context.Background(), &models.Summary{ID: "x", PeriodType: models.PeriodMonth, PeriodStart: march, Text: "spring"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	idx, err = Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	if n, _ := idx.Count(); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestIndex_EmptyQuery(t *testing.T) {
	idx, err := NewMemory(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	hits, err := idx.Search(context.Background(), "   ", 5, Options{})
	if err != nil || len(hits) != 0 {
		t.Errorf("Search = %v, %v", hits, err)
	}
}

func TestIndex_Suggest(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	for i, text := range []string{"Baked sourdough bread", "More sourdough today", "Walked to the river"} {
		sum := &models.Summary{ID: string(rune('a' + i)), PeriodType: models.PeriodDay,
			PeriodStart: march.AddDate(0, 0, i), Text: text, TopicsJSON: "[]"}
		if err := idx.Index(ctx, sum); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}

	got, ok := idx.Suggest("sourdugh river")
	if !ok || got != "sourdough river" {
		t.Errorf("Suggest = %q, %v; want \"sourdough river\", true", got, ok)
	}
	if _, ok := idx.Suggest("river bread"); ok {
		t.Error("known terms need no suggestion")
	}
	if _, ok := idx.Suggest("xylophone"); ok {
		t.Error("a term far from every indexed term has no suggestion")
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"sourdugh", "sourdough", 1},
		{"café", "cafe", 1},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
