package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/nikki/internal/models"
)

func daySummary() *models.Summary {
	day := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)
	return &models.Summary{
		ID:          "sum-day",
		PeriodType:  models.PeriodDay,
		PeriodStart: day,
		PeriodEnd:   day.AddDate(0, 0, 1),
		Text:        "• Morning walk by the river",
		TopicsJSON:  `["walk","river"]`,
		EngineTier:  models.EngineTierRollup,
		UpdatedAt:   day.Add(20 * time.Hour),
	}
}

func TestParseOutputFormat(t *testing.T) {
	for _, s := range []string{"text", "json"} {
		f, err := ParseOutputFormat(s)
		if err != nil || string(f) != s {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", s, f, err)
		}
	}
	if _, err := ParseOutputFormat("compact"); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	response := &models.SearchResponse{
		Query:     "walk",
		QueryTime: 7,
		Total:     1,
		Results:   []*models.SearchResult{{Summary: daySummary(), Score: 1.25, Rank: 1}},
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.SearchResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Total != 1 || decoded.Results[0].Summary.ID != "sum-day" {
		t.Errorf("unexpected decoded response: %+v", decoded)
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	response := &models.SearchResponse{
		Query:     "walk",
		Total:     1,
		AutoFuzzy: true,
		Results:   []*models.SearchResult{{Summary: daySummary(), Score: 1.25, Rank: 1}},
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 1 results", "fuzzy matches", "[day] 2024-03-13", "ID: sum-day", "Morning walk"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSummary_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummary(&buf, daySummary(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "topics:  walk, river") {
		t.Errorf("topics line missing:\n%s", out)
	}
	if !strings.Contains(out, "engine:  rollup") {
		t.Errorf("engine line missing:\n%s", out)
	}

	session := daySummary()
	session.PeriodType = models.PeriodSession
	session.SessionID = "s1"
	session.TopicsJSON = "not json"
	buf.Reset()
	if err := WriteSummary(&buf, session, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "[session s1]") {
		t.Errorf("session label missing:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "topics:") {
		t.Error("unparseable topics should be omitted")
	}
}

func TestWriteRefresh(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRefresh(&buf, &RefreshResult{Outcome: "empty"}, OutputText); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "outcome: empty\n" {
		t.Errorf("got %q", buf.String())
	}

	buf.Reset()
	if err := WriteRefresh(&buf, &RefreshResult{Outcome: "generated", Summary: daySummary()}, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded RefreshResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Outcome != "generated" || decoded.Summary == nil || decoded.Summary.ID != "sum-day" {
		t.Errorf("unexpected decoded result: %+v", decoded)
	}
}

func TestWriteStatus_Text(t *testing.T) {
	docs := uint64(4)
	status := &Status{
		Chunks:          12,
		Summaries:       map[models.PeriodType]int64{models.PeriodSession: 3, models.PeriodDay: 1},
		Transcription:   map[string]int{"transcribing": 1, "pending": 2, "failed": 0},
		SearchDocuments: &docs,
		Config:          map[string]interface{}{"timezone": "UTC"},
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, status, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for key, want := range map[string]string{
		"chunks:":              "12",
		"session_summaries:":   "3",
		"week_summaries:":      "0",
		"search_documents:":    "4",
		"timezone:":            "UTC",
		"year-wrap_summaries:": "0",
	} {
		if got := fieldAfter(out, key); got != want {
			t.Errorf("%s got %q, want %q:\n%s", key, got, want, out)
		}
	}
	if !strings.Contains(out, "1 transcribing, 2 pending, 0 failed") {
		t.Errorf("transcription line missing:\n%s", out)
	}
	if strings.Contains(out, "disk_usage_bytes") {
		t.Error("disk usage should be omitted when unknown")
	}
}

// fieldAfter returns the first field after key on the line starting with key.
func fieldAfter(out, key string) string {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 1 && fields[0] == key {
			return fields[1]
		}
	}
	return ""
}

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
}

func TestTruncateWords(t *testing.T) {
	if got := TruncateWords("one two three", 5); got != "one two three" {
		t.Errorf("got %q", got)
	}
	if got := TruncateWords("one two three", 2); got != "one two..." {
		t.Errorf("got %q", got)
	}
}
