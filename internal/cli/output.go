// Package cli provides output formatting and an API client for the nikki command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/nikki/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputText, OutputJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms\n", response.Total, response.QueryTime)
	if response.AutoFuzzy {
		fmt.Fprintln(w, "(no exact matches; showing fuzzy matches)")
	}
	if response.Suggestion != "" {
		fmt.Fprintf(w, "Did you mean: %s\n", response.Suggestion)
	}
	fmt.Fprintln(w)
	for _, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | %s\n", result.Rank, result.Score, periodLabel(result.Summary))
		fmt.Fprintf(w, "ID: %s\n", result.Summary.ID)
		fmt.Fprintf(w, "\n%s\n\n", TruncateWords(result.Summary.Text, 40))
	}
	return nil
}

// WriteSummary writes one summary to w in the given format.
func WriteSummary(w io.Writer, sum *models.Summary, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, sum)
	}
	fmt.Fprintf(w, "%s\n", periodLabel(sum))
	if sum.EngineTier != "" {
		fmt.Fprintf(w, "engine:  %s\n", sum.EngineTier)
	}
	if topics := topicList(sum.TopicsJSON); len(topics) > 0 {
		fmt.Fprintf(w, "topics:  %s\n", strings.Join(topics, ", "))
	}
	fmt.Fprintf(w, "updated: %s\n\n%s\n", sum.UpdatedAt.Format("2006-01-02 15:04"), sum.Text)
	return nil
}

// RefreshResult is the API response of a period refresh or year wrap-up.
type RefreshResult struct {
	Outcome string          `json:"outcome"`
	Summary *models.Summary `json:"summary"`
}

// WriteRefresh writes the outcome of a rollup and, in text mode, the resulting summary.
func WriteRefresh(w io.Writer, res *RefreshResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "outcome: %s\n", res.Outcome)
	if res.Summary == nil {
		return nil
	}
	fmt.Fprintln(w)
	return WriteSummary(w, res.Summary, format)
}

// Status is the API response of GET /api/v1/status.
type Status struct {
	Chunks          int64                       `json:"chunks"`
	Summaries       map[models.PeriodType]int64 `json:"summaries"`
	Transcription   map[string]int              `json:"transcription,omitempty"`
	SearchDocuments *uint64                     `json:"search_documents,omitempty"`
	DiskUsageBytes  *int64                      `json:"disk_usage_bytes,omitempty"`
	Config          map[string]interface{}      `json:"config,omitempty"`
}

// WriteStatus writes daemon status to w in the given format.
func WriteStatus(w io.Writer, status *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "chunks:             %d   # recorded audio chunks\n", status.Chunks)
	for _, pt := range []models.PeriodType{
		models.PeriodSession, models.PeriodDay, models.PeriodWeek,
		models.PeriodMonth, models.PeriodYear, models.PeriodYearWrap,
	} {
		fmt.Fprintf(w, "%-19s %d\n", string(pt)+"_summaries:", status.Summaries[pt])
	}
	if len(status.Transcription) > 0 {
		fmt.Fprintf(w, "transcription:      %d transcribing, %d pending, %d failed\n",
			status.Transcription["transcribing"], status.Transcription["pending"], status.Transcription["failed"])
	}
	if status.SearchDocuments != nil {
		fmt.Fprintf(w, "search_documents:   %d\n", *status.SearchDocuments)
	}
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # database + search index on disk\n", *status.DiskUsageBytes)
	}
	if len(status.Config) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		keys := make([]string, 0, len(status.Config))
		for k := range status.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%-19s %v\n", k+":", status.Config[k])
		}
	}
	return nil
}

func periodLabel(sum *models.Summary) string {
	if sum.PeriodType == models.PeriodSession {
		return fmt.Sprintf("[session %s] %s", sum.SessionID, sum.PeriodStart.Format("2006-01-02 15:04"))
	}
	return fmt.Sprintf("[%s] %s", sum.PeriodType, sum.PeriodStart.Format("2006-01-02"))
}

func topicList(raw string) []string {
	var topics []string
	if raw == "" || json.Unmarshal([]byte(raw), &topics) != nil {
		return nil
	}
	return topics
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
