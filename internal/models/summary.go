package models

import (
	"fmt"
	"time"
)

// PeriodType is the level of a summary in the rollup hierarchy.
type PeriodType string

const (
	PeriodSession  PeriodType = "session"
	PeriodHour     PeriodType = "hour"
	PeriodDay      PeriodType = "day"
	PeriodWeek     PeriodType = "week"
	PeriodMonth    PeriodType = "month"
	PeriodYear     PeriodType = "year"
	PeriodYearWrap PeriodType = "year-wrap"
)

// ParsePeriodType converts s to a PeriodType.
func ParsePeriodType(s string) (PeriodType, error) {
	switch p := PeriodType(s); p {
	case PeriodSession, PeriodHour, PeriodDay, PeriodWeek, PeriodMonth, PeriodYear, PeriodYearWrap:
		return p, nil
	}
	return "", fmt.Errorf("unknown period type %q", s)
}

// EngineTierRollup tags summaries built by plain concatenation of child summaries.
const EngineTierRollup = "rollup"

// Summary is a generated summary for a session or a calendar period.
// SourceIDs holds a JSON array of the child summary IDs the summary was built from.
// InputHash fingerprints the inputs and is compared before any regeneration.
type Summary struct {
	ID           string     `json:"id" db:"id"`
	PeriodType   PeriodType `json:"period_type" db:"period_type"`
	PeriodStart  time.Time  `json:"period_start" db:"period_start"`
	PeriodEnd    time.Time  `json:"period_end" db:"period_end"`
	Text         string     `json:"text" db:"text"`
	TopicsJSON   string     `json:"topics,omitempty" db:"topics_json"`
	EntitiesJSON string     `json:"entities,omitempty" db:"entities_json"`
	EngineTier   string     `json:"engine_tier,omitempty" db:"engine_tier"`
	SourceIDs    string     `json:"source_ids,omitempty" db:"source_ids"`
	InputHash    string     `json:"input_hash,omitempty" db:"input_hash"`
	SessionID    string     `json:"session_id,omitempty" db:"session_id"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// InsightsRollup is a numeric activity aggregate for one bucket (currently one day).
type InsightsRollup struct {
	BucketType      string    `json:"bucket_type" db:"bucket_type"`
	BucketDate      time.Time `json:"bucket_date" db:"bucket_date"`
	WordCount       int       `json:"word_count" db:"word_count"`
	SpeakingSeconds float64   `json:"speaking_seconds" db:"speaking_seconds"`
	SegmentCount    int       `json:"segment_count" db:"segment_count"`
}

// InsightsBucketDay is the only bucket type currently maintained.
const InsightsBucketDay = "day"
