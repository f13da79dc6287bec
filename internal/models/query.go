package models

import (
	"fmt"
	"strings"
)

// SearchQuery is a full-text query over stored summaries.
type SearchQuery struct {
	Query      string     `json:"query"`
	Limit      int        `json:"limit,omitempty"`
	PeriodType PeriodType `json:"period_type,omitempty"` // restrict to one level
	Fuzzy      bool       `json:"fuzzy,omitempty"`       // typo tolerance
}

// Validate trims the query, rejects an empty one and normalizes the limit to 1..100.
func (q *SearchQuery) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.PeriodType != "" {
		if _, err := ParsePeriodType(string(q.PeriodType)); err != nil {
			return err
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", q.Limit)
	}
	if q.Limit == 0 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return nil
}
