package models

// SearchResult is one summary matched by a search.
type SearchResult struct {
	Summary *Summary `json:"summary"`
	Score   float64  `json:"score"`
	Rank    int      `json:"rank"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query     string          `json:"query"`
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	// AutoFuzzy is set when the exact query found nothing and the results come from a
	// fuzzy retry.
	AutoFuzzy bool `json:"auto_fuzzy,omitempty"`
	// Suggestion is a spelling-corrected query, offered when nothing matched.
	Suggestion string `json:"suggestion,omitempty"`
}
