package rollup

// Outcome reports what a rollup did. Rollups are best effort and never return errors;
// the outcome tells callers why nothing was written.
type Outcome int

const (
	// OutcomeGenerated means a summary was written.
	OutcomeGenerated Outcome = iota
	// OutcomeCacheHit means the inputs were unchanged since the stored summary.
	OutcomeCacheHit
	// OutcomeEmpty means the period has no child summaries.
	OutcomeEmpty
	// OutcomeInProgress means the same period was already being generated.
	OutcomeInProgress
	// OutcomeFailed means a store or engine error stopped the rollup. It was logged.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGenerated:
		return "generated"
	case OutcomeCacheHit:
		return "cache_hit"
	case OutcomeEmpty:
		return "empty"
	case OutcomeInProgress:
		return "in_progress"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// MarshalText renders the outcome name in JSON responses.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
