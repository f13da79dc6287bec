package search

import (
	"strings"
)

// maxSuggestDistance bounds how far a corrected term may be from the typed one.
const maxSuggestDistance = 2

// Suggest returns query with every term that does not occur in any summary replaced by
// the closest indexed term, weighted by how many summaries use it. ok is false when
// nothing was corrected.
func (x *Index) Suggest(query string) (suggestion string, ok bool) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return "", false
	}
	dict, err := x.dictionary()
	if err != nil || len(dict) == 0 {
		return "", false
	}
	corrected := make([]string, len(terms))
	for i, term := range terms {
		corrected[i] = term
		if _, known := dict[term]; known {
			continue
		}
		if best := closestTerm(term, dict); best != "" {
			corrected[i] = best
			ok = true
		}
	}
	if !ok {
		return "", false
	}
	return strings.Join(corrected, " "), true
}

// dictionary maps every term of the text and topics fields to its document frequency.
func (x *Index) dictionary() (map[string]uint64, error) {
	dict := make(map[string]uint64)
	for _, field := range []string{"text", "topics"} {
		fd, err := x.index.FieldDict(field)
		if err != nil {
			return nil, err
		}
		for {
			entry, err := fd.Next()
			if err != nil || entry == nil {
				break
			}
			dict[entry.Term] += entry.Count
		}
		_ = fd.Close()
	}
	return dict, nil
}

func closestTerm(term string, dict map[string]uint64) string {
	var best string
	var bestScore float64
	for candidate, freq := range dict {
		diff := len(candidate) - len(term)
		if diff < -maxSuggestDistance || diff > maxSuggestDistance {
			continue
		}
		d := levenshtein(term, candidate)
		if d > maxSuggestDistance {
			continue
		}
		// closer first, then more frequent; ties broken alphabetically for stable output
		score := float64(freq) / float64(d+1)
		if score > bestScore || (score == bestScore && candidate < best) {
			best, bestScore = candidate, score
		}
	}
	return best
}

// levenshtein counts the single-rune insertions, deletions and substitutions turning a into b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
