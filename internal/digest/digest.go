// Package digest provides deterministic content fingerprints for summary cache validation.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

const (
	// delimiter separates inputs so ["ab","c"] and ["a","bc"] hash differently.
	delimiter = "\n---\n"
	// hashBytes is the number of digest bytes kept (16 hex chars).
	hashBytes = 8
)

// ComputeInputHash returns a short hex fingerprint of the ordered texts.
// Same ordered input always yields the same hash; reordering changes it.
func ComputeInputHash(texts []string) string {
	sum := sha256.Sum256([]byte(strings.Join(texts, delimiter)))
	return hex.EncodeToString(sum[:hashBytes])
}

// SourceIDsToJSON serializes ids as a JSON array. Returns "[]" for nil input or on marshal failure.
func SourceIDsToJSON(ids []string) string {
	if ids == nil {
		return "[]"
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// SourceIDsFromJSON parses a JSON array produced by SourceIDsToJSON.
// Malformed or empty input yields an empty slice.
func SourceIDsFromJSON(s string) []string {
	if s == "" {
		return []string{}
	}
	var ids []string
	if err := json.Unmarshal([]byte(s), &ids); err != nil || ids == nil {
		return []string{}
	}
	return ids
}
