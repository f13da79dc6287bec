// Package models defines core data structures for recordings, transcripts, and summaries.
package models

import "time"

// AudioChunk is one recorded audio segment. Chunks are immutable once written and belong
// to exactly one session.
type AudioChunk struct {
	ID         string    `json:"id" db:"id"`
	SessionID  string    `json:"session_id" db:"session_id"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	AudioPath  string    `json:"audio_path,omitempty" db:"audio_path"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	EndedAt    time.Time `json:"ended_at" db:"ended_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Duration returns the recorded length of the chunk.
func (c *AudioChunk) Duration() time.Duration {
	if c.EndedAt.Before(c.StartedAt) {
		return 0
	}
	return c.EndedAt.Sub(c.StartedAt)
}

// TranscriptSegment is one recognized utterance within a chunk.
// StartOffset and EndOffset are seconds from the start of the chunk.
type TranscriptSegment struct {
	ID          string    `json:"id" db:"id"`
	ChunkID     string    `json:"chunk_id" db:"chunk_id"`
	StartOffset float64   `json:"start_offset" db:"start_offset"`
	EndOffset   float64   `json:"end_offset" db:"end_offset"`
	Text        string    `json:"text" db:"text"`
	Confidence  float64   `json:"confidence" db:"confidence"`
	Language    string    `json:"language,omitempty" db:"language"`
	Sentiment   *float64  `json:"sentiment,omitempty" db:"sentiment"`
	WordCount   int       `json:"word_count" db:"word_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// SpeakingSeconds returns the utterance length in seconds.
func (s *TranscriptSegment) SpeakingSeconds() float64 {
	if s.EndOffset <= s.StartOffset {
		return 0
	}
	return s.EndOffset - s.StartOffset
}

// Category classifies a session as work or personal.
type Category string

const (
	CategoryNone     Category = ""
	CategoryWork     Category = "work"
	CategoryPersonal Category = "personal"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryNone, CategoryWork, CategoryPersonal:
		return true
	}
	return false
}

// SessionMetadata holds user-supplied annotations for a session.
type SessionMetadata struct {
	SessionID string    `json:"session_id" db:"session_id"`
	Title     string    `json:"title,omitempty" db:"title"`
	Notes     string    `json:"notes,omitempty" db:"notes"`
	Favorite  bool      `json:"favorite" db:"favorite"`
	Category  Category  `json:"category,omitempty" db:"category"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SessionInfo describes a session derived by grouping its chunks.
type SessionInfo struct {
	ID                string    `json:"id"`
	StartedAt         time.Time `json:"started_at"`
	EndedAt           time.Time `json:"ended_at"`
	CreatedAt         time.Time `json:"created_at"`
	ChunkCount        int       `json:"chunk_count"`
	TranscribedChunks int       `json:"transcribed_chunks"`
}

// Complete reports whether every chunk of the session has at least one transcript segment.
func (s *SessionInfo) Complete() bool {
	return s.ChunkCount > 0 && s.TranscribedChunks == s.ChunkCount
}
