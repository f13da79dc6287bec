// Package guard prevents concurrent or duplicate generation of the same period summary.
package guard

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Level is a rollup level that can be guarded.
type Level int

const (
	LevelDay Level = iota + 1
	LevelWeek
	LevelMonth
	LevelYear
	LevelYearWrap
)

func (l Level) String() string {
	switch l {
	case LevelDay:
		return "day"
	case LevelWeek:
		return "week"
	case LevelMonth:
		return "month"
	case LevelYear:
		return "year"
	case LevelYearWrap:
		return "year-wrap"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Key identifies one period instance. Keys are comparable and safe to use as map keys.
type Key struct {
	Level Level
	Start int64 // period start, Unix seconds
}

// NewKey returns the key for the period of level starting at start.
func NewKey(level Level, start time.Time) Key {
	return Key{Level: level, Start: start.Unix()}
}

// String renders "<level>-<epochSeconds>", e.g. "day-1700000000".
func (k Key) String() string {
	return fmt.Sprintf("%s-%d", k.Level, k.Start)
}

// Guard tracks which periods are currently being generated.
// TryBegin returns true when the caller acquired the key and must call End when done.
// A false result means another generation is in progress and the caller should return.
type Guard interface {
	TryBegin(ctx context.Context, key Key) (bool, error)
	End(ctx context.Context, key Key)
}

// Memory is an in-process Guard. State lives for the lifetime of the process only.
type Memory struct {
	mu       sync.Mutex
	inFlight map[Key]struct{}
}

// NewMemory returns an empty in-process guard.
func NewMemory() *Memory {
	return &Memory{inFlight: make(map[Key]struct{})}
}

// TryBegin marks key as in progress. It never returns an error.
func (m *Memory) TryBegin(_ context.Context, key Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[key]; busy {
		return false, nil
	}
	m.inFlight[key] = struct{}{}
	return true, nil
}

// End releases key.
func (m *Memory) End(_ context.Context, key Key) {
	m.mu.Lock()
	delete(m.inFlight, key)
	m.mu.Unlock()
}

// InFlight returns the number of keys currently held.
func (m *Memory) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inFlight)
}

// ParseLevel parses a level name as rendered by Level.String.
func ParseLevel(s string) (Level, error) {
	for l := LevelDay; l <= LevelYearWrap; l++ {
		if l.String() == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown level %q", s)
}
