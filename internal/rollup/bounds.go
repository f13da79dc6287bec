package rollup

import (
	"time"

	"github.com/hyperjump/nikki/internal/guard"
	"github.com/hyperjump/nikki/internal/models"
)

// Bounds returns the [start, end) period of level containing t, in loc.
// Days run midnight to midnight, weeks Monday to Monday, months and years follow the calendar.
// LevelYearWrap uses the year bounds.
func Bounds(level guard.Level, t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	y, m, d := t.Date()
	switch level {
	case guard.LevelDay:
		start := time.Date(y, m, d, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, 1)
	case guard.LevelWeek:
		offset := (int(t.Weekday()) + 6) % 7 // days since Monday
		start := time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, 7)
	case guard.LevelMonth:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0)
	default:
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0)
	}
}

// PeriodType maps a rollup level to the summary period type it writes.
func PeriodType(level guard.Level) models.PeriodType {
	switch level {
	case guard.LevelDay:
		return models.PeriodDay
	case guard.LevelWeek:
		return models.PeriodWeek
	case guard.LevelMonth:
		return models.PeriodMonth
	case guard.LevelYear:
		return models.PeriodYear
	case guard.LevelYearWrap:
		return models.PeriodYearWrap
	}
	return ""
}
