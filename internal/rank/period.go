package rank

import (
	"fmt"
	"time"
)

// Period identifies a ranking time window. Each period maps to its own
// sorted set in the score store.
type Period string

const (
	// PeriodAllTime accumulates scores for the lifetime of an article.
	PeriodAllTime Period = "all"
	// PeriodDay tracks scores for the current local calendar day.
	PeriodDay Period = "day"
	// PeriodWeek tracks scores for the current Monday-to-Sunday week.
	PeriodWeek Period = "week"
)

// Sorted-set key layout. Day and week keys embed the date or week number so the
// active set rotates automatically when the period rolls over; stale keys are
// swept by the scheduler's reset and by their TTL.
const (
	allTimeKey    = "hot:articles:zset:all"
	dayKeyPrefix  = "hot:articles:zset:day:"
	weekKeyPrefix = "hot:articles:zset:week:"
)

// ParsePeriod maps a request string onto a Period, defaulting to the day
// window for unrecognized values.
func ParsePeriod(s string) Period {
	switch Period(s) {
	case PeriodAllTime, PeriodWeek:
		return Period(s)
	default:
		return PeriodDay
	}
}

// DayKey returns the day ranking key for the given local date, e.g.
// "hot:articles:zset:day:2026-01-28".
func DayKey(t time.Time) string {
	return dayKeyPrefix + t.Format("2006-01-02")
}

// WeekKey returns the week ranking key for the given local date, e.g.
// "hot:articles:zset:week:2026-W04".
//
// Weeks run Monday through Sunday and are numbered from the year's first
// Monday on or after January 1. The week that straddles New Year belongs to
// the new calendar year: late-December days of that week keep the old year's
// key, January days get "<newyear>-W01". This is not ISO 8601 numbering —
// the difference keeps the year component equal to the calendar year, so a
// week bucket never carries a year no date inside it has.
func WeekKey(t time.Time) string {
	year, week := weekOf(t)
	return fmt.Sprintf("%s%d-W%02d", weekKeyPrefix, year, week)
}

// weekOf computes the (year, week) pair for WeekKey. Date arithmetic runs on
// midnight-UTC copies so DST transitions cannot skew the day counts.
func weekOf(t time.Time) (int, int) {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	// Monday of the week containing d.
	monday := d.AddDate(0, 0, -((int(d.Weekday()) + 6) % 7))

	// A week whose Monday is in December but whose date is in January is
	// pinned to the new year; counting then starts from January 1.
	if monday.Month() == time.December && d.Month() == time.January {
		monday = time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}

	// For January days before the first Monday the count is negative and
	// truncates to zero, landing them in week 1 alongside the first full
	// week.
	year := monday.Year()
	days := int(monday.Sub(firstMonday(year)).Hours() / 24)
	return year, days/7 + 1
}

// firstMonday returns the first Monday on or after January 1 of year.
func firstMonday(year int) time.Time {
	d := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// Key returns the active sorted-set key for a period at the given time.
func Key(p Period, t time.Time) string {
	switch p {
	case PeriodAllTime:
		return allTimeKey
	case PeriodWeek:
		return WeekKey(t)
	default:
		return DayKey(t)
	}
}
