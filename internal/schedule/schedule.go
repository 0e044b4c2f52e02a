package schedule

import (
	"time"

	"ranktracker/internal/models"
)

// DefaultTimeOfDay is used when a schedule has no time of day configured
const DefaultTimeOfDay = "06:00"

// biweeklyGap is the minimum spacing between biweekly runs
const biweeklyGap = 14 * 24 * time.Hour

// NextRunTime computes the next execution time for a schedule, strictly after now.
// All calculations are done in UTC for determinism; the schedule's time of day is
// interpreted as a UTC wall clock time.
func NextRunTime(s models.ReportSchedule, now time.Time) time.Time {
	now = now.UTC()
	hour, minute := parseTimeOfDay(s.TimeOfDay)

	switch s.Frequency {
	case models.FreqMonthly:
		return nextMonthly(s.DayOfMonth, hour, minute, now)
	case models.FreqBiweekly:
		candidate := nextWeekly(s.DayOfWeek, hour, minute, now)
		// The weekly candidate may land within a fortnight of the last run. Push it
		// out a full cycle so biweekly schedules keep their 14 day spacing
		if s.LastRunAt.Valid && candidate.Sub(s.LastRunAt.Time) < biweeklyGap {
			candidate = candidate.AddDate(0, 0, 14)
		}
		return candidate
	default:
		return nextWeekly(s.DayOfWeek, hour, minute, now)
	}
}

// nextWeekly advances a day-by-day cursor until it lands on the configured weekday at
// a moment strictly after now
func nextWeekly(dayOfWeek, hour, minute int, now time.Time) time.Time {
	// The day_of_week column has no range constraint, so wrap out-of-range values
	// onto 0-6 to guarantee the cursor has a weekday to land on
	dayOfWeek = ((dayOfWeek % 7) + 7) % 7
	cursor := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	for int(cursor.Weekday()) != dayOfWeek || !cursor.After(now) {
		cursor = cursor.AddDate(0, 0, 1)
	}
	return cursor
}

func nextMonthly(dayOfMonth, hour, minute int, now time.Time) time.Time {
	candidate := monthlyCandidate(now.Year(), now.Month(), dayOfMonth, hour, minute)
	if !candidate.After(now) {
		candidate = monthlyCandidate(now.Year(), now.Month()+1, dayOfMonth, hour, minute)
	}
	return candidate
}

// monthlyCandidate places the target day in the given month, clamping to the last
// valid day when the month is too short (day 31 in February)
func monthlyCandidate(year int, month time.Month, day, hour, minute int) time.Time {
	if last := lastDayOfMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func lastDayOfMonth(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// parseTimeOfDay parses "HH:MM", falling back to DefaultTimeOfDay on anything
// malformed or out of range
func parseTimeOfDay(s string) (hour, minute int) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		parsed, _ = time.Parse("15:04", DefaultTimeOfDay)
	}
	return parsed.Hour(), parsed.Minute()
}
