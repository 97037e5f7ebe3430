// Package scheduler computes schedule recurrences and dispatches due schedules
// to the relay orchestrator.
package scheduler

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/restreamer/internal/models"
)

// parser accepts standard five-field cron expressions.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Recurrence is the time-related part of a schedule definition.
type Recurrence struct {
	Kind models.ScheduleKind
	// At is the single instant of a once recurrence.
	At *time.Time
	// Hour and Minute are the time of day for daily and weekly recurrences.
	Hour   int
	Minute int
	// Days are the weekdays of a weekly recurrence.
	Days []time.Weekday
	// Cron is the expression of a cron recurrence.
	Cron string
	// Location is the zone the time of day is expressed in. Nil means UTC.
	Location *time.Location
}

// RecurrenceOf extracts and parses the recurrence of a schedule.
func RecurrenceOf(s *models.StreamSchedule) (Recurrence, error) {
	r := Recurrence{
		Kind:     s.Kind,
		At:       s.ScheduledAt,
		Cron:     s.CronExpr,
		Location: s.Location(),
	}

	switch s.Kind {
	case models.ScheduleDaily, models.ScheduleWeekly:
		h, m, err := ParseTimeOfDay(s.TimeOfDay)
		if err != nil {
			return Recurrence{}, err
		}
		r.Hour, r.Minute = h, m
		if s.Kind == models.ScheduleWeekly {
			days, err := ParseDays(s.Days)
			if err != nil {
				return Recurrence{}, err
			}
			r.Days = days
		}
	case models.ScheduleCron:
		if err := ValidateCron(s.CronExpr); err != nil {
			return Recurrence{}, err
		}
	case models.ScheduleOnce:
	default:
		return Recurrence{}, fmt.Errorf("unknown schedule type %q", s.Kind)
	}
	return r, nil
}

// NextRun returns the first run strictly after now, or false if the
// recurrence will not run again. A once recurrence never recomputes.
//
// Daily and weekly runs are wall-clock times in the recurrence's location.
// A time skipped by a DST change runs at the equivalent instant after the
// change, and a repeated time runs only at its first occurrence.
func NextRun(r Recurrence, now time.Time) (time.Time, bool) {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}

	switch r.Kind {
	case models.ScheduleDaily:
		return nextWallClock(now, loc, r.Hour, r.Minute, 2, nil)
	case models.ScheduleWeekly:
		if len(r.Days) == 0 {
			return time.Time{}, false
		}
		return nextWallClock(now, loc, r.Hour, r.Minute, 8, r.Days)
	case models.ScheduleCron:
		sched, err := parser.Parse(r.Cron)
		if err != nil {
			return time.Time{}, false
		}
		next := sched.Next(now.In(loc))
		if next.IsZero() {
			return time.Time{}, false
		}
		return next.UTC(), true
	default:
		return time.Time{}, false
	}
}

// nextWallClock scans up to span days from now's local date for the first
// hour:minute after now whose date falls on one of days (any day when nil).
func nextWallClock(now time.Time, loc *time.Location, hour, minute, span int, days []time.Weekday) (time.Time, bool) {
	y, m, d := now.In(loc).Date()
	for i := range span + 1 {
		date := time.Date(y, m, d+i, 0, 0, 0, 0, time.UTC)
		if days != nil && !slices.Contains(days, date.Weekday()) {
			continue
		}
		at := wallClock(date, hour, minute, loc)
		if at.After(now) {
			return at.UTC(), true
		}
	}
	return time.Time{}, false
}

// wallClock resolves hour:minute on date in loc. Of the offsets in effect
// around that day, the earliest one that reproduces the wall clock wins; if
// none does, the time sits in a DST gap and the latest candidate is used.
func wallClock(date time.Time, hour, minute int, loc *time.Location) time.Time {
	wall := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, time.UTC)

	var valid, latest time.Time
	for _, near := range []time.Time{wall.Add(-24 * time.Hour), wall.Add(24 * time.Hour)} {
		_, offset := near.In(loc).Zone()
		candidate := wall.Add(-time.Duration(offset) * time.Second).In(loc)
		if candidate.After(latest) {
			latest = candidate
		}
		if candidate.Hour() == hour && candidate.Minute() == minute && candidate.Day() == date.Day() {
			if valid.IsZero() || candidate.Before(valid) {
				valid = candidate
			}
		}
	}
	if !valid.IsZero() {
		return valid
	}
	return latest
}

// NextRuns returns up to n successive runs after now.
func NextRuns(r Recurrence, now time.Time, n int) []time.Time {
	if r.Kind == models.ScheduleOnce {
		if r.At != nil && r.At.After(now) && n > 0 {
			return []time.Time{r.At.UTC()}
		}
		return nil
	}

	var runs []time.Time
	t := now
	for len(runs) < n {
		next, ok := NextRun(r, t)
		if !ok {
			break
		}
		runs = append(runs, next)
		t = next
	}
	return runs
}

// InitialRun returns the first next_run_at for a newly created or edited
// schedule. For once schedules this is the scheduled instant itself, which
// must lie in the future.
func InitialRun(r Recurrence, now time.Time) (*time.Time, error) {
	if r.Kind == models.ScheduleOnce {
		if r.At == nil {
			return nil, models.ErrValidation{Field: "scheduled_at", Message: "required for once schedules"}
		}
		if !r.At.After(now) {
			return nil, models.ErrValidation{Field: "scheduled_at", Message: "must be in the future"}
		}
		at := r.At.UTC()
		return &at, nil
	}

	next, ok := NextRun(r, now)
	if !ok {
		return nil, nil
	}
	return &next, nil
}

// ValidateCron checks that expr is a valid five-field cron expression.
func ValidateCron(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return models.ErrValidation{Field: "cron_expr", Message: err.Error()}
	}
	return nil
}

// ParseTimeOfDay parses an HH:MM string.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok || len(h) != 2 || len(m) != 2 {
		return 0, 0, models.ErrValidation{Field: "time_of_day", Message: "must be HH:MM (24 hour)"}
	}
	hour, herr := strconv.Atoi(h)
	minute, merr := strconv.Atoi(m)
	if herr != nil || merr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, models.ErrValidation{Field: "time_of_day", Message: "must be HH:MM (24 hour)"}
	}
	return hour, minute, nil
}

// ParseDays parses a comma separated weekday list, 0=Sunday..6=Saturday.
// The result is sorted and free of duplicates.
func ParseDays(s string) ([]time.Weekday, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			return nil, models.ErrValidation{Field: "days", Message: "must be comma separated weekday numbers 0-6"}
		}
		d := time.Weekday(n)
		if !slices.Contains(days, d) {
			days = append(days, d)
		}
	}
	slices.Sort(days)
	return days, nil
}
