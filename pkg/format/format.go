// Package format provides human-readable formatting utilities.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// =============================================================================
// SIZE AND NUMBER FORMATTING
// =============================================================================

// Bytes formats a byte count into human-readable format.
// Example: Bytes(1536) => "1.5 KB"
func Bytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit && exp < 4; n /= unit {
		div *= unit
		exp++
	}

	sizes := []string{"KB", "MB", "GB", "TB", "PB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), sizes[exp])
}

var printer = message.NewPrinter(language.English)

// Number formats a number with thousand separators.
// Example: Number(1234567) => "1,234,567"
func Number(n int64) string {
	return printer.Sprintf("%d", n)
}

// =============================================================================
// DURATIONS
// =============================================================================

// Uptime formats a duration as hours, minutes and seconds.
// Example: Uptime(3723*time.Second) => "1h 02m 03s"
func Uptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60

	switch {
	case h > 0:
		return printer.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// Hours formats a number of seconds as fractional hours.
// Example: Hours(5400) => "1.5 hours"
func Hours(seconds int64) string {
	h := float64(seconds) / 3600
	if h == 1 {
		return "1 hour"
	}
	return printer.Sprintf("%.1f hours", h)
}

// =============================================================================
// SCHEDULE DESCRIPTION
// =============================================================================

// Schedule describes a recurrence in plain English. kind is one of once,
// daily, weekly or cron; days is a comma separated list of weekday numbers
// with 0 for Sunday.
// Example: Schedule("weekly", "09:00", "1,2,3,4,5", "", nil, "") => "Weekdays at 9AM"
func Schedule(kind, timeOfDay, days, cronExpr string, scheduledAt *time.Time, timezone string) string {
	var desc string
	switch kind {
	case "once":
		if scheduledAt == nil {
			return "Once"
		}
		at := *scheduledAt
		if loc, err := time.LoadLocation(timezone); err == nil && timezone != "" {
			at = at.In(loc)
		}
		desc = "Once on " + at.Format("Mon 2 Jan 2006 at 15:04")
	case "daily":
		desc = "Daily at " + clock(timeOfDay)
	case "weekly":
		desc = weekdays(days) + " at " + clock(timeOfDay)
	case "cron":
		desc = CronDescription(cronExpr)
	default:
		return kind
	}
	if timezone != "" && timezone != "UTC" {
		desc += " (" + timezone + ")"
	}
	return desc
}

func clock(timeOfDay string) string {
	h, m, ok := strings.Cut(timeOfDay, ":")
	if !ok {
		return timeOfDay
	}
	hour, herr := strconv.Atoi(h)
	minute, merr := strconv.Atoi(m)
	if herr != nil || merr != nil {
		return timeOfDay
	}
	return formatTime(hour, minute)
}

func weekdays(days string) string {
	switch days {
	case "0,1,2,3,4,5,6":
		return "Every day"
	case "1,2,3,4,5":
		return "Weekdays"
	case "0,6":
		return "Weekends"
	}
	parts := strings.Split(days, ",")
	if len(parts) == 1 {
		return fullDayName(parts[0]) + "s"
	}
	names := make([]string, len(parts))
	for i, d := range parts {
		names[i] = shortDayName(d)
	}
	return strings.Join(names, ", ")
}

// =============================================================================
// CRON EXPRESSION DESCRIPTION
// =============================================================================

// CronDescription returns a human-readable description of a standard
// 5-field cron expression (minute hour day-of-month month day-of-week).
// Descriptors such as "@daily" and unrecognised shapes are returned as is.
// Example: CronDescription("30 18 * * 1-5") => "Mon-Fri at 6:30PM"
func CronDescription(cronExpr string) string {
	fields := strings.Fields(strings.TrimSpace(cronExpr))
	if len(fields) != 5 {
		return cronExpr
	}

	minute, hour, dayOfMonth, month, dayOfWeek := fields[0], fields[1], fields[2], fields[3], fields[4]
	if month != "*" {
		return strings.Join(fields, " ")
	}

	if minute == "*" && hour == "*" && dayOfMonth == "*" && dayOfWeek == "*" {
		return "Every minute"
	}

	if strings.Contains(minute, "/") && hour == "*" {
		if interval := extractInterval(minute); interval > 0 {
			return fmt.Sprintf("Every %d minutes", interval)
		}
	}

	if strings.Contains(hour, "/") {
		if interval := extractInterval(hour); interval > 0 {
			m, err := strconv.Atoi(minute)
			if err == nil && m != 0 {
				return fmt.Sprintf("Every %d hours at :%02d", interval, m)
			}
			return fmt.Sprintf("Every %d hours", interval)
		}
	}

	if hour == "*" {
		if m, err := strconv.Atoi(minute); err == nil {
			if m == 0 {
				return "Every hour"
			}
			return fmt.Sprintf("Every hour at :%02d", m)
		}
	}

	h, hErr := strconv.Atoi(hour)
	m, mErr := strconv.Atoi(minute)
	if hErr != nil || mErr != nil {
		return strings.Join(fields, " ")
	}
	timeStr := formatTime(h, m)

	if dayOfWeek != "*" && dayOfMonth == "*" {
		if strings.Contains(dayOfWeek, ",") {
			return fmt.Sprintf("%s at %s", weekdays(dayOfWeek), timeStr)
		}
		if from, to, ok := strings.Cut(dayOfWeek, "-"); ok {
			return fmt.Sprintf("%s-%s at %s", shortDayName(from), shortDayName(to), timeStr)
		}
		return fmt.Sprintf("%ss at %s", fullDayName(dayOfWeek), timeStr)
	}

	if dayOfMonth != "*" {
		if d, err := strconv.Atoi(dayOfMonth); err == nil {
			return fmt.Sprintf("%s of each month at %s", ordinal(d), timeStr)
		}
		return strings.Join(fields, " ")
	}

	return fmt.Sprintf("Daily at %s", timeStr)
}

func extractInterval(field string) int {
	_, step, ok := strings.Cut(field, "/")
	if !ok {
		return 0
	}
	interval, err := strconv.Atoi(step)
	if err != nil {
		return 0
	}
	return interval
}

func formatTime(hour, minute int) string {
	if hour == 0 && minute == 0 {
		return "midnight"
	}
	if hour == 12 && minute == 0 {
		return "noon"
	}

	period := "AM"
	hour12 := hour
	if hour >= 12 {
		period = "PM"
		if hour > 12 {
			hour12 = hour - 12
		}
	}
	if hour == 0 {
		hour12 = 12
	}

	if minute == 0 {
		return fmt.Sprintf("%d%s", hour12, period)
	}
	return fmt.Sprintf("%d:%02d%s", hour12, minute, period)
}

var dayNames = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
var shortDayNames = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

func fullDayName(day string) string {
	if d, err := strconv.Atoi(day); err == nil && d >= 0 && d < 7 {
		return dayNames[d]
	}
	return day
}

func shortDayName(day string) string {
	if d, err := strconv.Atoi(day); err == nil && d >= 0 && d < 7 {
		return shortDayNames[d]
	}
	return day
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 10 {
	case 1:
		if n%100 != 11 {
			suffix = "st"
		}
	case 2:
		if n%100 != 12 {
			suffix = "nd"
		}
	case 3:
		if n%100 != 13 {
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

// =============================================================================
// RELATIVE TIME
// =============================================================================

// RelativeTime formats t relative to now.
// Example: RelativeTime(now.Add(90*time.Minute), now) => "in 1 hour"
func RelativeTime(t, now time.Time) string {
	diff := t.Sub(now)
	if diff < 0 {
		return formatRelative(-diff, "", " ago", "just now")
	}
	return formatRelative(diff, "in ", "", "in a moment")
}

func formatRelative(d time.Duration, prefix, suffix, instant string) string {
	var n int
	var unit string
	switch {
	case d < time.Minute:
		return instant
	case d < time.Hour:
		n, unit = int(d.Minutes()), "minute"
	case d < 24*time.Hour:
		n, unit = int(d.Hours()), "hour"
	default:
		n, unit = int(d.Hours()/24), "day"
	}
	if n != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%s%d %s%s", prefix, n, unit, suffix)
}
