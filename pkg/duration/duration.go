// Package duration parses and formats human-readable durations.
//
// Parse accepts everything time.ParseDuration does plus calendar-ish units,
// with optional whitespace and long unit names:
//
//	d, day, days     24 hours
//	w, wk, week(s)   7 days
//	mo, month(s)     30 days
//	y, yr, year(s)   365 days
//
// and long forms of the standard units ("3 hours", "30 minutes").
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

var tokenPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*([a-zµ]+)`)

var units = map[string]time.Duration{
	"ns": time.Nanosecond, "nano": time.Nanosecond, "nanos": time.Nanosecond,
	"nanosecond": time.Nanosecond, "nanoseconds": time.Nanosecond,
	"us": time.Microsecond, "µs": time.Microsecond, "micro": time.Microsecond, "micros": time.Microsecond,
	"microsecond": time.Microsecond, "microseconds": time.Microsecond,
	"ms": time.Millisecond, "milli": time.Millisecond, "millis": time.Millisecond,
	"millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": Day, "day": Day, "days": Day,
	"w": Week, "wk": Week, "wks": Week, "week": Week, "weeks": Week,
	"mo": Month, "mos": Month, "month": Month, "months": Month,
	"y": Year, "yr": Year, "yrs": Year, "year": Year, "years": Year,
}

// Parse parses a human-readable duration string such as "90d", "1w2d12h"
// or "2 weeks 3 days".
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	negative := strings.HasPrefix(s, "-")
	if negative {
		s = strings.TrimSpace(s[1:])
	}

	matches := tokenPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("duration: invalid duration %q", s)
	}

	var total time.Duration
	last := 0
	for _, m := range matches {
		if strings.TrimSpace(s[last:m[0]]) != "" {
			return 0, fmt.Errorf("duration: invalid duration %q", s)
		}
		last = m[1]

		value, unit := s[m[2]:m[3]], strings.ToLower(s[m[4]:m[5]])
		mult, ok := units[unit]
		if !ok {
			return 0, fmt.Errorf("duration: unknown unit %q in %q", unit, s)
		}
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("duration: %w", err)
		}
		total += time.Duration(n * float64(mult))
	}
	if strings.TrimSpace(s[last:]) != "" {
		return 0, fmt.Errorf("duration: invalid duration %q", s)
	}

	if negative {
		total = -total
	}
	return total, nil
}

// MustParse is like Parse but panics if the string cannot be parsed.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders d using weeks, days, hours, minutes and seconds, omitting
// zero components: 36h becomes "1d12h". Sub-second remainders are dropped
// unless d is shorter than a second.
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	if d < time.Second {
		return sign + d.String()
	}

	var b strings.Builder
	for _, u := range []struct {
		size   time.Duration
		suffix string
	}{
		{Week, "w"},
		{Day, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
	} {
		if n := d / u.size; n > 0 {
			fmt.Fprintf(&b, "%d%s", n, u.suffix)
			d -= n * u.size
		}
	}
	return sign + b.String()
}
