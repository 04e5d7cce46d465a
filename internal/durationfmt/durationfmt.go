// Package durationfmt parses and renders the human duration grammar used
// for access-code lifetimes: "<integer><unit>" where the unit is a
// day/hour/month/year abbreviation. Months are exactly 30 days and years
// exactly 365 days; the grammar is deliberately not calendar-aware so a
// code issued for "1y" always lasts the same number of hours.
package durationfmt

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Day   = 24 * time.Hour
	Month = 30 * Day
	Year  = 365 * Day
)

// Parse converts text like "3m", "24h", "1 year" into a duration. A bare
// "m" means month, not minute: these are code lifetimes, nobody issues a
// three-minute access code. Unparseable input is an error.
func Parse(text string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("duration %q: missing leading integer", text)
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", text, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("duration %q: must be positive", text)
	}

	unit := strings.TrimSpace(s[i:])
	switch unit {
	case "d", "day", "days":
		return time.Duration(n) * Day, nil
	case "h", "hr", "hrs", "hour", "hours":
		return time.Duration(n) * time.Hour, nil
	case "m", "mo", "mos", "month", "months":
		return time.Duration(n) * Month, nil
	case "y", "yr", "yrs", "year", "years":
		return time.Duration(n) * Year, nil
	default:
		return 0, fmt.Errorf("duration %q: unknown unit %q", text, unit)
	}
}

// Format renders d using the largest applicable unit, truncating any
// remainder. Format(Parse("3m")) round-trips to "3 months".
func Format(d time.Duration) string {
	switch {
	case d >= Year:
		return plural(int(d/Year), "year")
	case d >= Month:
		return plural(int(d/Month), "month")
	case d >= Day:
		return plural(int(d/Day), "day")
	case d >= time.Hour:
		return plural(int(d/time.Hour), "hour")
	default:
		return "less than an hour"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
