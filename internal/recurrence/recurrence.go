// Package recurrence computes the cadence of repeating todos.
//
// A pattern is either a named cadence (daily, weekly, biweekly, monthly,
// yearly) or a custom pattern of the form custom:<n>:<days|weeks|months|years>
// with n > 0. Month and year steps use calendar arithmetic, so an instant on
// the 31st rolls over into the following month when the target month is
// shorter.
package recurrence

import (
	"strconv"
	"strings"
	"time"
)

// Interval is a calendar step.
type Interval struct {
	Years  int
	Months int
	Days   int
}

// Add returns t advanced by one interval.
func (i Interval) Add(t time.Time) time.Time {
	return t.AddDate(i.Years, i.Months, i.Days)
}

var named = map[string]Interval{
	"daily":    {Days: 1},
	"weekly":   {Days: 7},
	"biweekly": {Days: 14},
	"monthly":  {Months: 1},
	"yearly":   {Years: 1},
}

// Parse returns the interval described by pattern.
func Parse(pattern string) (Interval, bool) {
	if iv, ok := named[pattern]; ok {
		return iv, true
	}

	rest, ok := strings.CutPrefix(pattern, "custom:")
	if !ok {
		return Interval{}, false
	}
	countStr, unit, ok := strings.Cut(rest, ":")
	if !ok {
		return Interval{}, false
	}
	n, err := strconv.Atoi(countStr)
	if err != nil || n <= 0 {
		return Interval{}, false
	}

	switch unit {
	case "days":
		return Interval{Days: n}, true
	case "weeks":
		return Interval{Days: 7 * n}, true
	case "months":
		return Interval{Months: n}, true
	case "years":
		return Interval{Years: n}, true
	default:
		return Interval{}, false
	}
}

// Valid reports whether pattern parses.
func Valid(pattern string) bool {
	_, ok := Parse(pattern)
	return ok
}

// Next returns from advanced by one interval of pattern. Unrecognized
// patterns return from unchanged.
func Next(pattern string, from time.Time) time.Time {
	iv, ok := Parse(pattern)
	if !ok {
		return from
	}
	return iv.Add(from)
}
