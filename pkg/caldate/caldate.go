// Package caldate implements calendar-date arithmetic on civil.Date values.
// No timezone conversion happens here: a due date is a day on the calendar.
package caldate

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Today returns the calendar date of t in its own location.
func Today(t time.Time) civil.Date {
	return civil.DateOf(t)
}

// AddDays returns d shifted by n days.
func AddDays(d civil.Date, n int) civil.Date {
	return d.AddDays(n)
}

// AddMonths returns d shifted by n calendar months. The day of month is
// kept when possible and capped to the last day of the target month, so
// 2024-01-31 + 1 month is 2024-02-29.
func AddMonths(d civil.Date, n int) civil.Date {
	idx := int(d.Month) - 1 + n
	year := d.Year + floorDiv(idx, 12)
	month := time.Month(idx-floorDiv(idx, 12)*12 + 1)
	day := d.Day
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysBetween returns to - from in whole days (negative when to is earlier).
func DaysBetween(from, to civil.Date) int {
	return to.DaysSince(from)
}

// QuarterRange returns the half-open range [start, end) covering quarter q
// (1..4) of year.
func QuarterRange(q, year int) (civil.Date, civil.Date, error) {
	if q < 1 || q > 4 {
		return civil.Date{}, civil.Date{}, fmt.Errorf("quarter %d out of range [1,4]", q)
	}
	start := civil.Date{Year: year, Month: time.Month(3*(q-1) + 1), Day: 1}
	return start, AddMonths(start, 3), nil
}

// InRange reports whether from <= d < to.
func InRange(d, from, to civil.Date) bool {
	return !d.Before(from) && d.Before(to)
}

// Parse parses a YYYY-MM-DD date.
func Parse(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// IsZero reports whether d is the zero date.
func IsZero(d civil.Date) bool {
	return d == civil.Date{}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
