// Package core holds the scheduler's domain types. All dates are date-only
// values in UTC; time of day never participates in scheduling decisions.
package core

import (
	"time"
)

// DateLayout is the serialized form of every date the system persists.
const DateLayout = "2006-01-02"

// Date is a calendar day with no time component. The zero value means
// "absent" for optional fields such as EndDate and LastProcessed.
type Date struct {
	time.Time
}

// NewDate creates a Date from year, month and day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its calendar day in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses an ISO-8601 YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Before reports whether d falls on an earlier calendar day than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// After reports whether d falls on a later calendar day than other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

// OnOrBefore reports whether d falls on other's day or earlier.
func (d Date) OnOrBefore(other Date) bool {
	return !d.Time.After(other.Time)
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time.AddDate(0, 0, n))
}

// Weekday returns the day of week with 0 = Sunday, matching the template
// day-of-week anchor convention.
func (d Date) Weekday() int {
	return int(d.Time.Weekday())
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	// Day zero of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
