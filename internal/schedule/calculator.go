// Package schedule computes recurrence dates for recurring templates.
//
// This file implements the Strategy Pattern for cycle advancement. Each
// frequency class (daily, weekly, biweekly, monthly, quarterly, yearly) has
// its own advancer that encapsulates one cycle step plus the snap or clamp
// that follows it.
package schedule

import (
	"errors"
	"time"

	"scadenze/internal/core"
)

var (
	// ErrInvalidAnchor means neither last-processed nor start date is a
	// usable date; the template cannot be scheduled until one is supplied.
	ErrInvalidAnchor = errors.New("no valid anchor date")

	// ErrMissingAnchor means the day-of-month or day-of-week field the
	// frequency requires is absent.
	ErrMissingAnchor = errors.New("missing day-of-month or day-of-week anchor")
)

// CycleAdvancer is the strategy interface for advancing a base date by one
// recurrence cycle. Each implementation encapsulates the algorithm for a
// specific frequency class.
type CycleAdvancer interface {
	// Advance moves base forward by one cycle, applying the template's
	// day-of-week snap or day-of-month clamp where the frequency demands it.
	Advance(base core.Date, t core.RecurringTemplate) (core.Date, error)
}

// NextDueDate computes when the template is next due, as seen from today.
//
// The base is the last-processed date when present, otherwise the start
// date. A base in the past is collapsed to today before advancing: a
// template that fell behind is rescheduled relative to the present instead
// of producing a backlog of overdue occurrences.
func NextDueDate(t core.RecurringTemplate, today core.Date) (core.Date, error) {
	base := t.LastProcessed
	if base.IsZero() {
		base = t.StartDate
	}
	if base.IsZero() {
		return core.Date{}, ErrInvalidAnchor
	}
	if base.Before(today) {
		base = today
	}
	return advancerFor(t.Frequency).Advance(base, t)
}

type dayAdvancer struct{}

func (dayAdvancer) Advance(base core.Date, _ core.RecurringTemplate) (core.Date, error) {
	return base.AddDays(1), nil
}

// weekAdvancer jumps a whole number of weeks, then snaps forward to the
// template's day of week. A date already on the target weekday after the
// jump is accepted as-is.
type weekAdvancer struct {
	days int
}

func (a weekAdvancer) Advance(base core.Date, t core.RecurringTemplate) (core.Date, error) {
	if t.DayOfWeek == nil {
		return core.Date{}, ErrMissingAnchor
	}
	next := base.AddDays(a.days)
	daysToAdd := (*t.DayOfWeek - next.Weekday() + 7) % 7
	return next.AddDays(daysToAdd), nil
}

// monthAdvancer jumps a whole number of calendar months, then clamps the
// template's day of month to the length of the resulting month, so day 31
// lands on Feb 28/29 rather than rolling into March.
type monthAdvancer struct {
	months int
}

func (a monthAdvancer) Advance(base core.Date, t core.RecurringTemplate) (core.Date, error) {
	if t.DayOfMonth == nil {
		return core.Date{}, ErrMissingAnchor
	}
	// Normalize the target month with day 1 so a short month cannot spill
	// over before the clamp is applied.
	first := time.Date(base.Year(), base.Month()+time.Month(a.months), 1, 0, 0, 0, 0, time.UTC)
	day := *t.DayOfMonth
	if max := core.DaysInMonth(first.Year(), first.Month()); day > max {
		day = max
	}
	return core.NewDate(first.Year(), int(first.Month()), day), nil
}

// advancers maps frequency classes to their cycle advancers.
var advancers = map[core.Frequency]CycleAdvancer{
	core.Daily:     dayAdvancer{},
	core.Weekly:    weekAdvancer{days: 7},
	core.Biweekly:  weekAdvancer{days: 14},
	core.Monthly:   monthAdvancer{months: 1},
	core.Quarterly: monthAdvancer{months: 3},
	core.Yearly:    monthAdvancer{months: 12},
}

// advancerFor returns the advancer for a frequency. An unknown frequency
// falls back to monthly rather than failing the whole batch.
func advancerFor(f core.Frequency) CycleAdvancer {
	if a, ok := advancers[f]; ok {
		return a
	}
	return monthAdvancer{months: 1}
}
