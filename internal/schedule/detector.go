package schedule

import (
	"scadenze/internal/core"
)

// SelectDue returns the templates whose next occurrence has arrived: active,
// not past their end date, with an effective next-due date on or before
// today. Result order is not specified.
func SelectDue(templates []core.RecurringTemplate, today core.Date) []core.RecurringTemplate {
	var due []core.RecurringTemplate
	for _, t := range templates {
		if !t.Active || t.Ended(today) {
			continue
		}
		next := EffectiveNextDue(t)
		if next.IsZero() {
			continue
		}
		if next.OnOrBefore(today) {
			due = append(due, t)
		}
	}
	return due
}

// EffectiveNextDue resolves the template's next due date. The persisted
// NextDue is a cache, not ground truth: when it is absent the date is
// recomputed from the template's own anchor (last processed date, else
// start date). A template with no usable anchor yields the zero date and is
// never selected.
func EffectiveNextDue(t core.RecurringTemplate) core.Date {
	if !t.NextDue.IsZero() {
		return t.NextDue
	}
	anchor := t.LastProcessed
	if anchor.IsZero() {
		anchor = t.StartDate
	}
	next, err := NextDueDate(t, anchor)
	if err != nil {
		return core.Date{}
	}
	return next
}
