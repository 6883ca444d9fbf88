package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

type (
	Frequency string

	// RecurringTemplate defines one recurring obligation. Materialization
	// reads it, produces a LedgerEntry and advances LastProcessed/NextDue.
	RecurringTemplate struct {
		ID          string
		Description string
		Category    string
		Subcategory string
		Account     string
		Notes       string

		AmountPrimary   decimal.NullDecimal
		AmountSecondary decimal.NullDecimal

		Frequency  Frequency
		DayOfMonth *int // 1-31, set for monthly/quarterly/yearly
		DayOfWeek  *int // 0-6 (0 = Sunday), set for weekly/biweekly

		StartDate     Date
		EndDate       Date // zero = open-ended
		LastProcessed Date // zero = never materialized
		NextDue       Date // cached projection, recomputable from the fields above
		Active        bool
	}

	// LedgerEntry is one materialized occurrence. Immutable after creation.
	LedgerEntry struct {
		ID               string
		Date             Date
		Description      string
		Category         string
		Subcategory      string
		AmountPrimary    decimal.NullDecimal
		AmountSecondary  decimal.NullDecimal
		Account          string
		Notes            string
		SourceTemplateID string
	}
)

var (
	ErrEmptyDescription = errors.New("empty description")
	ErrNoAmount         = errors.New("at least one amount is required")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidStartDate = errors.New("invalid start date")
	ErrInvalidEndDate   = errors.New("end date must not precede start date")
	ErrDayOfMonth       = errors.New("day of month must be between 1 and 31")
	ErrDayOfWeek        = errors.New("day of week must be between 0 and 6")
	ErrAnchorMismatch   = errors.New("anchor field does not match frequency")
)

// IsValid reports whether f is one of the supported frequency classes.
func (f Frequency) IsValid() bool {
	switch f {
	case Daily, Weekly, Biweekly, Monthly, Quarterly, Yearly:
		return true
	default:
		return false
	}
}

// NeedsDayOfMonth reports whether templates of this frequency carry a
// day-of-month anchor.
func (f Frequency) NeedsDayOfMonth() bool {
	switch f {
	case Monthly, Quarterly, Yearly:
		return true
	default:
		return false
	}
}

// NeedsDayOfWeek reports whether templates of this frequency carry a
// day-of-week anchor.
func (f Frequency) NeedsDayOfWeek() bool {
	return f == Weekly || f == Biweekly
}

// Ended reports whether the template's end date has passed as of today.
// An ended template no longer produces occurrences even while active.
func (t RecurringTemplate) Ended(today Date) bool {
	return !t.EndDate.IsZero() && t.EndDate.Before(today)
}

// Validate checks the creation-time invariants: a non-empty description, at
// least one positive amount, a valid frequency, a start date, and exactly
// the anchor field the frequency requires (daily has neither).
func (t RecurringTemplate) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if !t.AmountPrimary.Valid && !t.AmountSecondary.Valid {
		return ErrNoAmount
	}
	if t.AmountPrimary.Valid && t.AmountPrimary.Decimal.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if t.AmountSecondary.Valid && t.AmountSecondary.Decimal.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if !t.Frequency.IsValid() {
		return ErrInvalidFrequency
	}
	if t.StartDate.IsZero() {
		return ErrInvalidStartDate
	}
	if !t.EndDate.IsZero() && t.EndDate.Before(t.StartDate) {
		return ErrInvalidEndDate
	}
	return t.validateAnchor()
}

func (t RecurringTemplate) validateAnchor() error {
	switch {
	case t.Frequency.NeedsDayOfMonth():
		if t.DayOfMonth == nil || t.DayOfWeek != nil {
			return ErrAnchorMismatch
		}
		if *t.DayOfMonth < 1 || *t.DayOfMonth > 31 {
			return ErrDayOfMonth
		}
	case t.Frequency.NeedsDayOfWeek():
		if t.DayOfWeek == nil || t.DayOfMonth != nil {
			return ErrAnchorMismatch
		}
		if *t.DayOfWeek < 0 || *t.DayOfWeek > 6 {
			return ErrDayOfWeek
		}
	default:
		if t.DayOfMonth != nil || t.DayOfWeek != nil {
			return ErrAnchorMismatch
		}
	}
	return nil
}

// FrequencyNote is the human-readable annotation appended to a materialized
// entry's notes, e.g. "recurring: monthly".
func (t RecurringTemplate) FrequencyNote() string {
	return "recurring: " + string(t.Frequency)
}

// MaterializeOn builds the ledger entry for one occurrence of the template,
// dated the day of materialization rather than the template's due date.
func (t RecurringTemplate) MaterializeOn(id string, today Date) LedgerEntry {
	notes := t.FrequencyNote()
	if strings.TrimSpace(t.Notes) != "" {
		notes = t.Notes + " (" + notes + ")"
	}
	return LedgerEntry{
		ID:               id,
		Date:             today,
		Description:      t.Description,
		Category:         t.Category,
		Subcategory:      t.Subcategory,
		AmountPrimary:    t.AmountPrimary,
		AmountSecondary:  t.AmountSecondary,
		Account:          t.Account,
		Notes:            notes,
		SourceTemplateID: t.ID,
	}
}

// IntPtr returns a pointer to v, for building templates with anchor fields.
func IntPtr(v int) *int { return &v }
