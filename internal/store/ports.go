// Package store defines the persistence ports the scheduler writes through.
// Adapters live in internal/storage (SQLite), internal/sheets (Google
// Sheets) and internal/store/memory.
package store

import (
	"context"
	"errors"

	"scadenze/internal/core"
)

// ErrTemplateNotFound is returned when an operation references an unknown
// template identifier.
var ErrTemplateNotFound = errors.New("template not found")

type (
	// TemplateStore persists recurring templates and their schedule state.
	TemplateStore interface {
		// ListTemplates returns every stored template.
		ListTemplates(ctx context.Context) ([]core.RecurringTemplate, error)

		// CreateTemplate stores a new template and returns its identifier.
		CreateTemplate(ctx context.Context, t core.RecurringTemplate) (string, error)

		// ClaimOccurrence advances the template's schedule state to
		// (processed, nextDue) if and only if no other writer has already
		// claimed the same occurrence: the stored last-processed date must
		// still be absent or earlier than processed, and the template must
		// be active. It reports whether the claim won.
		ClaimOccurrence(ctx context.Context, id string, processed, nextDue core.Date) (bool, error)

		// SetActive flips the template's active flag. Schedule state is
		// untouched.
		SetActive(ctx context.Context, id string, active bool) error
	}

	// LedgerStore appends materialized entries. Entries are immutable once
	// written.
	LedgerStore interface {
		AppendEntry(ctx context.Context, e core.LedgerEntry) error
	}
)

// PersistenceError wraps a transport or storage failure so callers can
// distinguish it from scheduling errors.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence: " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a PersistenceError for the given operation.
// A nil err returns nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
