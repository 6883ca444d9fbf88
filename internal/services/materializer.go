// Package services orchestrates the scheduler's use cases: materializing due
// templates into ledger entries and managing template state.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"scadenze/internal/core"
	applog "scadenze/internal/log"
	"scadenze/internal/schedule"
	"scadenze/internal/store"
)

// ErrOccurrenceClaimed means another writer materialized this occurrence
// first. The batch treats it as a skip, not a failure.
var ErrOccurrenceClaimed = errors.New("occurrence already claimed")

// EntryPublisher notifies downstream consumers of a new ledger entry.
// Satisfied by *amqp.Client; a nil publisher disables notifications.
type EntryPublisher interface {
	PublishEntrySync(ctx context.Context, entryID string) error
}

// Materializer converts due templates into ledger entries exactly once per
// occurrence and advances each template's schedule state.
type Materializer struct {
	templates   store.TemplateStore
	ledger      store.LedgerStore
	publisher   EntryPublisher
	itemTimeout time.Duration

	// Collapses concurrently triggered batch runs for the same day into a
	// single execution within this process. The store-level claim remains
	// the guard across processes.
	group singleflight.Group
}

// ItemFailure records one template that could not be materialized.
type ItemFailure struct {
	TemplateID  string
	Description string
	Err         error
}

// BatchReport summarizes one run over all due templates. A failure on one
// template never hides the outcome of the others.
type BatchReport struct {
	Due       int
	Processed int
	Skipped   int
	Failures  []ItemFailure
}

// Err returns an aggregated error when any template failed, nil otherwise.
// The message carries the success count so a caller can assess backlog.
func (r BatchReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return fmt.Errorf("materialized %d of %d due templates, %d failed (first: %s: %v)",
		r.Processed, r.Due, len(r.Failures), r.Failures[0].TemplateID, r.Failures[0].Err)
}

func NewMaterializer(templates store.TemplateStore, ledger store.LedgerStore, publisher EntryPublisher, itemTimeout time.Duration) *Materializer {
	if itemTimeout <= 0 {
		itemTimeout = 30 * time.Second
	}
	return &Materializer{
		templates:   templates,
		ledger:      ledger,
		publisher:   publisher,
		itemTimeout: itemTimeout,
	}
}

// ProcessTemplate materializes one occurrence of t dated today.
//
// The occurrence is claimed in the store before the entry is written: the
// claim is a compare-and-swap on the last-processed date, so of two racing
// writers only one proceeds to append. The cost of this ordering is that a
// failed append loses the occurrence instead of duplicating it.
func (m *Materializer) ProcessTemplate(ctx context.Context, t core.RecurringTemplate, today core.Date) (core.LedgerEntry, error) {
	advanced := t
	advanced.LastProcessed = today
	nextDue, err := schedule.NextDueDate(advanced, today)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("compute next due date for %s: %w", t.ID, err)
	}

	claimed, err := m.templates.ClaimOccurrence(ctx, t.ID, today, nextDue)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("claim occurrence for %s: %w", t.ID, err)
	}
	if !claimed {
		return core.LedgerEntry{}, ErrOccurrenceClaimed
	}

	entry := t.MaterializeOn(uuid.NewString(), today)
	if err := m.ledger.AppendEntry(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "Occurrence claimed but entry append failed",
			applog.FieldTemplateID, t.ID,
			"description", t.Description,
			applog.FieldError, err)
		return core.LedgerEntry{}, fmt.Errorf("append entry for %s: %w", t.ID, err)
	}

	if m.publisher != nil {
		if err := m.publisher.PublishEntrySync(ctx, entry.ID); err != nil {
			// The entry is persisted; sync catches up via the pending scan.
			slog.ErrorContext(ctx, "Failed to publish entry sync message",
				applog.FieldEntryID, entry.ID, applog.FieldError, err)
		}
	}

	slog.InfoContext(ctx, "Materialized recurring template",
		applog.FieldTemplateID, t.ID,
		applog.FieldEntryID, entry.ID,
		"description", t.Description,
		applog.FieldFrequency, t.Frequency,
		applog.FieldNextDue, nextDue.String())

	return entry, nil
}

// ProcessAllDue materializes every due template sequentially and reports
// per-template outcomes. Failures are isolated: template k failing does not
// abort templates k+1..n.
func (m *Materializer) ProcessAllDue(ctx context.Context, today core.Date) (BatchReport, error) {
	v, err, _ := m.group.Do(today.String(), func() (any, error) {
		return m.processAllDue(ctx, today)
	})
	if err != nil {
		return BatchReport{}, err
	}
	return v.(BatchReport), nil
}

func (m *Materializer) processAllDue(ctx context.Context, today core.Date) (BatchReport, error) {
	templates, err := m.templates.ListTemplates(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("list templates: %w", err)
	}

	due := schedule.SelectDue(templates, today)
	report := BatchReport{Due: len(due)}

	slog.InfoContext(ctx, "Processing due templates",
		applog.FieldComponent, applog.ComponentScheduler,
		"total", len(templates),
		applog.FieldDueCount, len(due),
		applog.FieldProcessDate, today.String())

	for _, t := range due {
		itemCtx, cancel := context.WithTimeout(ctx, m.itemTimeout)
		_, err := m.ProcessTemplate(itemCtx, t, today)
		cancel()

		switch {
		case err == nil:
			report.Processed++
		case errors.Is(err, ErrOccurrenceClaimed):
			report.Skipped++
		default:
			report.Failures = append(report.Failures, ItemFailure{
				TemplateID:  t.ID,
				Description: t.Description,
				Err:         err,
			})
			slog.ErrorContext(ctx, "Failed to materialize template",
				applog.FieldTemplateID, t.ID,
				"description", t.Description,
				applog.FieldError, err)
		}

		if ctx.Err() != nil {
			// Batch deadline reached; the report shows how far the run got.
			slog.WarnContext(ctx, "Batch aborted before all due templates were processed",
				"remaining", report.Due-report.Processed-report.Skipped-len(report.Failures))
			break
		}
	}

	slog.InfoContext(ctx, "Materialization run complete",
		applog.FieldComponent, applog.ComponentScheduler,
		applog.FieldDueCount, report.Due,
		applog.FieldProcessCount, report.Processed,
		applog.FieldSkipCount, report.Skipped,
		applog.FieldFailCount, len(report.Failures))

	return report, nil
}
