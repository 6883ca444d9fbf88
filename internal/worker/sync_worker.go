// Package worker mirrors materialized ledger entries from SQLite to the
// spreadsheet backend.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"scadenze/internal/amqp"
	applog "scadenze/internal/log"
	"scadenze/internal/storage"
	"scadenze/internal/store"
)

// SyncWorker consumes entry sync messages and appends the referenced ledger
// entries to the spreadsheet.
type SyncWorker struct {
	storage   *storage.SQLiteRepository
	sheet     store.LedgerStore
	batchSize int
}

func NewSyncWorker(storage *storage.SQLiteRepository, sheet store.LedgerStore, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:   storage,
		sheet:     sheet,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single entry sync message from AMQP.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.EntrySyncMessage) error {
	slog.InfoContext(ctx, "Processing entry sync message", applog.FieldEntryID, msg.EntryID)
	return w.syncEntry(ctx, msg.EntryID)
}

// StartupSyncCheck pushes entries that were materialized while the worker
// was down. It drains at most batchSize entries per call.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	ids, err := w.storage.PendingEntryIDs(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending entries: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Syncing entries missed while offline",
		applog.FieldComponent, applog.ComponentWorker, "count", len(ids))
	for _, id := range ids {
		if err := w.syncEntry(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Startup sync failed for entry",
				applog.FieldEntryID, id, applog.FieldError, err)
			// Keep going; the entry stays pending for the next pass.
		}
	}
	return nil
}

func (w *SyncWorker) syncEntry(ctx context.Context, id string) error {
	entry, err := w.storage.GetEntry(ctx, id)
	if err != nil {
		return fmt.Errorf("get entry from storage: %w", err)
	}

	if err := w.sheet.AppendEntry(ctx, entry); err != nil {
		return fmt.Errorf("append entry to spreadsheet: %w", err)
	}

	if err := w.storage.MarkEntrySynced(ctx, id); err != nil {
		// The sheet write succeeded; a redelivery would duplicate the row,
		// so surface the error loudly instead of failing the message.
		slog.ErrorContext(ctx, "Entry synced but could not be marked",
			applog.FieldEntryID, id, applog.FieldError, err)
	}
	return nil
}
