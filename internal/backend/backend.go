// Package backend wires a storage backend from configuration: SQLite
// (primary), Google Sheets, or in-memory for development.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"scadenze/internal/amqp"
	"scadenze/internal/config"
	"scadenze/internal/services"
	gsheet "scadenze/internal/sheets/google"
	"scadenze/internal/storage"
	"scadenze/internal/store"
	"scadenze/internal/store/memory"
)

// Stores bundles the persistence ports a backend provides, plus an optional
// entry publisher and a cleanup function for held resources.
type Stores struct {
	Templates store.TemplateStore
	Ledger    store.LedgerStore
	Publisher services.EntryPublisher
	Cleanup   func() error
}

func Build(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.DataBackend {
	case "sqlite":
		return buildSQLite(cfg)
	case "sheets":
		return buildSheets(ctx, cfg)
	case "memory":
		st := memory.New()
		return &Stores{
			Templates: store.NewCachedTemplates(st, cfg.CacheTTL),
			Ledger:    st,
			Cleanup:   func() error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported data backend: %s", cfg.DataBackend)
	}
}

func buildSQLite(cfg *config.Config) (*Stores, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize SQLite repository: %w", err)
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			slog.Warn("Failed to initialize AMQP client, continuing without spreadsheet sync", "error", err)
			amqpClient = nil
		} else {
			slog.Info("AMQP client initialized",
				"exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	stores := &Stores{
		Templates: store.NewCachedTemplates(repo, cfg.CacheTTL),
		Ledger:    repo,
		Cleanup: func() error {
			if amqpClient != nil {
				_ = amqpClient.Close()
			}
			return repo.Close()
		},
	}
	if amqpClient != nil {
		stores.Publisher = amqpClient
	}

	slog.Info("Initialized SQLite backend",
		"db_path", cfg.SQLiteDBPath, "amqp_enabled", amqpClient != nil)
	return stores, nil
}

func buildSheets(ctx context.Context, cfg *config.Config) (*Stores, error) {
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		TemplatesSheet:  cfg.GoogleTemplatesSheet,
		LedgerSheet:     cfg.GoogleLedgerSheet,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		CredentialsFile: cfg.GoogleCredentialsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize Google Sheets client: %w", err)
	}

	slog.Info("Initialized Google Sheets backend",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"templates_sheet", cfg.GoogleTemplatesSheet,
		"ledger_sheet", cfg.GoogleLedgerSheet)

	return &Stores{
		Templates: store.NewCachedTemplates(client, cfg.CacheTTL),
		Ledger:    client,
		Cleanup:   func() error { return nil },
	}, nil
}
