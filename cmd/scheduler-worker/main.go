package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scadenze/internal/backend"
	"scadenze/internal/cli"
	"scadenze/internal/core"
	"scadenze/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting scheduler-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := backend.Build(ctx, cfg)
	if err != nil {
		logger.Error("Failed to build backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer stores.Cleanup()

	materializer := services.NewMaterializer(stores.Templates, stores.Ledger, stores.Publisher, cfg.ItemTimeout)

	logger.Info("Materialization worker configured",
		"interval", cfg.ProcessInterval,
		"backend", cfg.DataBackend)

	runBatch := func(now time.Time) {
		batchCtx, batchCancel := context.WithTimeout(ctx, cfg.BatchTimeout)
		defer batchCancel()

		report, err := materializer.ProcessAllDue(batchCtx, core.DateOf(now))
		if err != nil {
			logger.Error("Materialization run failed", "error", err)
			return
		}
		logger.Info("Materialization run finished",
			"due", report.Due,
			"processed", report.Processed,
			"skipped", report.Skipped,
			"failed", len(report.Failures))
	}

	// Run once on startup so a worker that was down over a due date catches
	// up immediately.
	runBatch(time.Now())

	ticker := time.NewTicker(cfg.ProcessInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				runBatch(now)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())
	cancel()
	logger.Info("scheduler-worker stopped")
}
