package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scadenze/internal/backend"
	"scadenze/internal/cli"
	apphttp "scadenze/internal/http"
	"scadenze/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting scadenze API server")

	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := backend.Build(ctx, cfg)
	if err != nil {
		logger.Error("Failed to build backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer stores.Cleanup()

	templateService := services.NewTemplateService(stores.Templates)
	materializer := services.NewMaterializer(stores.Templates, stores.Ledger, stores.Publisher, cfg.ItemTimeout)

	server := apphttp.NewServer(":"+cfg.Port, templateService, materializer, cfg.BatchTimeout)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("HTTP server failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown failed", "error", err)
	}
	logger.Info("scadenze API server stopped")
}
