// Command server starts the BrainFlix API HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"brainflix-api/data"
	"brainflix-api/internal/api"
	"brainflix-api/internal/observability/logging"
	"brainflix-api/internal/observability/metrics"
	"brainflix-api/internal/server"
	"brainflix-api/internal/serverutil"
	"brainflix-api/internal/storage"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, errHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger := logging.Init(cfg.Log)
	if err := cfg.validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, metrics.Default(), nil); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// run opens the datastore, seeds it from the fixtures and serves until ctx is
// cancelled. onListen, when set, receives the bound address.
func run(ctx context.Context, cfg config, logger *slog.Logger, recorder *metrics.Recorder, onListen func(net.Addr)) error {
	logger.Info("BrainFlix API starting", newStartupSummary(cfg).LogArgs()...)

	store, err := openRepository(ctx, cfg, logging.WithComponent(logger, "datastore"))
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}()

	if err := seedRepository(ctx, store, cfg, logger, recorder); err != nil {
		return err
	}

	handler := api.NewHandler(store, logging.WithComponent(logger, "api"), recorder)
	srv, err := server.New(handler, server.Config{
		Addr:      cfg.Addr,
		CORS:      server.CORSConfig{AllowedOrigins: cfg.CORSOrigins},
		Security:  cfg.Security,
		PublicDir: cfg.PublicDir,
		Logger:    logger,
		Metrics:   recorder,
	})
	if err != nil {
		return fmt.Errorf("initialise server: %w", err)
	}

	logger.Info("metrics endpoint available", "path", "/metrics")
	return serverutil.Run(ctx, serverutil.Config{
		Server:          srv.HTTPServer(),
		TLS:             cfg.TLS,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
		OnListen:        onListen,
	})
}

// seedRepository loads the fixture files and seeds the datastore. The memory
// driver always starts from the fixtures; shared backends are only seeded
// while empty so restarts keep earlier uploads.
func seedRepository(ctx context.Context, store storage.Repository, cfg config, logger *slog.Logger, recorder *metrics.Recorder) error {
	dataset := storage.LoadFixtures(fixtureFS(cfg.DataDir), logging.WithComponent(logger, "fixtures"))
	counts := dataset.Counts()
	recorder.FixturesLoaded(counts.Summaries, counts.Details, counts.Comments)

	mode := storage.SeedIfEmpty
	if cfg.StorageDriver == driverMemory {
		mode = storage.SeedReplace
	}
	result, err := store.Seed(ctx, dataset, mode)
	if err != nil {
		return fmt.Errorf("seed datastore: %w", err)
	}
	if result.Skipped {
		logger.Info("datastore already seeded, keeping existing videos", "driver", cfg.StorageDriver)
		return nil
	}
	logger.Info("datastore seeded",
		"driver", cfg.StorageDriver,
		"summaries", result.Summaries,
		"details", result.Details,
		"comments", result.Comments,
	)
	return nil
}

func fixtureFS(dir string) fs.FS {
	if dir == "" {
		return data.Fixtures()
	}
	return os.DirFS(dir)
}
