// Package handler exposes the BrainFlix API as a single serverless function.
// The route table is built on the first invocation and reused for the
// lifetime of the instance, so uploads live only as long as that instance.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"brainflix-api/data"
	"brainflix-api/internal/api"
	"brainflix-api/internal/observability/logging"
	"brainflix-api/internal/observability/metrics"
	"brainflix-api/internal/server"
	"brainflix-api/internal/storage"
)

const defaultPublicDir = "public"

var (
	once    sync.Once
	app     http.Handler
	initErr error
)

// Handler serves every request routed to the function.
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		app, initErr = build(context.Background(), resolvePublicDir())
	})
	if initErr != nil {
		api.WriteError(w, http.StatusInternalServerError, initErr)
		return
	}
	app.ServeHTTP(w, r)
}

func build(ctx context.Context, publicDir string) (http.Handler, error) {
	logger := logging.New(logging.Config{
		Level:  os.Getenv("BRAINFLIX_LOG_LEVEL"),
		Format: os.Getenv("BRAINFLIX_LOG_FORMAT"),
	})
	recorder := metrics.Default()

	store := storage.NewMemoryRepository(storage.WithLogger(logging.WithComponent(logger, "datastore")))
	dataset := storage.LoadFixtures(data.Fixtures(), logging.WithComponent(logger, "fixtures"))
	counts := dataset.Counts()
	recorder.FixturesLoaded(counts.Summaries, counts.Details, counts.Comments)
	if _, err := store.Seed(ctx, dataset, storage.SeedReplace); err != nil {
		return nil, err
	}

	srv, err := server.New(api.NewHandler(store, logging.WithComponent(logger, "api"), recorder), server.Config{
		CORS: server.CORSConfig{AllowedOrigins: server.ParseOrigins(os.Getenv("BRAINFLIX_CORS_ORIGINS"))},
		Security: server.SecurityConfig{
			ContentSecurityPolicy:     strings.TrimSpace(os.Getenv("BRAINFLIX_CONTENT_SECURITY_POLICY")),
			CrossOriginResourcePolicy: strings.ToLower(strings.TrimSpace(os.Getenv("BRAINFLIX_CROSS_ORIGIN_RESOURCE_POLICY"))),
		},
		PublicDir: publicDir,
		Logger:    logger,
		Metrics:   recorder,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("serverless instance initialised", slog.Int("videos", counts.Summaries), slog.String("public_dir", publicDir))
	return srv.Handler(), nil
}

// resolvePublicDir resolves the thumbnail directory, defaulting to the bundled
// public/ tree shipped next to the function.
func resolvePublicDir() string {
	if dir := strings.TrimSpace(os.Getenv("BRAINFLIX_PUBLIC_DIR")); dir != "" {
		return dir
	}
	return defaultPublicDir
}
