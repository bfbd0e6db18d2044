// Command import-fixtures loads the BrainFlix fixture files into a shared
// Postgres or Redis datastore and verifies the result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"brainflix-api/data"
	"brainflix-api/internal/observability/logging"
	"brainflix-api/internal/storage"
)

type importConfig struct {
	Driver      string
	DataDir     string
	PostgresDSN string
	Redis       storage.RedisConfig
	IfEmpty     bool
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "invalid arguments: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(logging.Config{Level: "info", Format: string(logging.FormatText), Writer: os.Stdout})
	if err := importFixtures(context.Background(), cfg, logger); err != nil {
		logger.Error("import failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (importConfig, error) {
	fs := flag.NewFlagSet("import-fixtures", flag.ContinueOnError)
	driver := fs.String("driver", "", "target datastore (postgres or redis)")
	dataDir := fs.String("data-dir", "", "directory holding videos.json and video-details.json (defaults to the bundled fixtures)")
	postgresDSN := fs.String("postgres-dsn", "", "Postgres connection string")
	redisAddr := fs.String("redis-addr", "", "Redis address")
	redisPassword := fs.String("redis-password", "", "Redis password")
	redisPrefix := fs.String("redis-prefix", "", "key prefix for BrainFlix data in Redis")
	ifEmpty := fs.Bool("if-empty", false, "leave a datastore that already holds videos untouched")
	if err := fs.Parse(args); err != nil {
		return importConfig{}, err
	}

	cfg := importConfig{
		Driver:      strings.ToLower(firstNonEmpty(*driver, os.Getenv("BRAINFLIX_STORAGE_DRIVER"))),
		DataDir:     firstNonEmpty(*dataDir, os.Getenv("BRAINFLIX_DATA_DIR")),
		PostgresDSN: firstNonEmpty(*postgresDSN, os.Getenv("BRAINFLIX_POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		Redis: storage.RedisConfig{
			Addr:      firstNonEmpty(*redisAddr, os.Getenv("BRAINFLIX_REDIS_ADDR")),
			Password:  firstNonEmpty(*redisPassword, os.Getenv("BRAINFLIX_REDIS_PASSWORD")),
			KeyPrefix: firstNonEmpty(*redisPrefix, os.Getenv("BRAINFLIX_REDIS_PREFIX")),
		},
		IfEmpty: *ifEmpty,
	}
	if cfg.Driver == "" {
		if cfg.PostgresDSN != "" {
			cfg.Driver = "postgres"
		} else if cfg.Redis.Addr != "" {
			cfg.Driver = "redis"
		}
	}
	switch cfg.Driver {
	case "postgres":
		if cfg.PostgresDSN == "" {
			return importConfig{}, fmt.Errorf("postgres DSN required: set --postgres-dsn, BRAINFLIX_POSTGRES_DSN, or DATABASE_URL")
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			return importConfig{}, fmt.Errorf("redis addr required: set --redis-addr or BRAINFLIX_REDIS_ADDR")
		}
	case "":
		return importConfig{}, fmt.Errorf("no datastore configured: provide --driver postgres or --driver redis")
	default:
		return importConfig{}, fmt.Errorf("unsupported driver %q (want postgres or redis)", cfg.Driver)
	}
	return cfg, nil
}

func importFixtures(ctx context.Context, cfg importConfig, logger *slog.Logger) error {
	var fixtures fs.FS = data.Fixtures()
	if cfg.DataDir != "" {
		fixtures = os.DirFS(cfg.DataDir)
	}
	dataset, err := storage.ReadFixtures(fixtures)
	if err != nil {
		return fmt.Errorf("read fixtures: %w", err)
	}
	counts := dataset.Counts()
	logger.Info("loaded fixtures", "summaries", counts.Summaries, "details", counts.Details, "comments", counts.Comments)
	if counts.Summaries == 0 && counts.Details == 0 {
		return fmt.Errorf("no fixture records found")
	}

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close(context.Background()) }()

	mode := storage.SeedReplace
	if cfg.IfEmpty {
		mode = storage.SeedIfEmpty
	}
	result, err := repo.Seed(ctx, dataset, mode)
	if err != nil {
		return fmt.Errorf("seed %s: %w", cfg.Driver, err)
	}
	if result.Skipped {
		logger.Info("datastore already holds videos, nothing imported", "driver", cfg.Driver)
		return nil
	}

	if err := verify(ctx, cfg, repo, result); err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	logger.Info("import completed", "driver", cfg.Driver, "summaries", result.Summaries, "details", result.Details, "comments", result.Comments)
	return nil
}

func openRepository(ctx context.Context, cfg importConfig, logger *slog.Logger) (storage.Repository, error) {
	opts := []storage.Option{storage.WithLogger(logging.WithComponent(logger, "datastore"))}
	switch cfg.Driver {
	case "postgres":
		repo, err := storage.NewPostgresRepository(ctx, cfg.PostgresDSN, append(opts, storage.WithPostgresApplicationName("brainflix-import"))...)
		if err != nil {
			return nil, fmt.Errorf("open postgres repository: %w", err)
		}
		return repo, nil
	case "redis":
		repo, err := storage.NewRedisRepository(ctx, cfg.Redis, opts...)
		if err != nil {
			return nil, fmt.Errorf("open redis repository: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
}

func verify(ctx context.Context, cfg importConfig, repo storage.Repository, expected storage.SeedResult) error {
	if cfg.Driver == "postgres" {
		return verifyPostgresCounts(ctx, cfg.PostgresDSN, expected)
	}
	return verifyRepository(ctx, repo, expected)
}

// verifyRepository reads every seeded detail back through the repository.
func verifyRepository(ctx context.Context, repo storage.Repository, expected storage.SeedResult) error {
	videos, err := repo.ListVideos(ctx)
	if err != nil {
		return fmt.Errorf("list videos: %w", err)
	}
	if len(videos) != expected.Summaries {
		return fmt.Errorf("mismatch for summaries: expected %d, got %d", expected.Summaries, len(videos))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for _, video := range videos {
		id := video.ID
		group.Go(func() error {
			_, err := repo.GetVideo(groupCtx, id)
			if errors.Is(err, storage.ErrNotFound) {
				// Summaries without a detail are valid fixture data.
				return nil
			}
			if err != nil {
				return fmt.Errorf("read video %s: %w", id, err)
			}
			return nil
		})
	}
	return group.Wait()
}

func verifyPostgresCounts(ctx context.Context, dsn string, expected storage.SeedResult) error {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse verification config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open verification connection: %w", err)
	}
	defer pool.Close()

	checks := []struct {
		name     string
		query    string
		expected int
	}{
		{"video_summaries", "SELECT COUNT(*) FROM video_summaries", expected.Summaries},
		{"video_details", "SELECT COUNT(*) FROM video_details", expected.Details},
		{"video_comments", "SELECT COUNT(*) FROM video_comments", expected.Comments},
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, check := range checks {
		check := check
		group.Go(func() error {
			var actual int
			if err := pool.QueryRow(groupCtx, check.query).Scan(&actual); err != nil {
				return fmt.Errorf("query %s: %w", check.name, err)
			}
			if actual != check.expected {
				return fmt.Errorf("mismatch for %s: expected %d, got %d", check.name, check.expected, actual)
			}
			return nil
		})
	}
	return group.Wait()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
