package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"brainflix-api/internal/models"
)

type postgresRepository struct {
	pool     *pgxpool.Pool
	cfg      PostgresConfig
	settings settings
}

// NewPostgresRepository opens a Postgres-backed repository and applies the
// schema. The database is shared by every instance pointed at it, so writes
// survive restarts.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := buildPoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &postgresRepository{
		pool:     pool,
		cfg:      cfg,
		settings: resolveSettings(opts),
	}
	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func buildPoolConfig(cfg PostgresConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	return poolCfg, nil
}

func (r *postgresRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.AcquireTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.AcquireTimeout)
	}
	return context.WithCancel(ctx)
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (r *postgresRepository) Seed(ctx context.Context, dataset Dataset, mode SeedMode) (SeedResult, error) {
	dataset = dataset.deduplicated(r.settings.logger)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SeedResult{}, fmt.Errorf("begin seed transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, seedLockKey); err != nil {
		return SeedResult{}, fmt.Errorf("acquire seed lock: %w", err)
	}

	switch mode {
	case SeedReplace:
		if _, err := tx.Exec(ctx, `TRUNCATE video_comments, video_details, video_summaries RESTART IDENTITY`); err != nil {
			return SeedResult{}, fmt.Errorf("clear videos: %w", err)
		}
	default:
		var populated bool
		row := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM video_summaries) OR EXISTS (SELECT 1 FROM video_details)`)
		if err := row.Scan(&populated); err != nil {
			return SeedResult{}, fmt.Errorf("check existing videos: %w", err)
		}
		if populated {
			return SeedResult{Skipped: true}, nil
		}
	}

	if err := seedTx(ctx, tx, dataset); err != nil {
		return SeedResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return SeedResult{}, fmt.Errorf("commit seed: %w", err)
	}
	counts := dataset.Counts()
	return SeedResult{Summaries: counts.Summaries, Details: counts.Details, Comments: counts.Comments}, nil
}

func (r *postgresRepository) ListVideos(ctx context.Context) ([]models.VideoSummary, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT id, title, channel, image FROM video_summaries ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	videos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.VideoSummary, error) {
		var summary models.VideoSummary
		err := row.Scan(&summary.ID, &summary.Title, &summary.Channel, &summary.Image)
		return summary, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan videos: %w", err)
	}
	if videos == nil {
		videos = []models.VideoSummary{}
	}
	return videos, nil
}

func (r *postgresRepository) GetVideo(ctx context.Context, id string) (models.VideoDetail, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var detail models.VideoDetail
	row := r.pool.QueryRow(ctx, `
SELECT id, title, channel, image, description, views, likes, duration, video, timestamp_ms
FROM video_details
WHERE id = $1
`, id)
	err := row.Scan(&detail.ID, &detail.Title, &detail.Channel, &detail.Image, &detail.Description,
		&detail.Views, &detail.Likes, &detail.Duration, &detail.Video, &detail.Timestamp)
	if err != nil {
		if isNoRows(err) {
			return models.VideoDetail{}, notFound(id)
		}
		return models.VideoDetail{}, fmt.Errorf("get video %s: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, name, comment, likes, timestamp_ms
FROM video_comments
WHERE video_id = $1
ORDER BY seq DESC
`, id)
	if err != nil {
		return models.VideoDetail{}, fmt.Errorf("list comments for %s: %w", id, err)
	}
	comments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Comment, error) {
		var comment models.Comment
		err := row.Scan(&comment.ID, &comment.Name, &comment.Comment, &comment.Likes, &comment.Timestamp)
		return comment, err
	})
	if err != nil {
		return models.VideoDetail{}, fmt.Errorf("scan comments for %s: %w", id, err)
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	detail.Comments = comments
	return detail, nil
}

func (r *postgresRepository) CreateVideo(ctx context.Context, params CreateVideoParams) (models.VideoDetail, error) {
	if err := validateCreateVideo(params); err != nil {
		return models.VideoDetail{}, err
	}
	detail := r.settings.newVideo(params)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.VideoDetail{}, fmt.Errorf("begin create video: %w", err)
	}
	defer rollbackTx(ctx, tx)

	if _, err := tx.Exec(ctx, `INSERT INTO video_summaries (id, title, channel, image) VALUES ($1, $2, $3, $4)`,
		detail.ID, detail.Title, detail.Channel, detail.Image); err != nil {
		return models.VideoDetail{}, fmt.Errorf("insert video summary: %w", err)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO video_details (id, title, channel, image, description, views, likes, duration, video, timestamp_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`, detail.ID, detail.Title, detail.Channel, detail.Image, detail.Description,
		detail.Views, detail.Likes, detail.Duration, detail.Video, detail.Timestamp); err != nil {
		return models.VideoDetail{}, fmt.Errorf("insert video detail: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.VideoDetail{}, fmt.Errorf("commit create video: %w", err)
	}
	return detail, nil
}

func (r *postgresRepository) AddComment(ctx context.Context, videoID string, params CreateCommentParams) (models.Comment, error) {
	if err := validateCreateComment(params); err != nil {
		return models.Comment{}, err
	}
	comment := r.settings.newComment(params)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
INSERT INTO video_comments (id, video_id, name, comment, likes, timestamp_ms)
SELECT $1, d.id, $3, $4, $5, $6
FROM video_details d
WHERE d.id = $2
`, comment.ID, videoID, comment.Name, comment.Comment, comment.Likes, comment.Timestamp)
	if err != nil {
		return models.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Comment{}, notFound(videoID)
	}
	return comment, nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func rollbackTx(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(ctx)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
