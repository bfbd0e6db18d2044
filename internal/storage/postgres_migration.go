package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// postgresSchema is applied on every start. Each statement is idempotent. The
// seq columns carry insertion order so listings can return the newest rows
// first.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS video_summaries (
	seq BIGSERIAL NOT NULL,
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	channel TEXT NOT NULL,
	image TEXT NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS video_summaries_seq_idx ON video_summaries (seq DESC)`,
	`CREATE TABLE IF NOT EXISTS video_details (
	seq BIGSERIAL NOT NULL,
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	channel TEXT NOT NULL,
	image TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	views TEXT NOT NULL DEFAULT '0',
	likes TEXT NOT NULL DEFAULT '0',
	duration TEXT NOT NULL DEFAULT '',
	video TEXT NOT NULL DEFAULT '',
	timestamp_ms BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS video_comments (
	seq BIGSERIAL NOT NULL,
	id TEXT PRIMARY KEY,
	video_id TEXT NOT NULL REFERENCES video_details (id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	comment TEXT NOT NULL,
	likes BIGINT NOT NULL DEFAULT 0,
	timestamp_ms BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS video_comments_video_seq_idx ON video_comments (video_id, seq DESC)`,
}

// seedLockKey serialises concurrent seeders across instances sharing a database.
const seedLockKey = "brainflix-api:seed"

func (r *postgresRepository) migrate(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	for _, statement := range postgresSchema {
		if _, err := r.pool.Exec(ctx, statement); err != nil {
			return fmt.Errorf("apply postgres schema: %w", err)
		}
	}
	return nil
}

// seedTx writes dataset inside tx. Rows are inserted oldest first so that
// ordering by seq descending reproduces the fixture order.
func seedTx(ctx context.Context, tx pgx.Tx, dataset Dataset) error {
	batch := &pgx.Batch{}
	for i := len(dataset.Summaries) - 1; i >= 0; i-- {
		summary := dataset.Summaries[i]
		batch.Queue(`INSERT INTO video_summaries (id, title, channel, image) VALUES ($1, $2, $3, $4)`,
			summary.ID, summary.Title, summary.Channel, summary.Image)
	}
	for i := len(dataset.Details) - 1; i >= 0; i-- {
		detail := dataset.Details[i]
		batch.Queue(`INSERT INTO video_details (id, title, channel, image, description, views, likes, duration, video, timestamp_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			detail.ID, detail.Title, detail.Channel, detail.Image, detail.Description,
			detail.Views, detail.Likes, detail.Duration, detail.Video, detail.Timestamp)
		for j := len(detail.Comments) - 1; j >= 0; j-- {
			comment := detail.Comments[j]
			batch.Queue(`INSERT INTO video_comments (id, video_id, name, comment, likes, timestamp_ms)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`,
				comment.ID, detail.ID, comment.Name, comment.Comment, comment.Likes, comment.Timestamp)
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	results := tx.SendBatch(ctx, batch)
	if err := results.Close(); err != nil {
		return fmt.Errorf("insert seed rows: %w", err)
	}
	return nil
}
