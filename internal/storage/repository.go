package storage

import (
	"context"

	"brainflix-api/internal/models"
)

// Repository exposes the datastore operations required by the API handlers.
// Implementations keep both collections ordered most recent first and always
// create a summary and its detail together.
type Repository interface {
	Ping(ctx context.Context) error
	Seed(ctx context.Context, dataset Dataset, mode SeedMode) (SeedResult, error)

	ListVideos(ctx context.Context) ([]models.VideoSummary, error)
	GetVideo(ctx context.Context, id string) (models.VideoDetail, error)
	CreateVideo(ctx context.Context, params CreateVideoParams) (models.VideoDetail, error)
	AddComment(ctx context.Context, videoID string, params CreateCommentParams) (models.Comment, error)

	Close(ctx context.Context) error
}

// CreateVideoParams carries the client supplied fields for a new upload.
type CreateVideoParams struct {
	Title       string
	Description string
}

// CreateCommentParams carries the client supplied fields for a new comment.
// An empty Name falls back to DefaultCommentAuthor.
type CreateCommentParams struct {
	Name    string
	Comment string
}

// SeedMode controls how Seed treats a datastore that already holds videos.
type SeedMode int

const (
	// SeedIfEmpty leaves existing data untouched. Shared backends use it so the
	// first instance to boot seeds the store and later instances join it.
	SeedIfEmpty SeedMode = iota
	// SeedReplace discards existing videos and comments before seeding.
	SeedReplace
)

// SeedResult reports what Seed did.
type SeedResult struct {
	Skipped   bool
	Summaries int
	Details   int
	Comments  int
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*postgresRepository)(nil)
	_ Repository = (*redisRepository)(nil)
)
