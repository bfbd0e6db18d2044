package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainflix-api/internal/models"
)

// RepositoryFactory constructs an empty repository for the cross-datastore
// scenarios below. Returned cleanups run when the test finishes.
type RepositoryFactory func(t *testing.T, opts ...Option) (Repository, func(), error)

var scenarioClock = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func scenarioOptions() []Option {
	var counter atomic.Int64
	return []Option{
		WithClock(func() time.Time { return scenarioClock }),
		WithIDGenerator(func() string {
			return fmt.Sprintf("generated-%d", counter.Add(1))
		}),
	}
}

func runRepository(t *testing.T, factory RepositoryFactory, opts ...Option) Repository {
	t.Helper()
	require.NotNil(t, factory, "repository factory is required")
	repo, cleanup, err := factory(t, opts...)
	require.NoError(t, err, "open repository")
	require.NotNil(t, repo, "repository factory returned nil repository")
	if cleanup != nil {
		t.Cleanup(cleanup)
	}
	return repo
}

func scenarioDataset() Dataset {
	return Dataset{
		Summaries: []models.VideoSummary{
			{ID: "v1", Title: "First", Channel: "Alpha", Image: "/public/images/image0.jpg"},
			{ID: "v2", Title: "Second", Channel: "Beta", Image: "/public/images/image1.jpg"},
		},
		Details: []models.VideoDetail{
			{
				ID: "v1", Title: "First", Channel: "Alpha", Image: "/public/images/image0.jpg",
				Description: "first video", Views: "1,001", Likes: "110", Duration: "4:01",
				Video: "https://example.com/stream", Timestamp: 1632344461000,
				Comments: []models.Comment{
					{ID: "c2", Name: "Noah", Comment: "newest", Likes: 0, Timestamp: 1632512763000},
					{ID: "c1", Name: "Gary", Comment: "oldest", Likes: 3, Timestamp: 1632496261000},
				},
			},
			{
				ID: "v2", Title: "Second", Channel: "Beta", Image: "/public/images/image1.jpg",
				Description: "second video", Views: "2", Likes: "1", Duration: "7:26",
				Video: "https://example.com/stream", Timestamp: 1626032763000,
				Comments: []models.Comment{},
			},
		},
	}
}

func seedScenario(t *testing.T, repo Repository) {
	t.Helper()
	result, err := repo.Seed(context.Background(), scenarioDataset(), SeedReplace)
	require.NoError(t, err, "seed repository")
	require.Equal(t, SeedResult{Summaries: 2, Details: 2, Comments: 2}, result)
}

// RunRepositorySeedAndRead checks that seeded fixtures come back in order.
func RunRepositorySeedAndRead(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory, scenarioOptions()...)
	ctx := context.Background()
	seedScenario(t, repo)

	videos, err := repo.ListVideos(ctx)
	require.NoError(t, err)
	require.Equal(t, scenarioDataset().Summaries, videos)

	detail, err := repo.GetVideo(ctx, "v1")
	require.NoError(t, err)
	require.Equal(t, scenarioDataset().Details[0], detail)

	empty, err := repo.GetVideo(ctx, "v2")
	require.NoError(t, err)
	require.NotNil(t, empty.Comments)
	require.Empty(t, empty.Comments)

	_, err = repo.GetVideo(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

// RunRepositorySeedIfEmpty checks that an already populated store is left alone.
func RunRepositorySeedIfEmpty(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory, scenarioOptions()...)
	ctx := context.Background()

	first, err := repo.Seed(ctx, scenarioDataset(), SeedIfEmpty)
	require.NoError(t, err)
	require.False(t, first.Skipped)

	_, err = repo.CreateVideo(ctx, CreateVideoParams{Title: "Cats", Description: "Cute"})
	require.NoError(t, err)

	second, err := repo.Seed(ctx, scenarioDataset(), SeedIfEmpty)
	require.NoError(t, err)
	require.True(t, second.Skipped)

	videos, err := repo.ListVideos(ctx)
	require.NoError(t, err)
	require.Len(t, videos, 3)
	assert.Equal(t, "Cats", videos[0].Title)

	replaced, err := repo.Seed(ctx, scenarioDataset(), SeedReplace)
	require.NoError(t, err)
	require.False(t, replaced.Skipped)
	videos, err = repo.ListVideos(ctx)
	require.NoError(t, err)
	require.Equal(t, scenarioDataset().Summaries, videos)
}

// RunRepositoryCreateVideo checks upload defaults and newest-first placement.
func RunRepositoryCreateVideo(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory, scenarioOptions()...)
	ctx := context.Background()
	seedScenario(t, repo)

	created, err := repo.CreateVideo(ctx, CreateVideoParams{Title: "Cats", Description: "Cute"})
	require.NoError(t, err)
	assert.Equal(t, "generated-1", created.ID)
	assert.Equal(t, "Cats", created.Title)
	assert.Equal(t, "Cute", created.Description)
	assert.Equal(t, UploadChannel, created.Channel)
	assert.Equal(t, UploadImage, created.Image)
	assert.Equal(t, UploadDuration, created.Duration)
	assert.Equal(t, "0", created.Views)
	assert.Equal(t, "0", created.Likes)
	assert.Equal(t, "", created.Video)
	assert.Equal(t, scenarioClock.UnixMilli(), created.Timestamp)
	assert.NotNil(t, created.Comments)
	assert.Empty(t, created.Comments)

	videos, err := repo.ListVideos(ctx)
	require.NoError(t, err)
	require.Len(t, videos, 3)
	assert.Equal(t, created.Summary(), videos[0])
	assert.Equal(t, "v1", videos[1].ID)

	fetched, err := repo.GetVideo(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, fetched)
}

// RunRepositoryRejectsInvalidInput checks validation failures leave state untouched.
func RunRepositoryRejectsInvalidInput(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory, scenarioOptions()...)
	ctx := context.Background()
	seedScenario(t, repo)

	for _, params := range []CreateVideoParams{
		{Title: "", Description: "x"},
		{Title: "x", Description: ""},
		{Title: "   ", Description: "\t"},
	} {
		_, err := repo.CreateVideo(ctx, params)
		require.Error(t, err)
		require.True(t, IsValidation(err), "expected validation error, got %v", err)
		assert.Equal(t, "title and description are required", err.Error())
	}

	_, err := repo.AddComment(ctx, "v1", CreateCommentParams{Name: "Ann", Comment: "  "})
	require.True(t, IsValidation(err), "expected validation error, got %v", err)
	assert.Equal(t, "comment is required", err.Error())

	_, err = repo.AddComment(ctx, "missing", CreateCommentParams{})
	require.True(t, IsValidation(err), "validation runs before lookup, got %v", err)

	videos, err := repo.ListVideos(ctx)
	require.NoError(t, err)
	require.Equal(t, scenarioDataset().Summaries, videos)
	detail, err := repo.GetVideo(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, detail.Comments, 2)
}

// RunRepositoryAddComment checks comment defaults and newest-first placement.
func RunRepositoryAddComment(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory, scenarioOptions()...)
	ctx := context.Background()
	seedScenario(t, repo)

	anonymous, err := repo.AddComment(ctx, "v1", CreateCommentParams{Comment: "Nice!"})
	require.NoError(t, err)
	assert.Equal(t, models.Comment{
		ID:        "generated-1",
		Name:      DefaultCommentAuthor,
		Comment:   "Nice!",
		Likes:     0,
		Timestamp: scenarioClock.UnixMilli(),
	}, anonymous)

	named, err := repo.AddComment(ctx, "v1", CreateCommentParams{Name: "Ann", Comment: "Again"})
	require.NoError(t, err)
	assert.Equal(t, "Ann", named.Name)

	detail, err := repo.GetVideo(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, detail.Comments, 4)
	assert.Equal(t, named, detail.Comments[0])
	assert.Equal(t, anonymous, detail.Comments[1])
	assert.Equal(t, "c2", detail.Comments[2].ID)
	assert.Equal(t, "c1", detail.Comments[3].ID)

	_, err = repo.AddComment(ctx, "missing", CreateCommentParams{Comment: "hi"})
	require.True(t, errors.Is(err, ErrNotFound), "expected not found, got %v", err)

	videos, err := repo.ListVideos(ctx)
	require.NoError(t, err)
	require.Equal(t, scenarioDataset().Summaries, videos, "comments must not change the listing")
}

// RunRepositoryReturnsCopies checks callers cannot mutate stored state.
func RunRepositoryReturnsCopies(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory, scenarioOptions()...)
	ctx := context.Background()
	seedScenario(t, repo)

	detail, err := repo.GetVideo(ctx, "v1")
	require.NoError(t, err)
	detail.Title = "changed"
	detail.Comments[0].Comment = "changed"

	again, err := repo.GetVideo(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "First", again.Title)
	assert.Equal(t, "newest", again.Comments[0].Comment)

	videos, err := repo.ListVideos(ctx)
	require.NoError(t, err)
	videos[0].Title = "changed"
	videos, err = repo.ListVideos(ctx)
	require.NoError(t, err)
	assert.Equal(t, "First", videos[0].Title)
}

// RunRepositoryScenarios runs every datastore scenario against factory.
func RunRepositoryScenarios(t *testing.T, factory RepositoryFactory) {
	t.Run("SeedAndRead", func(t *testing.T) { RunRepositorySeedAndRead(t, factory) })
	t.Run("SeedIfEmpty", func(t *testing.T) { RunRepositorySeedIfEmpty(t, factory) })
	t.Run("CreateVideo", func(t *testing.T) { RunRepositoryCreateVideo(t, factory) })
	t.Run("RejectsInvalidInput", func(t *testing.T) { RunRepositoryRejectsInvalidInput(t, factory) })
	t.Run("AddComment", func(t *testing.T) { RunRepositoryAddComment(t, factory) })
	t.Run("ReturnsCopies", func(t *testing.T) { RunRepositoryReturnsCopies(t, factory) })
}
