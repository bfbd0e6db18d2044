package storage

import (
	"context"
	"sync"

	"brainflix-api/internal/models"
)

// MemoryRepository keeps both video collections in process memory. Each
// collection is an id index plus an order slice holding ids most recent
// first. State is lost when the process exits and is never shared between
// instances.
type MemoryRepository struct {
	mu           sync.RWMutex
	settings     settings
	summaries    map[string]models.VideoSummary
	summaryOrder []string
	details      map[string]models.VideoDetail
	detailOrder  []string
}

// NewMemoryRepository returns an empty in-memory repository. Callers seed it
// with Seed before serving traffic.
func NewMemoryRepository(opts ...Option) *MemoryRepository {
	return &MemoryRepository{
		settings:  resolveSettings(opts),
		summaries: make(map[string]models.VideoSummary),
		details:   make(map[string]models.VideoDetail),
	}
}

func (m *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Seed loads dataset into memory. Duplicate ids within a collection keep the
// first occurrence.
func (m *MemoryRepository) Seed(ctx context.Context, dataset Dataset, mode SeedMode) (SeedResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mode == SeedIfEmpty && (len(m.summaryOrder) > 0 || len(m.detailOrder) > 0) {
		return SeedResult{Skipped: true}, nil
	}

	dataset = dataset.deduplicated(m.settings.logger)
	m.summaries = make(map[string]models.VideoSummary, len(dataset.Summaries))
	m.summaryOrder = make([]string, 0, len(dataset.Summaries))
	m.details = make(map[string]models.VideoDetail, len(dataset.Details))
	m.detailOrder = make([]string, 0, len(dataset.Details))

	for _, summary := range dataset.Summaries {
		m.summaries[summary.ID] = summary
		m.summaryOrder = append(m.summaryOrder, summary.ID)
	}
	for _, detail := range dataset.Details {
		m.details[detail.ID] = detail
		m.detailOrder = append(m.detailOrder, detail.ID)
	}
	counts := dataset.Counts()
	return SeedResult{Summaries: counts.Summaries, Details: counts.Details, Comments: counts.Comments}, nil
}

func (m *MemoryRepository) ListVideos(ctx context.Context) ([]models.VideoSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	videos := make([]models.VideoSummary, 0, len(m.summaryOrder))
	for _, id := range m.summaryOrder {
		videos = append(videos, m.summaries[id])
	}
	return videos, nil
}

func (m *MemoryRepository) GetVideo(ctx context.Context, id string) (models.VideoDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	detail, ok := m.details[id]
	if !ok {
		return models.VideoDetail{}, notFound(id)
	}
	return detail.Clone(), nil
}

func (m *MemoryRepository) CreateVideo(ctx context.Context, params CreateVideoParams) (models.VideoDetail, error) {
	if err := validateCreateVideo(params); err != nil {
		return models.VideoDetail{}, err
	}
	detail := m.settings.newVideo(params)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.summaries[detail.ID] = detail.Summary()
	m.summaryOrder = prepend(m.summaryOrder, detail.ID)
	m.details[detail.ID] = detail
	m.detailOrder = prepend(m.detailOrder, detail.ID)
	return detail.Clone(), nil
}

func (m *MemoryRepository) AddComment(ctx context.Context, videoID string, params CreateCommentParams) (models.Comment, error) {
	if err := validateCreateComment(params); err != nil {
		return models.Comment{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	detail, ok := m.details[videoID]
	if !ok {
		return models.Comment{}, notFound(videoID)
	}
	comment := m.settings.newComment(params)
	comments := make([]models.Comment, 0, len(detail.Comments)+1)
	comments = append(comments, comment)
	comments = append(comments, detail.Comments...)
	detail.Comments = comments
	m.details[videoID] = detail
	return comment, nil
}

func (m *MemoryRepository) Close(ctx context.Context) error {
	return nil
}

func prepend(ids []string, id string) []string {
	out := make([]string, 0, len(ids)+1)
	out = append(out, id)
	return append(out, ids...)
}
