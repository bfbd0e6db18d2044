package storage

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"brainflix-api/data"
	"brainflix-api/internal/models"
)

// Dataset is the seed data parsed from the fixture files. Both collections
// are ordered most recent first.
type Dataset struct {
	Summaries []models.VideoSummary
	Details   []models.VideoDetail
}

// DatasetCounts summarises the size of a Dataset for logging and metrics.
type DatasetCounts struct {
	Summaries int
	Details   int
	Comments  int
}

// Counts returns the number of records held by the dataset.
func (d Dataset) Counts() DatasetCounts {
	counts := DatasetCounts{Summaries: len(d.Summaries), Details: len(d.Details)}
	for _, detail := range d.Details {
		counts.Comments += len(detail.Comments)
	}
	return counts
}

// deduplicated drops repeated ids within each collection, keeping the first
// occurrence.
func (d Dataset) deduplicated(logger *slog.Logger) Dataset {
	out := Dataset{
		Summaries: make([]models.VideoSummary, 0, len(d.Summaries)),
		Details:   make([]models.VideoDetail, 0, len(d.Details)),
	}
	seen := make(map[string]struct{}, len(d.Summaries))
	for _, summary := range d.Summaries {
		if _, ok := seen[summary.ID]; ok {
			logger.Warn("duplicate video summary in seed data", "video_id", summary.ID)
			continue
		}
		seen[summary.ID] = struct{}{}
		out.Summaries = append(out.Summaries, summary)
	}
	seen = make(map[string]struct{}, len(d.Details))
	for _, detail := range d.Details {
		if _, ok := seen[detail.ID]; ok {
			logger.Warn("duplicate video detail in seed data", "video_id", detail.ID)
			continue
		}
		seen[detail.ID] = struct{}{}
		out.Details = append(out.Details, detail.Clone())
	}
	return out
}

// LoadFixtures reads the summary and detail fixture files from fsys. A file
// that cannot be read or decoded is logged and replaced with an empty
// collection so the service still starts, serving no videos.
func LoadFixtures(fsys fs.FS, logger *slog.Logger) Dataset {
	if logger == nil {
		logger = slog.Default()
	}
	summaries, err := readSummaries(fsys)
	if err != nil {
		logger.Error("failed to read fixture", "path", data.VideosFile, "error", err)
		summaries = []models.VideoSummary{}
	}
	details, err := readDetails(fsys)
	if err != nil {
		logger.Error("failed to read fixture", "path", data.DetailsFile, "error", err)
		details = []models.VideoDetail{}
	}
	return Dataset{Summaries: summaries, Details: details}
}

// ReadFixtures reads both fixture files concurrently and fails on the first
// file that cannot be read or decoded.
func ReadFixtures(fsys fs.FS) (Dataset, error) {
	var (
		dataset Dataset
		group   errgroup.Group
	)
	group.Go(func() error {
		summaries, err := readSummaries(fsys)
		dataset.Summaries = summaries
		return err
	})
	group.Go(func() error {
		details, err := readDetails(fsys)
		dataset.Details = details
		return err
	})
	if err := group.Wait(); err != nil {
		return Dataset{}, err
	}
	return dataset, nil
}

func readSummaries(fsys fs.FS) ([]models.VideoSummary, error) {
	return readFixture[models.VideoSummary](fsys, data.VideosFile)
}

func readDetails(fsys fs.FS) ([]models.VideoDetail, error) {
	details, err := readFixture[models.VideoDetail](fsys, data.DetailsFile)
	if err != nil {
		return nil, err
	}
	for i := range details {
		if details[i].Comments == nil {
			details[i].Comments = []models.Comment{}
		}
	}
	return details, nil
}

func readFixture[T any](fsys fs.FS, name string) ([]T, error) {
	if fsys == nil {
		return nil, fmt.Errorf("fixture filesystem not configured")
	}
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var records []T
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}
