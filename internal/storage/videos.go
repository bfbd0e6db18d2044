package storage

import (
	"strings"
	"time"

	"brainflix-api/internal/models"
)

// Defaults applied to client uploads, which only carry a title and description.
const (
	UploadChannel        = "You"
	UploadImage          = "/public/images/Upload-video-preview.jpg"
	UploadDuration       = "4:20"
	DefaultCommentAuthor = "You"
)

func validateCreateVideo(params CreateVideoParams) error {
	if strings.TrimSpace(params.Title) == "" || strings.TrimSpace(params.Description) == "" {
		return ValidationError{Message: "title and description are required"}
	}
	return nil
}

func validateCreateComment(params CreateCommentParams) error {
	if strings.TrimSpace(params.Comment) == "" {
		return ValidationError{Message: "comment is required"}
	}
	return nil
}

func (s settings) newVideo(params CreateVideoParams) models.VideoDetail {
	return models.VideoDetail{
		ID:          s.newID(),
		Title:       params.Title,
		Channel:     UploadChannel,
		Image:       UploadImage,
		Description: params.Description,
		Views:       "0",
		Likes:       "0",
		Duration:    UploadDuration,
		Video:       "",
		Timestamp:   unixMillis(s.clock()),
		Comments:    []models.Comment{},
	}
}

func (s settings) newComment(params CreateCommentParams) models.Comment {
	name := params.Name
	if strings.TrimSpace(name) == "" {
		name = DefaultCommentAuthor
	}
	return models.Comment{
		ID:        s.newID(),
		Name:      name,
		Comment:   params.Comment,
		Likes:     0,
		Timestamp: unixMillis(s.clock()),
	}
}

func unixMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
