package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"brainflix-api/internal/models"
	"brainflix-api/internal/observability/logging"
	"brainflix-api/internal/observability/metrics"
	"brainflix-api/internal/storage"
)

// ServiceName identifies the API in health responses.
const ServiceName = "brainflix-api"

type Handler struct {
	Store   storage.Repository
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	Now     func() time.Time
}

func NewHandler(store storage.Repository, logger *slog.Logger, recorder *metrics.Recorder) *Handler {
	return &Handler{Store: store, Logger: logger, Metrics: recorder, Now: time.Now}
}

type healthResponse struct {
	OK        bool   `json:"ok"`
	Service   string `json:"service"`
	Timestamp int64  `json:"timestamp"`
}

type createVideoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type createCommentRequest struct {
	Name    string `json:"name"`
	Comment string `json:"comment"`
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) metrics() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

func (h *Handler) logger(r *http.Request) *slog.Logger {
	logger := logging.LoggerFromContext(r.Context())
	if logger == nil {
		logger = h.Logger
	}
	if logger == nil {
		logger = slog.Default()
	}
	return logging.WithContext(r.Context(), logger)
}

// Health answers liveness probes. It never touches the datastore.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, "GET, HEAD")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		OK:        true,
		Service:   ServiceName,
		Timestamp: h.now().UnixMilli(),
	})
}

// ComponentHealth pings the datastore and reports 503 when it is unreachable.
func (h *Handler) ComponentHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, "GET, HEAD")
		return
	}
	components, status, code := h.componentHealth(r.Context())
	if code != http.StatusOK {
		h.logger(r).Warn("component health degraded", "components", components)
	}
	writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"components": components,
	})
}

// NotFound answers unknown API paths.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, errRouteNotFound)
}

func (h *Handler) Videos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.listVideos(w, r)
	case http.MethodPost:
		h.createVideo(w, r)
	default:
		methodNotAllowed(w, r, "GET, HEAD, POST")
	}
}

// VideoByID serves /api/videos/{id} and /api/videos/{id}/comments.
func (h *Handler) VideoByID(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/videos/"), "/")
	if trimmed == "" {
		h.Videos(w, r)
		return
	}
	parts := strings.Split(trimmed, "/")
	id := parts[0]
	r = r.WithContext(logging.ContextWithVideoID(r.Context(), id))

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			methodNotAllowed(w, r, "GET, HEAD")
			return
		}
		h.getVideo(w, r, id)
	case len(parts) == 2 && parts[1] == "comments":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, "POST")
			return
		}
		h.addComment(w, r, id)
	default:
		h.NotFound(w, r)
	}
}

func (h *Handler) listVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.Store.ListVideos(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if videos == nil {
		videos = []models.VideoSummary{}
	}
	writeJSON(w, http.StatusOK, videos)
}

func (h *Handler) createVideo(w http.ResponseWriter, r *http.Request) {
	var req createVideoRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		writeError(w, status, err)
		return
	}

	video, err := h.Store.CreateVideo(r.Context(), storage.CreateVideoParams{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.metrics().VideoCreated()
	h.logger(r).Info("video created", "video_id", video.ID)
	writeJSON(w, http.StatusCreated, video)
}

func (h *Handler) getVideo(w http.ResponseWriter, r *http.Request, id string) {
	video, err := h.Store.GetVideo(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if video.Comments == nil {
		video.Comments = []models.Comment{}
	}
	writeJSON(w, http.StatusOK, video)
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request, id string) {
	var req createCommentRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		writeError(w, status, err)
		return
	}

	comment, err := h.Store.AddComment(r.Context(), id, storage.CreateCommentParams{
		Name:    req.Name,
		Comment: req.Comment,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.metrics().CommentCreated()
	h.logger(r).Info("comment added", "comment_id", comment.ID)
	writeJSON(w, http.StatusCreated, comment)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, errVideoNotFound)
	case storage.IsValidation(err):
		writeError(w, http.StatusBadRequest, err)
	default:
		h.logger(r).Error("datastore request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
	}
}
