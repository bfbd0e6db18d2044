package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"brainflix-api/data"
	"brainflix-api/internal/api"
	"brainflix-api/internal/models"
	"brainflix-api/internal/observability/metrics"
	"brainflix-api/internal/storage"
)

var fixedNow = time.Date(2024, time.May, 4, 10, 30, 0, 0, time.UTC)

func newTestHandler(t *testing.T) (*api.Handler, *storage.MemoryRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryRepository(storage.WithClock(func() time.Time { return fixedNow }))
	if _, err := store.Seed(context.Background(), storage.LoadFixtures(data.Fixtures(), logger), storage.SeedReplace); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	handler := api.NewHandler(store, logger, metrics.New())
	handler.Now = func() time.Time { return fixedNow }
	return handler, store
}

func newPublicDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "images"), 0o755); err != nil {
		t.Fatalf("mkdir images: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "images", "image0.jpg"), []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return dir
}

func newTestServer(t *testing.T, logs *bytes.Buffer) (*Server, *metrics.Recorder) {
	t.Helper()
	handler, _ := newTestHandler(t)
	var logger *slog.Logger
	if logs != nil {
		logger = slog.New(slog.NewJSONHandler(logs, nil))
	} else {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	recorder := metrics.New()
	srv, err := New(handler, Config{
		Addr:      "127.0.0.1:0",
		PublicDir: newPublicDir(t),
		Logger:    logger,
		Metrics:   recorder,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return srv, recorder
}

func serve(srv *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewReturnsErrorWhenHandlerNil(t *testing.T) {
	t.Parallel()

	srv, err := New(nil, Config{})
	if err == nil {
		t.Fatalf("expected error when handler is nil, got server: %#v", srv)
	}
}

func TestNewRejectsMalformedCORSOrigin(t *testing.T) {
	handler, _ := newTestHandler(t)
	if _, err := New(handler, Config{CORS: CORSConfig{AllowedOrigins: []string{"::bad"}}}); err == nil {
		t.Fatal("expected CORS configuration error")
	}
}

func TestServerRoutes(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, tc := range []struct {
		name   string
		method string
		path   string
		status int
	}{
		{name: "root health", method: http.MethodGet, path: "/", status: http.StatusOK},
		{name: "root head", method: http.MethodHead, path: "/", status: http.StatusOK},
		{name: "api health", method: http.MethodGet, path: "/api", status: http.StatusOK},
		{name: "api health alias", method: http.MethodGet, path: "/api/health", status: http.StatusOK},
		{name: "component health", method: http.MethodGet, path: "/healthz", status: http.StatusOK},
		{name: "list videos", method: http.MethodGet, path: "/api/videos", status: http.StatusOK},
		{name: "head videos", method: http.MethodHead, path: "/api/videos", status: http.StatusOK},
		{name: "list videos trailing slash", method: http.MethodGet, path: "/api/videos/", status: http.StatusOK},
		{name: "video detail", method: http.MethodGet, path: "/api/videos/84e96018-4022-434e-80bf-000ce4cd12b8", status: http.StatusOK},
		{name: "head video detail", method: http.MethodHead, path: "/api/videos/84e96018-4022-434e-80bf-000ce4cd12b8", status: http.StatusOK},
		{name: "unknown video", method: http.MethodGet, path: "/api/videos/nope", status: http.StatusNotFound},
		{name: "unknown api route", method: http.MethodGet, path: "/api/channels", status: http.StatusNotFound},
		{name: "unknown route", method: http.MethodGet, path: "/watch", status: http.StatusNotFound},
		{name: "delete videos", method: http.MethodDelete, path: "/api/videos", status: http.StatusMethodNotAllowed},
		{name: "post root", method: http.MethodPost, path: "/", status: http.StatusMethodNotAllowed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(srv, tc.method, tc.path, nil)
			if rec.Code != tc.status {
				t.Fatalf("%s %s: expected %d, got %d (%s)", tc.method, tc.path, tc.status, rec.Code, rec.Body.String())
			}
			if rec.Header().Get("X-Request-Id") == "" {
				t.Fatalf("%s %s: expected X-Request-Id header", tc.method, tc.path)
			}
			if tc.status >= http.StatusBadRequest {
				var payload map[string]string
				if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
					t.Fatalf("expected JSON error body, got %q", rec.Body.String())
				}
				if payload["error"] == "" {
					t.Fatalf("expected error message, got %v", payload)
				}
			}
		})
	}
}

func TestServerCreateVideoThenComment(t *testing.T) {
	srv, recorder := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/api/videos", "application/json", strings.NewReader(`{"title":"Cats","description":"Cute"}`))
	if err != nil {
		t.Fatalf("create video: %v", err)
	}
	var created models.VideoDetail
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created video: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/api/videos/"+created.ID+"/comments", "application/json", strings.NewReader(`{"comment":"Nice!"}`))
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for comment, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/videos/" + created.ID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	var detail models.VideoDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	resp.Body.Close()
	if len(detail.Comments) != 1 || detail.Comments[0].Comment != "Nice!" || detail.Comments[0].Name != storage.DefaultCommentAuthor {
		t.Fatalf("unexpected comments: %+v", detail.Comments)
	}

	if recorder.VideosCreated() != 1 || recorder.CommentsCreated() != 1 {
		t.Fatalf("expected counters 1/1, got %d/%d", recorder.VideosCreated(), recorder.CommentsCreated())
	}
}

func TestServerServesPublicFiles(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := serve(srv, http.MethodGet, "/public/images/image0.jpg", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for static file, got %d", rec.Code)
	}
	if rec.Body.String() != "jpeg-bytes" {
		t.Fatalf("unexpected static body %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Fatalf("expected image/jpeg content type, got %q", got)
	}

	for _, path := range []string{"/public/", "/public/images/", "/public/images", "/public/missing.png"} {
		if rec := serve(srv, http.MethodGet, path, nil); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for %s, got %d", path, rec.Code)
		}
	}

	rec = serve(srv, http.MethodPost, "/public/images/image0.jpg", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST to static file, got %d", rec.Code)
	}
	if got := rec.Header().Get("Allow"); got != "GET, HEAD" {
		t.Fatalf("unexpected Allow header %q", got)
	}
}

func TestServerWithoutPublicDirReturnsNotFound(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv, err := New(handler, Config{Metrics: metrics.New(), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if rec := serve(srv, http.MethodGet, "/public/images/image0.jpg", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServerRecordsMetrics(t *testing.T) {
	srv, recorder := newTestServer(t, nil)

	serve(srv, http.MethodGet, "/api/videos", nil)
	serve(srv, http.MethodGet, "/api/videos/84e96018-4022-434e-80bf-000ce4cd12b8", nil)
	serve(srv, http.MethodGet, "/public/images/image0.jpg", nil)

	var buf bytes.Buffer
	recorder.Write(&buf)
	output := buf.String()
	for _, want := range []string{
		`brainflix_http_requests_total{method="GET",path="/api/videos",status="200"} 1`,
		`brainflix_http_requests_total{method="GET",path="/api/videos/:id",status="200"} 1`,
		`brainflix_http_requests_total{method="GET",path="/public/*",status="200"} 1`,
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected metrics output to contain %q\n%s", want, output)
		}
	}

	rec := serve(srv, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "brainflix_http_requests_total") {
		t.Fatalf("expected metrics endpoint to expose counters, got %d", rec.Code)
	}
}

func TestServerLogsCompletedRequests(t *testing.T) {
	var logs bytes.Buffer
	srv, _ := newTestServer(t, &logs)

	req := httptest.NewRequest(http.MethodGet, "/api/videos/nope", nil)
	req.Header.Set("X-Request-Id", "trace-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "trace-123" {
		t.Fatalf("expected request id echo, got %q", got)
	}

	var entry map[string]any
	found := false
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		entry = nil
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if entry["msg"] == "request completed" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected request completed log, got %s", logs.String())
	}
	if entry["request_id"] != "trace-123" || entry["level"] != "WARN" {
		t.Fatalf("unexpected request log %v", entry)
	}
}

func TestRecoveryMiddlewareReturnsJSON500(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	handler := recoveryMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/videos", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["error"] != "internal server error" {
		t.Fatalf("unexpected error payload %v", payload)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatal("panic value leaked to the client")
	}
	if !strings.Contains(logs.String(), "panic serving request") {
		t.Fatalf("expected panic to be logged, got %s", logs.String())
	}
}

func TestRecoveryMiddlewareKeepsStartedResponse(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := recoveryMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected original status to stand, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected no error body after headers were sent, got %q", rec.Body.String())
	}
}

func TestExtractClientIP(t *testing.T) {
	for _, tc := range []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "remote addr", remote: "10.0.0.1:5000", want: "10.0.0.1"},
		{name: "forwarded for", headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, remote: "10.0.0.1:5000", want: "203.0.113.9"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": " 198.51.100.7 "}, remote: "10.0.0.1:5000", want: "198.51.100.7"},
		{name: "bare remote", remote: "unix", want: "unix"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for key, value := range tc.headers {
				req.Header.Set(key, value)
			}
			if got := extractClientIP(req); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
