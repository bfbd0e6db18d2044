package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory counters and gauges for HTTP requests, video
// and comment writes, seeded fixture records, and datastore health.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	fixtureRecords  map[string]uint64
	healthValue     map[string]float64
	healthState     map[string]string
	videosCreated   atomic.Uint64
	commentsCreated atomic.Uint64
}

var (
	defaultMu       sync.RWMutex
	defaultRecorder = New()
)

// New constructs an empty Recorder ready for use.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		fixtureRecords:  make(map[string]uint64),
		healthValue:     make(map[string]float64),
		healthState:     make(map[string]string),
	}
}

// Default returns the process-wide Recorder used by the package helpers.
func Default() *Recorder {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRecorder
}

// SetDefault replaces the process-wide Recorder. A nil recorder is ignored.
func SetDefault(recorder *Recorder) {
	if recorder == nil {
		return
	}
	defaultMu.Lock()
	defaultRecorder = recorder
	defaultMu.Unlock()
}

// ObserveRequest accumulates request count and cumulative duration by HTTP
// method, normalized path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

func (r *Recorder) VideoCreated() {
	r.videosCreated.Add(1)
}

func (r *Recorder) CommentCreated() {
	r.commentsCreated.Add(1)
}

// FixturesLoaded records how many records were seeded per collection. Later
// calls overwrite earlier values.
func (r *Recorder) FixturesLoaded(summaries, details, comments int) {
	r.mu.Lock()
	r.fixtureRecords["summaries"] = uint64(nonNegative(summaries))
	r.fixtureRecords["details"] = uint64(nonNegative(details))
	r.fixtureRecords["comments"] = uint64(nonNegative(comments))
	r.mu.Unlock()
}

// SetComponentHealth maps a component status to a numeric gauge value
// (1=ok, -1 otherwise) and stores both for export.
func (r *Recorder) SetComponentHealth(component, status string) {
	normalizedComponent := normalizeName(component)
	normalizedStatus := normalizeName(status)
	value := -1.0
	if normalizedStatus == "ok" {
		value = 1
	}
	r.mu.Lock()
	r.healthValue[normalizedComponent] = value
	r.healthState[normalizedComponent] = normalizedStatus
	r.mu.Unlock()
}

// VideosCreated returns the number of videos created since start.
func (r *Recorder) VideosCreated() uint64 {
	return r.videosCreated.Load()
}

// CommentsCreated returns the number of comments created since start.
func (r *Recorder) CommentsCreated() uint64 {
	return r.commentsCreated.Load()
}

// Reset clears all counters and gauges. It is intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.fixtureRecords = make(map[string]uint64)
	r.healthValue = make(map[string]float64)
	r.healthState = make(map[string]string)
	r.videosCreated.Store(0)
	r.commentsCreated.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting label
// sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	collections := sortedKeys(r.fixtureRecords)
	components := sortedKeys(r.healthValue)

	fmt.Fprintln(w, "# HELP brainflix_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE brainflix_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "brainflix_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP brainflix_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE brainflix_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "brainflix_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP brainflix_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE brainflix_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "brainflix_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP brainflix_videos_created_total Videos created through the API")
	fmt.Fprintln(w, "# TYPE brainflix_videos_created_total counter")
	fmt.Fprintf(w, "brainflix_videos_created_total %d\n", r.videosCreated.Load())

	fmt.Fprintln(w, "# HELP brainflix_comments_created_total Comments created through the API")
	fmt.Fprintln(w, "# TYPE brainflix_comments_created_total counter")
	fmt.Fprintf(w, "brainflix_comments_created_total %d\n", r.commentsCreated.Load())

	fmt.Fprintln(w, "# HELP brainflix_fixture_records_loaded Records seeded from fixture files by collection")
	fmt.Fprintln(w, "# TYPE brainflix_fixture_records_loaded gauge")
	for _, collection := range collections {
		fmt.Fprintf(w, "brainflix_fixture_records_loaded{collection=\"%s\"} %d\n", collection, r.fixtureRecords[collection])
	}

	fmt.Fprintln(w, "# HELP brainflix_component_health Health status reported by backing components (1=ok,-1=degraded)")
	fmt.Fprintln(w, "# TYPE brainflix_component_health gauge")
	for _, component := range components {
		fmt.Fprintf(w, "brainflix_component_health{component=\"%s\",status=\"%s\"} %f\n", component, r.healthState[component], r.healthValue[component])
	}
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// normalizePath collapses identifiers to ":id" and static asset paths to
// "/public/*" so label cardinality stays bounded.
func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	if path == "/public" || strings.HasPrefix(path, "/public/") {
		return "/public/*"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if uuid.Validate(segment) == nil {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// ObserveRequest records a request on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	Default().ObserveRequest(method, path, status, duration)
}

// VideoCreated increments the created video counter on the default recorder.
func VideoCreated() {
	Default().VideoCreated()
}

// CommentCreated increments the created comment counter on the default recorder.
func CommentCreated() {
	Default().CommentCreated()
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return Default().Handler()
}
