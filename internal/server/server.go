package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"brainflix-api/internal/api"
	"brainflix-api/internal/observability/logging"
	"brainflix-api/internal/observability/metrics"
)

// Config describes the route table and middleware chain. Listening, TLS and
// graceful shutdown belong to serverutil.Run.
type Config struct {
	Addr string
	CORS CORSConfig
	// Security overrides the hardening headers; zero values use defaults.
	Security SecurityConfig
	// PublicDir is served under /public/. Empty disables static assets.
	PublicDir string
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
}

type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

func New(handler *api.Handler, cfg Config) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("api handler is required")
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.ComponentHealth)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/api", handler.Health)
	mux.HandleFunc("/api/health", handler.Health)
	mux.HandleFunc("/api/videos", handler.Videos)
	mux.HandleFunc("/api/videos/", handler.VideoByID)
	mux.HandleFunc("/api/", handler.NotFound)

	if dir := strings.TrimSpace(cfg.PublicDir); dir != "" {
		if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
			logger.Warn("public directory unavailable, static assets will 404", "dir", dir)
		}
		mux.Handle("/public/", http.StripPrefix("/public/", staticHandler(dir)))
	}

	mux.HandleFunc("/", rootHandler(handler))

	handlerChain := http.Handler(mux)
	handlerChain = securityHeadersMiddleware(cfg.Security, handlerChain)
	handlerChain = corsMiddleware(policy, logger, handlerChain)
	handlerChain = metricsMiddleware(recorder, handlerChain)
	handlerChain = recoveryMiddleware(logger, handlerChain)
	handlerChain = logging.RequestLogger(logging.RequestLoggerConfig{Logger: logger})(handlerChain)
	handlerChain = requestIDMiddleware(logger, handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return &Server{httpServer: httpServer, handler: handlerChain}, nil
}

// Handler returns the fully wrapped route table.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HTTPServer exposes the configured http.Server for serverutil.Run.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

func metricsMiddleware(recorder *metrics.Recorder, next http.Handler) http.Handler {
	return metrics.HTTPMiddleware(recorder, next)
}

// rootHandler answers the bare root with the health payload and everything
// else the mux did not match with a JSON 404.
func rootHandler(handler *api.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			handler.NotFound(w, r)
			return
		}
		handler.Health(w, r)
	}
}

// staticHandler serves files from dir without directory listings.
func staticHandler(dir string) http.Handler {
	fileServer := http.FileServer(noListingFS{http.Dir(dir)})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			writeMiddlewareError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

type noListingFS struct {
	fs http.FileSystem
}

// Open hides directories that have no index.html.
func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		index, err := n.fs.Open(strings.TrimSuffix(name, "/") + "/index.html")
		if err != nil {
			f.Close()
			return nil, os.ErrNotExist
		}
		index.Close()
	}
	return f, nil
}
