package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"brainflix-api/internal/observability/metrics"
)

// recoveryMiddleware turns a handler panic into a logged 500. If the handler
// already started the response only the log entry is written.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rr := metrics.NewResponseRecorder(w)
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}
			if reqLogger := loggingWithRequest(logger, r); reqLogger != nil {
				reqLogger.Error("panic serving request", "panic", recovered, "stack", string(debug.Stack()))
			}
			if !rr.WroteHeader() {
				writeMiddlewareError(rr, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(rr, r)
	})
}
