package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

var (
	errInvalidBody   = errors.New("invalid JSON body")
	errBodyTooLarge  = errors.New("request body too large")
	errInternal      = errors.New("internal server error")
	errVideoNotFound = errors.New("Video not found")
	errRouteNotFound = errors.New("not found")
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// WriteError is an exported helper for returning JSON API errors.
func WriteError(w http.ResponseWriter, status int, err error) {
	writeError(w, status, err)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	writeError(w, http.StatusMethodNotAllowed, errors.New("method "+r.Method+" not allowed"))
}

// decodeJSON reads a single JSON value into dest. Unknown fields are
// ignored. An empty body leaves dest untouched so that field validation
// reports what is missing.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) (int, error) {
	if r.Body == nil {
		return 0, nil
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return 0, nil
		case errors.As(err, &tooLarge):
			return http.StatusRequestEntityTooLarge, errBodyTooLarge
		default:
			return http.StatusBadRequest, errInvalidBody
		}
	}
	return 0, nil
}
