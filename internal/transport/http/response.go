package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"doc-intake-service/internal/logger"
	"doc-intake-service/internal/repository/postgresql"
	"doc-intake-service/internal/retention"
	"doc-intake-service/internal/service"
	"doc-intake-service/internal/vector"
)

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiError{Message: msg})
}

// writeServiceErr maps domain errors to status codes. Unknown errors are
// logged and answered with a generic 500 so internals never reach the client.
func writeServiceErr(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, postgresql.ErrNotFound), errors.Is(err, vector.ErrPointNotFound):
		writeErr(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrJobFailed),
		errors.Is(err, retention.ErrUnknownTask),
		errors.Is(err, vector.ErrEmptyText):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotReady):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrFileTooLarge):
		writeErr(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrUnsupportedType):
		writeErr(w, http.StatusUnsupportedMediaType, err.Error())
	default:
		log.Error("request failed", "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}
