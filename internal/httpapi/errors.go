package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ragforge/ragcore/internal/domain"
)

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeJSON(w, status, errorResponse{Status: "error", Message: err.Error(), Code: code})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidQuery),
		errors.Is(err, domain.ErrInvalidCollection),
		errors.Is(err, domain.ErrInvalidResource),
		errors.Is(err, domain.ErrUnsupportedModel),
		errors.Is(err, domain.ErrChunkingURLUnhealthy):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrBackendUnavailable):
		return http.StatusInternalServerError, "backend_unavailable"
	case errors.Is(err, domain.ErrDimensionMismatch):
		return http.StatusInternalServerError, "dimension_mismatch"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
