package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/elibrary/elibrary-go/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorResponse(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// writeServiceError is the single place service errors become HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNameRequired),
		errors.Is(err, service.ErrEmailRequired),
		errors.Is(err, service.ErrPasswordRequired),
		errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrWrongPassword),
		errors.Is(err, service.ErrCoverImageRequired),
		errors.Is(err, service.ErrBookFileRequired),
		errors.Is(err, service.ErrBadCoverExtension):
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotBookOwner):
		writeJSON(w, http.StatusForbidden, errorResponse(err.Error()))
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrBookNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrUploadFailed),
		errors.Is(err, service.ErrAssetDeleteFailed):
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
	}
}
