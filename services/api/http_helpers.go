package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"activityaudit/services/activities"
	"activityaudit/services/audit"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// respondServiceError maps domain errors to status codes. Storage failures
// are logged and reported with a generic message.
func (a *API) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, audit.ErrValidation),
		errors.Is(err, activities.ErrInvalidEmail),
		errors.Is(err, activities.ErrAlreadySignedUp),
		errors.Is(err, activities.ErrActivityFull),
		errors.Is(err, activities.ErrNotSignedUp):
		respondError(w, http.StatusBadRequest, err)
	case errors.Is(err, audit.ErrForbidden):
		respondError(w, http.StatusForbidden, audit.ErrForbidden)
	case errors.Is(err, activities.ErrActivityNotFound):
		respondError(w, http.StatusNotFound, err)
	case errors.Is(err, audit.ErrSweepInProgress),
		errors.Is(err, audit.ErrRetentionDisabled):
		respondError(w, http.StatusConflict, err)
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, errors.New("request timed out"))
	default:
		a.logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		respondError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 5*time.Second)
}
