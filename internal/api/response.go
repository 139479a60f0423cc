// internal/api/response.go
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	custom_errors "github-streak-manager/internal/errors"
)

type errorBody struct {
	Error string `json:"error"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorBody{Error: message})
}

// respondWithFailure maps err to a status code. Anything unrecognised is logged and
// reported as an internal error without leaking details.
func respondWithFailure(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		validationErr *custom_errors.ValidationError
		repoErr       *custom_errors.ErrInvalidRepoFormat
		tooManyErr    *custom_errors.ErrTooManyCommits
		credErr       *custom_errors.ErrMissingCredential
		upstreamErr   *custom_errors.ErrUpstream
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &repoErr), errors.As(err, &tooManyErr):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &credErr):
		respondWithError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &upstreamErr):
		logger.Warn("GitHub request failed", "op", upstreamErr.Op, "error", upstreamErr.Err)
		respondWithError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("Request failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
