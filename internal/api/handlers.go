package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/ruleset-engine/internal/grading"
	"github.com/terra-clan/ruleset-engine/internal/models"
	"github.com/terra-clan/ruleset-engine/internal/placement"
	"github.com/terra-clan/ruleset-engine/internal/rules"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondErrorDetails(w, status, code, message, nil)
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// errorStatus maps a domain error to an HTTP status and error code
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, rules.ErrInvalid), errors.Is(err, grading.ErrEmptyStandings):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, placement.ErrInvalidCorrectCount):
		return http.StatusBadRequest, "invalid_correct_count"
	case errors.Is(err, rules.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, placement.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, rules.ErrActivationConflict):
		return http.StatusConflict, "activation_conflict"
	case errors.Is(err, rules.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, placement.ErrPhaseConflict):
		return http.StatusConflict, "phase_conflict"
	case errors.Is(err, placement.ErrSessionClosed):
		return http.StatusConflict, "session_closed"
	case errors.Is(err, placement.ErrUpdateContention):
		return http.StatusConflict, "update_contention"
	case errors.Is(err, rules.ErrNoMatchingTier):
		return http.StatusUnprocessableEntity, "no_matching_tier"
	case errors.Is(err, rules.ErrNoMatchingBranch):
		return http.StatusUnprocessableEntity, "no_matching_branch"
	case errors.Is(err, rules.ErrNotConfigured):
		return http.StatusServiceUnavailable, "not_configured"
	}
	return http.StatusInternalServerError, "internal_error"
}

// respondFailure writes err in the error envelope. Internal errors are logged
// and their message is not exposed.
func respondFailure(w http.ResponseWriter, r *http.Request, action string, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "action", action, "error", err, "path", r.URL.Path)
		respondError(w, status, code, "failed to "+action)
		return
	}

	var verr *rules.ValidationError
	if errors.As(err, &verr) {
		respondErrorDetails(w, status, code, "validation failed", verr.Problems)
		return
	}
	respondError(w, status, code, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// domainParam reads and checks the {domain} URL parameter
func domainParam(w http.ResponseWriter, r *http.Request) (models.Domain, bool) {
	raw := chi.URLParam(r, "domain")
	domain, ok := models.ParseDomain(raw)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_domain", fmt.Sprintf("unknown domain %q", raw))
		return "", false
	}
	return domain, true
}

func (s *Server) asOf(t *time.Time) time.Time {
	if t == nil || t.IsZero() {
		return s.now()
	}
	return *t
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	results := s.health.CheckAll(r.Context())

	failed := make(map[string]string)
	for name, err := range results {
		if err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for name := range failed {
			names = append(names, name)
		}
		sort.Strings(names)
		slog.Warn("readiness check failed", "dependencies", names)
		respondErrorDetails(w, http.StatusServiceUnavailable, "not_ready", "service not ready", failed)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": s.health.List(),
	})
}
