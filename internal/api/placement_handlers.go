package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/ruleset-engine/internal/models"
	"github.com/terra-clan/ruleset-engine/internal/placement"
	"github.com/terra-clan/ruleset-engine/internal/rules"
)

// advanceResponse carries the session after an advance and, on success, the outcome
type advanceResponse struct {
	Session *placement.Session `json:"session"`
	Outcome *placement.Outcome `json:"outcome,omitempty"`
}

func (s *Server) handleStartPlacement(w http.ResponseWriter, r *http.Request) {
	var req models.StartPlacementRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := s.placement.Start(r.Context(), req.CandidateID, s.asOf(req.AsOf))
	if err != nil {
		respondFailure(w, r, "start placement session", err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleGetPlacement(w http.ResponseWriter, r *http.Request) {
	session, err := s.placement.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondFailure(w, r, "get placement session", err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleAdvancePlacement(w http.ResponseWriter, r *http.Request) {
	var req models.AdvancePlacementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CorrectCount == nil {
		verr := &rules.ValidationError{}
		verr.Add("correct_count", "is required")
		respondFailure(w, r, "advance placement session", verr)
		return
	}

	session, outcome, err := s.placement.Advance(r.Context(), chi.URLParam(r, "id"), req.Phase, *req.CorrectCount)
	if err != nil {
		respondFailure(w, r, "advance placement session", err)
		return
	}

	respondJSON(w, http.StatusOK, advanceResponse{Session: session, Outcome: outcome})
}
