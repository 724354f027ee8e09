package api

import (
	"net/http"

	"github.com/terra-clan/ruleset-engine/internal/models"
)

func (s *Server) handleResolvePoints(w http.ResponseWriter, r *http.Request) {
	var req models.ResolvePointsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.scoring.ResolvePoints(r.Context(), req.ParticipantCount, req.Rank, s.asOf(req.AsOf))
	if err != nil {
		respondFailure(w, r, "resolve points", err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleResolveCoins(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveCoinsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.rewards.ResolveCoins(r.Context(), req.Rank, s.asOf(req.AsOf))
	if err != nil {
		respondFailure(w, r, "resolve coins", err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	var req models.GradeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := s.grader.Grade(r.Context(), req.Standings, s.asOf(req.AsOf))
	if err != nil {
		respondFailure(w, r, "grade competition", err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}
