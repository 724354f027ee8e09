package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/ruleset-engine/internal/models"
)

func (s *Server) handleListRuleSets(w http.ResponseWriter, r *http.Request) {
	domain, ok := domainParam(w, r)
	if !ok {
		return
	}

	sets, err := s.registry.List(r.Context(), domain)
	if err != nil {
		respondFailure(w, r, "list rule sets", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rule_sets": sets,
		"total":     len(sets),
	})
}

func (s *Server) handleCreateRuleSet(w http.ResponseWriter, r *http.Request) {
	domain, ok := domainParam(w, r)
	if !ok {
		return
	}

	var rs models.RuleSet
	if !decodeJSON(w, r, &rs) {
		return
	}
	if rs.Domain == "" {
		rs.Domain = domain
	}
	if rs.Domain != domain {
		respondError(w, http.StatusBadRequest, "domain_mismatch",
			fmt.Sprintf("body domain %q does not match path domain %q", rs.Domain, domain))
		return
	}

	created, err := s.registry.Create(r.Context(), &rs)
	if err != nil {
		respondFailure(w, r, "create rule set", err)
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetRuleSet(w http.ResponseWriter, r *http.Request) {
	domain, ok := domainParam(w, r)
	if !ok {
		return
	}

	rs, err := s.registry.Get(r.Context(), domain, chi.URLParam(r, "id"))
	if err != nil {
		respondFailure(w, r, "get rule set", err)
		return
	}

	respondJSON(w, http.StatusOK, rs)
}

func (s *Server) handleUpdateRuleSet(w http.ResponseWriter, r *http.Request) {
	domain, ok := domainParam(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var rs models.RuleSet
	if !decodeJSON(w, r, &rs) {
		return
	}
	if rs.Domain != "" && rs.Domain != domain {
		respondError(w, http.StatusBadRequest, "domain_mismatch", "the domain of a rule set cannot be changed")
		return
	}
	if rs.ID != "" && rs.ID != id {
		respondError(w, http.StatusBadRequest, "id_mismatch", "the id of a rule set cannot be changed")
		return
	}
	rs.Domain = domain
	rs.ID = id

	updated, err := s.registry.Update(r.Context(), &rs)
	if err != nil {
		respondFailure(w, r, "update rule set", err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRuleSet(w http.ResponseWriter, r *http.Request) {
	domain, ok := domainParam(w, r)
	if !ok {
		return
	}

	if err := s.registry.Delete(r.Context(), domain, chi.URLParam(r, "id")); err != nil {
		respondFailure(w, r, "delete rule set", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "rule set deleted",
	})
}

func (s *Server) handleActivateRuleSet(w http.ResponseWriter, r *http.Request) {
	domain, ok := domainParam(w, r)
	if !ok {
		return
	}

	rs, err := s.registry.Activate(r.Context(), domain, chi.URLParam(r, "id"))
	if err != nil {
		respondFailure(w, r, "activate rule set", err)
		return
	}

	respondJSON(w, http.StatusOK, rs)
}

func (s *Server) handleGetActiveRuleSet(w http.ResponseWriter, r *http.Request) {
	domain, ok := domainParam(w, r)
	if !ok {
		return
	}

	asOf := s.now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "as_of must be an RFC 3339 timestamp")
			return
		}
		asOf = t
	}

	rs, err := s.registry.ResolveActive(r.Context(), domain, asOf)
	if err != nil {
		respondFailure(w, r, "resolve active rule set", err)
		return
	}

	respondJSON(w, http.StatusOK, rs)
}

func (s *Server) handleRuleSetStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.registry.Audit(r.Context(), s.now())
	if err != nil {
		respondFailure(w, r, "audit rule sets", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"domains": statuses,
	})
}
