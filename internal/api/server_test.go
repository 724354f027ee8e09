package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/ruleset-engine/internal/config"
	"github.com/terra-clan/ruleset-engine/internal/grading"
	"github.com/terra-clan/ruleset-engine/internal/health"
	"github.com/terra-clan/ruleset-engine/internal/placement"
	"github.com/terra-clan/ruleset-engine/internal/registry"
	"github.com/terra-clan/ruleset-engine/internal/rewards"
	"github.com/terra-clan/ruleset-engine/internal/rules"
	"github.com/terra-clan/ruleset-engine/internal/scoring"
	"github.com/terra-clan/ruleset-engine/internal/storage"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func newTestServer(t *testing.T) (*httptest.Server, *health.Registry) {
	t.Helper()
	reg := registry.New(storage.NewMemoryRepository(), registry.Options{})
	checks := health.NewRegistry()
	srv := NewServer(config.ServerConfig{}, Dependencies{
		Registry:  reg,
		Scoring:   scoring.NewResolver(reg),
		Rewards:   rewards.NewResolver(reg),
		Grader:    grading.NewGrader(reg),
		Placement: placement.NewService(reg, placement.NewEngine(time.Hour), placement.NewMemoryStore()),
		Health:    checks,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, checks
}

func call(t *testing.T, ts *httptest.Server, method, path, body string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func dataField(t *testing.T, env envelope, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

const rewardsBody = `{"id":"rw-1","name":"season","rewards":{"rewards":[{"rank":1,"coins":100000},{"rank":2,"coins":500}]}}`

const scoringBody = `{"id":"sc-1","name":"small","scoring":{"tiers":[
	{"min_participants":1,"max_participants":10,"rank_points":[{"rank":1,"points":10},{"rank":2,"points":5}]}]}}`

const placementBody = `{"id":"pl-1","name":"entry","placement":{"cost":50,
	"initial_questions":[{"level":2,"count":8}],
	"branches":[
		{"name":"weak","condition":{"correct_range":[0,0],"from_phase":"initial"},"next_phase":"final","next_questions":[{"level":1,"count":14}]},
		{"name":"strong","condition":{"correct_range":[7,8],"from_phase":"initial"},"next_phase":"final","next_questions":[{"level":3,"count":14}]},
		{"name":"done","condition":{"correct_range":[0,14],"from_phase":"final"},"result_level":2}
	]}}`

func createAndActivate(t *testing.T, ts *httptest.Server, domain, body, id string) {
	t.Helper()
	status, env := call(t, ts, http.MethodPost, "/api/v1/rulesets/"+domain, body)
	require.Equal(t, http.StatusCreated, status, "create: %+v", env.Error)
	status, env = call(t, ts, http.MethodPost, "/api/v1/rulesets/"+domain+"/"+id+"/activate", "")
	require.Equal(t, http.StatusOK, status, "activate: %+v", env.Error)
}

func TestHealthAndReady(t *testing.T) {
	ts, checks := newTestServer(t)

	status, env := call(t, ts, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	status, _ = call(t, ts, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, status)

	checks.Register("postgres", health.CheckerFunc(func(context.Context) error { return errors.New("down") }))
	status, env = call(t, ts, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_ready", env.Error.Code)
	assert.Contains(t, string(env.Error.Details), "postgres")
}

func TestRuleSetLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	status, env := call(t, ts, http.MethodGet, "/api/v1/rulesets/rewards/active", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "not_configured", env.Error.Code)

	createAndActivate(t, ts, "rewards", rewardsBody, "rw-1")

	status, env = call(t, ts, http.MethodGet, "/api/v1/rulesets/rewards/active", "")
	require.Equal(t, http.StatusOK, status)
	var active struct {
		ID       string `json:"id"`
		IsActive bool   `json:"is_active"`
		Version  int    `json:"version"`
	}
	dataField(t, env, &active)
	assert.Equal(t, "rw-1", active.ID)
	assert.True(t, active.IsActive)

	status, env = call(t, ts, http.MethodPut, "/api/v1/rulesets/rewards/rw-1",
		`{"name":"season v2","rewards":{"rewards":[{"rank":1,"coins":1}]}}`)
	require.Equal(t, http.StatusOK, status)
	dataField(t, env, &active)
	assert.Equal(t, 2, active.Version)
	assert.True(t, active.IsActive)

	status, env = call(t, ts, http.MethodDelete, "/api/v1/rulesets/rewards/rw-1", "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "activation_conflict", env.Error.Code)

	status, env = call(t, ts, http.MethodGet, "/api/v1/rulesets/rewards", "")
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Total int `json:"total"`
	}
	dataField(t, env, &list)
	assert.Equal(t, 1, list.Total)

	status, env = call(t, ts, http.MethodGet, "/api/v1/rulesets/status", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"state":"configured"`)
	assert.Contains(t, string(env.Data), `"state":"unconfigured"`)
}

func TestRuleSetErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	status, env := call(t, ts, http.MethodGet, "/api/v1/rulesets/bonus", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_domain", env.Error.Code)

	status, env = call(t, ts, http.MethodPost, "/api/v1/rulesets/rewards", `{"name":"bad","rewards":{"rewards":[{"rank":0,"coins":-1}]}}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.Contains(t, string(env.Error.Details), "rewards.rewards[0].coins")

	status, env = call(t, ts, http.MethodPost, "/api/v1/rulesets/rewards", `{"name":"x","domain":"scoring"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "domain_mismatch", env.Error.Code)

	status, env = call(t, ts, http.MethodPost, "/api/v1/rulesets/rewards", `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", env.Error.Code)

	status, env = call(t, ts, http.MethodGet, "/api/v1/rulesets/rewards/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Error.Code)

	status, env = call(t, ts, http.MethodPost, "/api/v1/rulesets/rewards/missing/activate", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, ts, http.MethodPost, "/api/v1/rulesets/rewards", rewardsBody)
	require.Equal(t, http.StatusCreated, status)
	status, env = call(t, ts, http.MethodPost, "/api/v1/rulesets/rewards", rewardsBody)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_exists", env.Error.Code)

	status, env = call(t, ts, http.MethodGet, "/api/v1/rulesets/rewards/active?as_of=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", env.Error.Code)
}

func TestResolveAndGrade(t *testing.T) {
	ts, _ := newTestServer(t)
	createAndActivate(t, ts, "scoring", scoringBody, "sc-1")
	createAndActivate(t, ts, "rewards", rewardsBody, "rw-1")

	status, env := call(t, ts, http.MethodPost, "/api/v1/scoring/resolve", `{"participant_count":5,"rank":1}`)
	require.Equal(t, http.StatusOK, status)
	var points scoring.Result
	dataField(t, env, &points)
	assert.Equal(t, 10, points.Points)
	assert.Equal(t, "sc-1", points.RuleSetID)

	status, env = call(t, ts, http.MethodPost, "/api/v1/scoring/resolve", `{"participant_count":50,"rank":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "no_matching_tier", env.Error.Code)

	status, env = call(t, ts, http.MethodPost, "/api/v1/rewards/resolve", `{"rank":5}`)
	require.Equal(t, http.StatusOK, status)
	var coins rewards.Result
	dataField(t, env, &coins)
	assert.Equal(t, 0, coins.Coins)
	assert.False(t, coins.Rewarded)

	status, env = call(t, ts, http.MethodPost, "/api/v1/competitions/grade",
		`{"standings":[{"participant_id":"a","rank":1},{"participant_id":"b","rank":2}]}`)
	require.Equal(t, http.StatusOK, status)
	var report grading.Report
	dataField(t, env, &report)
	require.Len(t, report.Awards, 2)
	assert.Equal(t, 10, report.Awards[0].Points)
	assert.Equal(t, 100000, report.Awards[0].Coins)
	assert.Equal(t, 5, report.Awards[1].Points)
	assert.Equal(t, 500, report.Awards[1].Coins)

	status, env = call(t, ts, http.MethodPost, "/api/v1/competitions/grade", `{"standings":[]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestPlacementFlow(t *testing.T) {
	ts, _ := newTestServer(t)

	status, env := call(t, ts, http.MethodPost, "/api/v1/placement/sessions", `{"candidate_id":"c-1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "not_configured", env.Error.Code)

	createAndActivate(t, ts, "placement", placementBody, "pl-1")

	status, env = call(t, ts, http.MethodPost, "/api/v1/placement/sessions", `{"candidate_id":"c-1"}`)
	require.Equal(t, http.StatusCreated, status)
	var session placement.Session
	dataField(t, env, &session)
	assert.Equal(t, 50, session.Cost)

	path := "/api/v1/placement/sessions/" + session.ID

	status, env = call(t, ts, http.MethodPost, path+"/advance", `{"phase":"initial"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", env.Error.Code)

	status, env = call(t, ts, http.MethodPost, path+"/advance", `{"phase":"initial","correct_count":0}`)
	require.Equal(t, http.StatusOK, status)
	var adv advanceResponse
	dataField(t, env, &adv)
	assert.Equal(t, placement.OutcomeContinuation, adv.Outcome.Kind)
	assert.Equal(t, 14, adv.Outcome.Questions[0].Count)

	status, env = call(t, ts, http.MethodPost, path+"/advance", `{"phase":"initial","correct_count":5}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "phase_conflict", env.Error.Code)

	status, env = call(t, ts, http.MethodPost, path+"/advance", `{"phase":"final","correct_count":20}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_correct_count", env.Error.Code)

	status, env = call(t, ts, http.MethodPost, path+"/advance", `{"phase":"final","correct_count":11}`)
	require.Equal(t, http.StatusOK, status)
	dataField(t, env, &adv)
	assert.Equal(t, placement.OutcomeTerminal, adv.Outcome.Kind)
	assert.Equal(t, placement.StatusTerminated, adv.Session.Status)

	status, env = call(t, ts, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, status)

	status, env = call(t, ts, http.MethodGet, "/api/v1/placement/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "session_not_found", env.Error.Code)
}

func TestPlacementNoMatchingBranch(t *testing.T) {
	ts, _ := newTestServer(t)
	createAndActivate(t, ts, "placement", placementBody, "pl-1")

	_, env := call(t, ts, http.MethodPost, "/api/v1/placement/sessions", `{"candidate_id":"c-1"}`)
	var session placement.Session
	dataField(t, env, &session)

	status, env := call(t, ts, http.MethodPost, "/api/v1/placement/sessions/"+session.ID+"/advance", `{"phase":"initial","correct_count":4}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "no_matching_branch", env.Error.Code)
}

func TestPlacementWebsocket(t *testing.T) {
	ts, _ := newTestServer(t)
	createAndActivate(t, ts, "placement", placementBody, "pl-1")

	_, env := call(t, ts, http.MethodPost, "/api/v1/placement/sessions", `{"candidate_id":"c-ws"}`)
	var session placement.Session
	dataField(t, env, &session)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/placement/sessions/" + session.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() PlacementMessage {
		var msg PlacementMessage
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}
	correct := func(n int) *int { return &n }

	msg := read()
	assert.Equal(t, "connected", msg.Type)
	assert.Equal(t, session.ID, msg.Session.ID)

	require.NoError(t, conn.WriteJSON(PlacementMessage{Type: "advance", Phase: "initial"}))
	msg = read()
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "validation_error", msg.Code)

	require.NoError(t, conn.WriteJSON(PlacementMessage{Type: "advance", Phase: "initial", CorrectCount: correct(8)}))
	msg = read()
	assert.Equal(t, "outcome", msg.Type)
	assert.Equal(t, placement.OutcomeContinuation, msg.Outcome.Kind)

	require.NoError(t, conn.WriteJSON(PlacementMessage{Type: "state"}))
	msg = read()
	assert.Equal(t, "state", msg.Type)
	assert.EqualValues(t, "final", msg.Session.CurrentPhase)

	require.NoError(t, conn.WriteJSON(PlacementMessage{Type: "advance", Phase: "final", CorrectCount: correct(3)}))
	msg = read()
	assert.Equal(t, "outcome", msg.Type)
	assert.Equal(t, placement.OutcomeTerminal, msg.Outcome.Kind)
	msg = read()
	assert.Equal(t, "finished", msg.Type)
}

func TestPlacementWebsocket_UnknownSession(t *testing.T) {
	ts, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/placement/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestErrorStatus(t *testing.T) {
	status, code := errorStatus(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", code)

	status, code = errorStatus(placement.ErrSessionClosed)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "session_closed", code)

	status, code = errorStatus(fmt.Errorf("failed to create rule set: %w", rules.ErrAlreadyExists))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_exists", code)
}
