// Package client is a Go SDK for the ruleset-engine HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/terra-clan/ruleset-engine/internal/grading"
	"github.com/terra-clan/ruleset-engine/internal/models"
	"github.com/terra-clan/ruleset-engine/internal/placement"
	"github.com/terra-clan/ruleset-engine/internal/registry"
	"github.com/terra-clan/ruleset-engine/internal/rewards"
	"github.com/terra-clan/ruleset-engine/internal/scoring"
)

// Client is a Go SDK for ruleset-engine API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new ruleset-engine client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a failed response in the API error envelope
type APIError struct {
	Status  int             `json:"-"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an *APIError with the given code
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// AdvanceResult is the answer to an advance call
type AdvanceResult struct {
	Session *placement.Session `json:"session"`
	Outcome *placement.Outcome `json:"outcome,omitempty"`
}

// ListRuleSets returns every rule set of a domain
func (c *Client) ListRuleSets(ctx context.Context, domain models.Domain) ([]*models.RuleSet, error) {
	var data struct {
		RuleSets []*models.RuleSet `json:"rule_sets"`
		Total    int               `json:"total"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/rulesets/"+url.PathEscape(string(domain)), nil, &data); err != nil {
		return nil, err
	}
	return data.RuleSets, nil
}

// CreateRuleSet stores a new, inactive rule set
func (c *Client) CreateRuleSet(ctx context.Context, rs *models.RuleSet) (*models.RuleSet, error) {
	var created models.RuleSet
	if err := c.call(ctx, http.MethodPost, "/api/v1/rulesets/"+url.PathEscape(string(rs.Domain)), rs, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetRuleSet retrieves a rule set by domain and ID
func (c *Client) GetRuleSet(ctx context.Context, domain models.Domain, id string) (*models.RuleSet, error) {
	var rs models.RuleSet
	if err := c.call(ctx, http.MethodGet, ruleSetPath(domain, id), nil, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// UpdateRuleSet replaces the definition of a rule set
func (c *Client) UpdateRuleSet(ctx context.Context, rs *models.RuleSet) (*models.RuleSet, error) {
	var updated models.RuleSet
	if err := c.call(ctx, http.MethodPut, ruleSetPath(rs.Domain, rs.ID), rs, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteRuleSet removes an inactive rule set
func (c *Client) DeleteRuleSet(ctx context.Context, domain models.Domain, id string) error {
	return c.call(ctx, http.MethodDelete, ruleSetPath(domain, id), nil, nil)
}

// ActivateRuleSet makes a rule set the active one of its domain
func (c *Client) ActivateRuleSet(ctx context.Context, domain models.Domain, id string) (*models.RuleSet, error) {
	var rs models.RuleSet
	if err := c.call(ctx, http.MethodPost, ruleSetPath(domain, id)+"/activate", nil, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// GetActiveRuleSet returns the rule set resolvable at asOf; a zero asOf means now
func (c *Client) GetActiveRuleSet(ctx context.Context, domain models.Domain, asOf time.Time) (*models.RuleSet, error) {
	path := "/api/v1/rulesets/" + url.PathEscape(string(domain)) + "/active"
	if !asOf.IsZero() {
		path += "?as_of=" + url.QueryEscape(asOf.Format(time.RFC3339))
	}

	var rs models.RuleSet
	if err := c.call(ctx, http.MethodGet, path, nil, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// RuleSetStatus reports the activation state of every domain
func (c *Client) RuleSetStatus(ctx context.Context) ([]registry.DomainStatus, error) {
	var data struct {
		Domains []registry.DomainStatus `json:"domains"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/rulesets/status", nil, &data); err != nil {
		return nil, err
	}
	return data.Domains, nil
}

// ResolvePoints returns the points for a rank
func (c *Client) ResolvePoints(ctx context.Context, req models.ResolvePointsRequest) (*scoring.Result, error) {
	var res scoring.Result
	if err := c.call(ctx, http.MethodPost, "/api/v1/scoring/resolve", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ResolveCoins returns the coins for a rank
func (c *Client) ResolveCoins(ctx context.Context, req models.ResolveCoinsRequest) (*rewards.Result, error) {
	var res rewards.Result
	if err := c.call(ctx, http.MethodPost, "/api/v1/rewards/resolve", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Grade grades a full competition
func (c *Client) Grade(ctx context.Context, req models.GradeRequest) (*grading.Report, error) {
	var report grading.Report
	if err := c.call(ctx, http.MethodPost, "/api/v1/competitions/grade", req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// StartPlacement opens a placement session
func (c *Client) StartPlacement(ctx context.Context, req models.StartPlacementRequest) (*placement.Session, error) {
	var session placement.Session
	if err := c.call(ctx, http.MethodPost, "/api/v1/placement/sessions", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetPlacement retrieves a placement session
func (c *Client) GetPlacement(ctx context.Context, id string) (*placement.Session, error) {
	var session placement.Session
	if err := c.call(ctx, http.MethodGet, "/api/v1/placement/sessions/"+url.PathEscape(id), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// AdvancePlacement reports the correct-answer count of a completed phase
func (c *Client) AdvancePlacement(ctx context.Context, id string, phase models.Phase, correctCount int) (*AdvanceResult, error) {
	req := models.AdvancePlacementRequest{Phase: phase, CorrectCount: &correctCount}
	var res AdvanceResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/placement/sessions/"+url.PathEscape(id)+"/advance", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

// Ready checks if the service and its dependencies are ready
func (c *Client) Ready(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/ready", nil, nil)
}

func ruleSetPath(domain models.Domain, id string) string {
	return "/api/v1/rulesets/" + url.PathEscape(string(domain)) + "/" + url.PathEscape(id)
}

// call performs a request and decodes the envelope's data into out
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	status, respBody, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *APIError       `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		if status >= 400 {
			return &APIError{Status: status, Code: "http_error", Message: string(respBody)}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success || status >= 400 {
		apiErr := result.Error
		if apiErr == nil {
			apiErr = &APIError{Code: "unknown_error", Message: http.StatusText(status)}
		}
		apiErr.Status = status
		return apiErr
	}

	if out == nil || len(result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
