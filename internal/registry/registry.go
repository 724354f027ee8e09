// Package registry owns the lifecycle and activation of rule sets.
//
// It is the only writer of the activation flag: at most one rule set per domain
// is active, and resolvers read the active one through ResolveActive.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/terra-clan/ruleset-engine/internal/cache"
	"github.com/terra-clan/ruleset-engine/internal/models"
	"github.com/terra-clan/ruleset-engine/internal/rules"
	"github.com/terra-clan/ruleset-engine/internal/storage"
)

// Options configures a Registry
type Options struct {
	// Strict enables overlap and duplicate-rank validation on writes
	Strict bool
	// Cache holds active snapshots; nil disables caching
	Cache cache.Snapshots
	// Now overrides the clock, used by tests
	Now func() time.Time
}

// Registry implements the activation registry over a storage.Repository
type Registry struct {
	repo   storage.Repository
	cache  cache.Snapshots
	strict bool
	now    func() time.Time

	locks sync.Map // models.Domain -> *sync.Mutex
	group singleflight.Group
}

// New creates a Registry
func New(repo storage.Repository, opts Options) *Registry {
	r := &Registry{
		repo:   repo,
		cache:  opts.Cache,
		strict: opts.Strict,
		now:    opts.Now,
	}
	if r.cache == nil {
		r.cache = cache.Noop{}
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	return r
}

func (r *Registry) domainLock(domain models.Domain) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(domain, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Create validates and stores a new, inactive rule set.
// A caller-supplied ID is kept; otherwise a UUID is generated.
func (r *Registry) Create(ctx context.Context, rs *models.RuleSet) (*models.RuleSet, error) {
	if err := rs.Validate(models.ValidateOptions{Strict: r.strict}); err != nil {
		return nil, err
	}

	created := rs.Clone()
	if strings.TrimSpace(created.ID) == "" {
		created.ID = uuid.New().String()
	}
	now := r.now()
	created.IsActive = false
	created.Version = 1
	created.CreatedAt = now
	created.UpdatedAt = now

	if err := r.repo.CreateRuleSet(ctx, created); err != nil {
		return nil, fmt.Errorf("failed to create rule set: %w", err)
	}

	slog.Info("rule set created",
		"id", created.ID,
		"domain", created.Domain,
		"name", created.Name,
	)

	return created, nil
}

// Get returns a rule set by domain and ID
func (r *Registry) Get(ctx context.Context, domain models.Domain, id string) (*models.RuleSet, error) {
	rs, err := r.repo.GetRuleSet(ctx, domain, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule set: %w", err)
	}
	if rs == nil {
		return nil, rules.ErrNotFound
	}
	return rs, nil
}

// List returns every rule set of a domain
func (r *Registry) List(ctx context.Context, domain models.Domain) ([]*models.RuleSet, error) {
	sets, err := r.repo.ListRuleSets(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule sets: %w", err)
	}
	return sets, nil
}

// Update replaces the definition of an existing rule set.
// Activation state and creation time are preserved; the version is bumped.
func (r *Registry) Update(ctx context.Context, rs *models.RuleSet) (*models.RuleSet, error) {
	if err := rs.Validate(models.ValidateOptions{Strict: r.strict}); err != nil {
		return nil, err
	}

	mu := r.domainLock(rs.Domain)
	mu.Lock()
	defer mu.Unlock()

	existing, err := r.Get(ctx, rs.Domain, rs.ID)
	if err != nil {
		return nil, err
	}

	updated := rs.Clone()
	updated.IsActive = existing.IsActive
	updated.CreatedAt = existing.CreatedAt
	updated.Version = existing.Version + 1
	updated.UpdatedAt = r.now()

	if err := r.repo.UpdateRuleSet(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to update rule set: %w", err)
	}

	// The set may have been activated elsewhere since it was read
	r.invalidate(ctx, updated.Domain)

	slog.Info("rule set updated",
		"id", updated.ID,
		"domain", updated.Domain,
		"version", updated.Version,
		"active", updated.IsActive,
	)

	return updated, nil
}

// Delete removes an inactive rule set. Deleting the active one is rejected
// with ErrActivationConflict: activate a replacement first.
func (r *Registry) Delete(ctx context.Context, domain models.Domain, id string) error {
	mu := r.domainLock(domain)
	mu.Lock()
	defer mu.Unlock()

	if err := r.repo.DeleteRuleSet(ctx, domain, id); err != nil {
		if errors.Is(err, rules.ErrActivationConflict) {
			slog.Warn("refusing to delete active rule set", "id", id, "domain", domain)
		}
		return err
	}

	slog.Info("rule set deleted", "id", id, "domain", domain)
	return nil
}

// Activate makes id the single active rule set of its domain
func (r *Registry) Activate(ctx context.Context, domain models.Domain, id string) (*models.RuleSet, error) {
	mu := r.domainLock(domain)
	mu.Lock()
	defer mu.Unlock()

	if err := r.repo.ActivateRuleSet(ctx, domain, id); err != nil {
		return nil, err
	}
	r.invalidate(ctx, domain)

	rs, err := r.Get(ctx, domain, id)
	if err != nil {
		return nil, err
	}

	slog.Info("rule set activated",
		"id", id,
		"domain", domain,
		"version", rs.Version,
		"resolvable_now", rs.Resolvable(r.now()),
	)

	return rs, nil
}

// ResolveActive returns the active rule set whose effective window contains asOf.
// An active rule set outside its window yields ErrNotConfigured.
func (r *Registry) ResolveActive(ctx context.Context, domain models.Domain, asOf time.Time) (*models.RuleSet, error) {
	rs, err := r.loadActive(ctx, domain)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		return nil, fmt.Errorf("%s: %w", domain, rules.ErrNotConfigured)
	}
	if !rs.Resolvable(asOf) {
		return nil, fmt.Errorf("%s: rule set %s is %s at %s: %w",
			domain, rs.ID, rs.WindowAt(asOf), asOf.Format(time.RFC3339), rules.ErrNotConfigured)
	}
	return rs, nil
}

// loadActive reads the active rule set through the cache.
// Concurrent misses for the same domain share one repository read, taken under
// the domain lock. The cache generation is captured before that read, so a load
// that raced with an activation in another process is not written back.
func (r *Registry) loadActive(ctx context.Context, domain models.Domain) (*models.RuleSet, error) {
	if rs, ok, err := r.cache.Get(ctx, domain); err != nil {
		slog.Warn("snapshot cache read failed", "domain", domain, "error", err)
	} else if ok {
		return rs, nil
	}

	v, err, _ := r.group.Do(string(domain), func() (interface{}, error) {
		mu := r.domainLock(domain)
		mu.Lock()
		defer mu.Unlock()

		gen, genErr := r.cache.Generation(ctx, domain)
		if genErr != nil {
			slog.Warn("snapshot generation read failed", "domain", domain, "error", genErr)
		}

		rs, err := r.repo.GetActiveRuleSet(ctx, domain)
		if err != nil {
			return nil, fmt.Errorf("failed to load active rule set: %w", err)
		}
		if rs != nil && genErr == nil {
			switch err := r.cache.Set(ctx, domain, rs, gen); {
			case errors.Is(err, cache.ErrStale):
				slog.Debug("skipping stale snapshot write", "domain", domain, "rule_set_id", rs.ID)
			case err != nil:
				slog.Warn("snapshot cache write failed", "domain", domain, "error", err)
			}
		}
		return rs, nil
	})
	if err != nil {
		return nil, err
	}

	rs, _ := v.(*models.RuleSet)
	// Callers sharing a flight each get their own copy
	return rs.Clone(), nil
}

func (r *Registry) invalidate(ctx context.Context, domain models.Domain) {
	if err := r.cache.Invalidate(ctx, domain); err != nil {
		slog.Error("failed to invalidate snapshot", "domain", domain, "error", err)
	}
}

// DomainState summarizes whether a domain can serve resolution
type DomainState string

const (
	StateConfigured   DomainState = "configured"
	StateUnconfigured DomainState = "unconfigured"
	StatePending      DomainState = "pending"
	StateLapsed       DomainState = "lapsed"
)

// DomainStatus is the audit result for one domain
type DomainStatus struct {
	Domain        models.Domain `json:"domain"`
	State         DomainState   `json:"state"`
	ActiveID      string        `json:"active_id,omitempty"`
	ActiveName    string        `json:"active_name,omitempty"`
	Version       int           `json:"version,omitempty"`
	EffectiveFrom *time.Time    `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time    `json:"effective_to,omitempty"`
}

// Audit reports the activation state of every domain at now
func (r *Registry) Audit(ctx context.Context, now time.Time) ([]DomainStatus, error) {
	statuses := make([]DomainStatus, 0, len(models.Domains))
	for _, domain := range models.Domains {
		rs, err := r.repo.GetActiveRuleSet(ctx, domain)
		if err != nil {
			return nil, fmt.Errorf("failed to audit %s: %w", domain, err)
		}

		status := DomainStatus{Domain: domain, State: StateUnconfigured}
		if rs != nil {
			status.ActiveID = rs.ID
			status.ActiveName = rs.Name
			status.Version = rs.Version
			status.EffectiveFrom = rs.EffectiveFrom
			status.EffectiveTo = rs.EffectiveTo
			switch rs.WindowAt(now) {
			case models.WindowOpen:
				status.State = StateConfigured
			case models.WindowPending:
				status.State = StatePending
			case models.WindowLapsed:
				status.State = StateLapsed
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
