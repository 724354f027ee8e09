package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/terra-clan/ruleset-engine/internal/models"
	"github.com/terra-clan/ruleset-engine/internal/rules"
)

// MemoryRepository implements Repository in process memory.
// Every read and write copies the rule set so callers never share state.
type MemoryRepository struct {
	mu   sync.RWMutex
	sets map[string]*models.RuleSet
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sets: make(map[string]*models.RuleSet)}
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateRuleSet stores a new, inactive rule set
func (r *MemoryRepository) CreateRuleSet(ctx context.Context, rs *models.RuleSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sets[rs.ID]; exists {
		return fmt.Errorf("%s: %w", rs.ID, rules.ErrAlreadyExists)
	}
	stored := rs.Clone()
	stored.IsActive = false
	r.sets[rs.ID] = stored
	return nil
}

// GetRuleSet retrieves a rule set by domain and ID
func (r *MemoryRepository) GetRuleSet(ctx context.Context, domain models.Domain, id string) (*models.RuleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rs, ok := r.sets[id]
	if !ok || rs.Domain != domain {
		return nil, nil
	}
	return rs.Clone(), nil
}

// UpdateRuleSet replaces a stored rule set, keeping its activation flag
func (r *MemoryRepository) UpdateRuleSet(ctx context.Context, rs *models.RuleSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.sets[rs.ID]
	if !ok || existing.Domain != rs.Domain {
		return fmt.Errorf("update %s: %w", rs.ID, rules.ErrNotFound)
	}
	updated := rs.Clone()
	updated.IsActive = existing.IsActive
	r.sets[rs.ID] = updated
	return nil
}

// DeleteRuleSet removes an inactive rule set
func (r *MemoryRepository) DeleteRuleSet(ctx context.Context, domain models.Domain, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.sets[id]
	if !ok || rs.Domain != domain {
		return fmt.Errorf("delete %s: %w", id, rules.ErrNotFound)
	}
	if rs.IsActive {
		return fmt.Errorf("delete %s: %w", id, rules.ErrActivationConflict)
	}
	delete(r.sets, id)
	return nil
}

// ListRuleSets returns every rule set of a domain, newest first
func (r *MemoryRepository) ListRuleSets(ctx context.Context, domain models.Domain) ([]*models.RuleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.RuleSet
	for _, rs := range r.sets {
		if rs.Domain == domain {
			out = append(out, rs.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetActiveRuleSet returns the active rule set of a domain
func (r *MemoryRepository) GetActiveRuleSet(ctx context.Context, domain models.Domain) (*models.RuleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rs := range r.sets {
		if rs.Domain == domain && rs.IsActive {
			return rs.Clone(), nil
		}
	}
	return nil, nil
}

// ActivateRuleSet marks id active and every sibling inactive under one lock
func (r *MemoryRepository) ActivateRuleSet(ctx context.Context, domain models.Domain, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.sets[id]
	if !ok || target.Domain != domain {
		return fmt.Errorf("activate %s: %w", id, rules.ErrNotFound)
	}

	now := time.Now().UTC()
	for _, rs := range r.sets {
		if rs.Domain == domain && rs.IsActive && rs.ID != id {
			rs.IsActive = false
			rs.UpdatedAt = now
		}
	}
	if !target.IsActive {
		target.IsActive = true
		target.UpdatedAt = now
	}
	return nil
}
