package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/ruleset-engine/internal/models"
	"github.com/terra-clan/ruleset-engine/internal/rules"
)

// newRewardSet builds a minimal valid rewards rule set with a unique ID
func newRewardSet(name string) *models.RuleSet {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.RuleSet{
		ID:        uuid.New().String(),
		Domain:    models.DomainRewards,
		Name:      name,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Rewards:   &models.RewardRules{Rewards: []models.RankReward{{Rank: 1, Coins: 100}}},
	}
}

func countActive(t *testing.T, repo Repository, domain models.Domain) int {
	t.Helper()
	sets, err := repo.ListRuleSets(context.Background(), domain)
	require.NoError(t, err)
	active := 0
	for _, rs := range sets {
		if rs.IsActive {
			active++
		}
	}
	return active
}

// runRepositoryContract exercises behaviour every Repository must share
func runRepositoryContract(t *testing.T, repo Repository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		rs := newRewardSet("create")
		rs.IsActive = true
		require.NoError(t, repo.CreateRuleSet(ctx, rs))

		got, err := repo.GetRuleSet(ctx, models.DomainRewards, rs.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, rs.Name, got.Name)
		assert.Equal(t, rs.Rewards, got.Rewards)

		missing, err := repo.GetRuleSet(ctx, models.DomainScoring, rs.ID)
		require.NoError(t, err)
		assert.Nil(t, missing, "lookup is scoped by domain")
	})

	t.Run("duplicate id", func(t *testing.T) {
		rs := newRewardSet("dup")
		require.NoError(t, repo.CreateRuleSet(ctx, rs))

		err := repo.CreateRuleSet(ctx, rs)
		assert.ErrorIs(t, err, rules.ErrAlreadyExists)
	})

	t.Run("single active invariant", func(t *testing.T) {
		var ids []string
		for i := 0; i < 4; i++ {
			rs := newRewardSet(fmt.Sprintf("set-%d", i))
			require.NoError(t, repo.CreateRuleSet(ctx, rs))
			ids = append(ids, rs.ID)
		}

		for _, id := range []string{ids[0], ids[2], ids[2], ids[1], ids[3], ids[0]} {
			require.NoError(t, repo.ActivateRuleSet(ctx, models.DomainRewards, id))
			assert.Equal(t, 1, countActive(t, repo, models.DomainRewards))

			active, err := repo.GetActiveRuleSet(ctx, models.DomainRewards)
			require.NoError(t, err)
			require.NotNil(t, active)
			assert.Equal(t, id, active.ID)
		}
	})

	t.Run("concurrent activation keeps one active", func(t *testing.T) {
		var ids []string
		for i := 0; i < 6; i++ {
			rs := newRewardSet(fmt.Sprintf("race-%d", i))
			require.NoError(t, repo.CreateRuleSet(ctx, rs))
			ids = append(ids, rs.ID)
		}

		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				assert.NoError(t, repo.ActivateRuleSet(ctx, models.DomainRewards, id))
			}(id)
		}
		wg.Wait()

		assert.Equal(t, 1, countActive(t, repo, models.DomainRewards))
	})

	t.Run("activate unknown", func(t *testing.T) {
		err := repo.ActivateRuleSet(ctx, models.DomainRewards, uuid.New().String())
		assert.True(t, errors.Is(err, rules.ErrNotFound))
	})

	t.Run("update keeps activation flag", func(t *testing.T) {
		rs := newRewardSet("update")
		require.NoError(t, repo.CreateRuleSet(ctx, rs))
		require.NoError(t, repo.ActivateRuleSet(ctx, models.DomainRewards, rs.ID))

		rs.Name = "renamed"
		rs.IsActive = false
		rs.Version = 2
		rs.Rewards.Rewards = append(rs.Rewards.Rewards, models.RankReward{Rank: 2, Coins: 50})
		require.NoError(t, repo.UpdateRuleSet(ctx, rs))

		got, err := repo.GetRuleSet(ctx, models.DomainRewards, rs.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
		assert.Equal(t, 2, got.Version)
		assert.True(t, got.IsActive)
		assert.Len(t, got.Rewards.Rewards, 2)

		ghost := newRewardSet("ghost")
		assert.True(t, errors.Is(repo.UpdateRuleSet(ctx, ghost), rules.ErrNotFound))
	})

	t.Run("delete rejects active", func(t *testing.T) {
		active := newRewardSet("active")
		idle := newRewardSet("idle")
		require.NoError(t, repo.CreateRuleSet(ctx, active))
		require.NoError(t, repo.CreateRuleSet(ctx, idle))
		require.NoError(t, repo.ActivateRuleSet(ctx, models.DomainRewards, active.ID))

		err := repo.DeleteRuleSet(ctx, models.DomainRewards, active.ID)
		assert.True(t, errors.Is(err, rules.ErrActivationConflict))

		require.NoError(t, repo.DeleteRuleSet(ctx, models.DomainRewards, idle.ID))
		got, err := repo.GetRuleSet(ctx, models.DomainRewards, idle.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		err = repo.DeleteRuleSet(ctx, models.DomainRewards, idle.ID)
		assert.True(t, errors.Is(err, rules.ErrNotFound))
	})

	t.Run("no active in untouched domain", func(t *testing.T) {
		got, err := repo.GetActiveRuleSet(ctx, models.DomainPlacement)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestMemoryRepository(t *testing.T) {
	runRepositoryContract(t, NewMemoryRepository())
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	rs := newRewardSet("copy")
	require.NoError(t, repo.CreateRuleSet(ctx, rs))
	rs.Rewards.Rewards[0].Coins = 1

	got, err := repo.GetRuleSet(ctx, models.DomainRewards, rs.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Rewards.Rewards[0].Coins)

	got.Rewards.Rewards[0].Coins = 7
	again, err := repo.GetRuleSet(ctx, models.DomainRewards, rs.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, again.Rewards.Rewards[0].Coins)
}

func TestMemoryRepository_DuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	rs := newRewardSet("dup")
	require.NoError(t, repo.CreateRuleSet(ctx, rs))

	other := newRewardSet("other domain, same id")
	other.ID = rs.ID
	other.Domain = models.DomainScoring
	assert.ErrorIs(t, repo.CreateRuleSet(ctx, other), rules.ErrAlreadyExists, "ids are unique across domains")
}
