package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridianlife/agency-sdk/modules/audit"
)

// memHistory serves canned audit entries, newest first like the real reader.
type memHistory struct {
	orgEntries    []audit.Entry
	memberEntries []audit.Entry
}

func filterEntries(entries []audit.Entry, actions []audit.Action, limit int) []audit.Entry {
	allowed := map[audit.Action]bool{}
	for _, a := range actions {
		allowed[a] = true
	}
	var out []audit.Entry
	for _, e := range entries {
		if len(allowed) > 0 && !allowed[e.Action] {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (h *memHistory) ListByEntity(_ context.Context, _ audit.EntityType, _ uuid.UUID, actions []audit.Action, limit int) ([]audit.Entry, error) {
	return filterEntries(h.orgEntries, actions, limit), nil
}

func (h *memHistory) ListMembershipActionsForOrg(_ context.Context, _ uuid.UUID, actions []audit.Action, limit int) ([]audit.Entry, error) {
	return filterEntries(h.memberEntries, actions, limit), nil
}

func TestGetConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("totals over active members only", func(t *testing.T) {
		repo := newMemMembershipRepo()
		svc := NewConfigService(repo, &memHistory{})

		org := repo.seedOrg()
		repo.seedMember(org, 60)
		removed := repo.seedMember(org, 30)
		m, err := repo.GetByUser(ctx, org, removed)
		require.NoError(t, err)
		require.NoError(t, repo.Deactivate(ctx, m.ID))

		cfg, err := svc.GetConfig(ctx, org)
		require.NoError(t, err)
		require.Len(t, cfg.Members, 1)
		require.True(t, cfg.TotalSplit.Equal(pct(60)))
		require.True(t, cfg.IsValid)
	})

	t.Run("unknown organization", func(t *testing.T) {
		repo := newMemMembershipRepo()
		svc := NewConfigService(repo, &memHistory{})
		_, err := svc.GetConfig(ctx, uuid.New())
		requireServiceError(t, err, "ORG_NOT_FOUND")
	})
}

func TestValidateConfig(t *testing.T) {
	ctx := context.Background()
	repo := newMemMembershipRepo()
	svc := NewConfigService(repo, &memHistory{})

	org := repo.seedOrg()
	repo.seedMember(org, 60)
	zero := repo.seedMember(org, 0)

	issues, err := svc.ValidateConfig(ctx, org)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, "SPLIT_ZERO", issues[0].Code)
	require.Equal(t, zero, *issues[0].UserID)

	t.Run("clean configuration yields no issues", func(t *testing.T) {
		repo := newMemMembershipRepo()
		svc := NewConfigService(repo, &memHistory{})
		org := repo.seedOrg()
		repo.seedMember(org, 50)
		repo.seedMember(org, 50)

		issues, err := svc.ValidateConfig(ctx, org)
		require.NoError(t, err)
		require.Empty(t, issues)
	})
}

func TestGetSplitHistory(t *testing.T) {
	ctx := context.Background()
	repo := newMemMembershipRepo()
	org := repo.seedOrg()
	repo.seedMember(org, 50)

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	history := &memHistory{
		orgEntries: []audit.Entry{
			{ID: uuid.New(), Action: audit.ActionSplitAutoBalance, EntityType: audit.EntityOrganization, EntityID: org, CreatedAt: base.Add(2 * time.Hour)},
		},
		memberEntries: []audit.Entry{
			{ID: uuid.New(), Action: audit.ActionSplitUpdate, EntityType: audit.EntityMembership, CreatedAt: base.Add(3 * time.Hour)},
			{ID: uuid.New(), Action: audit.ActionMemberAdd, EntityType: audit.EntityMembership, CreatedAt: base},
		},
	}
	svc := NewConfigService(repo, history)

	entries, err := svc.GetSplitHistory(ctx, org, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, audit.ActionSplitUpdate, entries[0].Action)
	require.Equal(t, audit.ActionSplitAutoBalance, entries[1].Action)
	require.Equal(t, audit.ActionMemberAdd, entries[2].Action)

	t.Run("limit truncates the merged stream", func(t *testing.T) {
		entries, err := svc.GetSplitHistory(ctx, org, 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
	})
}
