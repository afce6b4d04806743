package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridianlife/agency-sdk/modules/commission/services"
	orgpersistence "github.com/meridianlife/agency-sdk/modules/org/infrastructure/persistence"
	orgservices "github.com/meridianlife/agency-sdk/modules/org/services"
	"github.com/meridianlife/agency-sdk/pkg/composables"
	"github.com/meridianlife/agency-sdk/pkg/itf"
)

func setupCommissionDB(t *testing.T) (context.Context, uuid.UUID) {
	t.Helper()
	itf.SkipUnlessPostgres(t)

	itf.CreateDB(t.Name())
	pool := itf.NewPool(itf.DbOpts(t.Name()))
	t.Cleanup(pool.Close)
	itf.ApplyMigrations(t, pool, "../../../../migrations")

	ctx := composables.WithPool(context.Background(), pool)
	orgID, err := orgpersistence.NewOrgRepository().Insert(ctx, orgservices.OrgInsert{
		Name:   "Team Alpha",
		Type:   orgservices.OrgTypeTeam,
		Status: orgservices.OrgStatusActive,
	})
	require.NoError(t, err)
	return ctx, orgID
}

func TestMembershipRepositoryPercentFractionBoundary(t *testing.T) {
	ctx, orgID := setupCommissionDB(t)
	repo := NewMembershipRepository()
	userID := uuid.New()

	_, err := repo.Insert(ctx, services.MembershipInsert{
		UserID:         userID,
		OrganizationID: orgID,
		Role:           "agent",
		SplitPercent:   decimal.RequireFromString("62.5"),
	})
	require.NoError(t, err)

	m, err := repo.GetByUser(ctx, orgID, userID)
	require.NoError(t, err)
	require.True(t, m.SplitPercent.Equal(decimal.RequireFromString("62.5")),
		"stored fraction must round-trip back to percent, got %s", m.SplitPercent)
	require.True(t, m.IsActive)
	require.Nil(t, m.LeftAt)
}

func TestMembershipRepositoryLifecycle(t *testing.T) {
	ctx, orgID := setupCommissionDB(t)
	repo := NewMembershipRepository()

	first := uuid.New()
	second := uuid.New()
	firstID, err := repo.Insert(ctx, services.MembershipInsert{
		UserID: first, OrganizationID: orgID, Role: "lead", SplitPercent: decimal.NewFromInt(60),
	})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, services.MembershipInsert{
		UserID: second, OrganizationID: orgID, Role: "agent", SplitPercent: decimal.NewFromInt(40),
	})
	require.NoError(t, err)

	t.Run("duplicate user in one organization rejected", func(t *testing.T) {
		_, err := repo.Insert(ctx, services.MembershipInsert{
			UserID: first, OrganizationID: orgID, SplitPercent: decimal.NewFromInt(1),
		})
		require.Error(t, err)
	})

	t.Run("active list in join order", func(t *testing.T) {
		active, err := repo.ListActiveForUpdate(ctx, orgID)
		require.NoError(t, err)
		require.Len(t, active, 2)
		require.Equal(t, first, active[0].UserID)
		require.Equal(t, second, active[1].UserID)
	})

	t.Run("deactivate then reactivate reuses the row", func(t *testing.T) {
		require.NoError(t, repo.Deactivate(ctx, firstID))

		m, err := repo.GetByUser(ctx, orgID, first)
		require.NoError(t, err)
		require.False(t, m.IsActive)
		require.NotNil(t, m.LeftAt)

		active, err := repo.ListActiveForUpdate(ctx, orgID)
		require.NoError(t, err)
		require.Len(t, active, 1)

		require.NoError(t, repo.Reactivate(ctx, firstID, decimal.NewFromInt(30)))
		m, err = repo.GetByUser(ctx, orgID, first)
		require.NoError(t, err)
		require.True(t, m.IsActive)
		require.Nil(t, m.LeftAt)
		require.True(t, m.SplitPercent.Equal(decimal.NewFromInt(30)))
	})

	t.Run("update split of inactive member fails", func(t *testing.T) {
		require.NoError(t, repo.Deactivate(ctx, firstID))
		err := repo.UpdateSplit(ctx, firstID, decimal.NewFromInt(10))
		require.True(t, errors.Is(err, pgx.ErrNoRows))
		require.NoError(t, repo.Reactivate(ctx, firstID, decimal.NewFromInt(30)))
	})

	t.Run("first active organization for user", func(t *testing.T) {
		m, ok, err := repo.FirstActiveForUser(ctx, second)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, orgID, m.OrganizationID)

		_, ok, err = repo.FirstActiveForUser(ctx, uuid.New())
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("organization existence", func(t *testing.T) {
		exists, err := repo.OrganizationExists(ctx, orgID)
		require.NoError(t, err)
		require.True(t, exists)

		exists, err = repo.OrganizationExists(ctx, uuid.New())
		require.NoError(t, err)
		require.False(t, exists)
	})
}

func TestMembershipRepositorySplitRangeEnforcedBySchema(t *testing.T) {
	ctx, orgID := setupCommissionDB(t)
	repo := NewMembershipRepository()

	_, err := repo.Insert(ctx, services.MembershipInsert{
		UserID:         uuid.New(),
		OrganizationID: orgID,
		SplitPercent:   decimal.NewFromInt(150),
	})
	require.Error(t, err, "fraction above 1.0 must violate the check constraint")
}
