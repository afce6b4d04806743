package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridianlife/agency-sdk/modules/audit"
)

func TestAddMember(t *testing.T) {
	ctx := context.Background()
	actor := uuid.New()

	t.Run("happy path", func(t *testing.T) {
		repo := newMemMembershipRepo()
		trail := &memTrail{}
		svc := NewMemberService(repo, trail, passTransactor{}, testBus())
		org := repo.seedOrg()

		m, err := svc.AddMember(ctx, AddMemberInput{
			OrganizationID: org,
			UserID:         uuid.New(),
			Role:           "agent",
			SplitPercent:   pct(40),
		}, actor)
		require.NoError(t, err)
		require.True(t, m.IsActive)
		require.True(t, m.SplitPercent.Equal(pct(40)))
		require.Len(t, trail.byAction(audit.ActionMemberAdd), 1)
	})

	t.Run("over-allocation blocked", func(t *testing.T) {
		repo := newMemMembershipRepo()
		svc := NewMemberService(repo, &memTrail{}, passTransactor{}, testBus())
		org := repo.seedOrg()
		repo.seedMember(org, 80)

		_, err := svc.AddMember(ctx, AddMemberInput{
			OrganizationID: org,
			UserID:         uuid.New(),
			SplitPercent:   pct(30),
		}, actor)
		requireServiceError(t, err, "SPLIT_OVER_ALLOCATED")
		require.True(t, repo.activeTotal(org).Equal(pct(80)))
	})

	t.Run("duplicate active member", func(t *testing.T) {
		repo := newMemMembershipRepo()
		svc := NewMemberService(repo, &memTrail{}, passTransactor{}, testBus())
		org := repo.seedOrg()
		existing := repo.seedMember(org, 20)

		_, err := svc.AddMember(ctx, AddMemberInput{
			OrganizationID: org,
			UserID:         existing,
			SplitPercent:   pct(10),
		}, actor)
		requireServiceError(t, err, "MEMBER_EXISTS")
	})

	t.Run("unknown organization", func(t *testing.T) {
		repo := newMemMembershipRepo()
		svc := NewMemberService(repo, &memTrail{}, passTransactor{}, testBus())

		_, err := svc.AddMember(ctx, AddMemberInput{
			OrganizationID: uuid.New(),
			UserID:         uuid.New(),
			SplitPercent:   pct(10),
		}, actor)
		requireServiceError(t, err, "ORG_NOT_FOUND")
	})
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	actor := uuid.New()

	t.Run("soft remove frees allocation", func(t *testing.T) {
		repo := newMemMembershipRepo()
		trail := &memTrail{}
		svc := NewMemberService(repo, trail, passTransactor{}, testBus())
		org := repo.seedOrg()
		u := repo.seedMember(org, 60)
		repo.seedMember(org, 40)

		require.NoError(t, svc.RemoveMember(ctx, org, u, actor))

		m, err := repo.GetByUser(ctx, org, u)
		require.NoError(t, err)
		require.False(t, m.IsActive)
		require.NotNil(t, m.LeftAt)
		require.True(t, repo.activeTotal(org).Equal(pct(40)))
		require.Len(t, trail.byAction(audit.ActionMemberRemove), 1)
	})

	t.Run("removing twice is a no-op", func(t *testing.T) {
		repo := newMemMembershipRepo()
		trail := &memTrail{}
		svc := NewMemberService(repo, trail, passTransactor{}, testBus())
		org := repo.seedOrg()
		u := repo.seedMember(org, 60)

		require.NoError(t, svc.RemoveMember(ctx, org, u, actor))
		require.NoError(t, svc.RemoveMember(ctx, org, u, actor))
		require.Len(t, trail.byAction(audit.ActionMemberRemove), 1)
	})

	t.Run("unknown member", func(t *testing.T) {
		repo := newMemMembershipRepo()
		svc := NewMemberService(repo, &memTrail{}, passTransactor{}, testBus())
		org := repo.seedOrg()

		err := svc.RemoveMember(ctx, org, uuid.New(), actor)
		requireServiceError(t, err, "MEMBER_NOT_FOUND")
	})
}

func TestReactivateMember(t *testing.T) {
	ctx := context.Background()
	actor := uuid.New()

	t.Run("reuses the existing row", func(t *testing.T) {
		repo := newMemMembershipRepo()
		trail := &memTrail{}
		svc := NewMemberService(repo, trail, passTransactor{}, testBus())
		org := repo.seedOrg()
		u := repo.seedMember(org, 60)

		require.NoError(t, svc.RemoveMember(ctx, org, u, actor))
		before := len(repo.rows)

		m, err := svc.ReactivateMember(ctx, org, u, pct(25), actor)
		require.NoError(t, err)
		require.True(t, m.IsActive)
		require.Nil(t, m.LeftAt)
		require.True(t, m.SplitPercent.Equal(pct(25)))
		require.Len(t, repo.rows, before, "reactivation must not create a second row")
		require.Len(t, trail.byAction(audit.ActionMemberReactivate), 1)
	})

	t.Run("sum check counts the revived share", func(t *testing.T) {
		repo := newMemMembershipRepo()
		svc := NewMemberService(repo, &memTrail{}, passTransactor{}, testBus())
		org := repo.seedOrg()
		u := repo.seedMember(org, 10)
		repo.seedMember(org, 90)

		require.NoError(t, svc.RemoveMember(ctx, org, u, actor))
		_, err := svc.ReactivateMember(ctx, org, u, pct(20), actor)
		requireServiceError(t, err, "SPLIT_OVER_ALLOCATED")
	})

	t.Run("active member cannot be reactivated", func(t *testing.T) {
		repo := newMemMembershipRepo()
		svc := NewMemberService(repo, &memTrail{}, passTransactor{}, testBus())
		org := repo.seedOrg()
		u := repo.seedMember(org, 10)

		_, err := svc.ReactivateMember(ctx, org, u, pct(10), actor)
		requireServiceError(t, err, "MEMBER_EXISTS")
	})
}
