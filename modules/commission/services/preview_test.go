package services

import (
	"context"
	"testing"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func (r *memMembershipRepo) seedCase(owner uuid.UUID) uuid.UUID {
	id := uuid.New()
	r.cases[id] = InsuranceCase{
		ID:          id,
		CaseNumber:  "CASE-" + id.String()[:8],
		OwnerUserID: owner,
		Status:      "open",
		Currency:    money.USD,
	}
	return id
}

func TestPreviewSplit(t *testing.T) {
	ctx := context.Background()

	t.Run("distributes by split percent", func(t *testing.T) {
		repo := newMemMembershipRepo()
		svc := NewPreviewService(repo, repo)

		org := repo.seedOrg()
		owner := repo.seedMember(org, 60)
		repo.seedMember(org, 40)
		caseID := repo.seedCase(owner)

		shares, err := svc.PreviewSplit(ctx, caseID, money.New(100000, money.USD)) // $1000.00
		require.NoError(t, err)
		require.Len(t, shares, 2)
		require.Equal(t, owner, shares[0].UserID)
		require.Equal(t, int64(60000), shares[0].AmountCents)
		require.Equal(t, int64(40000), shares[1].AmountCents)
	})

	t.Run("owner without organization receives everything", func(t *testing.T) {
		repo := newMemMembershipRepo()
		svc := NewPreviewService(repo, repo)

		owner := uuid.New()
		caseID := repo.seedCase(owner)

		shares, err := svc.PreviewSplit(ctx, caseID, money.New(50000, money.USD))
		require.NoError(t, err)
		require.Len(t, shares, 1)
		require.Equal(t, owner, shares[0].UserID)
		require.Equal(t, int64(50000), shares[0].AmountCents)
		require.True(t, shares[0].SplitPercent.Equal(pct(100)))
	})

	t.Run("zero-split members are omitted", func(t *testing.T) {
		repo := newMemMembershipRepo()
		svc := NewPreviewService(repo, repo)

		org := repo.seedOrg()
		owner := repo.seedMember(org, 70)
		repo.seedMember(org, 0)
		caseID := repo.seedCase(owner)

		shares, err := svc.PreviewSplit(ctx, caseID, money.New(10000, money.USD))
		require.NoError(t, err)
		require.Len(t, shares, 1)
		require.Equal(t, int64(7000), shares[0].AmountCents)
	})

	t.Run("rounds to cents", func(t *testing.T) {
		repo := newMemMembershipRepo()
		svc := NewPreviewService(repo, repo)

		org := repo.seedOrg()
		owner := repo.seedMember(org, 33)
		repo.seedMember(org, 67)
		caseID := repo.seedCase(owner)

		// $0.01 * 33% = 0.33 cents, rounds to 0 cents.
		shares, err := svc.PreviewSplit(ctx, caseID, money.New(1, money.USD))
		require.NoError(t, err)
		require.Equal(t, int64(0), shares[0].AmountCents)
		require.Equal(t, int64(1), shares[1].AmountCents)
	})

	t.Run("unknown case", func(t *testing.T) {
		repo := newMemMembershipRepo()
		svc := NewPreviewService(repo, repo)

		_, err := svc.PreviewSplit(ctx, uuid.New(), money.New(1000, money.USD))
		requireServiceError(t, err, "CASE_NOT_FOUND")
	})

	t.Run("never writes audit entries", func(t *testing.T) {
		repo := newMemMembershipRepo()
		svc := NewPreviewService(repo, repo)

		org := repo.seedOrg()
		owner := repo.seedMember(org, 100)
		caseID := repo.seedCase(owner)

		snapshot := make(map[uuid.UUID]Membership, len(repo.rows))
		for id, m := range repo.rows {
			snapshot[id] = m
		}

		_, err := svc.PreviewSplit(ctx, caseID, money.New(123456, money.USD))
		require.NoError(t, err)
		require.Equal(t, snapshot, repo.rows, "preview must not touch membership rows")
	})
}
