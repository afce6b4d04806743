package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridianlife/agency-sdk/pkg/serrors"
)

// InsuranceCase is the minimal case projection the preview needs: who owns
// it. The rest of the case lifecycle lives elsewhere.
type InsuranceCase struct {
	ID           uuid.UUID `json:"id"`
	CaseNumber   string    `json:"case_number"`
	OwnerUserID  uuid.UUID `json:"owner_user_id"`
	Status       string    `json:"status"`
	PremiumCents int64     `json:"premium_cents"`
	Currency     string    `json:"currency"`
}

type CaseRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (InsuranceCase, error)
}

// PreviewShare is one row of a commission preview: what this member would
// receive from the given total.
type PreviewShare struct {
	UserID       uuid.UUID       `json:"user_id"`
	SplitPercent decimal.Decimal `json:"split_percent"`
	Amount       *money.Money    `json:"-"`
	AmountCents  int64           `json:"amount_cents"`
	Display      string          `json:"amount"`
}

// PreviewService computes hypothetical commission distributions. It is
// strictly read-only: no lock, no write, no audit entry.
type PreviewService struct {
	members MembershipRepository
	cases   CaseRepository
}

func NewPreviewService(members MembershipRepository, cases CaseRepository) *PreviewService {
	return &PreviewService{members: members, cases: cases}
}

// PreviewSplit distributes total over the active members of the case owner's
// primary organization, by split percent, rounded to cents. An owner with no
// organization receives the whole amount; zero-split members are omitted.
func (s *PreviewService) PreviewSplit(ctx context.Context, caseID uuid.UUID, total *money.Money) ([]PreviewShare, error) {
	if total == nil || total.IsNegative() {
		return nil, serrors.New(http.StatusBadRequest, "SPLIT_INVALID_BODY", "total amount must be a non-negative money value", nil)
	}

	c, err := s.cases.GetByID(ctx, caseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, serrors.New(http.StatusNotFound, "CASE_NOT_FOUND", "insurance case not found", nil)
	}
	if err != nil {
		return nil, mapPgError(err)
	}

	primary, ok, err := s.members.FirstActiveForUser(ctx, c.OwnerUserID)
	if err != nil {
		return nil, mapPgError(err)
	}
	if !ok {
		full := money.New(total.Amount(), total.Currency().Code)
		return []PreviewShare{{
			UserID:       c.OwnerUserID,
			SplitPercent: percentHundred,
			Amount:       full,
			AmountCents:  full.Amount(),
			Display:      full.Display(),
		}}, nil
	}

	active, err := s.members.ListByOrg(ctx, primary.OrganizationID)
	if err != nil {
		return nil, mapPgError(err)
	}

	shares := make([]PreviewShare, 0, len(active))
	totalAmount := decimal.NewFromInt(total.Amount())
	for _, m := range active {
		if !m.IsActive || m.SplitPercent.IsZero() {
			continue
		}
		cents := totalAmount.Mul(m.SplitPercent).Div(percentHundred).Round(0).IntPart()
		amount := money.New(cents, total.Currency().Code)
		shares = append(shares, PreviewShare{
			UserID:       m.UserID,
			SplitPercent: m.SplitPercent,
			Amount:       amount,
			AmountCents:  cents,
			Display:      amount.Display(),
		})
	}
	return shares, nil
}
