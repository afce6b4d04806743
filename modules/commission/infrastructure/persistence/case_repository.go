package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/meridianlife/agency-sdk/modules/commission/services"
	"github.com/meridianlife/agency-sdk/pkg/composables"
)

type CaseRepository struct{}

func NewCaseRepository() *CaseRepository {
	return &CaseRepository{}
}

func (r *CaseRepository) GetByID(ctx context.Context, id uuid.UUID) (services.InsuranceCase, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return services.InsuranceCase{}, err
	}

	var c services.InsuranceCase
	if err := tx.QueryRow(ctx, `
		SELECT id, case_number, owner_user_id, status, premium_cents, currency
		FROM insurance_cases
		WHERE id = $1
	`, id).Scan(&c.ID, &c.CaseNumber, &c.OwnerUserID, &c.Status, &c.PremiumCents, &c.Currency); err != nil {
		return services.InsuranceCase{}, err
	}
	return c, nil
}
