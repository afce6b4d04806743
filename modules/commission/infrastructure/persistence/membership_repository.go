package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridianlife/agency-sdk/modules/commission/services"
	"github.com/meridianlife/agency-sdk/pkg/composables"
)

const memberColumns = `id, user_id, organization_id, role, commission_split::text, is_active, joined_at, left_at`

var dHundred = decimal.NewFromInt(100)

// MembershipRepository stores splits as numeric(7,6) fractions and converts
// to percent at the boundary so services never see the fraction form.
type MembershipRepository struct{}

func NewMembershipRepository() *MembershipRepository {
	return &MembershipRepository{}
}

func percentToFraction(percent decimal.Decimal) string {
	return percent.Div(dHundred).Round(6).String()
}

func scanMembership(row pgx.Row) (services.Membership, error) {
	var m services.Membership
	var fraction string
	var leftAt *time.Time
	if err := row.Scan(&m.ID, &m.UserID, &m.OrganizationID, &m.Role, &fraction, &m.IsActive, &m.JoinedAt, &leftAt); err != nil {
		return services.Membership{}, err
	}
	f, err := decimal.NewFromString(fraction)
	if err != nil {
		return services.Membership{}, err
	}
	m.SplitPercent = f.Mul(dHundred)
	m.LeftAt = leftAt
	return m, nil
}

func (r *MembershipRepository) GetByUser(ctx context.Context, orgID, userID uuid.UUID) (services.Membership, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return services.Membership{}, err
	}
	return scanMembership(tx.QueryRow(ctx, `
		SELECT `+memberColumns+`
		FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`, orgID, userID))
}

func (r *MembershipRepository) ListActiveForUpdate(ctx context.Context, orgID uuid.UUID) ([]services.Membership, error) {
	return r.list(ctx, `
		SELECT `+memberColumns+`
		FROM organization_members
		WHERE organization_id = $1 AND is_active
		ORDER BY joined_at ASC, id ASC
		FOR UPDATE
	`, orgID)
}

func (r *MembershipRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]services.Membership, error) {
	return r.list(ctx, `
		SELECT `+memberColumns+`
		FROM organization_members
		WHERE organization_id = $1
		ORDER BY joined_at ASC, id ASC
	`, orgID)
}

func (r *MembershipRepository) list(ctx context.Context, query string, orgID uuid.UUID) ([]services.Membership, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]services.Membership, 0, 16)
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *MembershipRepository) FirstActiveForUser(ctx context.Context, userID uuid.UUID) (services.Membership, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return services.Membership{}, false, err
	}

	m, err := scanMembership(tx.QueryRow(ctx, `
		SELECT `+memberColumns+`
		FROM organization_members
		WHERE user_id = $1 AND is_active
		ORDER BY joined_at ASC, id ASC
		LIMIT 1
	`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return services.Membership{}, false, nil
	}
	if err != nil {
		return services.Membership{}, false, err
	}
	return m, true, nil
}

func (r *MembershipRepository) Insert(ctx context.Context, in services.MembershipInsert) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	if err := tx.QueryRow(ctx, `
		INSERT INTO organization_members (user_id, organization_id, role, commission_split, is_active)
		VALUES ($1, $2, $3, $4::numeric, TRUE)
		RETURNING id
	`, in.UserID, in.OrganizationID, in.Role, percentToFraction(in.SplitPercent)).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *MembershipRepository) UpdateSplit(ctx context.Context, membershipID uuid.UUID, percent decimal.Decimal) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE organization_members SET commission_split = $2::numeric WHERE id = $1 AND is_active
	`, membershipID, percentToFraction(percent))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *MembershipRepository) Deactivate(ctx context.Context, membershipID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE organization_members SET is_active = FALSE, left_at = now() WHERE id = $1 AND is_active
	`, membershipID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *MembershipRepository) Reactivate(ctx context.Context, membershipID uuid.UUID, percent decimal.Decimal) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE organization_members
		SET is_active = TRUE, left_at = NULL, commission_split = $2::numeric, joined_at = now()
		WHERE id = $1 AND NOT is_active
	`, membershipID, percentToFraction(percent))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *MembershipRepository) OrganizationExists(ctx context.Context, orgID uuid.UUID) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM organizations WHERE id = $1)`, orgID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
