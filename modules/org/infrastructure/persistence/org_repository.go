package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/meridianlife/agency-sdk/modules/org/services"
	"github.com/meridianlife/agency-sdk/pkg/composables"
)

const orgColumns = `id, name, org_type, parent_id, status, email, phone, address_line, city, region, postal_code, created_at, updated_at`

type OrgRepository struct{}

func NewOrgRepository() *OrgRepository {
	return &OrgRepository{}
}

func scanOrganization(row pgx.Row) (services.Organization, error) {
	var o services.Organization
	var orgType, status string
	var parent pgtype.UUID
	if err := row.Scan(
		&o.ID, &o.Name, &orgType, &parent, &status,
		&o.Email, &o.Phone, &o.AddressLine, &o.City, &o.Region, &o.PostalCode,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return services.Organization{}, err
	}
	o.Type = services.OrgType(orgType)
	o.Status = services.OrgStatus(status)
	if parent.Valid {
		pid := uuid.UUID(parent.Bytes)
		o.ParentID = &pid
	}
	return o, nil
}

func (r *OrgRepository) GetByID(ctx context.Context, id uuid.UUID) (services.Organization, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return services.Organization{}, err
	}
	return scanOrganization(tx.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
}

func (r *OrgRepository) LockByID(ctx context.Context, id uuid.UUID) (services.Organization, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return services.Organization{}, err
	}
	return scanOrganization(tx.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1 FOR UPDATE`, id))
}

func (r *OrgRepository) GetParentID(ctx context.Context, id uuid.UUID) (*uuid.UUID, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, false, err
	}

	var parent pgtype.UUID
	err = tx.QueryRow(ctx, `SELECT parent_id FROM organizations WHERE id = $1`, id).Scan(&parent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !parent.Valid {
		return nil, true, nil
	}
	pid := uuid.UUID(parent.Bytes)
	return &pid, true, nil
}

func (r *OrgRepository) Insert(ctx context.Context, in services.OrgInsert) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	if err := tx.QueryRow(ctx, `
		INSERT INTO organizations (name, org_type, parent_id, status, email, phone, address_line, city, region, postal_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		in.Name, string(in.Type), in.ParentID, string(in.Status),
		in.Email, in.Phone, in.AddressLine, in.City, in.Region, in.PostalCode,
	).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *OrgRepository) Update(ctx context.Context, org services.Organization) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE organizations
		SET name = $2,
			org_type = $3,
			parent_id = $4,
			email = $5,
			phone = $6,
			address_line = $7,
			city = $8,
			region = $9,
			postal_code = $10,
			updated_at = now()
		WHERE id = $1
	`,
		org.ID, org.Name, string(org.Type), org.ParentID,
		org.Email, org.Phone, org.AddressLine, org.City, org.Region, org.PostalCode,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *OrgRepository) SetParent(ctx context.Context, id uuid.UUID, parentID *uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `UPDATE organizations SET parent_id = $2, updated_at = now() WHERE id = $1`, id, parentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *OrgRepository) SetStatus(ctx context.Context, id uuid.UUID, status services.OrgStatus) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `UPDATE organizations SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *OrgRepository) List(ctx context.Context) ([]services.OrgNode, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT
			o.id,
			o.name,
			o.org_type,
			o.parent_id,
			o.status,
			COUNT(m.id) FILTER (WHERE m.is_active) AS active_members
		FROM organizations o
		LEFT JOIN organization_members m ON m.organization_id = o.id
		GROUP BY o.id
		ORDER BY o.name ASC, o.id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]services.OrgNode, 0, 64)
	for rows.Next() {
		var n services.OrgNode
		var orgType, status string
		var parent pgtype.UUID
		var activeMembers int64
		if err := rows.Scan(&n.ID, &n.Name, &orgType, &parent, &status, &activeMembers); err != nil {
			return nil, err
		}
		n.Type = services.OrgType(orgType)
		n.Status = services.OrgStatus(status)
		n.ActiveMemberCount = int(activeMembers)
		if parent.Valid {
			pid := uuid.UUID(parent.Bytes)
			n.ParentID = &pid
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *OrgRepository) CountActiveChildren(ctx context.Context, id uuid.UUID) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM organizations WHERE parent_id = $1 AND status = 'active'
	`, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *OrgRepository) CountActiveMembers(ctx context.Context, id uuid.UUID) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM organization_members WHERE organization_id = $1 AND is_active
	`, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
