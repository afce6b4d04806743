package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/meridianlife/agency-sdk/modules/audit"
	"github.com/meridianlife/agency-sdk/pkg/composables"
)

// AuditRepository persists the trail in the audit_log table. INSERT and
// SELECT only; the table carries no UPDATE or DELETE path.
type AuditRepository struct{}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Record(ctx context.Context, insert audit.Insert) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	if err := insert.Validate(); err != nil {
		return uuid.Nil, err
	}
	changes, err := insert.MarshalChanges()
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	if err := tx.QueryRow(ctx, `
		INSERT INTO audit_log (actor_user_id, action, entity_type, entity_id, changes)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		RETURNING id
	`,
		insert.ActorUserID,
		string(insert.Action),
		string(insert.EntityType),
		insert.EntityID,
		string(changes),
	).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *AuditRepository) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID uuid.UUID, actions []audit.Action, limit int) ([]audit.Entry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, string(a))
	}

	rows, err := tx.Query(ctx, `
		SELECT id, actor_user_id, action, entity_type, entity_id, changes, created_at
		FROM audit_log
		WHERE entity_type = $1
			AND entity_id = $2
			AND (cardinality($3::text[]) = 0 OR action = ANY($3::text[]))
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, string(entityType), entityID, names, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]audit.Entry, 0, limit)
	for rows.Next() {
		var e audit.Entry
		var action, et string
		if err := rows.Scan(&e.ID, &e.ActorUserID, &action, &et, &e.EntityID, &e.Changes, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = audit.Action(action)
		e.EntityType = audit.EntityType(et)
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *AuditRepository) ListMembershipActionsForOrg(ctx context.Context, orgID uuid.UUID, actions []audit.Action, limit int) ([]audit.Entry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, string(a))
	}

	rows, err := tx.Query(ctx, `
		SELECT a.id, a.actor_user_id, a.action, a.entity_type, a.entity_id, a.changes, a.created_at
		FROM audit_log a
		JOIN organization_members m ON m.id = a.entity_id
		WHERE a.entity_type = $1
			AND m.organization_id = $2
			AND (cardinality($3::text[]) = 0 OR a.action = ANY($3::text[]))
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $4
	`, string(audit.EntityMembership), orgID, names, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]audit.Entry, 0, limit)
	for rows.Next() {
		var e audit.Entry
		var action, et string
		if err := rows.Scan(&e.ID, &e.ActorUserID, &action, &et, &e.EntityID, &e.Changes, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = audit.Action(action)
		e.EntityType = audit.EntityType(et)
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
