// Package audit defines the append-only mutation trail shared by the
// hierarchy and commission modules. Every mutating service operation records
// exactly one entry (bulk operations one per applied change, auto-balance one
// per batch) inside the same transaction as the data write: a mutation
// without a matching entry is a defect.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionOrgCreate Action = "ORG_CREATE"
	ActionOrgUpdate Action = "ORG_UPDATE"
	ActionOrgMove   Action = "ORG_MOVE"
	ActionOrgDelete Action = "ORG_DELETE"

	ActionMemberAdd        Action = "MEMBER_ADD"
	ActionMemberRemove     Action = "MEMBER_REMOVE"
	ActionMemberReactivate Action = "MEMBER_REACTIVATE"

	ActionSplitUpdate      Action = "SPLIT_UPDATE"
	ActionSplitAutoBalance Action = "SPLIT_AUTO_BALANCE"
)

type EntityType string

const (
	EntityOrganization EntityType = "organization"
	EntityMembership   EntityType = "membership"
)

// OrgSnapshot is the audited shape of an organization, captured before and
// after structural mutations.
type OrgSnapshot struct {
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	ParentID *uuid.UUID `json:"parent_id"`
	Status   string     `json:"status"`
}

// OrgChanges is the payload for ORG_CREATE/ORG_UPDATE/ORG_MOVE/ORG_DELETE.
// Patch carries an RFC 6902 diff of Before → After on updates so trail
// consumers can render field-level changes without diffing themselves.
type OrgChanges struct {
	Before *OrgSnapshot    `json:"before,omitempty"`
	After  *OrgSnapshot    `json:"after,omitempty"`
	Patch  json.RawMessage `json:"patch,omitempty"`
}

// SplitChanges is the payload for SPLIT_UPDATE. Percentages are at the API
// scale (0..100).
type SplitChanges struct {
	UserID     uuid.UUID       `json:"user_id"`
	OldPercent decimal.Decimal `json:"old_percent"`
	NewPercent decimal.Decimal `json:"new_percent"`
}

// AutoBalanceEntry is one member's share change within a SPLIT_AUTO_BALANCE
// batch.
type AutoBalanceEntry struct {
	UserID     uuid.UUID       `json:"user_id"`
	OldPercent decimal.Decimal `json:"old_percent"`
	NewPercent decimal.Decimal `json:"new_percent"`
}

// AutoBalanceChanges is the payload for SPLIT_AUTO_BALANCE: one entry
// summarizes the whole batch.
type AutoBalanceChanges struct {
	Entries []AutoBalanceEntry `json:"entries"`
}

// MemberChanges is the payload for MEMBER_ADD/MEMBER_REMOVE/MEMBER_REACTIVATE.
type MemberChanges struct {
	UserID         uuid.UUID       `json:"user_id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	Role           string          `json:"role,omitempty"`
	SplitPercent   decimal.Decimal `json:"split_percent"`
	Active         bool            `json:"active"`
}

// Entry is a persisted audit record. Entries are never mutated or deleted.
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	ActorUserID uuid.UUID       `json:"actor_user_id"`
	Action      Action          `json:"action"`
	EntityType  EntityType      `json:"entity_type"`
	EntityID    uuid.UUID       `json:"entity_id"`
	Changes     json.RawMessage `json:"changes"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DecodeChanges deserializes an entry's payload into the struct matching its
// action kind.
func (e Entry) DecodeChanges() (any, error) {
	return decodeChanges(e.Action, e.Changes)
}

func decodeChanges(action Action, raw json.RawMessage) (any, error) {
	switch action {
	case ActionOrgCreate, ActionOrgUpdate, ActionOrgMove, ActionOrgDelete:
		var c OrgChanges
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case ActionSplitUpdate:
		var c SplitChanges
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case ActionSplitAutoBalance:
		var c AutoBalanceChanges
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case ActionMemberAdd, ActionMemberRemove, ActionMemberReactivate:
		var c MemberChanges
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown audit action %q", action)
	}
}

// Insert is a pending audit record.
type Insert struct {
	ActorUserID uuid.UUID
	Action      Action
	EntityType  EntityType
	EntityID    uuid.UUID
	Changes     any
}

func (i Insert) Validate() error {
	if i.ActorUserID == uuid.Nil {
		return errors.New("audit: actor_user_id is required")
	}
	if i.Action == "" {
		return errors.New("audit: action is required")
	}
	if i.EntityType == "" {
		return errors.New("audit: entity_type is required")
	}
	if i.EntityID == uuid.Nil {
		return errors.New("audit: entity_id is required")
	}
	return nil
}

func (i Insert) MarshalChanges() ([]byte, error) {
	if i.Changes == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(i.Changes)
}

// Recorder appends entries. Implementations must write within the
// transaction carried by the context so that a failed audit write rolls the
// whole mutation back.
type Recorder interface {
	Record(ctx context.Context, insert Insert) (uuid.UUID, error)
}

// Reader queries the trail.
type Reader interface {
	ListByEntity(ctx context.Context, entityType EntityType, entityID uuid.UUID, actions []Action, limit int) ([]Entry, error)
	// ListMembershipActionsForOrg lists membership-scoped entries whose
	// membership belongs to the given organization, newest first.
	ListMembershipActionsForOrg(ctx context.Context, orgID uuid.UUID, actions []Action, limit int) ([]Entry, error)
}
