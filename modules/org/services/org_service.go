package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wI2L/jsondiff"

	"github.com/meridianlife/agency-sdk/modules/audit"
	"github.com/meridianlife/agency-sdk/modules/org/domain/events"
	"github.com/meridianlife/agency-sdk/pkg/eventbus"
	"github.com/meridianlife/agency-sdk/pkg/repo"
	"github.com/meridianlife/agency-sdk/pkg/serrors"
)

// OrgType is the level of an organization within the agency hierarchy.
type OrgType string

const (
	OrgTypeIMO    OrgType = "imo"
	OrgTypeMGA    OrgType = "mga"
	OrgTypeAgency OrgType = "agency"
	OrgTypeTeam   OrgType = "team"
)

func ParseOrgType(v string) (OrgType, bool) {
	switch OrgType(strings.ToLower(strings.TrimSpace(v))) {
	case OrgTypeIMO:
		return OrgTypeIMO, true
	case OrgTypeMGA:
		return OrgTypeMGA, true
	case OrgTypeAgency:
		return OrgTypeAgency, true
	case OrgTypeTeam:
		return OrgTypeTeam, true
	default:
		return "", false
	}
}

// OrgStatus is an explicit lifecycle state rather than a boolean so future
// states (suspended, archived) do not overload soft-delete semantics.
type OrgStatus string

const (
	OrgStatusActive   OrgStatus = "active"
	OrgStatusInactive OrgStatus = "inactive"
)

type Organization struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	Type     OrgType    `json:"type"`
	ParentID *uuid.UUID `json:"parent_id"`
	Status   OrgStatus  `json:"status"`

	// Contact fields are opaque to the engine; they are stored and echoed
	// back but never interpreted.
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	AddressLine string `json:"address_line,omitempty"`
	City        string `json:"city,omitempty"`
	Region      string `json:"region,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OrgInsert struct {
	Name        string
	Type        OrgType
	ParentID    *uuid.UUID
	Status      OrgStatus
	Email       string
	Phone       string
	AddressLine string
	City        string
	Region      string
	PostalCode  string
}

// OrgNode is a flat hierarchy row with the aggregate counts GetHierarchy
// attaches to every tree node.
type OrgNode struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Type              OrgType    `json:"type"`
	ParentID          *uuid.UUID `json:"parent_id"`
	Status            OrgStatus  `json:"status"`
	ActiveMemberCount int        `json:"active_member_count"`
}

type OrgRepository interface {
	ParentResolver

	GetByID(ctx context.Context, id uuid.UUID) (Organization, error)
	// LockByID loads the row FOR UPDATE so a structural check and the write
	// that follows it see the same state.
	LockByID(ctx context.Context, id uuid.UUID) (Organization, error)
	Insert(ctx context.Context, in OrgInsert) (uuid.UUID, error)
	Update(ctx context.Context, org Organization) error
	SetParent(ctx context.Context, id uuid.UUID, parentID *uuid.UUID) error
	SetStatus(ctx context.Context, id uuid.UUID, status OrgStatus) error
	List(ctx context.Context) ([]OrgNode, error)
	CountActiveChildren(ctx context.Context, id uuid.UUID) (int, error)
	CountActiveMembers(ctx context.Context, id uuid.UUID) (int, error)
}

// HierarchyService owns organization create/update/move/delete and tree
// materialization. Every mutation validates against repository state, writes
// its audit entry in the same transaction, and publishes a domain event after
// commit.
type HierarchyService struct {
	orgs     OrgRepository
	trail    audit.Recorder
	cycles   *CycleDetector
	tx       repo.Transactor
	bus      eventbus.EventBus
	maxDepth int
}

func NewHierarchyService(
	orgs OrgRepository,
	trail audit.Recorder,
	cycles *CycleDetector,
	tx repo.Transactor,
	bus eventbus.EventBus,
	maxDepth int,
) *HierarchyService {
	return &HierarchyService{
		orgs:     orgs,
		trail:    trail,
		cycles:   cycles,
		tx:       tx,
		bus:      bus,
		maxDepth: maxDepth,
	}
}

func (s *HierarchyService) publish(args ...any) {
	if s.bus != nil {
		s.bus.Publish(args...)
	}
}

type CreateOrganizationInput struct {
	Name        string
	Type        string
	ParentID    *uuid.UUID
	Email       string
	Phone       string
	AddressLine string
	City        string
	Region      string
	PostalCode  string
}

func (s *HierarchyService) Create(ctx context.Context, in CreateOrganizationInput, actorID uuid.UUID) (*Organization, error) {
	if actorID == uuid.Nil {
		return nil, serrors.New(http.StatusBadRequest, "ORG_NO_ACTOR", "actor is required", nil)
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, serrors.New(http.StatusBadRequest, "ORG_INVALID_BODY", "name is required", nil)
	}
	orgType, ok := ParseOrgType(in.Type)
	if !ok {
		return nil, serrors.New(http.StatusBadRequest, "ORG_INVALID_BODY", "type must be one of imo/mga/agency/team", nil)
	}

	org, err := inTx(ctx, s.tx, func(txCtx context.Context) (Organization, error) {
		if in.ParentID != nil {
			if _, err := s.orgs.GetByID(txCtx, *in.ParentID); err != nil {
				return Organization{}, mapParentLookupError(err)
			}
			// The entity has no id yet; walking the parent's own ancestor
			// chain still catches pre-existing corruption before it grows.
			if err := s.cycles.ValidateChain(txCtx, *in.ParentID); err != nil {
				return Organization{}, err
			}
		}

		id, err := s.orgs.Insert(txCtx, OrgInsert{
			Name:        in.Name,
			Type:        orgType,
			ParentID:    in.ParentID,
			Status:      OrgStatusActive,
			Email:       in.Email,
			Phone:       in.Phone,
			AddressLine: in.AddressLine,
			City:        in.City,
			Region:      in.Region,
			PostalCode:  in.PostalCode,
		})
		if err != nil {
			return Organization{}, mapPgError(err)
		}

		created, err := s.orgs.GetByID(txCtx, id)
		if err != nil {
			return Organization{}, mapPgError(err)
		}

		if _, err := s.trail.Record(txCtx, audit.Insert{
			ActorUserID: actorID,
			Action:      audit.ActionOrgCreate,
			EntityType:  audit.EntityOrganization,
			EntityID:    id,
			Changes:     audit.OrgChanges{After: snapshotOf(created)},
		}); err != nil {
			return Organization{}, mapPgError(err)
		}
		return created, nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.OrganizationCreated{
		OrganizationID: org.ID,
		ParentID:       org.ParentID,
		ActorUserID:    actorID,
		OccurredAt:     time.Now().UTC(),
	})
	return &org, nil
}

// UpdateOrganizationInput uses double pointers for ParentID so "set to null"
// and "leave unchanged" stay distinguishable.
type UpdateOrganizationInput struct {
	Name        *string
	Type        *string
	ParentID    **uuid.UUID
	Email       *string
	Phone       *string
	AddressLine *string
	City        *string
	Region      *string
	PostalCode  *string
}

func (s *HierarchyService) Update(ctx context.Context, id uuid.UUID, in UpdateOrganizationInput, actorID uuid.UUID) (*Organization, error) {
	if actorID == uuid.Nil {
		return nil, serrors.New(http.StatusBadRequest, "ORG_NO_ACTOR", "actor is required", nil)
	}
	if id == uuid.Nil {
		return nil, serrors.New(http.StatusBadRequest, "ORG_INVALID_BODY", "id is required", nil)
	}

	org, err := inTx(ctx, s.tx, func(txCtx context.Context) (Organization, error) {
		current, err := s.orgs.LockByID(txCtx, id)
		if err != nil {
			return Organization{}, mapPgError(err)
		}

		next := current
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return Organization{}, serrors.New(http.StatusBadRequest, "ORG_INVALID_BODY", "name must not be empty", nil)
			}
			next.Name = name
		}
		if in.Type != nil {
			orgType, ok := ParseOrgType(*in.Type)
			if !ok {
				return Organization{}, serrors.New(http.StatusBadRequest, "ORG_INVALID_BODY", "type must be one of imo/mga/agency/team", nil)
			}
			next.Type = orgType
		}
		if in.ParentID != nil {
			newParent := *in.ParentID
			if err := s.checkReparent(txCtx, id, newParent); err != nil {
				return Organization{}, err
			}
			next.ParentID = newParent
		}
		if in.Email != nil {
			next.Email = *in.Email
		}
		if in.Phone != nil {
			next.Phone = *in.Phone
		}
		if in.AddressLine != nil {
			next.AddressLine = *in.AddressLine
		}
		if in.City != nil {
			next.City = *in.City
		}
		if in.Region != nil {
			next.Region = *in.Region
		}
		if in.PostalCode != nil {
			next.PostalCode = *in.PostalCode
		}

		if err := s.orgs.Update(txCtx, next); err != nil {
			return Organization{}, mapPgError(err)
		}
		updated, err := s.orgs.GetByID(txCtx, id)
		if err != nil {
			return Organization{}, mapPgError(err)
		}

		if _, err := s.trail.Record(txCtx, audit.Insert{
			ActorUserID: actorID,
			Action:      audit.ActionOrgUpdate,
			EntityType:  audit.EntityOrganization,
			EntityID:    id,
			Changes:     orgChangesWithPatch(current, updated),
		}); err != nil {
			return Organization{}, mapPgError(err)
		}
		return updated, nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.OrganizationUpdated{
		OrganizationID: id,
		ActorUserID:    actorID,
		OccurredAt:     time.Now().UTC(),
	})
	return &org, nil
}

// Move is the dedicated reparenting path; it enforces the same cycle and
// self-parent checks as Update.
func (s *HierarchyService) Move(ctx context.Context, id uuid.UUID, newParentID *uuid.UUID, actorID uuid.UUID) error {
	if actorID == uuid.Nil {
		return serrors.New(http.StatusBadRequest, "ORG_NO_ACTOR", "actor is required", nil)
	}
	if id == uuid.Nil {
		return serrors.New(http.StatusBadRequest, "ORG_INVALID_BODY", "id is required", nil)
	}

	moved, err := inTx(ctx, s.tx, func(txCtx context.Context) (events.OrganizationMoved, error) {
		current, err := s.orgs.LockByID(txCtx, id)
		if err != nil {
			return events.OrganizationMoved{}, mapPgError(err)
		}
		if err := s.checkReparent(txCtx, id, newParentID); err != nil {
			return events.OrganizationMoved{}, err
		}

		if err := s.orgs.SetParent(txCtx, id, newParentID); err != nil {
			return events.OrganizationMoved{}, mapPgError(err)
		}
		updated, err := s.orgs.GetByID(txCtx, id)
		if err != nil {
			return events.OrganizationMoved{}, mapPgError(err)
		}

		if _, err := s.trail.Record(txCtx, audit.Insert{
			ActorUserID: actorID,
			Action:      audit.ActionOrgMove,
			EntityType:  audit.EntityOrganization,
			EntityID:    id,
			Changes: audit.OrgChanges{
				Before: snapshotOf(current),
				After:  snapshotOf(updated),
			},
		}); err != nil {
			return events.OrganizationMoved{}, mapPgError(err)
		}

		return events.OrganizationMoved{
			OrganizationID: id,
			OldParentID:    current.ParentID,
			NewParentID:    newParentID,
			ActorUserID:    actorID,
		}, nil
	})
	if err != nil {
		return err
	}

	moved.OccurredAt = time.Now().UTC()
	s.publish(moved)
	return nil
}

// Delete soft-deletes: status flips to inactive, the row stays. Blocked while
// the organization still has active children or active members so structure
// is never silently orphaned.
func (s *HierarchyService) Delete(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	if actorID == uuid.Nil {
		return serrors.New(http.StatusBadRequest, "ORG_NO_ACTOR", "actor is required", nil)
	}
	if id == uuid.Nil {
		return serrors.New(http.StatusBadRequest, "ORG_INVALID_BODY", "id is required", nil)
	}

	deleted, err := inTx(ctx, s.tx, func(txCtx context.Context) (bool, error) {
		current, err := s.orgs.LockByID(txCtx, id)
		if err != nil {
			return false, mapPgError(err)
		}
		if current.Status == OrgStatusInactive {
			return false, nil
		}

		children, err := s.orgs.CountActiveChildren(txCtx, id)
		if err != nil {
			return false, mapPgError(err)
		}
		if children > 0 {
			return false, serrors.New(http.StatusConflict, "ORG_HAS_ACTIVE_CHILDREN", "organization still has active child organizations", nil)
		}
		members, err := s.orgs.CountActiveMembers(txCtx, id)
		if err != nil {
			return false, mapPgError(err)
		}
		if members > 0 {
			return false, serrors.New(http.StatusConflict, "ORG_HAS_ACTIVE_MEMBERS", "organization still has active members", nil)
		}

		if err := s.orgs.SetStatus(txCtx, id, OrgStatusInactive); err != nil {
			return false, mapPgError(err)
		}
		after := current
		after.Status = OrgStatusInactive

		if _, err := s.trail.Record(txCtx, audit.Insert{
			ActorUserID: actorID,
			Action:      audit.ActionOrgDelete,
			EntityType:  audit.EntityOrganization,
			EntityID:    id,
			Changes: audit.OrgChanges{
				Before: snapshotOf(current),
				After:  snapshotOf(after),
			},
		}); err != nil {
			return false, mapPgError(err)
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	if deleted {
		s.publish(events.OrganizationDeleted{
			OrganizationID: id,
			ActorUserID:    actorID,
			OccurredAt:     time.Now().UTC(),
		})
	}
	return nil
}

func (s *HierarchyService) checkReparent(ctx context.Context, id uuid.UUID, newParentID *uuid.UUID) error {
	if newParentID == nil {
		return nil
	}
	if *newParentID == id {
		return serrors.New(http.StatusUnprocessableEntity, "ORG_SELF_PARENT", "organization cannot be its own parent", nil)
	}
	if _, err := s.orgs.GetByID(ctx, *newParentID); err != nil {
		return mapParentLookupError(err)
	}
	cyclic, err := s.cycles.WouldCreateCycle(ctx, *newParentID, id)
	if err != nil {
		return err
	}
	if cyclic {
		return errCyclicHierarchy(nil)
	}
	return nil
}

func snapshotOf(o Organization) *audit.OrgSnapshot {
	return &audit.OrgSnapshot{
		Name:     o.Name,
		Type:     string(o.Type),
		ParentID: o.ParentID,
		Status:   string(o.Status),
	}
}

func orgChangesWithPatch(before, after Organization) audit.OrgChanges {
	changes := audit.OrgChanges{
		Before: snapshotOf(before),
		After:  snapshotOf(after),
	}
	patch, err := jsondiff.Compare(changes.Before, changes.After)
	if err == nil && len(patch) > 0 {
		if raw, mErr := json.Marshal(patch); mErr == nil {
			changes.Patch = raw
		}
	}
	return changes
}

func errCyclicHierarchy(cause error) error {
	return serrors.New(http.StatusConflict, "ORG_CYCLE", "operation would create a cycle in the hierarchy", cause)
}

func inTx[T any](ctx context.Context, txr repo.Transactor, fn func(txCtx context.Context) (T, error)) (T, error) {
	var out T
	err := txr.WithinTx(ctx, func(txCtx context.Context) error {
		var innerErr error
		out, innerErr = fn(txCtx)
		return innerErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
