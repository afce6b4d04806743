package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridianlife/agency-sdk/modules/audit"
	"github.com/meridianlife/agency-sdk/modules/commission/domain/events"
	"github.com/meridianlife/agency-sdk/pkg/eventbus"
	"github.com/meridianlife/agency-sdk/pkg/repo"
	"github.com/meridianlife/agency-sdk/pkg/serrors"
)

// MemberService owns membership lifecycle: add, soft remove, reactivate. Add
// and reactivate count toward the organization's 100% cap, so both lock the
// active membership set before deciding.
type MemberService struct {
	members MembershipRepository
	trail   audit.Recorder
	tx      repo.Transactor
	bus     eventbus.EventBus
}

func NewMemberService(members MembershipRepository, trail audit.Recorder, tx repo.Transactor, bus eventbus.EventBus) *MemberService {
	return &MemberService{members: members, trail: trail, tx: tx, bus: bus}
}

type AddMemberInput struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Role           string
	SplitPercent   decimal.Decimal
}

func (s *MemberService) AddMember(ctx context.Context, in AddMemberInput, actorID uuid.UUID) (*Membership, error) {
	if actorID == uuid.Nil {
		return nil, serrors.New(http.StatusBadRequest, "SPLIT_NO_ACTOR", "actor is required", nil)
	}
	if in.OrganizationID == uuid.Nil || in.UserID == uuid.Nil {
		return nil, serrors.New(http.StatusBadRequest, "SPLIT_INVALID_BODY", "organization_id and user_id are required", nil)
	}
	if err := validateSplitRange(in.SplitPercent); err != nil {
		return nil, err
	}

	added, err := inTx(ctx, s.tx, func(txCtx context.Context) (Membership, error) {
		exists, err := s.members.OrganizationExists(txCtx, in.OrganizationID)
		if err != nil {
			return Membership{}, err
		}
		if !exists {
			return Membership{}, serrors.New(http.StatusNotFound, "ORG_NOT_FOUND", "organization not found", nil)
		}

		// A previously removed member must come back through reactivation so
		// the (user, organization) row stays unique.
		if existing, err := s.members.GetByUser(txCtx, in.OrganizationID, in.UserID); err == nil {
			if existing.IsActive {
				return Membership{}, serrors.New(http.StatusConflict, "MEMBER_EXISTS",
					"user is already an active member of this organization", nil)
			}
			return Membership{}, serrors.New(http.StatusConflict, "MEMBER_INACTIVE",
				"user has an inactive membership in this organization; reactivate it instead", nil)
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return Membership{}, err
		}

		if err := s.checkCapacity(txCtx, in.OrganizationID, in.SplitPercent); err != nil {
			return Membership{}, err
		}

		id, err := s.members.Insert(txCtx, MembershipInsert{
			UserID:         in.UserID,
			OrganizationID: in.OrganizationID,
			Role:           in.Role,
			SplitPercent:   in.SplitPercent,
		})
		if err != nil {
			return Membership{}, err
		}

		if _, err := s.trail.Record(txCtx, audit.Insert{
			ActorUserID: actorID,
			Action:      audit.ActionMemberAdd,
			EntityType:  audit.EntityMembership,
			EntityID:    id,
			Changes: audit.MemberChanges{
				UserID:         in.UserID,
				OrganizationID: in.OrganizationID,
				Role:           in.Role,
				SplitPercent:   in.SplitPercent,
				Active:         true,
			},
		}); err != nil {
			return Membership{}, err
		}

		return s.members.GetByUser(txCtx, in.OrganizationID, in.UserID)
	})
	if err != nil {
		return nil, mapPgError(err)
	}

	s.bus.Publish(&events.MemberAddedEvent{OrganizationID: in.OrganizationID, UserID: in.UserID, ActorID: actorID})
	return &added, nil
}

func (s *MemberService) RemoveMember(ctx context.Context, orgID, userID uuid.UUID, actorID uuid.UUID) error {
	if actorID == uuid.Nil {
		return serrors.New(http.StatusBadRequest, "SPLIT_NO_ACTOR", "actor is required", nil)
	}

	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		m, err := s.members.GetByUser(txCtx, orgID, userID)
		if err != nil {
			return err
		}
		if !m.IsActive {
			// Removing an already removed member is a no-op.
			return nil
		}

		if err := s.members.Deactivate(txCtx, m.ID); err != nil {
			return err
		}

		_, err = s.trail.Record(txCtx, audit.Insert{
			ActorUserID: actorID,
			Action:      audit.ActionMemberRemove,
			EntityType:  audit.EntityMembership,
			EntityID:    m.ID,
			Changes: audit.MemberChanges{
				UserID:         userID,
				OrganizationID: orgID,
				Role:           m.Role,
				SplitPercent:   m.SplitPercent,
				Active:         false,
			},
		})
		return err
	})
	if err != nil {
		return mapPgError(err)
	}

	s.bus.Publish(&events.MemberRemovedEvent{OrganizationID: orgID, UserID: userID, ActorID: actorID})
	return nil
}

func (s *MemberService) ReactivateMember(ctx context.Context, orgID, userID uuid.UUID, percent decimal.Decimal, actorID uuid.UUID) (*Membership, error) {
	if actorID == uuid.Nil {
		return nil, serrors.New(http.StatusBadRequest, "SPLIT_NO_ACTOR", "actor is required", nil)
	}
	if err := validateSplitRange(percent); err != nil {
		return nil, err
	}

	revived, err := inTx(ctx, s.tx, func(txCtx context.Context) (Membership, error) {
		m, err := s.members.GetByUser(txCtx, orgID, userID)
		if err != nil {
			return Membership{}, err
		}
		if m.IsActive {
			return Membership{}, serrors.New(http.StatusConflict, "MEMBER_EXISTS",
				"user is already an active member of this organization", nil)
		}

		if err := s.checkCapacity(txCtx, orgID, percent); err != nil {
			return Membership{}, err
		}
		if err := s.members.Reactivate(txCtx, m.ID, percent); err != nil {
			return Membership{}, err
		}

		if _, err := s.trail.Record(txCtx, audit.Insert{
			ActorUserID: actorID,
			Action:      audit.ActionMemberReactivate,
			EntityType:  audit.EntityMembership,
			EntityID:    m.ID,
			Changes: audit.MemberChanges{
				UserID:         userID,
				OrganizationID: orgID,
				Role:           m.Role,
				SplitPercent:   percent,
				Active:         true,
			},
		}); err != nil {
			return Membership{}, err
		}

		return s.members.GetByUser(txCtx, orgID, userID)
	})
	if err != nil {
		return nil, mapPgError(err)
	}

	s.bus.Publish(&events.MemberReactivatedEvent{OrganizationID: orgID, UserID: userID, ActorID: actorID})
	return &revived, nil
}

// checkCapacity verifies that adding percent on top of the organization's
// current active total stays within 100%. Must run inside a transaction; it
// locks the active membership set.
func (s *MemberService) checkCapacity(txCtx context.Context, orgID uuid.UUID, percent decimal.Decimal) error {
	active, err := s.members.ListActiveForUpdate(txCtx, orgID)
	if err != nil {
		return err
	}
	current := decimal.Zero
	for _, m := range active {
		current = current.Add(m.SplitPercent)
	}
	attempted := current.Add(percent)
	if attempted.GreaterThan(percentHundred) {
		return errOverAllocated(attempted, current)
	}
	return nil
}
