package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianlife/agency-sdk/modules/audit"
	"github.com/meridianlife/agency-sdk/modules/commission/domain/events"
	"github.com/meridianlife/agency-sdk/pkg/eventbus"
	"github.com/meridianlife/agency-sdk/pkg/repo"
	"github.com/meridianlife/agency-sdk/pkg/serrors"
)

var (
	percentZero    = decimal.Zero
	percentHundred = decimal.NewFromInt(100)
)

// Membership is a user's placement within one organization. SplitPercent is
// the member's commission share in percent; persistence stores it as a
// fraction, services and the API never see the fraction form.
type Membership struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	Role           string          `json:"role"`
	SplitPercent   decimal.Decimal `json:"split_percent"`
	IsActive       bool            `json:"is_active"`
	JoinedAt       time.Time       `json:"joined_at"`
	LeftAt         *time.Time      `json:"left_at,omitempty"`
}

type MembershipInsert struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           string
	SplitPercent   decimal.Decimal
}

type MembershipRepository interface {
	GetByUser(ctx context.Context, orgID, userID uuid.UUID) (Membership, error)
	// ListActiveForUpdate loads every active membership of the organization
	// FOR UPDATE in joined_at order, so a sum check and the writes that
	// follow it see the same membership set.
	ListActiveForUpdate(ctx context.Context, orgID uuid.UUID) ([]Membership, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]Membership, error)
	// FirstActiveForUser resolves the user's primary organization: the
	// active membership with the earliest joined_at.
	FirstActiveForUser(ctx context.Context, userID uuid.UUID) (Membership, bool, error)
	Insert(ctx context.Context, in MembershipInsert) (uuid.UUID, error)
	UpdateSplit(ctx context.Context, membershipID uuid.UUID, percent decimal.Decimal) error
	Deactivate(ctx context.Context, membershipID uuid.UUID) error
	Reactivate(ctx context.Context, membershipID uuid.UUID, percent decimal.Decimal) error
	OrganizationExists(ctx context.Context, orgID uuid.UUID) (bool, error)
}

// SplitUpdateEntry is one element of a bulk update request.
type SplitUpdateEntry struct {
	OrganizationID uuid.UUID       `json:"organization_id"`
	UserID         uuid.UUID       `json:"user_id"`
	SplitPercent   decimal.Decimal `json:"split_percent"`
}

// SplitUpdateResult reports the outcome of one bulk entry. Err is nil on
// success; failed entries carry the same typed error a single update would
// have returned.
type SplitUpdateResult struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	UserID         uuid.UUID `json:"user_id"`
	Success        bool      `json:"success"`
	Err            error     `json:"-"`
	ErrorMessage   string    `json:"error,omitempty"`
	ErrorCode      string    `json:"error_code,omitempty"`
}

// SplitService owns commission-split mutations. Every multi-row mutation
// locks the organization's active membership set, re-checks the 100% cap
// against the locked rows, and writes its audit entry before commit.
type SplitService struct {
	members MembershipRepository
	trail   audit.Recorder
	tx      repo.Transactor
	bus     eventbus.EventBus
}

func NewSplitService(members MembershipRepository, trail audit.Recorder, tx repo.Transactor, bus eventbus.EventBus) *SplitService {
	return &SplitService{members: members, trail: trail, tx: tx, bus: bus}
}

func (s *SplitService) UpdateMemberSplit(ctx context.Context, orgID, userID uuid.UUID, percent decimal.Decimal, actorID uuid.UUID) (*Membership, error) {
	if actorID == uuid.Nil {
		return nil, serrors.New(http.StatusBadRequest, "SPLIT_NO_ACTOR", "actor is required", nil)
	}
	if err := validateSplitRange(percent); err != nil {
		return nil, err
	}

	updated, err := inTx(ctx, s.tx, func(txCtx context.Context) (Membership, error) {
		return s.applySplitUpdate(txCtx, orgID, userID, percent, actorID)
	})
	if err != nil {
		return nil, mapPgError(err)
	}

	s.bus.Publish(&events.SplitUpdatedEvent{
		OrganizationID: orgID,
		UserID:         userID,
		NewPercent:     percent,
		ActorID:        actorID,
	})
	return &updated, nil
}

// applySplitUpdate is the transactional core shared by the single and bulk
// paths. It must run inside a transaction created by the caller.
func (s *SplitService) applySplitUpdate(txCtx context.Context, orgID, userID uuid.UUID, percent decimal.Decimal, actorID uuid.UUID) (Membership, error) {
	active, err := s.members.ListActiveForUpdate(txCtx, orgID)
	if err != nil {
		return Membership{}, err
	}

	var target *Membership
	total := decimal.Zero
	for i := range active {
		if active[i].UserID == userID {
			target = &active[i]
			total = total.Add(percent)
			continue
		}
		total = total.Add(active[i].SplitPercent)
	}
	if target == nil {
		return Membership{}, serrors.New(http.StatusNotFound, "MEMBER_NOT_FOUND",
			"no active membership for this user in this organization", nil)
	}
	if total.GreaterThan(percentHundred) {
		return Membership{}, errOverAllocated(total, total.Sub(percent).Add(target.SplitPercent))
	}

	return s.writeSplit(txCtx, *target, percent, actorID)
}

// writeSplit persists one member's new percent and its audit entry. The
// caller has already locked the membership set and verified the 100% cap.
func (s *SplitService) writeSplit(txCtx context.Context, target Membership, percent decimal.Decimal, actorID uuid.UUID) (Membership, error) {
	old := target.SplitPercent
	if err := s.members.UpdateSplit(txCtx, target.ID, percent); err != nil {
		return Membership{}, err
	}

	if _, err := s.trail.Record(txCtx, audit.Insert{
		ActorUserID: actorID,
		Action:      audit.ActionSplitUpdate,
		EntityType:  audit.EntityMembership,
		EntityID:    target.ID,
		Changes: audit.SplitChanges{
			UserID:     target.UserID,
			OldPercent: old,
			NewPercent: percent,
		},
	}); err != nil {
		return Membership{}, err
	}

	target.SplitPercent = percent
	return target, nil
}

// BulkUpdateSplits applies entries spanning multiple organizations. Range and
// duplicate validation is fail-fast across the whole request; after that, each
// organization's batch runs in its own transaction so one over-allocated
// organization cannot block an independent one. Partial success is the
// reported outcome, not an error.
func (s *SplitService) BulkUpdateSplits(ctx context.Context, entries []SplitUpdateEntry, actorID uuid.UUID) ([]SplitUpdateResult, error) {
	if actorID == uuid.Nil {
		return nil, serrors.New(http.StatusBadRequest, "SPLIT_NO_ACTOR", "actor is required", nil)
	}
	if len(entries) == 0 {
		return nil, serrors.New(http.StatusBadRequest, "SPLIT_INVALID_BODY", "at least one entry is required", nil)
	}
	type orgUser struct{ org, user uuid.UUID }
	seen := make(map[orgUser]int, len(entries))
	for i, e := range entries {
		if e.OrganizationID == uuid.Nil || e.UserID == uuid.Nil {
			return nil, serrors.New(http.StatusBadRequest, "SPLIT_INVALID_BODY",
				fmt.Sprintf("entry %d: organization_id and user_id are required", i), nil)
		}
		if err := validateSplitRange(e.SplitPercent); err != nil {
			return nil, serrors.New(http.StatusBadRequest, "SPLIT_INVALID_BODY",
				fmt.Sprintf("entry %d: %s", i, err.(*serrors.ServiceError).Message), nil)
		}
		key := orgUser{e.OrganizationID, e.UserID}
		if prev, dup := seen[key]; dup {
			return nil, serrors.New(http.StatusBadRequest, "SPLIT_INVALID_BODY",
				fmt.Sprintf("entry %d: duplicate update for user %s in organization %s (entry %d)",
					i, e.UserID, e.OrganizationID, prev), nil)
		}
		seen[key] = i
	}

	// Batches carry positions into entries so every result lands in its own
	// slot of the positional result list.
	byOrg := make(map[uuid.UUID][]int)
	orgOrder := make([]uuid.UUID, 0, len(entries))
	for i, e := range entries {
		if _, grouped := byOrg[e.OrganizationID]; !grouped {
			orgOrder = append(orgOrder, e.OrganizationID)
		}
		byOrg[e.OrganizationID] = append(byOrg[e.OrganizationID], i)
	}

	results := make([]SplitUpdateResult, len(entries))
	for i, e := range entries {
		results[i] = SplitUpdateResult{OrganizationID: e.OrganizationID, UserID: e.UserID}
	}

	for _, orgID := range orgOrder {
		positions := byOrg[orgID]
		batch := make([]SplitUpdateEntry, 0, len(positions))
		for _, i := range positions {
			batch = append(batch, entries[i])
		}
		err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
			return s.applyOrgBatch(txCtx, orgID, batch, actorID)
		})
		for _, i := range positions {
			res := &results[i]
			if err != nil {
				res.Success = false
				res.Err = mapPgError(err)
				var se *serrors.ServiceError
				if errors.As(res.Err, &se) {
					res.ErrorMessage = se.Message
					res.ErrorCode = se.Code
				} else {
					res.ErrorMessage = res.Err.Error()
				}
				continue
			}
			res.Success = true
			s.bus.Publish(&events.SplitUpdatedEvent{
				OrganizationID: orgID,
				UserID:         entries[i].UserID,
				NewPercent:     entries[i].SplitPercent,
				ActorID:        actorID,
			})
		}
	}
	return results, nil
}

// applyOrgBatch validates the union of new values and unmentioned members'
// current values, then applies each entry. Any failure aborts the whole
// organization's transaction.
func (s *SplitService) applyOrgBatch(txCtx context.Context, orgID uuid.UUID, batch []SplitUpdateEntry, actorID uuid.UUID) error {
	active, err := s.members.ListActiveForUpdate(txCtx, orgID)
	if err != nil {
		return err
	}

	newByUser := make(map[uuid.UUID]decimal.Decimal, len(batch))
	for _, e := range batch {
		newByUser[e.UserID] = e.SplitPercent
	}

	current := decimal.Zero
	total := decimal.Zero
	known := make(map[uuid.UUID]struct{}, len(active))
	for _, m := range active {
		known[m.UserID] = struct{}{}
		current = current.Add(m.SplitPercent)
		if v, ok := newByUser[m.UserID]; ok {
			total = total.Add(v)
		} else {
			total = total.Add(m.SplitPercent)
		}
	}
	for _, e := range batch {
		if _, ok := known[e.UserID]; !ok {
			return serrors.New(http.StatusNotFound, "MEMBER_NOT_FOUND",
				fmt.Sprintf("no active membership for user %s in organization %s", e.UserID, orgID), nil)
		}
	}
	if total.GreaterThan(percentHundred) {
		return errOverAllocated(total, current)
	}

	byUser := make(map[uuid.UUID]Membership, len(active))
	for _, m := range active {
		byUser[m.UserID] = m
	}
	for _, e := range batch {
		if _, err := s.writeSplit(txCtx, byUser[e.UserID], e.SplitPercent, actorID); err != nil {
			return err
		}
	}
	return nil
}

// AutoBalance distributes 100% evenly over the organization's active members:
// floor(100/n) each, with the remainder handed out one point at a time in
// joined_at order. Repeated calls on an unchanged membership set produce the
// same assignment. The returned config reflects the post-balance allocation.
func (s *SplitService) AutoBalance(ctx context.Context, orgID uuid.UUID, actorID uuid.UUID) (*SplitConfig, error) {
	if actorID == uuid.Nil {
		return nil, serrors.New(http.StatusBadRequest, "SPLIT_NO_ACTOR", "actor is required", nil)
	}

	balanced, err := inTx(ctx, s.tx, func(txCtx context.Context) ([]Membership, error) {
		active, err := s.members.ListActiveForUpdate(txCtx, orgID)
		if err != nil {
			return nil, err
		}
		if len(active) == 0 {
			exists, err := s.members.OrganizationExists(txCtx, orgID)
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, serrors.New(http.StatusNotFound, "ORG_NOT_FOUND", "organization not found", nil)
			}
			return nil, serrors.New(http.StatusUnprocessableEntity, "SPLIT_NO_MEMBERS",
				"organization has no active members to balance", nil)
		}

		n := int64(len(active))
		base := 100 / n
		remainder := 100 % n

		changes := make([]audit.AutoBalanceEntry, 0, len(active))
		out := make([]Membership, 0, len(active))
		for i := range active {
			share := decimal.NewFromInt(base)
			if int64(i) < remainder {
				share = share.Add(decimal.NewFromInt(1))
			}
			old := active[i].SplitPercent
			if !old.Equal(share) {
				if err := s.members.UpdateSplit(txCtx, active[i].ID, share); err != nil {
					return nil, err
				}
			}
			changes = append(changes, audit.AutoBalanceEntry{
				UserID:     active[i].UserID,
				OldPercent: old,
				NewPercent: share,
			})
			m := active[i]
			m.SplitPercent = share
			out = append(out, m)
		}

		if _, err := s.trail.Record(txCtx, audit.Insert{
			ActorUserID: actorID,
			Action:      audit.ActionSplitAutoBalance,
			EntityType:  audit.EntityOrganization,
			EntityID:    orgID,
			Changes:     audit.AutoBalanceChanges{Entries: changes},
		}); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, mapPgError(err)
	}

	s.bus.Publish(&events.SplitsAutoBalancedEvent{OrganizationID: orgID, ActorID: actorID})

	total := decimal.Zero
	for _, m := range balanced {
		total = total.Add(m.SplitPercent)
	}
	return &SplitConfig{
		OrganizationID: orgID,
		Members:        balanced,
		TotalSplit:     total,
		IsValid:        !total.GreaterThan(percentHundred),
	}, nil
}

func validateSplitRange(percent decimal.Decimal) error {
	if percent.LessThan(percentZero) || percent.GreaterThan(percentHundred) {
		return serrors.New(http.StatusBadRequest, "SPLIT_OUT_OF_RANGE",
			fmt.Sprintf("split percent must be between 0 and 100, got %s", percent), nil)
	}
	return nil
}

func errOverAllocated(attempted, current decimal.Decimal) error {
	return serrors.New(http.StatusUnprocessableEntity, "SPLIT_OVER_ALLOCATED",
		fmt.Sprintf("split total would be %s%%, exceeding 100%% (current total %s%%)", attempted, current), nil)
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
