package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianlife/agency-sdk/modules/audit"
	"github.com/meridianlife/agency-sdk/pkg/serrors"
)

// SplitConfig is the read model of an organization's current allocation.
type SplitConfig struct {
	OrganizationID uuid.UUID       `json:"organization_id"`
	Members        []Membership    `json:"members"`
	TotalSplit     decimal.Decimal `json:"total_split"`
	IsValid        bool            `json:"is_valid"`
}

// ConfigIssue is an advisory finding from ValidateConfig. Issues do not block
// anything; they tell an operator what to fix.
type ConfigIssue struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	UserID  *uuid.UUID `json:"user_id,omitempty"`
}

// ConfigService reads allocation state and history. All operations are
// read-only and run outside any transaction.
type ConfigService struct {
	members MembershipRepository
	history audit.Reader
}

func NewConfigService(members MembershipRepository, history audit.Reader) *ConfigService {
	return &ConfigService{members: members, history: history}
}

func (s *ConfigService) GetConfig(ctx context.Context, orgID uuid.UUID) (*SplitConfig, error) {
	active, err := s.activeMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, m := range active {
		total = total.Add(m.SplitPercent)
	}
	return &SplitConfig{
		OrganizationID: orgID,
		Members:        active,
		TotalSplit:     total,
		IsValid:        !total.GreaterThan(percentHundred),
	}, nil
}

// ValidateConfig flags over-allocation and members with a zero or unset
// split. Findings are advisory; the write paths enforce the hard cap.
func (s *ConfigService) ValidateConfig(ctx context.Context, orgID uuid.UUID) ([]ConfigIssue, error) {
	cfg, err := s.GetConfig(ctx, orgID)
	if err != nil {
		return nil, err
	}

	issues := make([]ConfigIssue, 0, len(cfg.Members)+1)
	if cfg.TotalSplit.GreaterThan(percentHundred) {
		issues = append(issues, ConfigIssue{
			Code:    "SPLIT_OVER_ALLOCATED",
			Message: fmt.Sprintf("active splits total %s%%, exceeding 100%%", cfg.TotalSplit),
		})
	}
	for _, m := range cfg.Members {
		if m.SplitPercent.IsZero() {
			uid := m.UserID
			issues = append(issues, ConfigIssue{
				Code:    "SPLIT_ZERO",
				Message: fmt.Sprintf("member %s has no commission split assigned", m.UserID),
				UserID:  &uid,
			})
		}
	}
	return issues, nil
}

// GetSplitHistory returns the organization's allocation audit trail, newest
// first: direct split updates, auto-balance batches, and membership changes
// that shifted the allocation.
func (s *ConfigService) GetSplitHistory(ctx context.Context, orgID uuid.UUID, limit int) ([]audit.Entry, error) {
	entries, err := s.history.ListByEntity(ctx, audit.EntityOrganization, orgID, []audit.Action{
		audit.ActionSplitAutoBalance,
	}, limit)
	if err != nil {
		return nil, mapPgError(err)
	}

	memberEntries, err := s.history.ListMembershipActionsForOrg(ctx, orgID, []audit.Action{
		audit.ActionSplitUpdate,
		audit.ActionMemberAdd,
		audit.ActionMemberRemove,
		audit.ActionMemberReactivate,
	}, limit)
	if err != nil {
		return nil, mapPgError(err)
	}

	merged := mergeNewestFirst(entries, memberEntries)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (s *ConfigService) activeMembers(ctx context.Context, orgID uuid.UUID) ([]Membership, error) {
	all, err := s.members.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, mapPgError(err)
	}
	if len(all) == 0 {
		exists, err := s.members.OrganizationExists(ctx, orgID)
		if err != nil {
			return nil, mapPgError(err)
		}
		if !exists {
			return nil, serrors.New(http.StatusNotFound, "ORG_NOT_FOUND", "organization not found", nil)
		}
	}

	active := make([]Membership, 0, len(all))
	for _, m := range all {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return active, nil
}

// mergeNewestFirst merges two created_at-descending slices, preserving order.
func mergeNewestFirst(a, b []audit.Entry) []audit.Entry {
	out := make([]audit.Entry, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].CreatedAt.After(b[j].CreatedAt) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
