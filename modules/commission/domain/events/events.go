package events

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SplitUpdatedEvent is published after a single member's split commits.
type SplitUpdatedEvent struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	NewPercent     decimal.Decimal
	ActorID        uuid.UUID
}

// SplitsAutoBalancedEvent is published once per committed auto-balance batch.
type SplitsAutoBalancedEvent struct {
	OrganizationID uuid.UUID
	ActorID        uuid.UUID
}

type MemberAddedEvent struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	ActorID        uuid.UUID
}

type MemberRemovedEvent struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	ActorID        uuid.UUID
}

type MemberReactivatedEvent struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	ActorID        uuid.UUID
}
