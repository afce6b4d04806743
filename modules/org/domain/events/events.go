// Package events holds the domain events the hierarchy module publishes on
// the in-process bus after a mutation commits. The report layer consumes them
// to refresh downstream statistics.
package events

import (
	"time"

	"github.com/google/uuid"
)

type OrganizationCreated struct {
	OrganizationID uuid.UUID
	ParentID       *uuid.UUID
	ActorUserID    uuid.UUID
	OccurredAt     time.Time
}

type OrganizationUpdated struct {
	OrganizationID uuid.UUID
	ActorUserID    uuid.UUID
	OccurredAt     time.Time
}

type OrganizationMoved struct {
	OrganizationID uuid.UUID
	OldParentID    *uuid.UUID
	NewParentID    *uuid.UUID
	ActorUserID    uuid.UUID
	OccurredAt     time.Time
}

type OrganizationDeleted struct {
	OrganizationID uuid.UUID
	ActorUserID    uuid.UUID
	OccurredAt     time.Time
}
