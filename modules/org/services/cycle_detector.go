package services

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/meridianlife/agency-sdk/pkg/serrors"
)

// ParentResolver is the slice of the organization repository cycle detection
// needs: a single parent-pointer lookup.
type ParentResolver interface {
	// GetParentID returns the parent pointer of the organization, or
	// (nil, false, nil) when the organization does not exist.
	GetParentID(ctx context.Context, id uuid.UUID) (*uuid.UUID, bool, error)
}

// CycleDetector walks ancestor chains to reject reparenting that would close
// a loop. The walk is an iterative loop with an explicit depth counter, never
// language-level recursion, so corrupt data fails predictably instead of
// blowing the stack.
type CycleDetector struct {
	parents  ParentResolver
	maxDepth int
}

func NewCycleDetector(parents ParentResolver, maxDepth int) *CycleDetector {
	return &CycleDetector{parents: parents, maxDepth: maxDepth}
}

// WouldCreateCycle reports whether subjectID appears in the ancestor chain of
// candidateParentID. Exhausting the depth bound without resolving the chain
// fails closed: the caller gets ORG_DEPTH_EXCEEDED rather than a silent
// "no cycle".
func (d *CycleDetector) WouldCreateCycle(ctx context.Context, candidateParentID, subjectID uuid.UUID) (bool, error) {
	current := candidateParentID
	for depth := 0; depth < d.maxDepth; depth++ {
		if current == subjectID {
			return true, nil
		}
		parent, exists, err := d.parents.GetParentID(ctx, current)
		if err != nil {
			return false, err
		}
		if !exists || parent == nil {
			return false, nil
		}
		current = *parent
	}
	return false, errDepthExceeded()
}

// ValidateChain walks the ancestor chain of startID and fails when the chain
// does not resolve to a root within the depth bound. It catches pre-existing
// loops or over-deep data before new rows attach underneath them.
func (d *CycleDetector) ValidateChain(ctx context.Context, startID uuid.UUID) error {
	current := startID
	for depth := 0; depth < d.maxDepth; depth++ {
		parent, exists, err := d.parents.GetParentID(ctx, current)
		if err != nil {
			return err
		}
		if !exists || parent == nil {
			return nil
		}
		current = *parent
	}
	return errDepthExceeded()
}

func errDepthExceeded() error {
	return serrors.New(
		http.StatusConflict,
		"ORG_DEPTH_EXCEEDED",
		"ancestor chain exceeds the configured hierarchy depth bound",
		nil,
	)
}
