package services

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/meridianlife/agency-sdk/pkg/serrors"
)

// TreeNode is one node of the materialized hierarchy.
type TreeNode struct {
	OrgNode
	Depth    int         `json:"depth"`
	Children []*TreeNode `json:"children"`
}

// GetHierarchy materializes the subtree under rootID, or the full forest when
// rootID is nil. Each node carries its active member count. The tree is cut
// off at the configured depth bound; nodes beyond it are omitted rather than
// walked.
func (s *HierarchyService) GetHierarchy(ctx context.Context, rootID *uuid.UUID) ([]*TreeNode, error) {
	nodes, err := s.orgs.List(ctx)
	if err != nil {
		return nil, mapPgError(err)
	}

	byID := make(map[uuid.UUID]OrgNode, len(nodes))
	childrenOf := make(map[uuid.UUID][]OrgNode)
	var roots []OrgNode
	for _, n := range nodes {
		byID[n.ID] = n
		if n.ParentID == nil {
			roots = append(roots, n)
		} else {
			childrenOf[*n.ParentID] = append(childrenOf[*n.ParentID], n)
		}
	}

	if rootID != nil {
		root, ok := byID[*rootID]
		if !ok {
			return nil, serrors.New(http.StatusNotFound, "ORG_NOT_FOUND", "organization not found", nil)
		}
		roots = []OrgNode{root}
	}

	out := make([]*TreeNode, 0, len(roots))
	for _, r := range roots {
		out = append(out, buildSubtree(r, childrenOf, s.maxDepth))
	}
	return out, nil
}

// buildSubtree expands one root breadth-first with an explicit depth counter.
// An iterative frontier keeps corrupt parent data from turning into unbounded
// recursion.
func buildSubtree(root OrgNode, childrenOf map[uuid.UUID][]OrgNode, maxDepth int) *TreeNode {
	rootNode := &TreeNode{OrgNode: root, Depth: 0, Children: []*TreeNode{}}

	frontier := []*TreeNode{rootNode}
	for depth := 1; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []*TreeNode
		for _, parent := range frontier {
			for _, child := range childrenOf[parent.ID] {
				node := &TreeNode{OrgNode: child, Depth: depth, Children: []*TreeNode{}}
				parent.Children = append(parent.Children, node)
				next = append(next, node)
			}
		}
		frontier = next
	}
	return rootNode
}

// GetPath returns the ancestor chain of id, root first, id last. Exhausting
// the depth bound before reaching a root fails closed like cycle detection
// does.
func (s *HierarchyService) GetPath(ctx context.Context, id uuid.UUID) ([]Organization, error) {
	current, err := s.orgs.GetByID(ctx, id)
	if err != nil {
		return nil, mapPgError(err)
	}

	chain := []Organization{current}
	for depth := 0; current.ParentID != nil; depth++ {
		if depth >= s.maxDepth {
			return nil, serrors.New(
				http.StatusConflict,
				"ORG_DEPTH_EXCEEDED",
				"ancestor chain exceeds the configured hierarchy depth bound",
				nil,
			)
		}
		parent, err := s.orgs.GetByID(ctx, *current.ParentID)
		if err != nil {
			return nil, mapPgError(err)
		}
		chain = append(chain, parent)
		current = parent
	}

	// Reverse in place: the walk collected leaf → root.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
