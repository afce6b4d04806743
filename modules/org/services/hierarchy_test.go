package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGetHierarchy(t *testing.T) {
	ctx := context.Background()
	repo := newMemOrgRepo()
	svc := newTestHierarchyService(repo, &memTrail{})

	imo := repo.seed("IMO", OrgTypeIMO, nil)
	mga := repo.seed("MGA", OrgTypeMGA, &imo)
	agency := repo.seed("Agency", OrgTypeAgency, &mga)
	team := repo.seed("Team", OrgTypeTeam, &agency)
	repo.activeMembers[team] = 3

	t.Run("full forest", func(t *testing.T) {
		roots, err := svc.GetHierarchy(ctx, nil)
		require.NoError(t, err)
		require.Len(t, roots, 1)

		root := roots[0]
		require.Equal(t, imo, root.ID)
		require.Equal(t, 0, root.Depth)
		require.Len(t, root.Children, 1)
		require.Equal(t, mga, root.Children[0].ID)
		require.Equal(t, 1, root.Children[0].Depth)

		leaf := root.Children[0].Children[0].Children[0]
		require.Equal(t, team, leaf.ID)
		require.Equal(t, 3, leaf.Depth)
		require.Equal(t, 3, leaf.ActiveMemberCount)
		require.Empty(t, leaf.Children)
	})

	t.Run("subtree", func(t *testing.T) {
		roots, err := svc.GetHierarchy(ctx, &mga)
		require.NoError(t, err)
		require.Len(t, roots, 1)
		require.Equal(t, mga, roots[0].ID)
		require.Equal(t, 0, roots[0].Depth)
		require.Len(t, roots[0].Children, 1)
	})

	t.Run("unknown root", func(t *testing.T) {
		ghost := uuid.New()
		_, err := svc.GetHierarchy(ctx, &ghost)
		requireServiceError(t, err, "ORG_NOT_FOUND")
	})
}

func TestGetHierarchyCutsOffAtDepthBound(t *testing.T) {
	repo := newMemOrgRepo()

	parent := repo.seed("root", OrgTypeIMO, nil)
	root := parent
	for i := 0; i < 15; i++ {
		parent = repo.seed("node", OrgTypeTeam, &parent)
	}

	svc := newTestHierarchyService(repo, &memTrail{})
	roots, err := svc.GetHierarchy(context.Background(), &root)
	require.NoError(t, err)

	depth := 0
	node := roots[0]
	for len(node.Children) > 0 {
		node = node.Children[0]
		depth++
	}
	require.Equal(t, 9, depth, "tree must stop at the configured bound")
}

func TestGetPath(t *testing.T) {
	ctx := context.Background()
	repo := newMemOrgRepo()
	svc := newTestHierarchyService(repo, &memTrail{})

	imo := repo.seed("IMO", OrgTypeIMO, nil)
	mga := repo.seed("MGA", OrgTypeMGA, &imo)
	team := repo.seed("Team", OrgTypeTeam, &mga)

	t.Run("root first", func(t *testing.T) {
		path, err := svc.GetPath(ctx, team)
		require.NoError(t, err)
		require.Len(t, path, 3)
		require.Equal(t, imo, path[0].ID)
		require.Equal(t, mga, path[1].ID)
		require.Equal(t, team, path[2].ID)
	})

	t.Run("root path is itself", func(t *testing.T) {
		path, err := svc.GetPath(ctx, imo)
		require.NoError(t, err)
		require.Len(t, path, 1)
		require.Equal(t, imo, path[0].ID)
	})

	t.Run("unknown organization", func(t *testing.T) {
		_, err := svc.GetPath(ctx, uuid.New())
		requireServiceError(t, err, "ORG_NOT_FOUND")
	})

	t.Run("overlong chain fails closed", func(t *testing.T) {
		parent := imo
		var leaf uuid.UUID
		for i := 0; i < 12; i++ {
			leaf = repo.seed("deep", OrgTypeTeam, &parent)
			parent = leaf
		}
		_, err := svc.GetPath(ctx, leaf)
		requireServiceError(t, err, "ORG_DEPTH_EXCEEDED")
	})
}
