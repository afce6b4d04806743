package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridianlife/agency-sdk/pkg/serrors"
)

type mapParents map[uuid.UUID]*uuid.UUID

func (m mapParents) GetParentID(_ context.Context, id uuid.UUID) (*uuid.UUID, bool, error) {
	parent, ok := m[id]
	if !ok {
		return nil, false, nil
	}
	return parent, true, nil
}

func chain(ids ...uuid.UUID) mapParents {
	m := mapParents{}
	for i, id := range ids {
		if i == 0 {
			m[id] = nil
			continue
		}
		parent := ids[i-1]
		m[id] = &parent
	}
	return m
}

func TestWouldCreateCycle(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	parents := chain(a, b, c) // a <- b <- c

	detector := NewCycleDetector(parents, 10)
	ctx := context.Background()

	t.Run("direct ancestor", func(t *testing.T) {
		cyclic, err := detector.WouldCreateCycle(ctx, c, a)
		require.NoError(t, err)
		require.True(t, cyclic)
	})

	t.Run("immediate self", func(t *testing.T) {
		cyclic, err := detector.WouldCreateCycle(ctx, b, b)
		require.NoError(t, err)
		require.True(t, cyclic)
	})

	t.Run("unrelated parent", func(t *testing.T) {
		cyclic, err := detector.WouldCreateCycle(ctx, a, c)
		require.NoError(t, err)
		require.False(t, cyclic)
	})

	t.Run("missing organization resolves as no cycle", func(t *testing.T) {
		cyclic, err := detector.WouldCreateCycle(ctx, uuid.New(), a)
		require.NoError(t, err)
		require.False(t, cyclic)
	})
}

func TestWouldCreateCycleFailsClosedOnDepthBound(t *testing.T) {
	ids := make([]uuid.UUID, 12)
	for i := range ids {
		ids[i] = uuid.New()
	}
	parents := chain(ids...)

	detector := NewCycleDetector(parents, 5)
	_, err := detector.WouldCreateCycle(context.Background(), ids[len(ids)-1], uuid.New())
	require.Error(t, err)

	var svcErr *serrors.ServiceError
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, "ORG_DEPTH_EXCEEDED", svcErr.Code)
}

func TestValidateChain(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	parents := chain(a, b, c)
	ctx := context.Background()

	require.NoError(t, NewCycleDetector(parents, 10).ValidateChain(ctx, c))

	// A two-node loop never resolves; the bound turns it into an error
	// instead of an endless walk.
	x, y := uuid.New(), uuid.New()
	looped := mapParents{x: &y, y: &x}
	err := NewCycleDetector(looped, 10).ValidateChain(ctx, x)
	require.Error(t, err)

	var svcErr *serrors.ServiceError
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, "ORG_DEPTH_EXCEEDED", svcErr.Code)
}
