package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUpsertEdge_ClosesContradictoryPriorEdge(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertNode(ctx, Node{ID: "alice", Kind: NodeEntity}))
	require.NoError(t, s.UpsertNode(ctx, Node{ID: "acme", Kind: NodeEntity}))
	require.NoError(t, s.UpsertNode(ctx, Node{ID: "globex", Kind: NodeEntity}))

	require.NoError(t, s.UpsertEdge(ctx, Edge{
		ID: "e1", FromID: "alice", ToID: "acme", Relation: "works_at", ValidFrom: base,
	}))

	later := base.Add(time.Hour)
	require.NoError(t, s.UpsertEdge(ctx, Edge{
		ID: "e2", FromID: "alice", ToID: "globex", Relation: "works_at", ValidFrom: later,
	}))

	neighborsAtBase, err := s.Neighbors(ctx, "alice", base.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, neighborsAtBase, 1)
	require.Equal(t, "e1", neighborsAtBase[0].ID)

	neighborsAfter, err := s.Neighbors(ctx, "alice", later.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, neighborsAfter, 1)
	require.Equal(t, "e2", neighborsAfter[0].ID)
}

func TestShortestPath_FindsMultiHopRoute(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.UpsertNode(ctx, Node{ID: id, Kind: NodeConcept}))
	}
	require.NoError(t, s.UpsertEdge(ctx, Edge{ID: "ab", FromID: "a", ToID: "b", Relation: "related_to", ValidFrom: at}))
	require.NoError(t, s.UpsertEdge(ctx, Edge{ID: "bc", FromID: "b", ToID: "c", Relation: "related_to", ValidFrom: at}))
	require.NoError(t, s.UpsertEdge(ctx, Edge{ID: "ad", FromID: "a", ToID: "d", Relation: "related_to", ValidFrom: at}))

	path, err := s.ShortestPath(ctx, "a", "c", at)
	require.NoError(t, err)
	require.Len(t, path, 2)
	require.Equal(t, "ab", path[0].ID)
	require.Equal(t, "bc", path[1].ID)
}

func TestShortestPath_NoRouteReturnsNil(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertNode(ctx, Node{ID: "a", Kind: NodeEntity}))
	require.NoError(t, s.UpsertNode(ctx, Node{ID: "b", Kind: NodeEntity}))

	path, err := s.ShortestPath(ctx, "a", "b", at)
	require.NoError(t, err)
	require.Nil(t, path)
}

func TestEdge_ValidAt_RespectsTemporalBounds(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	e := Edge{ValidFrom: start, ValidUntil: &end}

	require.False(t, e.ValidAt(start.Add(-time.Minute)))
	require.True(t, e.ValidAt(start.Add(30*time.Minute)))
	require.False(t, e.ValidAt(end))
}
