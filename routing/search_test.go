package routing

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baronsmv/navi/network"
)

func TestShortestPathLine(t *testing.T) {
	snap := publish(t, detourNetwork()).Current()

	paths, err := FindRoutes(context.Background(), snap, 1, 4, SearchOptions{RiskWeight: 0.5})
	require.NoError(t, err)
	require.Len(t, paths, 1)

	p := paths[0]
	assert.Equal(t, []network.EdgeID{1, 3, 5}, p.Edges)
	assert.Equal(t, []network.NodeID{1, 2, 3, 4}, p.Nodes)
	assert.Equal(t, 300.0, p.Length)
	assert.InDelta(t, 3*(0.5*100/snap.Graph.MaxEdgeLength()+0.5*0.05), p.Cost, 1e-12)
}

func TestShortestPathTieBreaksOnEdgeIDs(t *testing.T) {
	raw := network.RawNetwork{
		Nodes: []network.RawNode{rawNode(1, 0, 0), rawNode(2, 100, 0), rawNode(3, 0, 100), rawNode(4, 100, 100)},
		Edges: []network.RawEdge{
			{ID: 5, From: 1, To: 2, Length: 100},
			{ID: 6, From: 2, To: 4, Length: 100},
			{ID: 1, From: 1, To: 3, Length: 100},
			{ID: 9, From: 3, To: 4, Length: 100},
		},
	}
	snap := publish(t, raw).Current()

	for i := 0; i < 5; i++ {
		paths, err := FindRoutes(context.Background(), snap, 1, 4, SearchOptions{RiskWeight: 0.3})
		require.NoError(t, err)
		assert.Equal(t, []network.EdgeID{1, 9}, paths[0].Edges)
	}
}

func TestFindRoutesNoRoute(t *testing.T) {
	raw := detourNetwork()
	raw.Nodes = append(raw.Nodes, rawNode(20, 0, 1000), rawNode(21, 100, 1000))
	raw.Edges = append(raw.Edges,
		network.RawEdge{ID: 20, From: 20, To: 21, Length: 100},
		network.RawEdge{ID: 21, From: 21, To: 20, Length: 100},
	)
	snap := publish(t, raw).Current()

	_, err := FindRoutes(context.Background(), snap, 1, 21, SearchOptions{})
	var noRoute *NoRouteFoundError
	require.True(t, errors.As(err, &noRoute))
	assert.Equal(t, network.NodeID(1), noRoute.From)
	assert.Equal(t, network.NodeID(21), noRoute.To)
}

func TestFindRoutesCancelled(t *testing.T) {
	snap := publish(t, gridNetwork(6)).Current()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FindRoutes(ctx, snap, 1, 36, SearchOptions{Alternatives: 2})
	var cancelErr *CancellationError
	require.True(t, errors.As(err, &cancelErr))
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = shortestPath(ctx, snap.Graph, 1, 36, baseCost(snap, 0.5), 1)
	assert.True(t, errors.As(err, &cancelErr))
}

func TestFindRoutesAlternativesAreDistinct(t *testing.T) {
	snap := publish(t, gridNetwork(5),
		incident("a", at(150, 200), 4),
		incident("b", at(300, 50), 2),
	).Current()

	paths, err := FindRoutes(context.Background(), snap, 1, 25, SearchOptions{RiskWeight: 0.5, Alternatives: 3})
	require.NoError(t, err)
	require.Greater(t, len(paths), 1)
	assert.LessOrEqual(t, len(paths), 4)

	for i := range paths {
		seen := map[network.NodeID]bool{}
		for _, n := range paths[i].Nodes {
			assert.False(t, seen[n], "path %d revisits node %d", i, n)
			seen[n] = true
		}
		for j := i + 1; j < len(paths); j++ {
			assert.NotEqual(t, paths[i].Edges, paths[j].Edges)
			assert.Less(t, Overlap(paths[i].Edges, paths[j].Edges), DefaultOverlapThreshold)
		}
	}
}

func TestFindRoutesPrimaryIsOptimal(t *testing.T) {
	snap := publish(t, gridNetwork(3),
		incident("a", at(50, 0), 5),
		incident("b", at(200, 150), 3),
	).Current()

	for _, w := range []float64{0, 0.25, 0.5, 0.75, 1} {
		paths, err := FindRoutes(context.Background(), snap, 1, 9, SearchOptions{RiskWeight: w, Alternatives: 2})
		require.NoError(t, err)

		best := bruteForceCost(snap, 1, 9, baseCost(snap, w))
		assert.InDelta(t, best, paths[0].Cost, 1e-9, "w=%v", w)
		for _, p := range paths[1:] {
			assert.GreaterOrEqual(t, p.Cost, paths[0].Cost-1e-9)
		}
	}
}

// bruteForceCost enumerates every simple path and returns the cheapest cost.
func bruteForceCost(snap *Snapshot, from, to network.NodeID, cost edgeCost) float64 {
	best := math.Inf(1)
	visited := map[network.NodeID]bool{from: true}
	var walk func(n network.NodeID, acc float64)
	walk = func(n network.NodeID, acc float64) {
		if n == to {
			best = math.Min(best, acc)
			return
		}
		for _, e := range snap.Graph.Outgoing(n) {
			if visited[e.ToID] {
				continue
			}
			visited[e.ToID] = true
			walk(e.ToID, acc+cost(e))
			visited[e.ToID] = false
		}
	}
	walk(from, 0)
	return best
}

func TestFindRoutesSameNode(t *testing.T) {
	snap := publish(t, detourNetwork()).Current()

	paths, err := FindRoutes(context.Background(), snap, 2, 2, SearchOptions{Alternatives: 2})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Empty(t, paths[0].Edges)
	assert.Equal(t, []network.NodeID{2}, paths[0].Nodes)
	assert.Zero(t, paths[0].Length)
}

func TestOverlap(t *testing.T) {
	assert.Equal(t, 0.0, Overlap(nil, []network.EdgeID{1}))
	assert.Equal(t, 1.0, Overlap([]network.EdgeID{1, 2}, []network.EdgeID{1, 2, 3}))
	assert.Equal(t, 0.5, Overlap([]network.EdgeID{1, 2}, []network.EdgeID{2, 7, 8}))
	assert.Equal(t, 0.0, Overlap([]network.EdgeID{1, 2}, []network.EdgeID{3, 4}))
}
