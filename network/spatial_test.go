package network

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapToNode(t *testing.T) {
	g, err := Build(lineNetwork(), BuildOptions{})
	require.NoError(t, err)

	id, dist, err := g.SnapToNode(Coordinate{Lat: 0.0001, Lon: lonAt(190)})
	require.NoError(t, err)
	assert.Equal(t, NodeID(3), id)
	assert.InDelta(t, 15, dist, 1)
}

func TestSnapToNodeTieGoesToLowerID(t *testing.T) {
	g, err := Build(lineNetwork(), BuildOptions{})
	require.NoError(t, err)

	id, _, err := g.SnapToNode(Coordinate{Lat: 0, Lon: lonAt(150)})
	require.NoError(t, err)
	assert.Equal(t, NodeID(2), id)
}

func TestSnapToNodeOutsideRadius(t *testing.T) {
	g, err := Build(lineNetwork(), BuildOptions{MaxSnapRadius: 50})
	require.NoError(t, err)

	_, _, err = g.SnapToNode(Coordinate{Lat: 0.01, Lon: 0})
	var nearErr *NoNearbyNodeError
	require.True(t, errors.As(err, &nearErr))
	assert.Equal(t, 50.0, nearErr.Radius)

	_, _, err = g.SnapToNode(Coordinate{Lat: 120, Lon: 0})
	assert.True(t, errors.As(err, &nearErr))
}

func TestSnapToEdge(t *testing.T) {
	g, err := Build(lineNetwork(), BuildOptions{})
	require.NoError(t, err)

	// 20 m north of the middle of B-C; edge 12 (B->C) wins the tie with its twin 13.
	id, dist, err := g.SnapToEdge(Coordinate{Lat: 20 / metersPerDegree, Lon: lonAt(150)}, 50)
	require.NoError(t, err)
	assert.Equal(t, EdgeID(12), id)
	assert.InDelta(t, 20, dist, 0.5)
}

func TestSnapToEdgeRadius(t *testing.T) {
	g, err := Build(lineNetwork(), BuildOptions{})
	require.NoError(t, err)

	coord := Coordinate{Lat: 60 / metersPerDegree, Lon: lonAt(150)}
	_, _, err = g.SnapToEdge(coord, 50)
	var nearErr *NoNearbyEdgeError
	require.True(t, errors.As(err, &nearErr))

	id, _, err := g.SnapToEdge(coord, 70)
	require.NoError(t, err)
	assert.Equal(t, EdgeID(12), id)
}

func TestSnapToEdgeBeyondEndpoint(t *testing.T) {
	g, err := Build(lineNetwork(), BuildOptions{EdgeCellSize: 40})
	require.NoError(t, err)

	id, dist, err := g.SnapToEdge(Coordinate{Lat: 0, Lon: lonAt(330)}, 50)
	require.NoError(t, err)
	assert.Equal(t, EdgeID(14), id)
	assert.InDelta(t, 30, dist, 0.5)
}
