package routing

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/baronsmv/navi/network"
	"github.com/baronsmv/navi/risk"
)

var metersPerDegree = 6378137.0 * math.Pi / 180

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func at(eastM, northM float64) network.Coordinate {
	return network.Coordinate{Lat: northM / metersPerDegree, Lon: eastM / metersPerDegree}
}

func rawNode(id network.NodeID, eastM, northM float64) network.RawNode {
	c := at(eastM, northM)
	return network.RawNode{ID: id, Lat: c.Lat, Lon: c.Lon}
}

// detourNetwork is the line A(1)-B(2)-C(3)-D(4) with 100 m two-way edges and a detour
// B-E(5)-C through a point 100 m north of the B-C midpoint.
//
//	edges: A>B 1, B>A 2, B>C 3, C>B 4, C>D 5, D>C 6, B>E 7, E>B 8, E>C 9, C>E 10
func detourNetwork() network.RawNetwork {
	detour := math.Hypot(50, 100)
	return network.RawNetwork{
		Nodes: []network.RawNode{
			rawNode(1, 0, 0),
			rawNode(2, 100, 0),
			rawNode(3, 200, 0),
			rawNode(4, 300, 0),
			rawNode(5, 150, 100),
		},
		Edges: []network.RawEdge{
			{ID: 1, From: 1, To: 2, Length: 100},
			{ID: 2, From: 2, To: 1, Length: 100},
			{ID: 3, From: 2, To: 3, Length: 100},
			{ID: 4, From: 3, To: 2, Length: 100},
			{ID: 5, From: 3, To: 4, Length: 100},
			{ID: 6, From: 4, To: 3, Length: 100},
			{ID: 7, From: 2, To: 5, Length: detour},
			{ID: 8, From: 5, To: 2, Length: detour},
			{ID: 9, From: 5, To: 3, Length: detour},
			{ID: 10, From: 3, To: 5, Length: detour},
		},
	}
}

// gridNetwork is an n x n two-way grid with 100 m spacing. Node ids are row*n+col+1.
func gridNetwork(n int) network.RawNetwork {
	var raw network.RawNetwork
	id := func(r, c int) network.NodeID { return network.NodeID(r*n + c + 1) }
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			raw.Nodes = append(raw.Nodes, rawNode(id(r, c), float64(c)*100, float64(r)*100))
		}
	}
	var eid network.EdgeID = 1
	link := func(a, b network.NodeID) {
		raw.Edges = append(raw.Edges,
			network.RawEdge{ID: eid, From: a, To: b, Length: 100},
			network.RawEdge{ID: eid + 1, From: b, To: a, Length: 100},
		)
		eid += 2
	}
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if c+1 < n {
				link(id(r, c), id(r, c+1))
			}
			if r+1 < n {
				link(id(r, c), id(r+1, c))
			}
		}
	}
	return raw
}

func incident(id string, pos network.Coordinate, severity int) risk.Incident {
	return risk.Incident{
		ID:         id,
		Type:       risk.TypeAssault,
		Severity:   severity,
		OccurredAt: testNow.Add(-24 * time.Hour),
		Status:     risk.StatusInProgress,
		Latitude:   pos.Lat,
		Longitude:  pos.Lon,
	}
}

// publish builds raw and incidents into a snapshot on a new store.
func publish(t *testing.T, raw network.RawNetwork, incidents ...risk.Incident) *Store {
	t.Helper()
	store := NewStore()
	publishTo(t, store, raw, incidents...)
	return store
}

func publishTo(t *testing.T, store *Store, raw network.RawNetwork, incidents ...risk.Incident) *Snapshot {
	t.Helper()
	g, err := network.Build(raw, network.BuildOptions{})
	require.NoError(t, err)
	ev, err := risk.NewEvaluator(risk.DefaultFuzzyConfig())
	require.NoError(t, err)
	a := risk.Assign(incidents, g, risk.DefaultAssignOptions(), testNow)
	return store.Publish(g, risk.Score(a, ev, testNow), ev)
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
