package routing

import (
	"context"
	"math"

	"github.com/baronsmv/navi/network"
)

// Search defaults.
const (
	DefaultRiskWeight          = 0.5
	DefaultAlternatives        = 2
	DefaultMaxAlternatives     = 5
	DefaultPenaltyFactor       = 0.6
	DefaultOverlapThreshold    = 0.6
	DefaultCancelCheckInterval = 256
)

// SearchOptions tune FindRoutes. Zero values fall back to the defaults above, except
// Alternatives where zero means none.
type SearchOptions struct {
	RiskWeight          float64
	Alternatives        int
	PenaltyFactor       float64
	OverlapThreshold    float64
	MaxAttempts         int // defaults to 4*Alternatives+4
	CancelCheckInterval int
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.PenaltyFactor <= 0 {
		o.PenaltyFactor = DefaultPenaltyFactor
	}
	if o.OverlapThreshold <= 0 || o.OverlapThreshold > 1 {
		o.OverlapThreshold = DefaultOverlapThreshold
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 4*o.Alternatives + 4
	}
	if o.CancelCheckInterval <= 0 {
		o.CancelCheckInterval = DefaultCancelCheckInterval
	}
	return o
}

// baseCost blends normalised length with edge risk: (1-w)*length/maxLength + w*risk.
func baseCost(snap *Snapshot, w float64) edgeCost {
	maxLen := snap.Graph.MaxEdgeLength()
	return func(e *network.Edge) float64 {
		return (1-w)*(e.Length/maxLen) + w*snap.Risk.EdgeScore(e.ID)
	}
}

// FindRoutes returns the best path from one node to another followed by up to
// opts.Alternatives distinct alternatives, in the order they were found.
func FindRoutes(ctx context.Context, snap *Snapshot, from, to network.NodeID, opts SearchOptions) ([]Path, error) {
	opts = opts.withDefaults()
	g := snap.Graph
	base := baseCost(snap, opts.RiskWeight)

	if err := ctx.Err(); err != nil {
		return nil, &CancellationError{Err: err}
	}
	if from == to {
		if _, ok := g.Node(from); !ok {
			return nil, &NoRouteFoundError{From: from, To: to}
		}
		return []Path{{Nodes: []network.NodeID{from}}}, nil
	}

	first, err := shortestPath(ctx, g, from, to, base, opts.CancelCheckInterval)
	if err != nil {
		return nil, err
	}
	found := []Path{pathFromLabel(g, from, first, base)}
	if opts.Alternatives == 0 {
		return found, nil
	}

	penalty := make(map[network.EdgeID]float64)
	penalised := func(e *network.Edge) float64 {
		c := base(e)
		if m, ok := penalty[e.ID]; ok {
			c *= m
		}
		return c
	}
	last := found[0]

	for attempt := 0; attempt < opts.MaxAttempts && len(found) < opts.Alternatives+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &CancellationError{Err: err}
		}
		penalise(g, penalty, last.Edges, 1+opts.PenaltyFactor)

		l, err := shortestPath(ctx, g, from, to, penalised, opts.CancelCheckInterval)
		if err != nil {
			return nil, err
		}
		cand := pathFromLabel(g, from, l, base)
		last = cand

		if acceptable(cand, found, opts.OverlapThreshold) {
			found = append(found, cand)
		}
	}
	return found, nil
}

// penalise multiplies the cost of the given edges and their reverse twins. Penalties are capped
// so repeated attempts cannot overflow.
func penalise(g *network.Graph, penalty map[network.EdgeID]float64, edges []network.EdgeID, factor float64) {
	touched := make(map[network.EdgeID]bool, 2*len(edges))
	bump := func(id network.EdgeID) {
		if touched[id] {
			return
		}
		touched[id] = true
		m, ok := penalty[id]
		if !ok {
			m = 1
		}
		penalty[id] = math.Min(m*factor, 1e12)
	}
	for _, id := range edges {
		bump(id)
		if rev, ok := g.Reverse(id); ok {
			bump(rev)
		}
	}
}

// acceptable reports whether cand differs from every accepted path and overlaps each of them
// by less than threshold.
func acceptable(cand Path, accepted []Path, threshold float64) bool {
	for _, p := range accepted {
		if sameEdges(cand.Edges, p.Edges) {
			return false
		}
		if Overlap(cand.Edges, p.Edges) >= threshold {
			return false
		}
	}
	return true
}

func sameEdges(a, b []network.EdgeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Overlap is the number of edges two routes share divided by the edge count of the shorter one.
func Overlap(a, b []network.EdgeID) float64 {
	shorter := len(a)
	if len(b) < shorter {
		shorter = len(b)
	}
	if shorter == 0 {
		return 0
	}
	inA := make(map[network.EdgeID]bool, len(a))
	for _, id := range a {
		inA[id] = true
	}
	shared := 0
	counted := make(map[network.EdgeID]bool, len(b))
	for _, id := range b {
		if inA[id] && !counted[id] {
			shared++
			counted[id] = true
		}
	}
	return float64(shared) / float64(shorter)
}
