package routing

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/baronsmv/navi/network"
	"github.com/baronsmv/navi/risk"
)

// RouteCandidate is a scored route ready to be returned to a caller.
type RouteCandidate struct {
	Edges       []network.EdgeID
	Nodes       []network.NodeID
	Geometry    orb.LineString
	Distance    float64 // meters
	DangerLevel float64 // 0..1
	Cost        float64
	Rank        int // 1 is the safest
	Primary     bool
	Incidents   []string // ids of incidents assigned to the route's edges, sorted
}

// Assemble scores paths against a snapshot and ranks them safest first, breaking ties by
// distance, cost and edge ids. The first path is flagged as primary.
func Assemble(paths []Path, snap *Snapshot, ev *risk.Evaluator) []RouteCandidate {
	out := make([]RouteCandidate, 0, len(paths))
	for i, p := range paths {
		c := RouteCandidate{
			Edges:    p.Edges,
			Nodes:    p.Nodes,
			Distance: p.Length,
			Cost:     p.Cost,
			Primary:  i == 0,
		}
		c.Geometry = routeGeometry(snap.Graph, p)

		lengths := make([]float64, 0, len(p.Edges))
		scores := make([]float64, 0, len(p.Edges))
		seen := make(map[string]bool)
		for _, id := range p.Edges {
			e, _ := snap.Graph.Edge(id)
			lengths = append(lengths, e.Length)
			scores = append(scores, snap.Risk.EdgeScore(id))
			if prof, ok := snap.Risk.Profile(id); ok {
				for _, inc := range prof.IncidentIDs {
					if !seen[inc] {
						seen[inc] = true
						c.Incidents = append(c.Incidents, inc)
					}
				}
			}
		}
		sort.Strings(c.Incidents)
		c.DangerLevel = ev.EvaluateRoute(lengths, scores)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DangerLevel != b.DangerLevel {
			return a.DangerLevel < b.DangerLevel
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.Cost != b.Cost {
			return a.Cost < b.Cost
		}
		return lexLess(a.Edges, b.Edges)
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// routeGeometry joins edge shapes, dropping the vertex each edge shares with the previous one.
func routeGeometry(g *network.Graph, p Path) orb.LineString {
	if len(p.Edges) == 0 {
		if len(p.Nodes) == 0 {
			return nil
		}
		n, ok := g.Node(p.Nodes[0])
		if !ok {
			return nil
		}
		return orb.LineString{n.Point()}
	}
	var line orb.LineString
	for i, id := range p.Edges {
		e, _ := g.Edge(id)
		if i == 0 {
			line = append(line, e.Geometry...)
			continue
		}
		line = append(line, e.Geometry[1:]...)
	}
	return line
}
