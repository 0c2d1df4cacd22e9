package network

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// distanceEpsilon treats two snap distances as equal.
const distanceEpsilon = 1e-9

// queryBound returns the planar bound covering every point within radius meters of p.
func (g *Graph) queryBound(p orb.Point, radius float64) orb.Bound {
	b := geo.NewBoundAroundPoint(p, radius*1.01+1)
	return orb.Bound{Min: g.proj.toPlane(b.Min), Max: g.proj.toPlane(b.Max)}
}

// SnapToNode returns the node nearest to coord within the graph's snap radius and its
// great-circle distance. Equal distances resolve to the lower node id.
func (g *Graph) SnapToNode(coord Coordinate) (NodeID, float64, error) {
	radius := g.snapRadius
	if !validLatLon(coord.Lat, coord.Lon) {
		return 0, 0, &NoNearbyNodeError{Coordinate: coord, Radius: radius}
	}

	p := coord.Point()
	found := g.nodeTree.InBound(nil, g.queryBound(p, radius))

	var (
		best     NodeID
		bestDist = math.Inf(1)
		ok       bool
	)
	for _, ptr := range found {
		np := ptr.(nodePointer)
		d := Distance(p, g.nodes[np.id].Point())
		if d > radius {
			continue
		}
		if !ok || d < bestDist-distanceEpsilon || (math.Abs(d-bestDist) <= distanceEpsilon && np.id < best) {
			best, bestDist, ok = np.id, d, true
		}
	}
	if !ok {
		return 0, 0, &NoNearbyNodeError{Coordinate: coord, Radius: radius}
	}
	return best, bestDist, nil
}

// SnapToEdge returns the edge whose geometry passes nearest to coord, within radius meters.
// Equal distances resolve to the lower edge id.
func (g *Graph) SnapToEdge(coord Coordinate, radius float64) (EdgeID, float64, error) {
	if !validLatLon(coord.Lat, coord.Lon) || radius <= 0 {
		return 0, 0, &NoNearbyEdgeError{Coordinate: coord, Radius: radius}
	}

	p := coord.Point()
	q := g.proj.toPlane(p)

	var (
		best     EdgeID
		bestDist = math.Inf(1)
		ok       bool
	)
	for _, idx := range g.edgeGrid.candidates(g.queryBound(p, radius)) {
		seg := g.edgeGrid.segments[idx]
		d := seg.distance(p, q)
		if d > radius {
			continue
		}
		if !ok || d < bestDist-distanceEpsilon || (math.Abs(d-bestDist) <= distanceEpsilon && seg.edge < best) {
			best, bestDist, ok = seg.edge, d, true
		}
	}
	if !ok {
		return 0, 0, &NoNearbyEdgeError{Coordinate: coord, Radius: radius}
	}
	return best, bestDist, nil
}

type cellKey struct {
	x, y int64
}

// gridSegment is one straight piece of an edge geometry, kept in both lon/lat and planar form.
type gridSegment struct {
	edge   EdgeID
	ga, gb orb.Point
	pa, pb orb.Point
}

// distance returns the great-circle distance from p (with planar image q) to the closest point
// of the segment. The closest point is found in the plane and mapped back linearly.
func (s gridSegment) distance(p, q orb.Point) float64 {
	dx, dy := s.pb.X()-s.pa.X(), s.pb.Y()-s.pa.Y()
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return Distance(p, s.ga)
	}
	if planar.DistanceFromSegment(s.pa, s.pb, q) == 0 {
		return 0
	}
	t := ((q.X()-s.pa.X())*dx + (q.Y()-s.pa.Y())*dy) / l2
	t = math.Max(0, math.Min(1, t))
	closest := orb.Point{
		s.ga.Lon() + t*(s.gb.Lon()-s.ga.Lon()),
		s.ga.Lat() + t*(s.gb.Lat()-s.ga.Lat()),
	}
	return Distance(p, closest)
}

// edgeGrid buckets edge segments into square planar cells.
type edgeGrid struct {
	cellSize float64
	cells    map[cellKey][]int
	segments []gridSegment
}

func newEdgeGrid(cellSize float64) *edgeGrid {
	return &edgeGrid{cellSize: cellSize, cells: make(map[cellKey][]int)}
}

func (eg *edgeGrid) cellCount() int {
	if eg == nil {
		return 0
	}
	return len(eg.cells)
}

func (eg *edgeGrid) key(p orb.Point) cellKey {
	return cellKey{
		x: int64(math.Floor(p.X() / eg.cellSize)),
		y: int64(math.Floor(p.Y() / eg.cellSize)),
	}
}

func (eg *edgeGrid) insert(e *Edge, proj projection) {
	for i := 0; i+1 < len(e.Geometry); i++ {
		seg := gridSegment{
			edge: e.ID,
			ga:   e.Geometry[i],
			gb:   e.Geometry[i+1],
			pa:   proj.toPlane(e.Geometry[i]),
			pb:   proj.toPlane(e.Geometry[i+1]),
		}
		idx := len(eg.segments)
		eg.segments = append(eg.segments, seg)

		b := orb.Bound{Min: seg.pa, Max: seg.pa}.Extend(seg.pb)
		lo, hi := eg.key(b.Min), eg.key(b.Max)
		for x := lo.x; x <= hi.x; x++ {
			for y := lo.y; y <= hi.y; y++ {
				k := cellKey{x, y}
				eg.cells[k] = append(eg.cells[k], idx)
			}
		}
	}
}

// candidates returns the indexes of segments in cells overlapping b, each once, in insertion
// order.
func (eg *edgeGrid) candidates(b orb.Bound) []int {
	lo, hi := eg.key(b.Min), eg.key(b.Max)
	seen := make(map[int]struct{})
	var out []int
	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			for _, idx := range eg.cells[cellKey{x, y}] {
				if _, dup := seen[idx]; dup {
					continue
				}
				seen[idx] = struct{}{}
				out = append(out, idx)
			}
		}
	}
	return out
}
