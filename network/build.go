package network

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/quadtree"
)

// RawNode is a node as delivered by the network loader.
type RawNode struct {
	ID  NodeID  `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RawEdge is an edge as delivered by the network loader. An ID of zero asks Build to assign one.
// Geometry is optional and in lon/lat order.
type RawEdge struct {
	ID       EdgeID         `json:"id,omitempty"`
	From     NodeID         `json:"from"`
	To       NodeID         `json:"to"`
	Length   float64        `json:"length"`
	Geometry orb.LineString `json:"geometry,omitempty"`
}

// RawNetwork is an already-parsed network description.
type RawNetwork struct {
	Nodes []RawNode `json:"nodes"`
	Edges []RawEdge `json:"edges"`
}

// BuildOptions tune graph construction and the spatial indexes.
type BuildOptions struct {
	Version            uint64
	MaxSnapRadius      float64 // meters, SnapToNode limit
	EdgeCellSize       float64 // meters, edge grid cell side
	EndpointTolerance  float64 // meters, allowed gap between geometry ends and their nodes
	AllowIsolatedNodes bool
}

// DefaultBuildOptions returns the options used when the configuration leaves them unset.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		MaxSnapRadius:     500,
		EdgeCellSize:      250,
		EndpointTolerance: 5,
	}
}

func (o BuildOptions) withDefaults() BuildOptions {
	d := DefaultBuildOptions()
	if o.MaxSnapRadius <= 0 {
		o.MaxSnapRadius = d.MaxSnapRadius
	}
	if o.EdgeCellSize <= 0 {
		o.EdgeCellSize = d.EdgeCellSize
	}
	if o.EndpointTolerance <= 0 {
		o.EndpointTolerance = d.EndpointTolerance
	}
	return o
}

// Build validates a raw network and produces an indexed, immutable Graph.
func Build(raw RawNetwork, opts BuildOptions) (*Graph, error) {
	opts = opts.withDefaults()
	problems := &GraphBuildError{}

	if len(raw.Nodes) == 0 {
		problems.add("network has no nodes")
	}
	if len(raw.Edges) == 0 {
		problems.add("network has no edges")
	}
	if !problems.empty() {
		return nil, problems
	}

	g := &Graph{
		Version:    opts.Version,
		nodes:      make(map[NodeID]*Node, len(raw.Nodes)),
		outgoing:   make(map[NodeID][]*Edge),
		edges:      make(map[EdgeID]*Edge, len(raw.Edges)),
		reverse:    make(map[EdgeID]EdgeID),
		snapRadius: opts.MaxSnapRadius,
	}

	for _, n := range raw.Nodes {
		if !validLatLon(n.Lat, n.Lon) {
			problems.add("node %d has invalid coordinates (%v, %v)", n.ID, n.Lat, n.Lon)
			continue
		}
		if _, dup := g.nodes[n.ID]; dup {
			problems.add("duplicate node id %d", n.ID)
			continue
		}
		g.nodes[n.ID] = &Node{ID: n.ID, Latitude: n.Lat, Longitude: n.Lon}
		g.bound = extendBound(g.bound, len(g.nodes) == 1, orb.Point{n.Lon, n.Lat})
	}

	// Edges without an id are numbered after the largest explicit id, in document order.
	var nextID EdgeID
	for _, re := range raw.Edges {
		if re.ID > nextID {
			nextID = re.ID
		}
	}

	degree := make(map[NodeID]int, len(g.nodes))
	for _, re := range raw.Edges {
		id := re.ID
		if id == 0 {
			nextID++
			id = nextID
		}
		if _, dup := g.edges[id]; dup {
			problems.add("duplicate edge id %d", id)
			continue
		}
		from, okFrom := g.nodes[re.From]
		to, okTo := g.nodes[re.To]
		if !okFrom || !okTo {
			problems.add("edge %d references missing node (%d -> %d)", id, re.From, re.To)
			continue
		}
		if !finite(re.Length) || re.Length < 0 {
			problems.add("edge %d has invalid length %v", id, re.Length)
			continue
		}

		geom, ok := edgeGeometry(re.Geometry, from, to, opts.EndpointTolerance)
		if !ok {
			problems.add("edge %d geometry does not match its nodes %d -> %d", id, re.From, re.To)
			continue
		}

		length := re.Length
		if length == 0 && from.ID != to.ID {
			length = geo.LengthHaversine(geom)
		}

		e := &Edge{ID: id, FromID: re.From, ToID: re.To, Length: length, Geometry: geom}
		g.edges[id] = e
		g.outgoing[e.FromID] = append(g.outgoing[e.FromID], e)
		degree[e.FromID]++
		degree[e.ToID]++
		if length > g.maxEdgeLength {
			g.maxEdgeLength = length
		}
	}

	if !opts.AllowIsolatedNodes {
		isolated := make([]NodeID, 0)
		for id := range g.nodes {
			if degree[id] == 0 {
				isolated = append(isolated, id)
			}
		}
		sort.Slice(isolated, func(i, j int) bool { return isolated[i] < isolated[j] })
		for _, id := range isolated {
			problems.add("node %d is disconnected from the network", id)
		}
	}

	if !problems.empty() {
		return nil, problems
	}

	if g.maxEdgeLength == 0 {
		g.maxEdgeLength = 1
	}
	for id := range g.outgoing {
		out := g.outgoing[id]
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	g.linkReverseEdges(opts.EndpointTolerance)

	center := g.bound.Center()
	g.proj = newProjection(center.Lat())
	if err := g.indexNodes(); err != nil {
		problems.add("indexing nodes: %v", err)
		return nil, problems
	}
	g.edgeGrid = newEdgeGrid(opts.EdgeCellSize)
	for _, id := range g.EdgeIDs() {
		g.edgeGrid.insert(g.edges[id], g.proj)
	}

	return g, nil
}

func extendBound(b orb.Bound, first bool, p orb.Point) orb.Bound {
	if first {
		return orb.Bound{Min: p, Max: p}
	}
	return b.Extend(p)
}

// edgeGeometry returns the geometry to store for an edge, or false when the supplied shape
// does not start and end at the edge's nodes.
func edgeGeometry(shape orb.LineString, from, to *Node, tolerance float64) (orb.LineString, bool) {
	if len(shape) == 0 {
		return orb.LineString{from.Point(), to.Point()}, true
	}
	for _, p := range shape {
		if !validLatLon(p.Lat(), p.Lon()) {
			return nil, false
		}
	}
	if len(shape) == 1 {
		return nil, false
	}
	if Distance(shape[0], from.Point()) > tolerance || Distance(shape[len(shape)-1], to.Point()) > tolerance {
		return nil, false
	}
	geom := make(orb.LineString, len(shape))
	copy(geom, shape)
	return geom, true
}

// linkReverseEdges pairs every edge with the lowest-id edge that runs the other way along the
// same shape.
func (g *Graph) linkReverseEdges(tolerance float64) {
	for _, id := range g.EdgeIDs() {
		e := g.edges[id]
		for _, cand := range g.outgoing[e.ToID] {
			if cand.ToID != e.FromID || cand.ID == e.ID {
				continue
			}
			if sameShapeReversed(e.Geometry, cand.Geometry, tolerance) {
				g.reverse[e.ID] = cand.ID
				break
			}
		}
	}
}

func sameShapeReversed(a, b orb.LineString, tolerance float64) bool {
	if len(a) != len(b) {
		return false
	}
	n := len(a)
	for i := range a {
		if Distance(a[i], b[n-1-i]) > tolerance {
			return false
		}
	}
	return true
}

type nodePointer struct {
	id NodeID
	p  orb.Point
}

func (n nodePointer) Point() orb.Point { return n.p }

func (g *Graph) indexNodes() error {
	lo := g.proj.toPlane(g.bound.Min)
	hi := g.proj.toPlane(g.bound.Max)
	// Pad so nodes on the boundary are strictly inside the tree.
	pad := 1.0 + g.snapRadius
	g.nodeTree = quadtree.New(orb.Bound{
		Min: orb.Point{lo.X() - pad, lo.Y() - pad},
		Max: orb.Point{hi.X() + pad, hi.Y() + pad},
	})
	for _, n := range g.nodes {
		if err := g.nodeTree.Add(nodePointer{id: n.ID, p: g.proj.toPlane(n.Point())}); err != nil {
			return err
		}
	}
	return nil
}
