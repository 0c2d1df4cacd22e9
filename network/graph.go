// Package network holds the immutable street graph the route planner searches, together with
// the spatial indexes used to snap coordinates onto it.
//
// A Graph is produced once by Build and never modified afterwards. Rebuilding the network means
// building a new Graph value and publishing it in place of the old one.
package network

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
)

// NodeID identifies an intersection or shape point in the network.
type NodeID int64

// EdgeID identifies a directed street segment.
type EdgeID int64

// Coordinate is a WGS84 position.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Point returns the coordinate in orb's lon/lat order.
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// CoordinateOf converts an orb point back to a Coordinate.
func CoordinateOf(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lon: p.Lon()}
}

// Node represents a vertex of the street network.
type Node struct {
	ID        NodeID  // Unique identifier for the node
	Latitude  float64 // Geographic latitude in degrees
	Longitude float64 // Geographic longitude in degrees
}

// Point returns the node position in lon/lat order.
func (n *Node) Point() orb.Point {
	return orb.Point{n.Longitude, n.Latitude}
}

// Edge represents a directed street segment between two nodes.
type Edge struct {
	ID       EdgeID
	FromID   NodeID         // ID of the starting node
	ToID     NodeID         // ID of the ending node
	Length   float64        // Length in meters
	Geometry orb.LineString // Ordered shape, first point at FromID, last at ToID
}

// Graph is a built, read-only street network.
type Graph struct {
	Version uint64

	nodes         map[NodeID]*Node
	outgoing      map[NodeID][]*Edge // sorted by edge ID
	edges         map[EdgeID]*Edge
	reverse       map[EdgeID]EdgeID
	nodeTree      *quadtree.Quadtree
	edgeGrid      *edgeGrid
	proj          projection
	bound         orb.Bound
	maxEdgeLength float64
	snapRadius    float64
}

// Stats summarises a graph for logs and the admin endpoint.
type Stats struct {
	Version       uint64  `json:"version"`
	Nodes         int     `json:"nodes"`
	Edges         int     `json:"edges"`
	GridCells     int     `json:"gridCells"`
	MaxEdgeLength float64 `json:"maxEdgeLength"`
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeCount is the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// Edge returns the edge with the given id.
func (g *Graph) Edge(id EdgeID) (*Edge, bool) {
	e, ok := g.edges[id]
	return e, ok
}

// Outgoing returns the outgoing edges of a node in ascending edge id order.
func (g *Graph) Outgoing(id NodeID) []*Edge {
	return g.outgoing[id]
}

// Reverse returns the edge running the opposite way along the same street segment, if the
// network has one.
func (g *Graph) Reverse(id EdgeID) (EdgeID, bool) {
	r, ok := g.reverse[id]
	return r, ok
}

// EdgeCount returns the number of directed edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// EdgeIDs returns every edge id in ascending order.
func (g *Graph) EdgeIDs() []EdgeID {
	ids := make([]EdgeID, 0, len(g.edges))
	for id := range g.edges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MaxEdgeLength is the longest edge in the graph, used to normalise lengths into [0,1].
// It is never zero.
func (g *Graph) MaxEdgeLength() float64 {
	return g.maxEdgeLength
}

// SnapRadius is the maximum distance SnapToNode accepts.
func (g *Graph) SnapRadius() float64 {
	return g.snapRadius
}

// Bound returns the lon/lat bounding box of all nodes.
func (g *Graph) Bound() orb.Bound {
	return g.bound
}

// Stats reports graph sizes.
func (g *Graph) Stats() Stats {
	return Stats{
		Version:       g.Version,
		Nodes:         len(g.nodes),
		Edges:         len(g.edges),
		GridCells:     g.edgeGrid.cellCount(),
		MaxEdgeLength: g.maxEdgeLength,
	}
}
