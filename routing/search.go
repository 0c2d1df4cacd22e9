// Package routing finds safety-weighted routes over a published network snapshot.
package routing

import (
	"container/heap"
	"context"

	"github.com/baronsmv/navi/network"
)

// costEpsilon treats two path costs as equal.
const costEpsilon = 1e-9

// Path is a sequence of edges found by the search.
type Path struct {
	Edges  []network.EdgeID
	Nodes  []network.NodeID
	Length float64 // meters
	Cost   float64 // composite cost without alternative penalties
}

// label is the best known way to reach a node. Labels form a tree through prev so the edge
// sequence can be rebuilt without copying it at every relaxation.
type label struct {
	node network.NodeID
	cost float64
	hops int
	edge network.EdgeID // edge used to arrive, zero at the origin
	prev *label
}

func (l *label) edges() []network.EdgeID {
	out := make([]network.EdgeID, l.hops)
	for cur, i := l, l.hops-1; cur.prev != nil; cur, i = cur.prev, i-1 {
		out[i] = cur.edge
	}
	return out
}

// better orders labels by cost, then hop count, then lexicographically by edge ids.
func (l *label) better(o *label) bool {
	if d := l.cost - o.cost; d < -costEpsilon {
		return true
	} else if d > costEpsilon {
		return false
	}
	if l.hops != o.hops {
		return l.hops < o.hops
	}
	return lexLess(l.edges(), o.edges())
}

func lexLess(a, b []network.EdgeID) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// PriorityQueueItem is a queued label.
type PriorityQueueItem struct {
	Label *label
	Index int
}

// PriorityQueue is a min-heap of labels ordered by cost, hops and node id.
type PriorityQueue []*PriorityQueueItem

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	a, b := pq[i].Label, pq[j].Label
	if d := a.cost - b.cost; d < -costEpsilon || d > costEpsilon {
		return a.cost < b.cost
	}
	if a.hops != b.hops {
		return a.hops < b.hops
	}
	return a.node < b.node
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].Index = i
	pq[j].Index = j
}

func (pq *PriorityQueue) Push(x interface{}) {
	n := len(*pq)
	item := x.(*PriorityQueueItem)
	item.Index = n
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	*pq = old[0 : n-1]
	return item
}

// edgeCost returns the cost of traversing an edge; it must be finite and non-negative.
type edgeCost func(e *network.Edge) float64

// shortestPath runs Dijkstra from start to end. The context is checked every checkEvery pops.
func shortestPath(ctx context.Context, g *network.Graph, start, end network.NodeID, cost edgeCost, checkEvery int) (*label, error) {
	if checkEvery <= 0 {
		checkEvery = DefaultCancelCheckInterval
	}
	if _, ok := g.Node(start); !ok {
		return nil, &NoRouteFoundError{From: start, To: end}
	}
	if _, ok := g.Node(end); !ok {
		return nil, &NoRouteFoundError{From: start, To: end}
	}

	best := map[network.NodeID]*label{start: {node: start}}
	settled := make(map[network.NodeID]bool)

	openSet := &PriorityQueue{}
	heap.Init(openSet)
	heap.Push(openSet, &PriorityQueueItem{Label: best[start]})

	pops := 0
	for openSet.Len() > 0 {
		pops++
		if pops%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, &CancellationError{Err: err}
			}
		}

		current := heap.Pop(openSet).(*PriorityQueueItem).Label
		if settled[current.node] || best[current.node] != current {
			continue
		}
		settled[current.node] = true
		if current.node == end {
			return current, nil
		}

		for _, edge := range g.Outgoing(current.node) {
			if settled[edge.ToID] {
				continue
			}
			next := &label{
				node: edge.ToID,
				cost: current.cost + cost(edge),
				hops: current.hops + 1,
				edge: edge.ID,
				prev: current,
			}
			if existing, ok := best[edge.ToID]; !ok || next.better(existing) {
				best[edge.ToID] = next
				heap.Push(openSet, &PriorityQueueItem{Label: next})
			}
		}
	}

	return nil, &NoRouteFoundError{From: start, To: end}
}

// pathFromLabel expands a label into a Path with unpenalised cost.
func pathFromLabel(g *network.Graph, start network.NodeID, l *label, base edgeCost) Path {
	p := Path{
		Edges: l.edges(),
		Nodes: []network.NodeID{start},
	}
	for _, id := range p.Edges {
		e, _ := g.Edge(id)
		p.Nodes = append(p.Nodes, e.ToID)
		p.Length += e.Length
		p.Cost += base(e)
	}
	return p
}
