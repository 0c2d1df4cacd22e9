package risk

import (
	"time"

	"github.com/baronsmv/navi/network"
)

// Snapshot holds the scored risk of every edge for one graph version. It is never modified
// after Score returns it.
type Snapshot struct {
	GraphVersion uint64
	ComputedAt   time.Time
	Floor        float64

	profiles  map[network.EdgeID]*EdgeRiskProfile
	scores    map[network.EdgeID]float64
	incidents map[string]Incident

	Assigned   int
	OutOfRange int
	Inactive   int
	Rejected   int
}

// Score evaluates every profile of a and freezes the result.
func Score(a *Assignment, ev *Evaluator, computedAt time.Time) *Snapshot {
	s := &Snapshot{
		GraphVersion: a.GraphVersion,
		ComputedAt:   computedAt,
		Floor:        ev.Floor(),
		profiles:     a.Profiles,
		scores:       make(map[network.EdgeID]float64, len(a.Profiles)),
		incidents:    a.Incidents,
		Assigned:     a.Assigned,
		OutOfRange:   a.OutOfRange,
		Inactive:     a.Inactive,
		Rejected:     a.Rejected,
	}
	for id, p := range a.Profiles {
		p.Score = ev.EvaluateEdge(p)
		s.scores[id] = p.Score
	}
	return s
}

// Empty returns a snapshot in which every edge scores floor.
func Empty(graphVersion uint64, floor float64) *Snapshot {
	return &Snapshot{
		GraphVersion: graphVersion,
		Floor:        floor,
		profiles:     map[network.EdgeID]*EdgeRiskProfile{},
		scores:       map[network.EdgeID]float64{},
		incidents:    map[string]Incident{},
	}
}

// EdgeScore returns the risk of an edge, Floor when nothing was assigned to it.
func (s *Snapshot) EdgeScore(id network.EdgeID) float64 {
	if v, ok := s.scores[id]; ok {
		return v
	}
	return s.Floor
}

// Profile returns the accumulated incidents of an edge.
func (s *Snapshot) Profile(id network.EdgeID) (*EdgeRiskProfile, bool) {
	p, ok := s.profiles[id]
	return p, ok
}

// Incident returns an assigned incident by id.
func (s *Snapshot) Incident(id string) (Incident, bool) {
	inc, ok := s.incidents[id]
	return inc, ok
}

// ScoredEdges is the number of edges carrying at least one incident.
func (s *Snapshot) ScoredEdges() int {
	return len(s.scores)
}
