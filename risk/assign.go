package risk

import (
	"sort"
	"time"

	"github.com/baronsmv/navi/network"
)

// DefaultAssignmentRadius is how far, in meters, an incident may lie from an edge and still
// count towards it.
const DefaultAssignmentRadius = 50.0

// DefaultMaxSeverity is the highest severity accepted at ingestion.
const DefaultMaxSeverity = 5

// AssignOptions control how incidents are attached to edges.
type AssignOptions struct {
	Radius         float64       // meters
	HalfLife       time.Duration // recency half-life
	MaxSeverity    int
	IncludeReverse bool // credit the opposite direction of a two-way street as well
}

// DefaultAssignOptions returns the options used when the configuration leaves them unset.
func DefaultAssignOptions() AssignOptions {
	return AssignOptions{
		Radius:         DefaultAssignmentRadius,
		HalfLife:       DefaultHalfLife,
		MaxSeverity:    DefaultMaxSeverity,
		IncludeReverse: true,
	}
}

func (o AssignOptions) withDefaults() AssignOptions {
	d := DefaultAssignOptions()
	if o.Radius <= 0 {
		o.Radius = d.Radius
	}
	if o.HalfLife <= 0 {
		o.HalfLife = d.HalfLife
	}
	if o.MaxSeverity <= 0 {
		o.MaxSeverity = d.MaxSeverity
	}
	return o
}

// EdgeRiskProfile accumulates the incidents attached to one edge.
type EdgeRiskProfile struct {
	EdgeID           network.EdgeID `json:"edgeId"`
	IncidentIDs      []string       `json:"incidentIds"`
	Count            int            `json:"count"`
	SeveritySum      int            `json:"severitySum"`
	WeightedSeverity float64        `json:"weightedSeverity"` // sum of severity x decay
	DecayWeight      float64        `json:"decayWeight"`      // sum of decay
	Length           float64        `json:"length"`
	Density          float64        `json:"density"`   // incidents per 100 m
	Freshness        float64        `json:"freshness"` // DecayWeight / Count
	Score            float64        `json:"score"`
}

func (p *EdgeRiskProfile) add(id string, severity int, decay float64) {
	p.IncidentIDs = append(p.IncidentIDs, id)
	p.Count++
	p.SeveritySum += severity
	p.WeightedSeverity += float64(severity) * decay
	p.DecayWeight += decay
}

func (p *EdgeRiskProfile) derive() {
	length := p.Length
	if length < 1 {
		length = 1
	}
	p.Density = float64(p.Count) / length * 100
	if p.Count > 0 {
		p.Freshness = p.DecayWeight / float64(p.Count)
	}
}

// Assignment is the outcome of attaching a batch of incidents to a graph.
type Assignment struct {
	GraphVersion uint64
	Profiles     map[network.EdgeID]*EdgeRiskProfile
	Incidents    map[string]Incident // accepted incidents by id

	Assigned   int // incidents attached to an edge
	OutOfRange int // valid incidents with no edge within the radius
	Inactive   int // resolved incidents
	Rejected   int // invalid or duplicate records
}

// Assign attaches active incidents to the nearest edge of g within opts.Radius and accumulates
// them into per-edge profiles. The result depends only on its inputs, not their order: incidents
// are processed in incidentLess order and the first record of a repeated id wins.
func Assign(incidents []Incident, g *network.Graph, opts AssignOptions, now time.Time) *Assignment {
	opts = opts.withDefaults()

	sorted := make([]Incident, len(incidents))
	copy(sorted, incidents)
	sort.Slice(sorted, func(i, j int) bool { return incidentLess(sorted[i], sorted[j]) })

	a := &Assignment{
		GraphVersion: g.Version,
		Profiles:     make(map[network.EdgeID]*EdgeRiskProfile),
		Incidents:    make(map[string]Incident),
	}
	seen := make(map[string]bool, len(sorted))

	for _, inc := range sorted {
		if err := inc.Validate(opts.MaxSeverity); err != nil {
			a.Rejected++
			continue
		}
		if seen[inc.ID] {
			a.Rejected++
			continue
		}
		seen[inc.ID] = true

		if !inc.Status.Active() {
			a.Inactive++
			continue
		}

		edgeID, _, err := g.SnapToEdge(network.Coordinate{Lat: inc.Latitude, Lon: inc.Longitude}, opts.Radius)
		if err != nil {
			a.OutOfRange++
			continue
		}

		decay := RecencyDecay(now.Sub(inc.OccurredAt), opts.HalfLife)
		a.profile(g, edgeID).add(inc.ID, inc.Severity, decay)
		if opts.IncludeReverse {
			if rev, ok := g.Reverse(edgeID); ok {
				a.profile(g, rev).add(inc.ID, inc.Severity, decay)
			}
		}
		a.Incidents[inc.ID] = inc
		a.Assigned++
	}

	for _, p := range a.Profiles {
		p.derive()
	}
	return a
}

// incidentLess is a total order over incident records, so records sharing an id and timestamp
// still sort the same way whatever order they arrive in.
func incidentLess(a, b Incident) bool {
	switch {
	case a.ID != b.ID:
		return a.ID < b.ID
	case !a.OccurredAt.Equal(b.OccurredAt):
		return a.OccurredAt.Before(b.OccurredAt)
	case a.Latitude != b.Latitude:
		return a.Latitude < b.Latitude
	case a.Longitude != b.Longitude:
		return a.Longitude < b.Longitude
	case a.Severity != b.Severity:
		return a.Severity < b.Severity
	case a.Status != b.Status:
		return a.Status < b.Status
	case a.Type != b.Type:
		return a.Type < b.Type
	}
	return a.Description < b.Description
}

func (a *Assignment) profile(g *network.Graph, id network.EdgeID) *EdgeRiskProfile {
	p, ok := a.Profiles[id]
	if !ok {
		p = &EdgeRiskProfile{EdgeID: id}
		if e, found := g.Edge(id); found {
			p.Length = e.Length
		}
		a.Profiles[id] = p
	}
	return p
}
