package server

import (
	"time"

	"github.com/baronsmv/navi/maintenance"
	"github.com/baronsmv/navi/network"
	"github.com/baronsmv/navi/routing"
)

type RouteRequest struct {
	StartLat     *float64 `json:"startLat" binding:"required,gte=-90,lte=90"`
	StartLon     *float64 `json:"startLon" binding:"required,gte=-180,lte=180"`
	EndLat       *float64 `json:"endLat" binding:"required,gte=-90,lte=90"`
	EndLon       *float64 `json:"endLon" binding:"required,gte=-180,lte=180"`
	Alternatives *int     `json:"alternatives,omitempty"`
	RiskWeight   *float64 `json:"riskWeight,omitempty"`
}

func (r RouteRequest) origin() network.Coordinate {
	return network.Coordinate{Lat: *r.StartLat, Lon: *r.StartLon}
}

func (r RouteRequest) destination() network.Coordinate {
	return network.Coordinate{Lat: *r.EndLat, Lon: *r.EndLon}
}

func (r RouteRequest) options() routing.PlanOptions {
	return routing.PlanOptions{Alternatives: r.Alternatives, RiskWeight: r.RiskWeight}
}

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type IncidentSummary struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Severity   int        `json:"severity"`
	Status     string     `json:"status"`
	OccurredAt time.Time  `json:"occurredAt"`
	Location   Coordinate `json:"location"`
}

type Route struct {
	Rank        int               `json:"rank"`
	Primary     bool              `json:"primary"`
	DistanceM   float64           `json:"distanceM"`
	DangerLevel float64           `json:"dangerLevel"`
	Geometry    []Coordinate      `json:"geometry"`
	EdgeIDs     []int64           `json:"edgeIds"`
	Incidents   []IncidentSummary `json:"incidents"`
}

// RouteResponse lists the primary route first, then the alternatives safest first.
type RouteResponse struct {
	RequestID       string  `json:"requestId"`
	SnapshotVersion uint64  `json:"snapshotVersion"`
	Primary         Route   `json:"primary"`
	Alternatives    []Route `json:"alternatives"`
}

func PrepareResponse(requestID string, plan *routing.Plan) RouteResponse {
	resp := RouteResponse{
		RequestID:       requestID,
		SnapshotVersion: plan.Version,
		Primary:         toRoute(plan.Primary, plan),
		Alternatives:    make([]Route, 0, len(plan.Alternatives)),
	}
	for _, c := range plan.Alternatives {
		resp.Alternatives = append(resp.Alternatives, toRoute(c, plan))
	}
	return resp
}

func toRoute(c routing.RouteCandidate, plan *routing.Plan) Route {
	r := Route{
		Rank:        c.Rank,
		Primary:     c.Primary,
		DistanceM:   c.Distance,
		DangerLevel: c.DangerLevel,
		Geometry:    make([]Coordinate, 0, len(c.Geometry)),
		EdgeIDs:     make([]int64, 0, len(c.Edges)),
		Incidents:   make([]IncidentSummary, 0, len(c.Incidents)),
	}
	for _, p := range c.Geometry {
		r.Geometry = append(r.Geometry, Coordinate{Lat: p.Lat(), Lon: p.Lon()})
	}
	for _, id := range c.Edges {
		r.EdgeIDs = append(r.EdgeIDs, int64(id))
	}
	for _, id := range c.Incidents {
		inc, ok := plan.Incidents[id]
		if !ok {
			continue
		}
		r.Incidents = append(r.Incidents, IncidentSummary{
			ID:         inc.ID,
			Type:       string(inc.Type),
			Severity:   inc.Severity,
			Status:     string(inc.Status),
			OccurredAt: inc.OccurredAt,
			Location:   Coordinate{Lat: inc.Latitude, Lon: inc.Longitude},
		})
	}
	return r
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

type SnapshotResponse struct {
	Version     uint64              `json:"version"`
	PublishedAt time.Time           `json:"publishedAt"`
	Graph       network.Stats       `json:"graph"`
	Risk        RiskSummary         `json:"risk"`
	Rebuild     *maintenance.Status `json:"rebuild,omitempty"`
}

type RiskSummary struct {
	ComputedAt  time.Time `json:"computedAt"`
	Floor       float64   `json:"floor"`
	ScoredEdges int       `json:"scoredEdges"`
	Assigned    int       `json:"assigned"`
	OutOfRange  int       `json:"outOfRange"`
	Inactive    int       `json:"inactive"`
	Rejected    int       `json:"rejected"`
}

func snapshotResponse(snap *routing.Snapshot) SnapshotResponse {
	rs := snap.Risk
	return SnapshotResponse{
		Version:     snap.Version,
		PublishedAt: snap.PublishedAt,
		Graph:       snap.Graph.Stats(),
		Risk: RiskSummary{
			ComputedAt:  rs.ComputedAt,
			Floor:       rs.Floor,
			ScoredEdges: rs.ScoredEdges(),
			Assigned:    rs.Assigned,
			OutOfRange:  rs.OutOfRange,
			Inactive:    rs.Inactive,
			Rejected:    rs.Rejected,
		},
	}
}
