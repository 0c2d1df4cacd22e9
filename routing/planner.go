package routing

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/baronsmv/navi/network"
	"github.com/baronsmv/navi/risk"
)

// PlanOptions are the per-request knobs. Nil fields take the planner defaults.
type PlanOptions struct {
	Alternatives *int
	RiskWeight   *float64
}

// PlannerOptions are the service-wide search settings.
type PlannerOptions struct {
	RiskWeight          float64
	Alternatives        int
	MaxAlternatives     int
	PenaltyFactor       float64
	OverlapThreshold    float64
	MaxAttempts         int
	CancelCheckInterval int
}

// DefaultPlannerOptions returns the settings used when the configuration leaves them unset.
func DefaultPlannerOptions() PlannerOptions {
	return PlannerOptions{
		RiskWeight:          DefaultRiskWeight,
		Alternatives:        DefaultAlternatives,
		MaxAlternatives:     DefaultMaxAlternatives,
		PenaltyFactor:       DefaultPenaltyFactor,
		OverlapThreshold:    DefaultOverlapThreshold,
		CancelCheckInterval: DefaultCancelCheckInterval,
	}
}

// Plan is the answer to one route request.
type Plan struct {
	Version      uint64
	Primary      RouteCandidate
	Alternatives []RouteCandidate // ranked, primary excluded
	Ranked       []RouteCandidate // every candidate, safest first
	// Incidents referenced by any candidate, resolved from the same snapshot.
	Incidents map[string]risk.Incident
}

// Planner answers route requests against the snapshot currently held by a Store.
type Planner struct {
	store  *Store
	opts   PlannerOptions
	logger *zap.Logger
}

// NewPlanner creates a planner reading from store.
func NewPlanner(store *Store, opts PlannerOptions, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	// A zero MaxAlternatives disables alternatives for every request.
	if opts.MaxAlternatives < 0 {
		opts.MaxAlternatives = DefaultMaxAlternatives
	}
	if opts.Alternatives < 0 {
		opts.Alternatives = DefaultAlternatives
	}
	if opts.Alternatives > opts.MaxAlternatives {
		opts.Alternatives = opts.MaxAlternatives
	}
	if opts.RiskWeight < 0 || opts.RiskWeight > 1 || math.IsNaN(opts.RiskWeight) {
		opts.RiskWeight = DefaultRiskWeight
	}
	return &Planner{store: store, opts: opts, logger: logger}
}

// MaxAlternatives is the largest number of alternatives a request may ask for.
func (p *Planner) MaxAlternatives() int {
	return p.opts.MaxAlternatives
}

func (p *Planner) searchOptions(o PlanOptions) (SearchOptions, error) {
	so := SearchOptions{
		RiskWeight:          p.opts.RiskWeight,
		Alternatives:        p.opts.Alternatives,
		PenaltyFactor:       p.opts.PenaltyFactor,
		OverlapThreshold:    p.opts.OverlapThreshold,
		MaxAttempts:         p.opts.MaxAttempts,
		CancelCheckInterval: p.opts.CancelCheckInterval,
	}
	if o.RiskWeight != nil {
		w := *o.RiskWeight
		if math.IsNaN(w) || w < 0 || w > 1 {
			return so, &InvalidOptionsError{Field: "riskWeight", Reason: fmt.Sprintf("%v is outside [0,1]", w)}
		}
		so.RiskWeight = w
	}
	if o.Alternatives != nil {
		k := *o.Alternatives
		if k < 0 || k > p.opts.MaxAlternatives {
			return so, &InvalidOptionsError{
				Field:  "alternatives",
				Reason: fmt.Sprintf("%d is outside [0,%d]", k, p.opts.MaxAlternatives),
			}
		}
		so.Alternatives = k
	}
	return so, nil
}

func validCoordinate(c network.Coordinate) bool {
	return !math.IsNaN(c.Lat) && !math.IsNaN(c.Lon) && c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// PlanRoute snaps both coordinates onto the current network and returns the primary route with
// its alternatives, all ranked safest first.
func (p *Planner) PlanRoute(ctx context.Context, origin, destination network.Coordinate, o PlanOptions) (*Plan, error) {
	start := time.Now()

	so, err := p.searchOptions(o)
	if err != nil {
		return nil, err
	}
	if !validCoordinate(origin) {
		return nil, &InvalidOptionsError{Field: "origin", Reason: "coordinates out of range"}
	}
	if !validCoordinate(destination) {
		return nil, &InvalidOptionsError{Field: "destination", Reason: "coordinates out of range"}
	}

	snap := p.store.Current()
	if snap == nil {
		return nil, ErrNoSnapshot
	}

	from, fromDist, err := snap.Graph.SnapToNode(origin)
	if err != nil {
		return nil, fmt.Errorf("snapping origin: %w", err)
	}
	to, toDist, err := snap.Graph.SnapToNode(destination)
	if err != nil {
		return nil, fmt.Errorf("snapping destination: %w", err)
	}

	paths, err := FindRoutes(ctx, snap, from, to, so)
	if err != nil {
		return nil, err
	}

	ranked := Assemble(paths, snap, snap.Evaluator)
	plan := &Plan{Version: snap.Version, Ranked: ranked, Incidents: make(map[string]risk.Incident)}
	for _, c := range ranked {
		for _, id := range c.Incidents {
			if inc, ok := snap.Risk.Incident(id); ok {
				plan.Incidents[id] = inc
			}
		}
		if c.Primary {
			plan.Primary = c
			continue
		}
		plan.Alternatives = append(plan.Alternatives, c)
	}

	p.logger.Debug("route planned",
		zap.Uint64("version", snap.Version),
		zap.Int64("from", int64(from)),
		zap.Int64("to", int64(to)),
		zap.Float64("origin_snap_m", fromDist),
		zap.Float64("destination_snap_m", toDist),
		zap.Int("candidates", len(ranked)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return plan, nil
}
