// Package maintenance keeps the served snapshot current: it rebuilds the graph when the network
// file changes and rescores risk when incidents change or the refresh interval elapses.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/baronsmv/navi/incidents"
	"github.com/baronsmv/navi/metrics"
	"github.com/baronsmv/navi/network"
	"github.com/baronsmv/navi/risk"
	"github.com/baronsmv/navi/routing"
)

const (
	KindFull = "full"
	KindRisk = "risk"
)

// NetworkSource yields the raw network a full rebuild starts from.
type NetworkSource interface {
	Load(ctx context.Context) (network.RawNetwork, error)
}

// Options configure a Rebuilder.
type Options struct {
	Build  network.BuildOptions
	Assign risk.AssignOptions
	// Interval between periodic risk refreshes in Run; zero disables them.
	Interval time.Duration
	// Now is the clock used for recency decay. Defaults to time.Now.
	Now func() time.Time
}

// Status reports the outcome of the most recent rebuilds.
type Status struct {
	LastKind     string        `json:"last_kind,omitempty"`
	LastSuccess  time.Time     `json:"last_success,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
	LastErrorAt  time.Time     `json:"last_error_at,omitempty"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
}

// Rebuilder builds snapshots and publishes them to a routing.Store. Rebuilds never overlap, and
// a failed rebuild leaves the previous snapshot in place.
type Rebuilder struct {
	store     *routing.Store
	network   NetworkSource
	incidents incidents.Source
	evaluator *risk.Evaluator
	opts      Options
	logger    *zap.Logger
	metrics   *metrics.Collector

	mu     sync.Mutex // serialises rebuilds
	status Status
	statMu sync.RWMutex

	full chan struct{}
	risk chan struct{}
}

// NewRebuilder wires a rebuilder. metrics may be nil.
func NewRebuilder(
	store *routing.Store,
	net NetworkSource,
	src incidents.Source,
	evaluator *risk.Evaluator,
	opts Options,
	logger *zap.Logger,
	m *metrics.Collector,
) *Rebuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if src == nil {
		src = incidents.Static(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Rebuilder{
		store:     store,
		network:   net,
		incidents: src,
		evaluator: evaluator,
		opts:      opts,
		logger:    logger,
		metrics:   m,
		full:      make(chan struct{}, 1),
		risk:      make(chan struct{}, 1),
	}
}

// Rebuild reloads the network, rescores risk and publishes the result.
func (r *Rebuilder) Rebuild(ctx context.Context) (*routing.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	snap, err := r.rebuild(ctx)
	r.record(KindFull, start, snap, err)
	return snap, err
}

// RefreshRisk rescores risk over the graph currently served. Without a served graph it performs
// a full rebuild.
func (r *Rebuilder) RefreshRisk(ctx context.Context) (*routing.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	cur := r.store.Current()
	if cur == nil {
		snap, err := r.rebuild(ctx)
		r.record(KindFull, start, snap, err)
		return snap, err
	}

	rs, err := r.scoreRisk(ctx, cur.Graph)
	var snap *routing.Snapshot
	if err == nil {
		snap = r.store.Publish(cur.Graph, rs, r.evaluator)
	}
	r.record(KindRisk, start, snap, err)
	return snap, err
}

func (r *Rebuilder) rebuild(ctx context.Context) (*routing.Snapshot, error) {
	raw, err := r.network.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load network: %w", err)
	}
	opts := r.opts.Build
	opts.Version = 1
	if cur := r.store.Current(); cur != nil {
		opts.Version = cur.Version + 1
	}
	g, err := network.Build(raw, opts)
	if err != nil {
		return nil, fmt.Errorf("build network: %w", err)
	}
	rs, err := r.scoreRisk(ctx, g)
	if err != nil {
		return nil, err
	}
	return r.store.Publish(g, rs, r.evaluator), nil
}

func (r *Rebuilder) scoreRisk(ctx context.Context, g *network.Graph) (*risk.Snapshot, error) {
	list, err := r.incidents.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := r.opts.Now().UTC()
	a := risk.Assign(list, g, r.opts.Assign, now)
	return risk.Score(a, r.evaluator, now), nil
}

func (r *Rebuilder) record(kind string, start time.Time, snap *routing.Snapshot, err error) {
	elapsed := time.Since(start)

	r.statMu.Lock()
	r.status.LastKind = kind
	r.status.LastDuration = elapsed
	if err != nil {
		r.status.Failed++
		r.status.LastError = err.Error()
		r.status.LastErrorAt = time.Now().UTC()
	} else {
		r.status.Succeeded++
		r.status.LastSuccess = snap.PublishedAt
	}
	r.statMu.Unlock()

	if err != nil {
		r.logger.Error("snapshot rebuild failed, keeping previous snapshot",
			zap.String("kind", kind),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		if r.metrics != nil {
			r.metrics.ObserveRebuildFailure(kind)
		}
		return
	}

	rs := snap.Risk
	r.logger.Info("snapshot published",
		zap.String("kind", kind),
		zap.Uint64("version", snap.Version),
		zap.Int("edges", snap.Graph.EdgeCount()),
		zap.Int("incidents_assigned", rs.Assigned),
		zap.Int("incidents_out_of_range", rs.OutOfRange),
		zap.Int("incidents_rejected", rs.Rejected),
		zap.Duration("elapsed", elapsed),
	)
	if r.metrics != nil {
		r.metrics.ObserveRebuild(metrics.RebuildStats{
			Kind:       kind,
			Version:    snap.Version,
			Edges:      snap.Graph.EdgeCount(),
			Assigned:   rs.Assigned,
			OutOfRange: rs.OutOfRange,
			Inactive:   rs.Inactive,
			Rejected:   rs.Rejected,
			Duration:   elapsed,
		})
	}
}

// Status returns a copy of the rebuild status.
func (r *Rebuilder) Status() Status {
	r.statMu.RLock()
	defer r.statMu.RUnlock()
	return r.status
}

// Trigger requests a full rebuild from Run. Requests made while one is pending are merged.
func (r *Rebuilder) Trigger() {
	select {
	case r.full <- struct{}{}:
	default:
	}
}

// TriggerRisk requests a risk refresh from Run. Requests made while one is pending are merged.
func (r *Rebuilder) TriggerRisk() {
	select {
	case r.risk <- struct{}{}:
	default:
	}
}

// Run serves triggered rebuilds and periodic refreshes until ctx is done. Failures are logged
// and counted; they do not stop the loop.
func (r *Rebuilder) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if r.opts.Interval > 0 {
		ticker := time.NewTicker(r.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.full:
			_, _ = r.Rebuild(ctx)
		case <-r.risk:
			_, _ = r.RefreshRisk(ctx)
		case <-tick:
			_, _ = r.RefreshRisk(ctx)
		}
	}
}
