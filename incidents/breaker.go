package incidents

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/baronsmv/navi/risk"
)

// BreakerConfig holds the circuit breaker settings for a remote source.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the settings used for the incident database.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      3,
	}
}

// BreakerSource guards a Source with a circuit breaker. While the breaker is open, or the
// wrapped source fails, the last successful list is served so rebuilds keep working with
// slightly stale data.
type BreakerSource struct {
	next   Source
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger

	mu       sync.Mutex
	last     []risk.Incident
	haveLast bool
}

var _ Source = (*BreakerSource)(nil)

// NewBreakerSource wraps next.
func NewBreakerSource(next Source, config BreakerConfig, logger *zap.Logger) *BreakerSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &BreakerSource{next: next, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("incident source breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// Cancellation by the caller is not a source failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return b
}

// State reports the breaker state.
func (b *BreakerSource) State() gobreaker.State {
	return b.cb.State()
}

// List calls the wrapped source through the breaker.
func (b *BreakerSource) List(ctx context.Context) ([]risk.Incident, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.List(ctx)
	})
	if err == nil {
		list := res.([]risk.Incident)
		b.mu.Lock()
		b.last = list
		b.haveLast = true
		b.mu.Unlock()
		return list, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.haveLast && !errors.Is(err, context.Canceled) {
		b.logger.Warn("incident source unavailable, serving last known list",
			zap.Error(err),
			zap.Int("incidents", len(b.last)),
		)
		out := make([]risk.Incident, len(b.last))
		copy(out, b.last)
		return out, nil
	}
	return nil, err
}
