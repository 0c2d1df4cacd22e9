// Package server exposes route planning and snapshot maintenance over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/baronsmv/navi/maintenance"
	"github.com/baronsmv/navi/metrics"
	"github.com/baronsmv/navi/network"
	"github.com/baronsmv/navi/routing"
)

// StatusClientClosedRequest is returned when the caller went away before the plan was ready.
const StatusClientClosedRequest = 499

// Rebuilder is the part of maintenance.Rebuilder the admin endpoints use.
type Rebuilder interface {
	Rebuild(ctx context.Context) (*routing.Snapshot, error)
	RefreshRisk(ctx context.Context) (*routing.Snapshot, error)
	Trigger()
	TriggerRisk()
	Status() maintenance.Status
}

// Handler serves the HTTP API.
type Handler struct {
	planner    *routing.Planner
	store      *routing.Store
	rebuilder  Rebuilder
	metrics    *metrics.Collector
	logger     *zap.Logger
	adminToken string
}

// NewHandler wires a handler. rebuilder and m may be nil; the admin rebuild endpoint then
// answers 503 and no metrics are recorded.
func NewHandler(planner *routing.Planner, store *routing.Store, rebuilder Rebuilder, m *metrics.Collector, logger *zap.Logger, adminToken string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		planner:    planner,
		store:      store,
		rebuilder:  rebuilder,
		metrics:    m,
		logger:     logger,
		adminToken: adminToken,
	}
}

func (h *Handler) respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: message, Code: code, RequestID: requestID(c)})
}

// PlanRoute handles POST /api/routes.
func (h *Handler) PlanRoute(c *gin.Context) {
	start := time.Now()

	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.observeRoute("invalid", start, 0)
		h.respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	plan, err := h.planner.PlanRoute(c.Request.Context(), req.origin(), req.destination(), req.options())
	if err != nil {
		status, code := classify(err)
		h.observeRoute(code, start, 0)
		if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
			h.logger.Error("route planning failed", zap.String("request_id", requestID(c)), zap.Error(err))
		} else {
			h.logger.Debug("route request rejected", zap.String("request_id", requestID(c)), zap.Error(err))
		}
		h.respondError(c, status, code, err.Error())
		return
	}

	h.observeRoute("ok", start, len(plan.Alternatives))
	c.JSON(http.StatusOK, PrepareResponse(requestID(c), plan))
}

func (h *Handler) observeRoute(outcome string, start time.Time, alternatives int) {
	if h.metrics != nil {
		h.metrics.ObserveRoute(outcome, time.Since(start), alternatives)
	}
}

// classify maps a planning error to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	var (
		invalid   *routing.InvalidOptionsError
		noNode    *network.NoNearbyNodeError
		noRoute   *routing.NoRouteFoundError
		cancelled *routing.CancellationError
	)
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "invalid_options"
	case errors.As(err, &noNode):
		return http.StatusUnprocessableEntity, "no_nearby_node"
	case errors.As(err, &noRoute):
		return http.StatusNotFound, "no_route"
	case errors.Is(err, routing.ErrNoSnapshot):
		return http.StatusServiceUnavailable, "no_snapshot"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &cancelled), errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "cancelled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// Rebuild handles POST /admin/rebuild. kind=risk rescores risk only; async=true returns at once.
func (h *Handler) Rebuild(c *gin.Context) {
	if h.rebuilder == nil {
		h.respondError(c, http.StatusServiceUnavailable, "no_rebuilder", "rebuilds are not enabled")
		return
	}
	kind := c.DefaultQuery("kind", maintenance.KindFull)
	if kind != maintenance.KindFull && kind != maintenance.KindRisk {
		h.respondError(c, http.StatusBadRequest, "invalid_kind", "kind must be full or risk")
		return
	}

	if c.Query("async") == "true" {
		if kind == maintenance.KindRisk {
			h.rebuilder.TriggerRisk()
		} else {
			h.rebuilder.Trigger()
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "scheduled", "kind": kind})
		return
	}

	var (
		snap *routing.Snapshot
		err  error
	)
	if kind == maintenance.KindRisk {
		snap, err = h.rebuilder.RefreshRisk(c.Request.Context())
	} else {
		snap, err = h.rebuilder.Rebuild(c.Request.Context())
	}
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, "rebuild_failed", err.Error())
		return
	}
	resp := snapshotResponse(snap)
	st := h.rebuilder.Status()
	resp.Rebuild = &st
	c.JSON(http.StatusOK, resp)
}

// Snapshot handles GET /admin/snapshot.
func (h *Handler) Snapshot(c *gin.Context) {
	snap := h.store.Current()
	if snap == nil {
		h.respondError(c, http.StatusServiceUnavailable, "no_snapshot", routing.ErrNoSnapshot.Error())
		return
	}
	resp := snapshotResponse(snap)
	if h.rebuilder != nil {
		st := h.rebuilder.Status()
		resp.Rebuild = &st
	}
	c.JSON(http.StatusOK, resp)
}

// Health handles GET /health. The service is healthy once a snapshot is served.
func (h *Handler) Health(c *gin.Context) {
	snap := h.store.Current()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "snapshotVersion": snap.Version})
}
