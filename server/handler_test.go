package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/baronsmv/navi/maintenance"
	"github.com/baronsmv/navi/metrics"
	"github.com/baronsmv/navi/network"
	"github.com/baronsmv/navi/risk"
	"github.com/baronsmv/navi/routing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var metersPerDegree = 6378137.0 * math.Pi / 180

func deg(m float64) float64 { return m / metersPerDegree }

// testNetwork is the line A(1)-B(2)-C(3)-D(4) every 100 m along the equator, plus an island
// E(5)-F(6) 300 m north of D that no road reaches.
func testNetwork() network.RawNetwork {
	raw := network.RawNetwork{
		Nodes: []network.RawNode{
			{ID: 1, Lon: deg(0)},
			{ID: 2, Lon: deg(100)},
			{ID: 3, Lon: deg(200)},
			{ID: 4, Lon: deg(300)},
			{ID: 5, Lat: deg(300), Lon: deg(300)},
			{ID: 6, Lat: deg(300), Lon: deg(400)},
		},
	}
	var id network.EdgeID = 1
	link := func(a, b network.NodeID) {
		raw.Edges = append(raw.Edges,
			network.RawEdge{ID: id, From: a, To: b},
			network.RawEdge{ID: id + 1, From: b, To: a},
		)
		id += 2
	}
	link(1, 2)
	link(2, 3)
	link(3, 4)
	link(5, 6)
	return raw
}

func publishTestSnapshot(t *testing.T, store *routing.Store, incidents ...risk.Incident) {
	t.Helper()
	g, err := network.Build(testNetwork(), network.BuildOptions{Version: 1})
	require.NoError(t, err)
	ev, err := risk.NewEvaluator(risk.DefaultFuzzyConfig())
	require.NoError(t, err)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rs := risk.Score(risk.Assign(incidents, g, risk.DefaultAssignOptions(), now), ev, now)
	store.Publish(g, rs, ev)
}

type fakeRebuilder struct {
	store    *routing.Store
	err      error
	full     int
	risk     int
	triggers int
}

func (f *fakeRebuilder) Rebuild(ctx context.Context) (*routing.Snapshot, error) {
	f.full++
	if f.err != nil {
		return nil, f.err
	}
	return f.store.Current(), nil
}

func (f *fakeRebuilder) RefreshRisk(ctx context.Context) (*routing.Snapshot, error) {
	f.risk++
	if f.err != nil {
		return nil, f.err
	}
	return f.store.Current(), nil
}

func (f *fakeRebuilder) Trigger()     { f.triggers++ }
func (f *fakeRebuilder) TriggerRisk() { f.triggers++ }

func (f *fakeRebuilder) Status() maintenance.Status {
	return maintenance.Status{Succeeded: f.full + f.risk}
}

type testServer struct {
	router    *gin.Engine
	store     *routing.Store
	rebuilder *fakeRebuilder
	metrics   *metrics.Collector
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()
	store := routing.NewStore()
	rb := &fakeRebuilder{store: store}
	m := metrics.NewCollector("navi")
	planner := routing.NewPlanner(store, routing.DefaultPlannerOptions(), zap.NewNop())
	h := NewHandler(planner, store, rb, m, zap.NewNop(), token)
	return &testServer{
		router:    NewRouter(h, Options{RequestTimeout: 5 * time.Second}),
		store:     store,
		rebuilder: rb,
		metrics:   m,
	}
}

func (s *testServer) do(method, path string, body any, header ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func routeBody(startEastM, endEastM float64) map[string]any {
	return map[string]any{
		"startLat": 0.0, "startLon": deg(startEastM),
		"endLat": 0.0, "endLon": deg(endEastM),
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestPlanRouteReturnsSafestRoute(t *testing.T) {
	s := newTestServer(t, "")
	publishTestSnapshot(t, s.store, risk.Incident{
		ID: "r-1", Type: risk.TypeRobbery, Severity: 5, Status: risk.StatusInProgress,
		OccurredAt: time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC),
		Latitude:   deg(5), Longitude: deg(150),
	})

	rec := s.do(http.MethodPost, "/api/routes", routeBody(0, 300))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp RouteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.SnapshotVersion)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), resp.RequestID)
	assert.True(t, resp.Primary.Primary)
	assert.InDelta(t, 300.0, resp.Primary.DistanceM, 0.5)
	assert.Equal(t, []int64{1, 3, 5}, resp.Primary.EdgeIDs)
	assert.Len(t, resp.Primary.Geometry, 4)
	assert.Greater(t, resp.Primary.DangerLevel, risk.DefaultFloor)
	require.Len(t, resp.Primary.Incidents, 1)
	assert.Equal(t, "r-1", resp.Primary.Incidents[0].ID)
	assert.Equal(t, "robbery", resp.Primary.Incidents[0].Type)
	assert.NotNil(t, resp.Alternatives)
}

func TestPlanRouteKeepsCallerRequestID(t *testing.T) {
	s := newTestServer(t, "")
	publishTestSnapshot(t, s.store)

	rec := s.do(http.MethodPost, "/api/routes", routeBody(0, 200), "X-Request-ID", "req-42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestPlanRouteErrors(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(http.MethodPost, "/api/routes", routeBody(0, 300))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "no_snapshot", decodeError(t, rec).Code)

	publishTestSnapshot(t, s.store)

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing field", map[string]any{"startLat": 0.0, "startLon": 0.0, "endLat": 0.0}, http.StatusBadRequest, "invalid_request"},
		{"latitude out of range", map[string]any{"startLat": 91.0, "startLon": 0.0, "endLat": 0.0, "endLon": 0.0}, http.StatusBadRequest, "invalid_request"},
		{"risk weight out of range", func() map[string]any {
			b := routeBody(0, 300)
			b["riskWeight"] = 1.5
			return b
		}(), http.StatusBadRequest, "invalid_options"},
		{"too many alternatives", func() map[string]any {
			b := routeBody(0, 300)
			b["alternatives"] = 9
			return b
		}(), http.StatusBadRequest, "invalid_options"},
		{"far from the network", routeBody(0, 50000), http.StatusUnprocessableEntity, "no_nearby_node"},
		{"unreachable island", map[string]any{
			"startLat": 0.0, "startLon": deg(0),
			"endLat": deg(300), "endLon": deg(400),
		}, http.StatusNotFound, "no_route"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/routes", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decodeError(t, rec).Code)
		})
	}
}

func TestClassifyCancellation(t *testing.T) {
	status, code := classify(&routing.CancellationError{Err: context.DeadlineExceeded})
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, "timeout", code)

	status, code = classify(fmt.Errorf("planning: %w", &routing.CancellationError{Err: context.Canceled}))
	assert.Equal(t, StatusClientClosedRequest, status)
	assert.Equal(t, "cancelled", code)

	status, _ = classify(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/health", nil).Code)

	publishTestSnapshot(t, s.store)
	rec := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"snapshotVersion":1`)
}

func TestAdminRequiresToken(t *testing.T) {
	s := newTestServer(t, "s3cret")
	publishTestSnapshot(t, s.store)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/admin/snapshot", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/admin/snapshot", nil, "Authorization", "Bearer nope").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/admin/snapshot", nil, "Authorization", "Bearer s3cret").Code)
}

func TestAdminSnapshot(t *testing.T) {
	s := newTestServer(t, "")
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/admin/snapshot", nil).Code)

	publishTestSnapshot(t, s.store)
	rec := s.do(http.MethodGet, "/admin/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SnapshotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.Version)
	assert.Equal(t, 6, resp.Graph.Nodes)
	assert.Equal(t, 8, resp.Graph.Edges)
	assert.Equal(t, risk.DefaultFloor, resp.Risk.Floor)
	require.NotNil(t, resp.Rebuild)
}

func TestAdminRebuild(t *testing.T) {
	s := newTestServer(t, "")
	publishTestSnapshot(t, s.store)

	rec := s.do(http.MethodPost, "/admin/rebuild", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, s.rebuilder.full)

	rec = s.do(http.MethodPost, "/admin/rebuild?kind=risk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, s.rebuilder.risk)

	rec = s.do(http.MethodPost, "/admin/rebuild?async=true", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, s.rebuilder.triggers)

	rec = s.do(http.MethodPost, "/admin/rebuild?kind=partial", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.rebuilder.err = errors.New("build network: disk gone")
	rec = s.do(http.MethodPost, "/admin/rebuild", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "rebuild_failed", decodeError(t, rec).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	publishTestSnapshot(t, s.store)
	s.do(http.MethodPost, "/api/routes", routeBody(0, 300))
	s.do(http.MethodPost, "/api/routes", routeBody(0, 50000))

	rec := s.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `navi_route_requests_total{outcome="ok"} 1`)
	assert.Contains(t, body, `navi_route_requests_total{outcome="no_nearby_node"} 1`)
	assert.Contains(t, body, `navi_http_requests_total{method="POST",route="/api/routes",status="200"} 1`)
}
