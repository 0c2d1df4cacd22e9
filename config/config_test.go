package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baronsmv/navi/routing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "navi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 50.0, cfg.Risk.AssignmentRadius)
	assert.Equal(t, 90*24*time.Hour, cfg.Risk.HalfLife)
	assert.True(t, cfg.Risk.IncludeReverse)
	assert.Equal(t, 0.5, cfg.Routing.RiskWeight)
	assert.Equal(t, "badger", cfg.Incidents.Backend)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  request_timeout: 3s
network:
  path: /srv/city.json
risk:
  half_life: 720h
  include_reverse: false
routing:
  risk_weight: 0.8
  alternatives: 3
incidents:
  backend: postgres
  postgres_url: postgres://navi@localhost/navi
maintenance:
  interval: 0s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "/srv/city.json", cfg.Network.Path)
	assert.Equal(t, 720*time.Hour, cfg.Risk.HalfLife)
	assert.False(t, cfg.Risk.IncludeReverse)
	assert.Equal(t, 0.8, cfg.Routing.RiskWeight)
	assert.Equal(t, 3, cfg.Routing.Alternatives)
	assert.Equal(t, time.Duration(0), cfg.Maintenance.Interval)

	// untouched sections keep their defaults
	assert.Equal(t, 250.0, cfg.Network.EdgeCellSize)
	assert.Equal(t, 5, cfg.Routing.MaxAlternatives)
	assert.NotEmpty(t, cfg.Risk.Fuzzy.Rules)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("NAVI_SERVER_PORT", "7070")
	t.Setenv("NAVI_RISK_WEIGHT", "0.25")
	t.Setenv("NAVI_REBUILD_INTERVAL", "15m")
	t.Setenv("NAVI_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 0.25, cfg.Routing.RiskWeight)
	assert.Equal(t, 15*time.Minute, cfg.Maintenance.Interval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestBadEnvironmentValue(t *testing.T) {
	t.Setenv("NAVI_SERVER_PORT", "eighty")
	_, err := Load("")
	assert.ErrorContains(t, err, "NAVI_SERVER_PORT")
}

func TestUnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, "server:\n  prot: 9090\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestValidationFailures(t *testing.T) {
	cases := map[string]string{
		"risk weight above one":        "routing:\n  risk_weight: 1.5\n",
		"alternatives above maximum":   "routing:\n  alternatives: 6\n  max_alternatives: 5\n",
		"unknown backend":              "incidents:\n  backend: mongo\n",
		"postgres without url":         "incidents:\n  backend: postgres\n",
		"non-positive snap radius":     "network:\n  max_snap_radius: 0\n",
		"overlap threshold above one":  "routing:\n  overlap_threshold: 1.2\n",
		"bad log level":                "log:\n  level: chatty\n",
		"fuzzy rules that do not form": "risk:\n  fuzzy:\n    rules: []\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}
}

func TestZeroMaxAlternativesReachesPlanner(t *testing.T) {
	cfg, err := Load(writeConfig(t, "routing:\n  alternatives: 0\n  max_alternatives: 0\n"))
	require.NoError(t, err)

	planner := routing.NewPlanner(routing.NewStore(), cfg.PlannerOptions(), nil)
	assert.Equal(t, 0, planner.MaxAlternatives())
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Network.AllowIsolatedNodes = true
	cfg.Incidents.Breaker.MinRequests = 7

	assert.True(t, cfg.BuildOptions().AllowIsolatedNodes)
	assert.Equal(t, cfg.Risk.AssignmentRadius, cfg.AssignOptions().Radius)
	assert.Equal(t, cfg.Routing.PenaltyFactor, cfg.PlannerOptions().PenaltyFactor)
	assert.Equal(t, uint32(7), cfg.BreakerConfig().MinRequests)
	assert.Equal(t, "badger", cfg.BreakerConfig().Name)
}

func TestNewLogger(t *testing.T) {
	logger, err := LogConfig{Level: "debug", Development: true}.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = LogConfig{Level: "loud"}.NewLogger()
	assert.Error(t, err)
}
