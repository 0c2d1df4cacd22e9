// Package config loads the service configuration: built-in defaults, then an optional YAML
// file, then NAVI_* environment variables, then validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/baronsmv/navi/incidents"
	"github.com/baronsmv/navi/network"
	"github.com/baronsmv/navi/risk"
	"github.com/baronsmv/navi/routing"
)

// Config is the complete service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Network     NetworkConfig     `yaml:"network"`
	Risk        RiskConfig        `yaml:"risk"`
	Routing     RoutingConfig     `yaml:"routing"`
	Incidents   IncidentsConfig   `yaml:"incidents"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port" validate:"min=1,max=65535"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
	AdminToken     string        `yaml:"admin_token"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

type NetworkConfig struct {
	Path               string  `yaml:"path" validate:"required"`
	MaxSnapRadius      float64 `yaml:"max_snap_radius" validate:"gt=0"`
	EdgeCellSize       float64 `yaml:"edge_cell_size" validate:"gt=0"`
	EndpointTolerance  float64 `yaml:"endpoint_tolerance" validate:"gt=0"`
	AllowIsolatedNodes bool    `yaml:"allow_isolated_nodes"`
}

type RiskConfig struct {
	AssignmentRadius float64          `yaml:"assignment_radius" validate:"gt=0"`
	HalfLife         time.Duration    `yaml:"half_life" validate:"gt=0"`
	MaxSeverity      int              `yaml:"max_severity" validate:"min=1"`
	IncludeReverse   bool             `yaml:"include_reverse"`
	Fuzzy            risk.FuzzyConfig `yaml:"fuzzy"`
}

type RoutingConfig struct {
	RiskWeight          float64 `yaml:"risk_weight" validate:"gte=0,lte=1"`
	Alternatives        int     `yaml:"alternatives" validate:"gte=0,ltefield=MaxAlternatives"`
	MaxAlternatives     int     `yaml:"max_alternatives" validate:"gte=0,lte=20"`
	PenaltyFactor       float64 `yaml:"penalty_factor" validate:"gt=0"`
	OverlapThreshold    float64 `yaml:"overlap_threshold" validate:"gt=0,lte=1"`
	MaxAttempts         int     `yaml:"max_attempts" validate:"gte=0"`
	CancelCheckInterval int     `yaml:"cancel_check_interval" validate:"min=1"`
}

type IncidentsConfig struct {
	Backend     string        `yaml:"backend" validate:"oneof=badger postgres"`
	BadgerDir   string        `yaml:"badger_dir" validate:"required_if=Backend badger"`
	PostgresURL string        `yaml:"postgres_url" validate:"required_if=Backend postgres"`
	Breaker     BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	FailureThreshold float64       `yaml:"failure_threshold" validate:"gt=0,lte=1"`
	MinRequests      uint32        `yaml:"min_requests" validate:"min=1"`
}

type MaintenanceConfig struct {
	// Interval between periodic risk refreshes; zero disables the ticker.
	Interval     time.Duration `yaml:"interval" validate:"gte=0"`
	WatchNetwork bool          `yaml:"watch_network"`
	NATSURL      string        `yaml:"nats_url"`
	NATSSubject  string        `yaml:"nats_subject" validate:"required_with=NATSURL"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	nb := network.DefaultBuildOptions()
	ao := risk.DefaultAssignOptions()
	po := routing.DefaultPlannerOptions()
	bc := incidents.DefaultBreakerConfig("incidents")
	return Config{
		Server: ServerConfig{
			Host:           "",
			Port:           8080,
			RequestTimeout: 10 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{Level: "info"},
		Network: NetworkConfig{
			Path:              "data/network.gob",
			MaxSnapRadius:     nb.MaxSnapRadius,
			EdgeCellSize:      nb.EdgeCellSize,
			EndpointTolerance: nb.EndpointTolerance,
		},
		Risk: RiskConfig{
			AssignmentRadius: ao.Radius,
			HalfLife:         ao.HalfLife,
			MaxSeverity:      ao.MaxSeverity,
			IncludeReverse:   ao.IncludeReverse,
			Fuzzy:            risk.DefaultFuzzyConfig(),
		},
		Routing: RoutingConfig{
			RiskWeight:          po.RiskWeight,
			Alternatives:        po.Alternatives,
			MaxAlternatives:     po.MaxAlternatives,
			PenaltyFactor:       po.PenaltyFactor,
			OverlapThreshold:    po.OverlapThreshold,
			CancelCheckInterval: po.CancelCheckInterval,
		},
		Incidents: IncidentsConfig{
			Backend:   "badger",
			BadgerDir: "data/incidents",
			Breaker: BreakerConfig{
				Timeout:          bc.Timeout,
				FailureThreshold: bc.FailureThreshold,
				MinRequests:      bc.MinRequests,
			},
		},
		Maintenance: MaintenanceConfig{
			Interval:    time.Hour,
			NATSSubject: "navi.incidents.changed",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped when path is
// empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

var validate = validator.New()

// Validate checks field ranges and that the fuzzy rules compile.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := risk.NewEvaluator(c.Risk.Fuzzy); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

// applyEnv overrides selected fields from NAVI_* variables.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	var errs []string
	num := func(name string, dst *float64) {
		if v, ok := lookup(name); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = f
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = b
		}
	}

	str("NAVI_SERVER_HOST", &cfg.Server.Host)
	integer("NAVI_SERVER_PORT", &cfg.Server.Port)
	duration("NAVI_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	str("NAVI_ADMIN_TOKEN", &cfg.Server.AdminToken)
	if v, ok := lookup("NAVI_ALLOWED_ORIGINS"); ok && v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
	str("NAVI_LOG_LEVEL", &cfg.Log.Level)
	boolean("NAVI_LOG_DEVELOPMENT", &cfg.Log.Development)
	str("NAVI_NETWORK_PATH", &cfg.Network.Path)
	num("NAVI_MAX_SNAP_RADIUS", &cfg.Network.MaxSnapRadius)
	num("NAVI_ASSIGNMENT_RADIUS", &cfg.Risk.AssignmentRadius)
	duration("NAVI_HALF_LIFE", &cfg.Risk.HalfLife)
	num("NAVI_RISK_WEIGHT", &cfg.Routing.RiskWeight)
	integer("NAVI_ALTERNATIVES", &cfg.Routing.Alternatives)
	str("NAVI_INCIDENTS_BACKEND", &cfg.Incidents.Backend)
	str("NAVI_BADGER_DIR", &cfg.Incidents.BadgerDir)
	str("NAVI_POSTGRES_URL", &cfg.Incidents.PostgresURL)
	duration("NAVI_REBUILD_INTERVAL", &cfg.Maintenance.Interval)
	boolean("NAVI_WATCH_NETWORK", &cfg.Maintenance.WatchNetwork)
	str("NAVI_NATS_URL", &cfg.Maintenance.NATSURL)
	str("NAVI_NATS_SUBJECT", &cfg.Maintenance.NATSSubject)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// BuildOptions converts the network section for network.Build.
func (c *Config) BuildOptions() network.BuildOptions {
	return network.BuildOptions{
		MaxSnapRadius:      c.Network.MaxSnapRadius,
		EdgeCellSize:       c.Network.EdgeCellSize,
		EndpointTolerance:  c.Network.EndpointTolerance,
		AllowIsolatedNodes: c.Network.AllowIsolatedNodes,
	}
}

// AssignOptions converts the risk section for risk.Assign.
func (c *Config) AssignOptions() risk.AssignOptions {
	return risk.AssignOptions{
		Radius:         c.Risk.AssignmentRadius,
		HalfLife:       c.Risk.HalfLife,
		MaxSeverity:    c.Risk.MaxSeverity,
		IncludeReverse: c.Risk.IncludeReverse,
	}
}

// PlannerOptions converts the routing section for routing.NewPlanner.
func (c *Config) PlannerOptions() routing.PlannerOptions {
	return routing.PlannerOptions{
		RiskWeight:          c.Routing.RiskWeight,
		Alternatives:        c.Routing.Alternatives,
		MaxAlternatives:     c.Routing.MaxAlternatives,
		PenaltyFactor:       c.Routing.PenaltyFactor,
		OverlapThreshold:    c.Routing.OverlapThreshold,
		MaxAttempts:         c.Routing.MaxAttempts,
		CancelCheckInterval: c.Routing.CancelCheckInterval,
	}
}

// BreakerConfig converts the breaker settings for incidents.NewBreakerSource.
func (c *Config) BreakerConfig() incidents.BreakerConfig {
	bc := incidents.DefaultBreakerConfig(c.Incidents.Backend)
	bc.Timeout = c.Incidents.Breaker.Timeout
	bc.FailureThreshold = c.Incidents.Breaker.FailureThreshold
	bc.MinRequests = c.Incidents.Breaker.MinRequests
	return bc
}

// NewLogger builds the zap logger described by the log section.
func (l LogConfig) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc.Level = level
	return zc.Build()
}
