package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/baronsmv/navi/incidents"
	"github.com/baronsmv/navi/maintenance"
	"github.com/baronsmv/navi/metrics"
	"github.com/baronsmv/navi/preprocessing"
	"github.com/baronsmv/navi/risk"
	"github.com/baronsmv/navi/routing"
	"github.com/baronsmv/navi/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Build the first snapshot and serve route requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

// openIncidentStore opens the configured backend. The returned store can also be written to.
func openIncidentStore() (incidentStore, error) {
	switch cfg.Incidents.Backend {
	case "postgres":
		return incidents.OpenPostgres(cfg.Incidents.PostgresURL, logger)
	default:
		return incidents.OpenBadger(incidents.BadgerOptions{DataDir: cfg.Incidents.BadgerDir})
	}
}

type incidentStore interface {
	incidents.Source
	incidents.Writer
	io.Closer
}

// newRebuilder wires the maintenance loop over the configured network file and incident store.
func newRebuilder(store *routing.Store, src incidents.Source, m *metrics.Collector) (*maintenance.Rebuilder, error) {
	ev, err := risk.NewEvaluator(cfg.Risk.Fuzzy)
	if err != nil {
		return nil, err
	}
	opts := maintenance.Options{
		Build:    cfg.BuildOptions(),
		Assign:   cfg.AssignOptions(),
		Interval: cfg.Maintenance.Interval,
	}
	return maintenance.NewRebuilder(store, preprocessing.FileSource{Path: cfg.Network.Path}, src, ev, opts, logger, m), nil
}

func serve(ctx context.Context) error {
	db, err := openIncidentStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var src incidents.Source = db
	if cfg.Incidents.Backend == "postgres" {
		src = incidents.NewBreakerSource(db, cfg.BreakerConfig(), logger)
	}

	collector := metrics.NewCollector("navi")
	store := routing.NewStore()
	rebuilder, err := newRebuilder(store, src, collector)
	if err != nil {
		return err
	}

	if _, err := rebuilder.Rebuild(ctx); err != nil {
		return fmt.Errorf("initial snapshot: %w", err)
	}

	if cfg.Maintenance.WatchNetwork {
		if err := rebuilder.WatchNetworkFile(ctx, cfg.Network.Path); err != nil {
			return err
		}
	}
	if cfg.Maintenance.NATSURL != "" {
		listener, err := maintenance.Listen(cfg.Maintenance.NATSURL, cfg.Maintenance.NATSSubject, rebuilder)
		if err != nil {
			return err
		}
		defer listener.Close()
		logger.Info("listening for incident changes",
			zap.String("url", cfg.Maintenance.NATSURL),
			zap.String("subject", cfg.Maintenance.NATSSubject),
		)
	}

	go func() {
		if err := rebuilder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("maintenance loop stopped", zap.Error(err))
		}
	}()

	planner := routing.NewPlanner(store, cfg.PlannerOptions(), logger)
	handler := server.NewHandler(planner, store, rebuilder, collector, logger, cfg.Server.AdminToken)
	return server.Serve(ctx, handler, server.Options{
		Addr:           cfg.Server.Addr(),
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
}
