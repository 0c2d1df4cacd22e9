package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/baronsmv/navi/maintenance"
	"github.com/baronsmv/navi/preprocessing"
	"github.com/baronsmv/navi/risk"
	"github.com/baronsmv/navi/routing"
)

var convertCmd = &cobra.Command{
	Use:   "convert <network.json> [network.gob]",
	Short: "Validate a node-link network and write it as a gob snapshot",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := preprocessing.DefaultGobPath(args[0])
		if len(args) == 2 {
			out = args[1]
		}
		start := time.Now()
		stats, err := preprocessing.ConvertJSONToGob(args[0], out)
		if err != nil {
			return err
		}
		logger.Info("network converted",
			zap.String("input", args[0]),
			zap.String("output", out),
			zap.Int("nodes", stats.Nodes),
			zap.Int("edges", stats.Edges),
			zap.Duration("elapsed", time.Since(start)),
		)
		if jsonOutput {
			return printJSON(map[string]any{"output": out, "nodes": stats.Nodes, "edges": stats.Edges})
		}
		fmt.Printf("%s: %d nodes, %d edges\n", out, stats.Nodes, stats.Edges)
		return nil
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Build one snapshot from the configured network and incidents and report on it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openIncidentStore()
		if err != nil {
			return err
		}
		defer db.Close()

		rebuilder, err := newRebuilder(routing.NewStore(), db, nil)
		if err != nil {
			return err
		}
		snap, err := rebuilder.Rebuild(cmd.Context())
		if err != nil {
			return err
		}

		stats := snap.Graph.Stats()
		report := map[string]any{
			"graph":       stats,
			"scoredEdges": snap.Risk.ScoredEdges(),
			"assigned":    snap.Risk.Assigned,
			"outOfRange":  snap.Risk.OutOfRange,
			"inactive":    snap.Risk.Inactive,
			"rejected":    snap.Risk.Rejected,
		}
		if jsonOutput {
			return printJSON(report)
		}
		fmt.Printf("network: %d nodes, %d edges, %d grid cells\n", stats.Nodes, stats.Edges, stats.GridCells)
		fmt.Printf("incidents: %d assigned, %d out of range, %d inactive, %d rejected\n",
			snap.Risk.Assigned, snap.Risk.OutOfRange, snap.Risk.Inactive, snap.Risk.Rejected)
		fmt.Printf("edges with risk: %d\n", snap.Risk.ScoredEdges())
		return nil
	},
}

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "Manage the incident store",
}

var incidentsImportCmd = &cobra.Command{
	Use:   "import <incidents.json>",
	Short: "Load a JSON array of incidents into the configured store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		var list []risk.Incident
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}

		valid := make([]risk.Incident, 0, len(list))
		ids := make([]string, 0, len(list))
		for _, inc := range list {
			if err := inc.Validate(cfg.Risk.MaxSeverity); err != nil {
				logger.Warn("skipping invalid incident", zap.String("id", inc.ID), zap.Error(err))
				continue
			}
			valid = append(valid, inc)
			ids = append(ids, inc.ID)
		}

		db, err := openIncidentStore()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Put(cmd.Context(), valid...); err != nil {
			return err
		}
		fmt.Printf("imported %d of %d incidents\n", len(valid), len(list))

		if cfg.Maintenance.NATSURL == "" || len(valid) == 0 {
			return nil
		}
		pub, err := maintenance.NewPublisher(cfg.Maintenance.NATSURL, cfg.Maintenance.NATSSubject)
		if err != nil {
			return err
		}
		defer pub.Close()
		return pub.Publish(cmd.Context(), maintenance.IncidentChange{IDs: ids, At: time.Now().UTC()})
	},
}

func init() {
	incidentsCmd.AddCommand(incidentsImportCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
