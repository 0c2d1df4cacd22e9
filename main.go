package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/baronsmv/navi/config"
)

var (
	configPath string
	jsonOutput bool

	cfg    *config.Config
	logger *zap.Logger
)

func defaultConfigPath() string {
	if s := os.Getenv("NAVI_CONFIG"); s != "" {
		return s
	}
	return ""
}

var rootCmd = &cobra.Command{
	Use:           "navi <command>",
	Short:         "Safety-weighted route planning",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}
		if configPath == "" {
			configPath = defaultConfigPath()
		}
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = c
		l, err := cfg.Log.NewLogger()
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (env NAVI_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddCommand(serveCmd, convertCmd, rebuildCmd, incidentsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
