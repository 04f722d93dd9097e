package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/ScanGo/internal/config"
	"github.com/cjeanneret/ScanGo/internal/debug"
)

var (
	cfgPath    string
	debugLevel int
	mockGPIO   bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "scanstage",
	Short: "Linear scanning stage controller",
	Long: `scanstage moves a belt-driven carriage along a linear axis with a
trapezoidal velocity profile and reports its position from a quadrature
encoder.

The hardware is described by a YAML file (--config). Run with --mock to use
in-memory GPIO on a development machine.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ValidateConfigPath(cfgPath); err != nil {
			return fmt.Errorf("invalid config path: %w", err)
		}
		c, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config failed: %w", err)
		}
		if cmd.Flags().Changed("debug") {
			c.Defaults.DebugLevel = debugLevel
		}
		if mockGPIO {
			c.Defaults.MockGPIO = true
		}
		cfg = c

		debug.Init(cfg.Defaults.DebugLevel)
		debug.Section("Initialization")
		debug.Value("Config path", cfgPath)
		debug.Value("Debug level", cfg.Defaults.DebugLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", filepath.Join("configs", "default.yaml"), "path to config file")
	rootCmd.PersistentFlags().IntVarP(&debugLevel, "debug", "d", 1, "debug level 0-4, overrides the config")
	rootCmd.PersistentFlags().BoolVar(&mockGPIO, "mock", false, "use in-memory GPIO")
}
