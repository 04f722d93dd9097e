package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/ScanGo/internal/debug"
)

var (
	runSpeed  float64
	runLength float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one scan and exit",
	Long: `Run performs a single scan with the configured (or overridden) scan speed
and length, then stops the motor. Ctrl+C stops the carriage immediately.`,
	RunE: runScan,
}

func init() {
	runCmd.Flags().Float64Var(&runSpeed, "speed", 0, "override scan speed in m/s (0.01-0.3)")
	runCmd.Flags().Float64Var(&runLength, "length", 0, "override scan length in m (0.1-1.2)")
	rootCmd.AddCommand(runCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := applyOverrides(cfg, runSpeed, runLength); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := newStage(cfg)
	if err != nil {
		return err
	}
	defer s.close()

	bg, stopBg := context.WithCancel(ctx)
	s.startBackground(bg, cfg)
	defer func() {
		stopBg()
		s.wait()
	}()

	err = s.loop.RunScan(ctx)
	if errors.Is(err, context.Canceled) {
		debug.Info("Scan interrupted")
		return nil
	}
	if err != nil {
		return err
	}

	m := s.shared.Measurements()
	debug.Section("Scan Complete")
	debug.Value("Elapsed (s)", debug.Fmt("%.2f", m.Elapsed))
	debug.Value("Steps", m.Steps)
	debug.Value("Encoder position (m)", debug.Fmt("%.4f", m.Position))
	return nil
}
