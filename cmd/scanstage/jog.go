package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/gpio"
	"github.com/cjeanneret/ScanGo/internal/hw/stepper"
)

var jogSteps int

var jogCmd = &cobra.Command{
	Use:   "jog",
	Short: "Move the carriage by a number of steps",
	Long: `Jog pulses the STEP line directly, without the step clock or the velocity
profile. A negative count moves in reverse. Use it to position the carriage
before a scan.`,
	RunE: runJog,
}

func init() {
	jogCmd.Flags().IntVarP(&jogSteps, "steps", "n", 0, "number of steps, negative for reverse")
	jogCmd.MarkFlagRequired("steps")
	rootCmd.AddCommand(jogCmd)
}

func runJog(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, err := gpio.NewDriver(cfg.GPIOBackend())
	if err != nil {
		return err
	}
	defer g.Close()

	motor := stepper.NewStepper(g, stepperConfig(cfg))
	if err := motor.Enable(); err != nil {
		return err
	}
	defer motor.Disable()

	debug.Info("Jogging %d steps", jogSteps)
	return motor.MoveSteps(ctx, jogSteps)
}
