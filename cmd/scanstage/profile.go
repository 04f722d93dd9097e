package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/ScanGo/internal/config"
	"github.com/cjeanneret/ScanGo/internal/hw/gpio"
	"github.com/cjeanneret/ScanGo/internal/hw/stepclock"
	"github.com/cjeanneret/ScanGo/internal/logic/profile"
)

var (
	profileSpeed  float64
	profileLength float64
	profileSample float64
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print the velocity profile for the scan settings",
	Long: `Profile derives the trapezoidal velocity profile from the configured (or
overridden) scan settings and prints its timings and a sampled table of
target speed and step period. No hardware is touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyOverrides(cfg, profileSpeed, profileLength); err != nil {
			return err
		}
		return printProfile(cmd.OutOrStdout(), cfg, profileSample)
	},
}

func init() {
	profileCmd.Flags().Float64Var(&profileSpeed, "speed", 0, "override scan speed in m/s (0.01-0.3)")
	profileCmd.Flags().Float64Var(&profileLength, "length", 0, "override scan length in m (0.1-1.2)")
	profileCmd.Flags().Float64Var(&profileSample, "sample", 1, "table sample interval in seconds")
	rootCmd.AddCommand(profileCmd)
}

func printProfile(w io.Writer, c *config.Config, sample float64) error {
	if sample <= 0 {
		return fmt.Errorf("sample interval must be > 0, got %g", sample)
	}
	p, err := profile.New(profileSettings(c), c.Profile.CreepSpeed)
	if err != nil {
		return err
	}
	steps := stepclock.New(gpio.NewMockDriver(), stepclockConfig(c))

	fmt.Fprintf(w, "scan speed        %.3f m/s\n", p.ScanSpeed)
	fmt.Fprintf(w, "scan length       %.3f m\n", p.ScanLength)
	fmt.Fprintf(w, "total distance    %.3f m\n", p.TotalDistance)
	fmt.Fprintf(w, "creep speed       %.3f m/s\n", p.CreepSpeed)
	fmt.Fprintf(w, "acceleration      %.4f m/s² over %.3f m\n", p.Acceleration, p.AccelerationDistance)
	fmt.Fprintf(w, "acceleration time %.2f s\n", p.AccelerationTime)
	fmt.Fprintf(w, "cruise time       %.2f s\n", p.CruiseTime)
	fmt.Fprintf(w, "deceleration time %.2f s\n", p.DecelerationTime)
	fmt.Fprintf(w, "total time        %.2f s\n\n", p.TotalTime)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "t (s)\tphase\tspeed (m/s)\tdistance (m)\tperiod (ticks)\t")
	for t := 0.0; t < p.TotalTime+sample; t += sample {
		if t > p.TotalTime {
			t = p.TotalTime
		}
		v := p.SpeedAt(t)
		period, _ := steps.PeriodFor(v)
		if v == 0 {
			period = 0
		}
		fmt.Fprintf(tw, "%.2f\t%s\t%.4f\t%.4f\t%d\t\n", t, p.PhaseAt(t), v, p.DistanceAt(t), period)
		if t == p.TotalTime {
			break
		}
	}
	return tw.Flush()
}
