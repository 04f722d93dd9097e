package main

import (
	"fmt"
	"math"

	"github.com/cjeanneret/ScanGo/internal/config"
	"github.com/cjeanneret/ScanGo/internal/logic/panel"
)

// applyOverrides validates non-zero CLI overrides and writes them into c.
// Zero means "use the config value".
func applyOverrides(c *config.Config, speed, length float64) error {
	if speed != 0 {
		if math.IsNaN(speed) || speed < panel.MinSpeed || speed > panel.MaxSpeed {
			return fmt.Errorf("speed must be between %g and %g m/s, got %g", panel.MinSpeed, panel.MaxSpeed, speed)
		}
		c.Profile.ScanSpeed = speed
	}
	if length != 0 {
		if math.IsNaN(length) || length < panel.MinLength || length > panel.MaxLength {
			return fmt.Errorf("length must be between %g and %g m, got %g", panel.MinLength, panel.MaxLength, length)
		}
		c.Profile.ScanLength = length
	}
	return nil
}
