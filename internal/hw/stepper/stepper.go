package stepper

import (
	"context"
	"time"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/gpio"
)

// Config holds the driver-board wiring of the stepper motor.
type Config struct {
	StepPin   int
	DirPin    int
	EnablePin int           // driver ENABLE pin (BCM). 0 = not used. Active LOW.
	StepDelay time.Duration // delay per half-cycle of a jog STEP pulse. Total step = 2*StepDelay.
}

// Stepper owns the direction and enable lines of the motor driver, and can
// jog the carriage with blocking software pulses while the step clock is idle.
type Stepper struct {
	gpio    gpio.Driver
	cfg     Config
	delay   time.Duration
	forward bool
}

// NewStepper configures the pins and leaves the driver output disabled
// (no holding torque) until Enable.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	delay := cfg.StepDelay
	if delay <= 0 {
		delay = 1 * time.Millisecond
	}

	s := &Stepper{
		gpio:    g,
		cfg:     cfg,
		delay:   delay,
		forward: true,
	}

	// ENABLE is active LOW. HIGH = disabled.
	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.High)
	}

	return s
}

// SetDirection drives the DIR line: HIGH moves the carriage forward.
func (s *Stepper) SetDirection(forward bool) error {
	level := gpio.Low
	if forward {
		level = gpio.High
	}
	if err := s.gpio.WritePin(s.cfg.DirPin, level); err != nil {
		return err
	}
	s.forward = forward
	return nil
}

// Forward reports the last direction written.
func (s *Stepper) Forward() bool {
	return s.forward
}

// MoveSteps jogs the motor by a number of steps (positive or negative).
// It must not be used while the step clock is running.
func (s *Stepper) MoveSteps(ctx context.Context, steps int) error {
	if steps == 0 {
		return nil
	}

	forward := steps > 0
	direction := "forward"
	if !forward {
		direction = "backward"
		steps = -steps
	}

	debug.Printf("Stepper: jogging %d steps (%s) on pin %d", steps, direction, s.cfg.StepPin)

	if err := s.SetDirection(forward); err != nil {
		return err
	}

	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.stepPulse(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stepper) stepPulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.delay)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(s.delay)
	return nil
}

// Enable turns on the motor driver (ENABLE=LOW). The motor holds position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (ENABLE=HIGH). The carriage freewheels.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
