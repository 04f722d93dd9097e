package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cjeanneret/ScanGo/internal/config"
	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/clock"
	"github.com/cjeanneret/ScanGo/internal/hw/encoder"
	"github.com/cjeanneret/ScanGo/internal/hw/gpio"
	"github.com/cjeanneret/ScanGo/internal/hw/indicator"
	"github.com/cjeanneret/ScanGo/internal/hw/stepclock"
	"github.com/cjeanneret/ScanGo/internal/hw/stepper"
	"github.com/cjeanneret/ScanGo/internal/link"
	"github.com/cjeanneret/ScanGo/internal/logic/motion"
	"github.com/cjeanneret/ScanGo/internal/logic/profile"
	"github.com/cjeanneret/ScanGo/internal/logic/scan"
	"github.com/cjeanneret/ScanGo/internal/logic/telemetry"
)

// stage is the wired machine.
type stage struct {
	gpio   gpio.EdgeDriver
	motor  *stepper.Stepper
	steps  *stepclock.Driver
	ctrl   *motion.Controller
	enc    *encoder.Encoder
	shared *telemetry.Shared
	loop   *scan.Loop
	led    *indicator.RGBLED
	port   io.WriteCloser

	wg   sync.WaitGroup
	errs chan error
}

func stepperConfig(c *config.Config) stepper.Config {
	return stepper.Config{
		StepPin:   c.Stepper.StepPin,
		DirPin:    c.Stepper.DirPin,
		EnablePin: c.Stepper.EnablePin,
		StepDelay: c.JogStepDelay(),
	}
}

func stepclockConfig(c *config.Config) stepclock.Config {
	return stepclock.Config{
		StepPin:       c.Stepper.StepPin,
		TimerClock:    c.TimerClock(),
		Prescaler:     c.Timer.Prescaler,
		StepsPerRev:   c.Stepper.StepsPerRev,
		Microstepping: c.Stepper.Microstepping,
		PitchCircleMm: c.Stepper.PitchCircleMm,
		MinPeriod:     c.Timer.MinPeriod,
		MaxPeriod:     c.Timer.MaxPeriod,
	}
}

func profileSettings(c *config.Config) profile.Settings {
	return profile.Settings{
		ScanSpeed:     c.Profile.ScanSpeed,
		ScanLength:    c.Profile.ScanLength,
		TotalDistance: c.Profile.TotalDistance,
	}
}

// newStage opens the GPIO backend and wires every component. The caller
// must call close.
func newStage(c *config.Config) (*stage, error) {
	debug.Step(1, "Initializing GPIO driver")
	debug.Value("GPIO backend", c.GPIOBackend())
	g, err := gpio.NewDriver(c.GPIOBackend())
	if err != nil {
		return nil, fmt.Errorf("init GPIO failed: %w", err)
	}

	debug.Step(2, "Initializing step clock and motor driver")
	clk := clock.System{}
	motor := stepper.NewStepper(g, stepperConfig(c))
	steps := stepclock.New(g, stepclockConfig(c))
	debug.PrintStruct("Stepper config", c.Stepper)
	debug.PrintStruct("Timer config", c.Timer)

	ctrl := motion.NewController(motor, steps, clk, motion.Config{
		Settings:   profileSettings(c),
		CreepSpeed: c.Profile.CreepSpeed,
		FixedSpeed: c.Profile.FixedSpeed,
		Fixed:      c.Profile.Fixed,
	})
	if err := motion.Register(ctrl); err != nil {
		g.Close()
		return nil, err
	}

	debug.Step(3, "Initializing encoder")
	enc := encoder.New(g, encoder.Config{
		PinA:        c.Encoder.PinA,
		PinB:        c.Encoder.PinB,
		GearRatio:   c.Encoder.GearRatio,
		Decoding:    c.EncoderDecoding(),
		Invert:      c.Encoder.Invert,
		EdgeTimeout: c.EdgeTimeout(),
	}, clk)
	if err := enc.Begin(); err != nil {
		g.Close()
		return nil, fmt.Errorf("init encoder failed: %w", err)
	}
	debug.PrintStruct("Encoder config", c.Encoder)

	shared := telemetry.NewShared(telemetry.Settings{
		ScanLength: c.Profile.ScanLength,
		ScanSpeed:  c.Profile.ScanSpeed,
	})
	loop := scan.NewLoop(ctrl, enc, steps, shared, clk, scan.Config{
		TotalDistance: c.Profile.TotalDistance,
		PollInterval:  c.PollInterval(),
		Forward:       c.Stepper.Forward,
	})

	var led *indicator.RGBLED
	if c.Indicator.Enabled {
		led, err = indicator.NewRGBLED(g, indicator.Config{
			RedPin:      c.Indicator.RedPin,
			GreenPin:    c.Indicator.GreenPin,
			BluePin:     c.Indicator.BluePin,
			ActiveLow:   c.Indicator.ActiveLow,
			BlinkPeriod: c.BlinkPeriod(),
		}, clk)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("init status indicator failed: %w", err)
		}
		loop.SetIndicator(led)
	}

	debug.Step(4, "Bringing the stage to idle")
	if err := loop.Begin(); err != nil {
		g.Close()
		return nil, err
	}

	s := &stage{
		gpio:   g,
		motor:  motor,
		steps:  steps,
		ctrl:   ctrl,
		enc:    enc,
		shared: shared,
		loop:   loop,
		led:    led,
		errs:   make(chan error, 4),
	}

	if c.Link.Port != "" {
		debug.Step(5, "Opening telemetry link")
		port, err := link.OpenSerial(c.Link.Port, c.Link.Baud)
		if err != nil {
			s.close()
			return nil, err
		}
		s.port = port
	}
	return s, nil
}

// goRun starts fn in the background and reports its failure on s.errs.
func (s *stage) goRun(ctx context.Context, name string, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.errs <- fmt.Errorf("%s: %w", name, err)
		}
	}()
}

// startBackground launches the interrupt emulations and the telemetry link.
func (s *stage) startBackground(ctx context.Context, c *config.Config) {
	s.goRun(ctx, "step clock", func(ctx context.Context) error {
		return s.steps.Run(ctx, motion.StepISR)
	})
	s.goRun(ctx, "encoder", s.enc.Run)
	if s.port != nil {
		r := link.NewReporter(s.port, s.shared, nil, c.LinkInterval())
		s.goRun(ctx, "telemetry link", r.Run)
	}
}

// wait blocks until every background task has returned.
func (s *stage) wait() {
	s.wg.Wait()
}

func (s *stage) close() {
	if err := s.ctrl.Stop(); err != nil {
		debug.Error(err)
	}
	if s.led != nil {
		if err := s.led.Close(); err != nil {
			debug.Error(err)
		}
	}
	if s.port != nil {
		if err := s.port.Close(); err != nil {
			debug.Error(err)
		}
	}
	if err := s.gpio.Close(); err != nil {
		debug.Error(fmt.Errorf("closing GPIO driver failed: %w", err))
	}
}
