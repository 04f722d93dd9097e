package motion

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/clock"
	"github.com/cjeanneret/ScanGo/internal/hw/stepclock"
	"github.com/cjeanneret/ScanGo/internal/hw/stepper"
	"github.com/cjeanneret/ScanGo/internal/logic/profile"
)

// State is the run state of the motor.
type State int

const (
	Idle State = iota
	Running
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrFaulted        = errors.New("motor is in error state, reset required")
	ErrAlreadyRunning = errors.New("motor is already running")
	ErrInvalidProfile = errors.New("motion profile is invalid")
)

// Config holds the initial motion settings.
type Config struct {
	Settings   profile.Settings
	CreepSpeed float64 // m/s, 0 selects profile.DefaultCreepSpeed
	FixedSpeed float64 // m/s, used while the override is on
	Fixed      bool    // start with the fixed-speed override on
}

// Controller orchestrates the step clock, the motor driver board and the
// velocity profile. It sits between the scan loop and the hardware.
//
// The run and error flags are atomics and may be read from any goroutine;
// Fault may be raised from any goroutine. Every other method belongs to the
// polling context and must be called from a single goroutine.
type Controller struct {
	motor *stepper.Stepper
	steps *stepclock.Driver
	clock clock.Clock

	running     atomic.Bool
	faulted     atomic.Bool
	faultReason atomic.Value // string

	settings   profile.Settings
	creep      float64
	prof       *profile.Profile
	tracker    *profile.Tracker
	stale      bool
	fixed      bool
	fixedSpeed float64

	startTime time.Time
	elapsed   float64
	target    float64
}

// NewController wires a controller. Call Begin before Start.
func NewController(motor *stepper.Stepper, steps *stepclock.Driver, clk clock.Clock, cfg Config) *Controller {
	if clk == nil {
		clk = clock.System{}
	}
	c := &Controller{
		motor:      motor,
		steps:      steps,
		clock:      clk,
		settings:   cfg.Settings,
		creep:      cfg.CreepSpeed,
		stale:      true,
		fixed:      cfg.Fixed,
		fixedSpeed: cfg.FixedSpeed,
	}
	c.faultReason.Store("")
	return c
}

// Begin puts the hardware in its safe idle state: step interrupt masked,
// driver output off.
func (c *Controller) Begin() error {
	c.steps.Disable()
	c.running.Store(false)
	if err := c.motor.Disable(); err != nil {
		return fmt.Errorf("disable motor driver: %w", err)
	}
	debug.Verbose("Motion: controller ready (fixed=%v, fixed speed=%.3fm/s)", c.fixed, c.fixedSpeed)
	return nil
}

// State returns the current run state. Error wins over Running.
func (c *Controller) State() State {
	switch {
	case c.faulted.Load():
		return Error
	case c.running.Load():
		return Running
	default:
		return Idle
	}
}

// IsRunning reports whether a move is in progress.
func (c *Controller) IsRunning() bool {
	return c.running.Load()
}

// IsError reports whether the controller is faulted.
func (c *Controller) IsError() bool {
	return c.faulted.Load()
}

// FaultReason returns the reason given to the last Fault, or "".
func (c *Controller) FaultReason() string {
	return c.faultReason.Load().(string)
}

// Fault asserts the error state (stall detection, interlock, ...). The scan
// loop observes it on its next cycle and stops the motor.
func (c *Controller) Fault(reason string) {
	c.faultReason.Store(reason)
	if !c.faulted.Swap(true) {
		debug.Info("Motion: fault asserted: %s", reason)
	}
}

// Start begins a move. It refuses while faulted or already running, and
// recomputes the profile if the settings changed since the last
// CalculateMotorSpeed. Starting against an invalid profile faults the
// controller.
func (c *Controller) Start() error {
	if c.faulted.Load() {
		return ErrFaulted
	}
	if c.running.Load() {
		return ErrAlreadyRunning
	}
	if c.stale {
		if err := c.CalculateMotorSpeed(); err != nil {
			c.Fault("invalid motion profile")
			return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
		}
	}
	if c.prof == nil {
		c.Fault("invalid motion profile")
		return ErrInvalidProfile
	}

	if err := c.motor.Enable(); err != nil {
		return fmt.Errorf("enable motor driver: %w", err)
	}
	c.startTime = c.clock.Now()
	c.elapsed = 0
	c.tracker.Reset()
	c.applySpeed()

	c.running.Store(true)
	c.steps.Enable()
	debug.State(Idle.String(), Running.String())
	return nil
}

// Stop ends the move. The step interrupt is masked before the running flag
// drops, so no step edge escapes once Stop returns.
func (c *Controller) Stop() error {
	c.steps.Disable()
	wasRunning := c.running.Swap(false)
	if wasRunning {
		debug.State(Running.String(), c.State().String())
	}
	if err := c.motor.Disable(); err != nil {
		return fmt.Errorf("disable motor driver: %w", err)
	}
	return nil
}

// SetDirection selects the travel direction.
func (c *Controller) SetDirection(forward bool) error {
	return c.motor.SetDirection(forward)
}

// ResetMotor clears the error state and restarts the elapsed-time baseline.
// It does not stop a running move: call Stop first.
func (c *Controller) ResetMotor() {
	c.faulted.Store(false)
	c.faultReason.Store("")
	c.elapsed = 0
	c.startTime = c.clock.Now()
	debug.Verbose("Motion: reset")
}

// SetMotionSettings updates the profile inputs. The derived timings are
// refreshed by CalculateMotorSpeed, or by the next Start.
func (c *Controller) SetMotionSettings(speed, length, totalDistance float64) {
	c.settings = profile.Settings{ScanSpeed: speed, ScanLength: length, TotalDistance: totalDistance}
	c.stale = true
}

// Settings returns the current profile inputs.
func (c *Controller) Settings() profile.Settings {
	return c.settings
}

// CalculateMotorSpeed derives the profile from the current settings. On a
// configuration error the profile is dropped and Start will refuse.
func (c *Controller) CalculateMotorSpeed() error {
	c.stale = false
	p, err := profile.New(c.settings, c.creep)
	if err != nil {
		c.prof = nil
		c.tracker = nil
		debug.Error(err)
		return err
	}
	c.prof = p
	c.tracker = profile.NewTracker(p)
	debug.Profile(p.AccelerationTime, p.CruiseTime, p.DecelerationTime, p.TotalTime)
	return nil
}

// Profile returns the current profile, or nil if it is invalid.
func (c *Controller) Profile() *profile.Profile {
	return c.prof
}

// UpdateSpeed is called on every polling cycle. It computes the target
// speed for the elapsed time (or takes the fixed override), converts it to
// a step period and arms it. It returns the target speed.
func (c *Controller) UpdateSpeed() float64 {
	if c.running.Load() {
		c.elapsed = c.clock.Now().Sub(c.startTime).Seconds()
	}
	return c.applySpeed()
}

func (c *Controller) applySpeed() float64 {
	switch {
	case c.fixed:
		c.target = c.fixedSpeed
	case c.tracker != nil:
		c.target = c.tracker.TargetSpeed(c.elapsed)
	default:
		c.target = c.creepSpeed()
	}
	c.steps.Apply(c.target)
	return c.target
}

func (c *Controller) creepSpeed() float64 {
	if c.creep > 0 {
		return c.creep
	}
	return profile.DefaultCreepSpeed
}

// FixSpeed turns the fixed-speed override on or off and applies it now.
func (c *Controller) FixSpeed(enabled bool) {
	c.fixed = enabled
	c.applySpeed()
}

// SetFixedSpeed sets the override speed in m/s.
func (c *Controller) SetFixedSpeed(speed float64) {
	c.fixedSpeed = speed
}

// Fixed reports whether the fixed-speed override is on.
func (c *Controller) Fixed() bool {
	return c.fixed
}

// Done reports whether a profiled move has outlived its planned duration.
func (c *Controller) Done() bool {
	return c.running.Load() && !c.fixed && c.prof != nil && c.elapsed >= c.prof.TotalTime
}

// Phase names the profile segment of the current move.
func (c *Controller) Phase() string {
	if c.fixed {
		return "fixed"
	}
	if c.prof == nil {
		return ""
	}
	return c.prof.PhaseAt(c.elapsed).String()
}

// TargetSpeed returns the last commanded speed.
func (c *Controller) TargetSpeed() float64 {
	return c.target
}

// AccelerationTime returns the ramp-up duration in seconds.
func (c *Controller) AccelerationTime() float64 {
	if c.prof == nil {
		return 0
	}
	return c.prof.AccelerationTime
}

// DecelerationTime returns the ramp-down duration in seconds.
func (c *Controller) DecelerationTime() float64 {
	if c.prof == nil {
		return 0
	}
	return c.prof.DecelerationTime
}

// TotalTime returns the planned move duration in seconds.
func (c *Controller) TotalTime() float64 {
	if c.prof == nil {
		return 0
	}
	return c.prof.TotalTime
}

// ElapsedTime returns the seconds since Start, as of the last UpdateSpeed.
func (c *Controller) ElapsedTime() float64 {
	return c.elapsed
}
