package stepclock

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/gpio"
	"github.com/cjeanneret/ScanGo/internal/hw/irq"
	"periph.io/x/periph/conn/physic"
)

// Reference hardware: 16 MHz clock with a /8 prescaler, 200 step motor at
// 16 microsteps driving a 36 mm pitch circle pulley.
const (
	DefaultTimerClock    = 16 * physic.MegaHertz
	DefaultPrescaler     = 8
	DefaultStepsPerRev   = 200
	DefaultMicrostepping = 16
	DefaultPitchCircleMm = 36.0
	DefaultMinPeriod     = 40
	DefaultMaxPeriod     = 10000
)

// spinThreshold is how close to a deadline Run stops sleeping and spins.
const spinThreshold = 200 * time.Microsecond

// Config holds the timer and drivetrain parameters of the step clock.
type Config struct {
	StepPin       int
	TimerClock    physic.Frequency
	Prescaler     int
	StepsPerRev   int
	Microstepping int
	PitchCircleMm float64 // effective pulley diameter
	MinPeriod     uint32  // fastest allowed compare period, in timer ticks
	MaxPeriod     uint32  // slowest allowed compare period, in timer ticks
}

func (c *Config) applyDefaults() {
	if c.TimerClock <= 0 {
		c.TimerClock = DefaultTimerClock
	}
	if c.Prescaler <= 0 {
		c.Prescaler = DefaultPrescaler
	}
	if c.StepsPerRev <= 0 {
		c.StepsPerRev = DefaultStepsPerRev
	}
	if c.Microstepping <= 0 {
		c.Microstepping = DefaultMicrostepping
	}
	if c.PitchCircleMm <= 0 {
		c.PitchCircleMm = DefaultPitchCircleMm
	}
	if c.MinPeriod == 0 {
		c.MinPeriod = DefaultMinPeriod
	}
	if c.MaxPeriod == 0 || c.MaxPeriod < c.MinPeriod {
		c.MaxPeriod = DefaultMaxPeriod
	}
}

// RangeError reports a speed whose period fell outside [MinPeriod, MaxPeriod].
// It is recoverable: the period has already been clamped.
type RangeError struct {
	Speed   float64 // requested speed, m/s
	Period  float64 // unclamped period, ticks
	Clamped uint32  // period actually used
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("step period %g ticks for %g m/s out of range, clamped to %d", e.Period, e.Speed, e.Clamped)
}

// Driver generates step edges from a periodic timer interrupt. Every firing
// toggles the step output once, so two firings make one physical step.
//
// The armed period and the enable flag are the only state the polling side
// touches, each through a single atomic operation. The step level is owned
// by the interrupt context.
type Driver struct {
	gpio gpio.Driver
	cfg  Config

	ticksPerSecond float64
	metersPerEdge  float64

	period  atomic.Uint32
	enabled atomic.Bool
	edges   atomic.Uint64

	line    irq.Line
	level   gpio.Level
	handler irq.Handler
}

// New configures the step pin and arms the slowest period, disabled.
func New(g gpio.Driver, cfg Config) *Driver {
	cfg.applyDefaults()
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.WritePin(cfg.StepPin, gpio.Low)

	d := &Driver{
		gpio:           g,
		cfg:            cfg,
		ticksPerSecond: float64(cfg.TimerClock) / float64(physic.Hertz) / float64(cfg.Prescaler),
	}
	circumference := math.Pi * cfg.PitchCircleMm / 1000.0
	d.metersPerEdge = circumference / float64(cfg.StepsPerRev*cfg.Microstepping*2)
	d.handler = d.isr
	d.period.Store(cfg.MaxPeriod)
	return d
}

// Config returns the effective configuration, defaults applied.
func (d *Driver) Config() Config {
	return d.cfg
}

// PeriodFor converts a linear speed (m/s) into a compare period in timer
// ticks. The result is always within [MinPeriod, MaxPeriod]; a non-nil
// *RangeError reports that clamping happened.
func (d *Driver) PeriodFor(speed float64) (uint32, error) {
	// edges/s = speed / meters-per-edge, period = ticks/s / edges/s
	raw := d.ticksPerSecond * d.metersPerEdge / speed
	if math.IsNaN(speed) || speed <= 0 {
		raw = math.Inf(1)
	}

	rounded := math.Round(raw)
	switch {
	case rounded < float64(d.cfg.MinPeriod):
		return d.cfg.MinPeriod, &RangeError{Speed: speed, Period: raw, Clamped: d.cfg.MinPeriod}
	case rounded > float64(d.cfg.MaxPeriod):
		return d.cfg.MaxPeriod, &RangeError{Speed: speed, Period: raw, Clamped: d.cfg.MaxPeriod}
	}
	return uint32(rounded), nil
}

// SpeedFor is the inverse of PeriodFor for an in-range period.
func (d *Driver) SpeedFor(period uint32) float64 {
	if period == 0 {
		return 0
	}
	return d.ticksPerSecond * d.metersPerEdge / float64(period)
}

// Apply converts speed to a period and arms it. Clamping is logged, not fatal.
func (d *Driver) Apply(speed float64) uint32 {
	p, err := d.PeriodFor(speed)
	debug.Period(speed, p, err != nil)
	if err != nil {
		debug.Verbose("step clock: %v", err)
	}
	d.Arm(p)
	return p
}

// Arm proposes a new period. It is a single atomic store, so a concurrent
// firing sees either the old or the new value, never a mix.
func (d *Driver) Arm(period uint32) {
	d.period.Store(period)
}

// Period returns the currently armed period in ticks.
func (d *Driver) Period() uint32 {
	return d.period.Load()
}

// Interval returns the wall time between two firings at the armed period.
func (d *Driver) Interval() time.Duration {
	return time.Duration(float64(d.period.Load()) / d.ticksPerSecond * float64(time.Second))
}

// Enable unmasks the step interrupt.
func (d *Driver) Enable() {
	d.enabled.Store(true)
}

// Disable masks the step interrupt. When it returns no firing is in flight
// and none will toggle the step pin until Enable.
func (d *Driver) Disable() {
	st := d.line.Disable()
	d.enabled.Store(false)
	d.line.Restore(st)
}

// Enabled reports whether the step interrupt is unmasked.
func (d *Driver) Enabled() bool {
	return d.enabled.Load()
}

// Edges returns the number of step edges emitted since creation.
func (d *Driver) Edges() uint64 {
	return d.edges.Load()
}

// Steps returns the number of physical steps emitted (two edges each).
func (d *Driver) Steps() uint64 {
	return d.edges.Load() / 2
}

// Fire is the timer compare interrupt.
func (d *Driver) Fire() {
	d.line.Serve(d.handler)
}

func (d *Driver) isr() {
	if !d.enabled.Load() {
		return
	}
	d.level = !d.level
	_ = d.gpio.WritePin(d.cfg.StepPin, d.level)
	d.edges.Add(1)
}

// Run emulates the hardware compare timer: it calls fire once per armed
// period until ctx is done. The period is re-read on every firing, so a new
// Arm takes effect at the next edge. Pass d.Fire, or a trampoline that
// reaches it.
func (d *Driver) Run(ctx context.Context, fire func()) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	raisePriority()

	next := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		interval := d.Interval()
		next = next.Add(interval)
		now := time.Now()
		if now.Sub(next) > interval {
			// Fell behind by more than a period: resync rather than burst.
			next = now
		}
		sleepUntil(next)
		fire()
	}
}

func sleepUntil(deadline time.Time) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		if remaining > spinThreshold {
			time.Sleep(remaining - spinThreshold)
			continue
		}
		runtime.Gosched()
	}
}
