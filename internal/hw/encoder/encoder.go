package encoder

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/clock"
	"github.com/cjeanneret/ScanGo/internal/hw/gpio"
	"github.com/cjeanneret/ScanGo/internal/hw/irq"
)

// DefaultEdgeTimeout bounds each wait for an edge so Run notices cancellation.
const DefaultEdgeTimeout = 100 * time.Millisecond

// Direction of the last counted transition.
type Direction int

const (
	None Direction = iota
	Forward
	Reverse
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "none"
	}
}

// Decoding selects how phase transitions are turned into counts.
type Decoding int

const (
	// SingleEdge watches only channel A and samples B on each A change:
	// two counts per quadrature cycle. A direction reversal between two
	// A edges is misclassified until the next A edge.
	SingleEdge Decoding = iota
	// FullQuadrature watches both channels and decodes all four states:
	// four counts per cycle, reversals resolved on the next transition.
	FullQuadrature
)

// ParseDecoding maps a config string to a Decoding.
func ParseDecoding(s string) (Decoding, error) {
	switch s {
	case "", "single_edge":
		return SingleEdge, nil
	case "quadrature":
		return FullQuadrature, nil
	default:
		return SingleEdge, fmt.Errorf("unknown encoder decoding %q (want single_edge or quadrature)", s)
	}
}

// Config describes the encoder wiring.
type Config struct {
	PinA        int
	PinB        int
	GearRatio   float64 // carriage travel in meters per channel-A edge
	Decoding    Decoding
	Invert      bool // swap the counting direction
	EdgeTimeout time.Duration
}

// forward transitions of the (A<<1 | B) state: 00 -> 10 -> 11 -> 01 -> 00.
var quadratureTable = [16]int8{
	// from 00: to 00, 01, 10, 11
	0, -1, +1, 0,
	// from 01
	+1, 0, 0, -1,
	// from 10
	-1, 0, 0, +1,
	// from 11
	0, +1, -1, 0,
}

// state is the interrupt-owned record. It is only written inside the edge
// handler, and only read by the polling side with the line masked.
type state struct {
	count     int64
	direction Direction
	lastA     gpio.Level
	lastAB    uint8
}

// Snapshot is a consistent copy of the encoder state.
type Snapshot struct {
	Count     int64
	Position  float64
	Direction Direction
}

// Encoder decodes quadrature transitions into a signed count and estimates
// carriage velocity by finite differences.
type Encoder struct {
	gpio  gpio.Driver
	cfg   Config
	clock clock.Clock
	scale float64

	line    irq.Line
	st      state
	handler irq.Handler

	// polling side
	epoch       time.Time
	sampleCount int64
	sampleUS    int64
	velocity    atomic.Uint64 // math.Float64bits
}

// New creates an encoder. Call Begin before feeding it edges.
func New(g gpio.Driver, cfg Config, clk clock.Clock) *Encoder {
	if cfg.EdgeTimeout <= 0 {
		cfg.EdgeTimeout = DefaultEdgeTimeout
	}
	if clk == nil {
		clk = clock.System{}
	}
	scale := cfg.GearRatio
	if cfg.Decoding == FullQuadrature {
		// four counts per cycle instead of two
		scale /= 2
	}

	e := &Encoder{
		gpio:  g,
		cfg:   cfg,
		clock: clk,
		scale: scale,
		epoch: clk.Now(),
	}
	e.handler = e.isr
	return e
}

// Begin configures both channels as inputs, latches their current levels
// and arms edge detection.
func (e *Encoder) Begin() error {
	if err := e.gpio.SetupPin(e.cfg.PinA, gpio.Input); err != nil {
		return fmt.Errorf("setup encoder pin A: %w", err)
	}
	if err := e.gpio.SetupPin(e.cfg.PinB, gpio.Input); err != nil {
		return fmt.Errorf("setup encoder pin B: %w", err)
	}
	a, b, err := e.read()
	if err != nil {
		return err
	}

	st := e.line.Disable()
	e.st.lastA = a
	e.st.lastAB = ab(a, b)
	e.line.Restore(st)

	if ed, ok := e.gpio.(gpio.EdgeDriver); ok {
		if err := ed.WatchEdges(e.cfg.PinA); err != nil {
			return err
		}
		if e.cfg.Decoding == FullQuadrature {
			if err := ed.WatchEdges(e.cfg.PinB); err != nil {
				return err
			}
		}
	}
	debug.Verbose("Encoder: pins A=%d B=%d, decoding=%d, gear ratio=%g", e.cfg.PinA, e.cfg.PinB, e.cfg.Decoding, e.cfg.GearRatio)
	return nil
}

// Run services edge events until ctx is done. It is the interrupt context
// of the encoder and needs a gpio.EdgeDriver.
func (e *Encoder) Run(ctx context.Context) error {
	ed, ok := e.gpio.(gpio.EdgeDriver)
	if !ok {
		return fmt.Errorf("gpio driver %T cannot report edges", e.gpio)
	}

	pins := []int{e.cfg.PinA}
	if e.cfg.Decoding == FullQuadrature {
		pins = append(pins, e.cfg.PinB)
	}

	errCh := make(chan error, len(pins))
	for _, pin := range pins {
		go func(pin int) {
			errCh <- e.watch(ctx, ed, pin)
		}(pin)
	}

	var firstErr error
	for range pins {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Encoder) watch(ctx context.Context, ed gpio.EdgeDriver, pin int) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := ed.WaitForEdge(pin, e.cfg.EdgeTimeout)
		if err != nil {
			return fmt.Errorf("wait for edge on pin %d: %w", pin, err)
		}
		if ok {
			e.Edge()
		}
	}
}

// Edge is the pin-change interrupt: it samples both channels and updates
// the count.
func (e *Encoder) Edge() {
	e.line.Serve(e.handler)
}

func (e *Encoder) isr() {
	a, b, err := e.read()
	if err != nil {
		return
	}
	e.transition(a, b)
}

func (e *Encoder) read() (gpio.Level, gpio.Level, error) {
	a, err := e.gpio.ReadPin(e.cfg.PinA)
	if err != nil {
		return gpio.Low, gpio.Low, fmt.Errorf("read encoder pin A: %w", err)
	}
	b, err := e.gpio.ReadPin(e.cfg.PinB)
	if err != nil {
		return gpio.Low, gpio.Low, fmt.Errorf("read encoder pin B: %w", err)
	}
	return a, b, nil
}

// transition applies one sampled (A, B) pair. Runs in interrupt context.
func (e *Encoder) transition(a, b gpio.Level) {
	var delta int8
	switch e.cfg.Decoding {
	case FullQuadrature:
		next := ab(a, b)
		delta = quadratureTable[e.st.lastAB<<2|next]
		e.st.lastAB = next
	default:
		if a == e.st.lastA {
			return
		}
		e.st.lastA = a
		if b != a {
			delta = +1
		} else {
			delta = -1
		}
	}
	if delta == 0 {
		// no change, or an illegal double transition
		return
	}
	if e.cfg.Invert {
		delta = -delta
	}
	e.st.count += int64(delta)
	if delta > 0 {
		e.st.direction = Forward
	} else {
		e.st.direction = Reverse
	}
}

func ab(a, b gpio.Level) uint8 {
	var v uint8
	if a {
		v |= 2
	}
	if b {
		v |= 1
	}
	return v
}

// Snapshot copies the interrupt-owned state with the edge interrupt masked.
func (e *Encoder) Snapshot() Snapshot {
	st := e.line.Disable()
	count, dir := e.st.count, e.st.direction
	e.line.Restore(st)
	return Snapshot{Count: count, Position: float64(count) * e.scale, Direction: dir}
}

// Count returns the raw signed count.
func (e *Encoder) Count() int64 {
	return e.Snapshot().Count
}

// Position returns the carriage position in meters.
func (e *Encoder) Position() float64 {
	return e.Snapshot().Position
}

// Direction returns the direction of the last counted transition.
func (e *Encoder) Direction() Direction {
	return e.Snapshot().Direction
}

// Speed returns the velocity computed by the last UpdateSpeed, in m/s.
func (e *Encoder) Speed() float64 {
	return math.Float64frombits(e.velocity.Load())
}

// UpdateSpeed differentiates position against the microsecond clock.
// A call within the same microsecond as the previous one keeps the
// previous velocity instead of dividing by zero.
func (e *Encoder) UpdateSpeed() float64 {
	now := e.clock.Now().Sub(e.epoch).Microseconds()
	count := e.Count()

	dt := now - e.sampleUS
	if dt <= 0 {
		return e.Speed()
	}
	v := float64(count-e.sampleCount) * e.scale / (float64(dt) / 1e6)
	e.sampleCount = count
	e.sampleUS = now
	e.velocity.Store(math.Float64bits(v))
	return v
}

// ResetPosition zeroes the count and the velocity baseline.
func (e *Encoder) ResetPosition() {
	st := e.line.Disable()
	e.st.count = 0
	e.st.direction = None
	e.line.Restore(st)

	e.sampleCount = 0
	e.sampleUS = e.clock.Now().Sub(e.epoch).Microseconds()
	e.velocity.Store(0)
}
