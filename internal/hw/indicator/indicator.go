package indicator

import (
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/clock"
	"github.com/cjeanneret/ScanGo/internal/hw/gpio"
)

// DefaultBlinkPeriod is the on/off half period of a blinking pattern.
const DefaultBlinkPeriod = 500 * time.Millisecond

// Indicator is the operator-facing status light, regardless of how it is
// driven.
type Indicator interface {
	// Show selects the pattern to display. Repeating the current pattern
	// does not restart its blink phase.
	Show(p Pattern) error
	// Update advances blinking. Call it regularly.
	Update() error
}

// Color is the on/off state of each channel of an RGB LED.
type Color struct {
	Red, Green, Blue bool
}

var (
	Off    = Color{}
	Red    = Color{Red: true}
	Green  = Color{Green: true}
	Yellow = Color{Red: true, Green: true}
)

func (c Color) String() string {
	switch c {
	case Off:
		return "off"
	case Red:
		return "red"
	case Green:
		return "green"
	case Yellow:
		return "yellow"
	default:
		return fmt.Sprintf("rgb(%v,%v,%v)", c.Red, c.Green, c.Blue)
	}
}

// Pattern is a color, steady or blinking.
type Pattern struct {
	Color Color
	Blink bool
}

// Config describes the LED wiring.
type Config struct {
	RedPin, GreenPin, BluePin int
	// ActiveLow is set for a common-anode LED: a channel lights when its
	// pin is driven low.
	ActiveLow   bool
	BlinkPeriod time.Duration // 0 selects DefaultBlinkPeriod
}

// RGBLED drives a three-channel LED from GPIO outputs.
type RGBLED struct {
	mu     sync.Mutex
	gpio   gpio.Driver
	cfg    Config
	clock  clock.Clock
	shown  Pattern
	lit    bool
	toggle time.Time
}

// NewRGBLED configures the pins as outputs and switches the LED off.
func NewRGBLED(g gpio.Driver, cfg Config, clk clock.Clock) (*RGBLED, error) {
	if cfg.BlinkPeriod <= 0 {
		cfg.BlinkPeriod = DefaultBlinkPeriod
	}
	if clk == nil {
		clk = clock.System{}
	}
	l := &RGBLED{gpio: g, cfg: cfg, clock: clk}
	for _, pin := range l.pins() {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup indicator pin %d: %w", pin, err)
		}
	}
	if err := l.write(Off); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *RGBLED) pins() [3]int {
	return [3]int{l.cfg.RedPin, l.cfg.GreenPin, l.cfg.BluePin}
}

func (l *RGBLED) Show(p Pattern) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p == l.shown && !l.toggle.IsZero() {
		return nil
	}
	debug.Verbose("Indicator: %s (blink=%v)", p.Color, p.Blink)
	l.shown = p
	l.lit = true
	l.toggle = l.clock.Now()
	return l.write(p.Color)
}

func (l *RGBLED) Update() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.shown.Blink || l.toggle.IsZero() {
		return nil
	}
	now := l.clock.Now()
	if now.Sub(l.toggle) < l.cfg.BlinkPeriod {
		return nil
	}
	l.toggle = now
	l.lit = !l.lit
	if l.lit {
		return l.write(l.shown.Color)
	}
	return l.write(Off)
}

// Pattern returns the pattern last passed to Show.
func (l *RGBLED) Pattern() Pattern {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shown
}

// Close switches the LED off.
func (l *RGBLED) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shown = Pattern{}
	l.toggle = time.Time{}
	return l.write(Off)
}

func (l *RGBLED) write(c Color) error {
	on := [3]bool{c.Red, c.Green, c.Blue}
	for i, pin := range l.pins() {
		level := gpio.Level(on[i] != l.cfg.ActiveLow)
		if err := l.gpio.WritePin(pin, level); err != nil {
			return fmt.Errorf("write indicator pin %d: %w", pin, err)
		}
	}
	return nil
}
