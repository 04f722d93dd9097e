package gpio

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cjeanneret/ScanGo/internal/debug"
	pgpio "periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// PeriphDriver drives GPIOs through periph.io. Unlike go-rpio it uses the
// kernel's edge interrupts, so WaitForEdge sleeps instead of polling.
type PeriphDriver struct {
	mu   sync.RWMutex
	pins map[int]pgpio.PinIO
}

// NewPeriphDriver initializes the periph host drivers.
func NewPeriphDriver() (*PeriphDriver, error) {
	debug.Info("Initializing real GPIO driver (periph.io)")

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &PeriphDriver{
		pins: make(map[int]pgpio.PinIO),
	}, nil
}

func (d *PeriphDriver) lookup(pin int) (pgpio.PinIO, error) {
	d.mu.RLock()
	p, ok := d.pins[pin]
	d.mu.RUnlock()
	if ok {
		return p, nil
	}

	p = gpioreg.ByName(strconv.Itoa(pin))
	if p == nil {
		return nil, fmt.Errorf("gpio %d not found", pin)
	}
	d.mu.Lock()
	d.pins[pin] = p
	d.mu.Unlock()
	return p, nil
}

func (d *PeriphDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	switch mode {
	case Input:
		return p.In(pgpio.PullNoChange, pgpio.NoEdge)
	case Output:
		return p.Out(pgpio.Low)
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
}

func (d *PeriphDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	return p.Out(pgpio.Level(level))
}

func (d *PeriphDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	p, err := d.lookup(pin)
	if err != nil {
		return Low, err
	}
	return Level(p.Read()), nil
}

func (d *PeriphDriver) WatchEdges(pin int) error {
	debug.GPIO("WatchEdges", pin, nil)

	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	if err := p.In(pgpio.PullNoChange, pgpio.BothEdges); err != nil {
		return fmt.Errorf("enable edge detection on gpio %d: %w", pin, err)
	}
	return nil
}

func (d *PeriphDriver) WaitForEdge(pin int, timeout time.Duration) (bool, error) {
	p, err := d.lookup(pin)
	if err != nil {
		return false, err
	}
	return p.WaitForEdge(timeout), nil
}

func (d *PeriphDriver) Close() error {
	debug.Trace("GPIO Close (periph)")

	d.mu.Lock()
	defer d.mu.Unlock()
	for pin, p := range d.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		if err := p.In(pgpio.PullNoChange, pgpio.NoEdge); err != nil {
			return fmt.Errorf("reset gpio %d: %w", pin, err)
		}
	}
	return nil
}
