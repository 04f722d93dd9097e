package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/ScanGo/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// EdgeDriver is implemented by drivers that can report input transitions.
// It stands in for a pin-change interrupt: WatchEdges arms detection on a
// pin, WaitForEdge blocks until the pin changes or the timeout expires.
type EdgeDriver interface {
	Driver
	WatchEdges(pin int) error
	WaitForEdge(pin int, timeout time.Duration) (bool, error)
}

// Backend names accepted by NewDriver.
const (
	BackendMock   = "mock"
	BackendRPi    = "rpio"
	BackendPeriph = "periph"
)

// NewDriver creates a GPIO driver based on the chosen backend.
// An empty backend selects go-rpio, the default on a Raspberry Pi.
func NewDriver(backend string) (EdgeDriver, error) {
	switch backend {
	case BackendMock:
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	case BackendRPi, "":
		return NewRPiRealDriver()
	case BackendPeriph:
		return NewPeriphDriver()
	default:
		return nil, fmt.Errorf("unknown gpio backend: %q", backend)
	}
}

// MockDriver is an in-memory implementation used for development on PC
// or testing. Output writes are remembered so they can be read back, and
// SetInput simulates an external signal, waking any WaitForEdge caller.
type MockDriver struct {
	mu     sync.Mutex
	levels map[int]Level
	edges  map[int]chan struct{}
}

// NewMockDriver returns a MockDriver with all pins low.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		levels: make(map[int]Level),
		edges:  make(map[int]chan struct{}),
	}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	m.levels[pin] = level
	m.mu.Unlock()
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

// SetInput drives a simulated input. A change of level is reported as an edge.
func (m *MockDriver) SetInput(pin int, level Level) {
	m.mu.Lock()
	prev := m.levels[pin]
	m.levels[pin] = level
	ch := m.edges[pin]
	m.mu.Unlock()

	if prev == level || ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (m *MockDriver) WatchEdges(pin int) error {
	debug.GPIO("WatchEdges", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.edges[pin]; !ok {
		m.edges[pin] = make(chan struct{}, 1)
	}
	return nil
}

func (m *MockDriver) WaitForEdge(pin int, timeout time.Duration) (bool, error) {
	m.mu.Lock()
	ch, ok := m.edges[pin]
	m.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("pin %d is not watched", pin)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
