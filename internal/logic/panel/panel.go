// Package panel is the operator menu state machine: which item is
// highlighted, which value is being edited, and what a button press does.
// Drawing the menu and debouncing the buttons are left to the caller.
package panel

import (
	"fmt"
	"math"
	"sync"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/logic/telemetry"
)

// Mode is what the menu is doing. Exactly one mode is active.
type Mode int

const (
	Browsing Mode = iota
	EditingLength
	EditingSpeed
	ViewingInfo
	ViewingTemperature
)

func (m Mode) String() string {
	switch m {
	case Browsing:
		return "browsing"
	case EditingLength:
		return "editing_length"
	case EditingSpeed:
		return "editing_speed"
	case ViewingInfo:
		return "viewing_info"
	case ViewingTemperature:
		return "viewing_temperature"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Item is a main menu entry, in display order.
type Item int

const (
	Info Item = iota
	StartScan
	ScanLength
	ScanSpeed
	Temperature

	numItems
)

func (i Item) String() string {
	switch i {
	case Info:
		return "info"
	case StartScan:
		return "start_scan"
	case ScanLength:
		return "scan_length"
	case ScanSpeed:
		return "scan_speed"
	case Temperature:
		return "temperature"
	default:
		return fmt.Sprintf("Item(%d)", int(i))
	}
}

// Adjustment bounds for the editable settings.
const (
	MinLength  = 0.1   // m
	MaxLength  = 1.2   // m
	LengthStep = 0.01  // m
	MinSpeed   = 0.01  // m/s
	MaxSpeed   = 0.3   // m/s
	SpeedStep  = 0.001 // m/s
)

// Menu holds the menu state and edits the shared targets.
type Menu struct {
	mu       sync.Mutex
	shared   *telemetry.Shared
	mode     Mode
	selected Item
}

// New returns a menu in Browsing mode with Info highlighted.
func New(shared *telemetry.Shared) *Menu {
	return &Menu{shared: shared}
}

// Mode returns the active mode.
func (m *Menu) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Selected returns the highlighted item.
func (m *Menu) Selected() Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// Navigate handles a rotation of the selector. While browsing it moves the
// highlight with wraparound; while editing it steps the value, up meaning
// smaller. Viewing modes ignore it.
func (m *Menu) Navigate(up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delta := 1.0
	if up {
		delta = -1
	}

	switch m.mode {
	case Browsing:
		m.selected = Item((int(m.selected) + int(delta) + int(numItems)) % int(numItems))
		debug.Trace("Panel: highlight %s", m.selected)
	case EditingLength:
		s := m.shared.UpdateSettings(func(s *telemetry.Settings) {
			s.ScanLength = adjust(s.ScanLength, delta*LengthStep, LengthStep, MinLength, MaxLength)
		})
		debug.Verbose("Panel: scan length %.2fm", s.ScanLength)
	case EditingSpeed:
		s := m.shared.UpdateSettings(func(s *telemetry.Settings) {
			s.ScanSpeed = adjust(s.ScanSpeed, delta*SpeedStep, SpeedStep, MinSpeed, MaxSpeed)
		})
		debug.Verbose("Panel: scan speed %.3fm/s", s.ScanSpeed)
	}
}

// adjust steps v, snaps it to the step grid and clamps it to [lo, hi].
func adjust(v, delta, step, lo, hi float64) float64 {
	v = math.Round((v+delta)/step) * step
	return math.Min(math.Max(v, lo), hi)
}

// Select handles a press of the selector button. Outside Browsing it always
// returns to the main menu. Selecting StartScan raises the start request
// and stays in Browsing.
func (m *Menu) Select() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mode != Browsing {
		m.mode = Browsing
		debug.Trace("Panel: back to menu")
		return
	}
	switch m.selected {
	case Info:
		m.mode = ViewingInfo
	case StartScan:
		m.shared.RequestStart()
		debug.Info("Panel: scan start requested")
	case ScanLength:
		m.mode = EditingLength
	case ScanSpeed:
		m.mode = EditingSpeed
	case Temperature:
		m.mode = ViewingTemperature
	}
	debug.Trace("Panel: mode %s", m.mode)
}

// Emergency handles the stop button: the menu resets to the first item and
// a stop is requested.
func (m *Menu) Emergency() {
	m.mu.Lock()
	m.mode = Browsing
	m.selected = Info
	m.mu.Unlock()
	m.shared.RequestStop()
	debug.Info("Panel: emergency stop")
}
