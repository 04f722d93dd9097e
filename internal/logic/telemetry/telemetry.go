package telemetry

import (
	"fmt"
	"sync"
	"time"
)

// Status is the operator-facing machine state shown by the status indicator.
type Status int

const (
	Startup Status = iota
	Home
	Wait
	Run
	Stop
	Safe
)

func (s Status) String() string {
	switch s {
	case Startup:
		return "startup"
	case Home:
		return "home"
	case Wait:
		return "wait"
	case Run:
		return "run"
	case Stop:
		return "stop"
	case Safe:
		return "safe"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Settings are the targets written by the panel and the web surface and
// read by the scan loop.
type Settings struct {
	ScanLength float64 `json:"scan_length" cbor:"scan_length"` // m
	ScanSpeed  float64 `json:"scan_speed" cbor:"scan_speed"`   // m/s
}

// Measurements are written only by the scan loop.
type Measurements struct {
	Position    float64 `json:"position" cbor:"position"`         // m, from the encoder
	Speed       float64 `json:"speed" cbor:"speed"`               // m/s, from the encoder
	Direction   string  `json:"direction" cbor:"direction"`       // forward, reverse, none
	TargetSpeed float64 `json:"target_speed" cbor:"target_speed"` // m/s, commanded
	Period      uint32  `json:"period" cbor:"period"`             // armed step period, ticks
	Steps       uint64  `json:"steps" cbor:"steps"`               // emitted physical steps
	Elapsed     float64 `json:"elapsed" cbor:"elapsed"`           // s since start
	TotalTime   float64 `json:"total_time" cbor:"total_time"`     // s, planned
	Phase       string  `json:"phase" cbor:"phase"`
	Motor       string  `json:"motor" cbor:"motor"` // idle, running, error
}

// Frame is a consistent copy of everything shared, as exported to the
// web surface and the serial link.
type Frame struct {
	Time         time.Time    `json:"time" cbor:"time"`
	Settings     Settings     `json:"settings" cbor:"settings"`
	Measurements Measurements `json:"measurements" cbor:"measurements"`
	Temperatures [2]float64   `json:"temperatures" cbor:"temperatures"` // °C
	Status       string       `json:"status" cbor:"status"`
	Message      string       `json:"message,omitempty" cbor:"message,omitempty"`
}

// Shared is the state exchanged between the motion core and its external
// collaborators. Each field group has one writer:
//   - Settings, start, stop and reset requests: panel / web
//   - Temperatures: the temperature collaborator
//   - Measurements, Status: the scan loop
type Shared struct {
	mu           sync.RWMutex
	settings     Settings
	measurements Measurements
	temps        [2]float64
	status       Status
	message      string
	startReq     bool
	stopReq      bool
	resetReq     bool
	version      uint64
}

// NewShared returns a record holding the initial targets, in Startup.
func NewShared(initial Settings) *Shared {
	return &Shared{settings: initial, status: Startup}
}

// Settings returns the current targets.
func (s *Shared) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetSettings replaces the targets.
func (s *Shared) SetSettings(v Settings) {
	s.mu.Lock()
	s.settings = v
	s.version++
	s.mu.Unlock()
}

// UpdateSettings applies fn to the targets atomically.
func (s *Shared) UpdateSettings(fn func(*Settings)) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.settings)
	s.version++
	return s.settings
}

// SettingsVersion increases on every settings change, so the scan loop can
// tell when its motion profile is stale.
func (s *Shared) SettingsVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// RequestStart raises the start flag.
func (s *Shared) RequestStart() {
	s.mu.Lock()
	s.startReq = true
	s.mu.Unlock()
}

// TakeStartRequest returns and clears the start flag.
func (s *Shared) TakeStartRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.startReq
	s.startReq = false
	return req
}

// RequestStop raises the stop flag (stop button, web stop).
func (s *Shared) RequestStop() {
	s.mu.Lock()
	s.stopReq = true
	s.mu.Unlock()
}

// TakeStopRequest returns and clears the stop flag.
func (s *Shared) TakeStopRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.stopReq
	s.stopReq = false
	return req
}

// RequestReset asks the scan loop to clear a motor fault.
func (s *Shared) RequestReset() {
	s.mu.Lock()
	s.resetReq = true
	s.mu.Unlock()
}

// TakeResetRequest returns and clears the reset flag.
func (s *Shared) TakeResetRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.resetReq
	s.resetReq = false
	return req
}

// SetTemperatures stores the two measured temperatures. They are display-only.
func (s *Shared) SetTemperatures(t1, t2 float64) {
	s.mu.Lock()
	s.temps = [2]float64{t1, t2}
	s.mu.Unlock()
}

// Temperatures returns the last measured temperatures.
func (s *Shared) Temperatures() (float64, float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.temps[0], s.temps[1]
}

// Publish stores a new set of measurements.
func (s *Shared) Publish(m Measurements) {
	s.mu.Lock()
	s.measurements = m
	s.mu.Unlock()
}

// Measurements returns the last published measurements.
func (s *Shared) Measurements() Measurements {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.measurements
}

// SetStatus records the machine status and an optional message.
func (s *Shared) SetStatus(st Status, msg string) {
	s.mu.Lock()
	s.status = st
	s.message = msg
	s.mu.Unlock()
}

// Status returns the machine status.
func (s *Shared) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Frame copies everything under one lock.
func (s *Shared) Frame(now time.Time) Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Frame{
		Time:         now,
		Settings:     s.settings,
		Measurements: s.measurements,
		Temperatures: s.temps,
		Status:       s.status.String(),
		Message:      s.message,
	}
}
