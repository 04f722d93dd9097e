package profile

import (
	"fmt"
	"math"
)

// DefaultCreepSpeed is the speed floor (m/s) at both ends of a ramp.
// Below it the step period would exceed what the step timer can represent.
const DefaultCreepSpeed = 0.02

// Settings are the operator-facing inputs of a scan move.
type Settings struct {
	ScanSpeed     float64 // m/s, constant-speed portion
	ScanLength    float64 // m, travelled at ScanSpeed
	TotalDistance float64 // m, full travel including both ramps
}

// ConfigurationError reports profile inputs that cannot produce a valid move.
type ConfigurationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid motion profile: %s=%g: %s", e.Field, e.Value, e.Reason)
}

// Phase identifies the segment of the trapezoid a given instant falls in.
type Phase int

const (
	Accelerating Phase = iota
	Cruising
	Decelerating
	Done
)

func (p Phase) String() string {
	switch p {
	case Accelerating:
		return "accelerating"
	case Cruising:
		return "cruising"
	case Decelerating:
		return "decelerating"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Profile is a trapezoidal velocity profile: a linear ramp from the creep
// speed up to ScanSpeed, a cruise over ScanLength, and a symmetric ramp back
// down. All times are in seconds from motion start.
type Profile struct {
	Settings
	CreepSpeed float64

	AccelerationDistance float64
	DecelerationDistance float64
	Acceleration         float64 // m/s²
	Deceleration         float64 // m/s²
	AccelerationTime     float64
	CruiseTime           float64
	DecelerationTime     float64
	TotalTime            float64
}

// New derives the ramp distances and timings for s.
// A creepSpeed <= 0 selects DefaultCreepSpeed.
func New(s Settings, creepSpeed float64) (*Profile, error) {
	if creepSpeed <= 0 {
		creepSpeed = DefaultCreepSpeed
	}
	if err := validate(s, creepSpeed); err != nil {
		return nil, err
	}

	p := &Profile{Settings: s, CreepSpeed: creepSpeed}

	ramp := (s.TotalDistance - s.ScanLength) / 2
	p.AccelerationDistance = ramp
	p.DecelerationDistance = ramp
	if ramp <= 0 {
		return nil, &ConfigurationError{Field: "acceleration_distance", Value: ramp, Reason: "must be > 0"}
	}

	dv2 := s.ScanSpeed*s.ScanSpeed - creepSpeed*creepSpeed
	p.Acceleration = dv2 / (2 * p.AccelerationDistance)
	p.Deceleration = dv2 / (2 * p.DecelerationDistance)

	p.AccelerationTime = (s.ScanSpeed - creepSpeed) / p.Acceleration
	p.DecelerationTime = (s.ScanSpeed - creepSpeed) / p.Deceleration
	p.CruiseTime = s.ScanLength / s.ScanSpeed
	p.TotalTime = p.AccelerationTime + p.CruiseTime + p.DecelerationTime

	return p, nil
}

func validate(s Settings, creep float64) error {
	fields := []struct {
		name string
		v    float64
	}{
		{"scan_speed", s.ScanSpeed},
		{"scan_length", s.ScanLength},
		{"total_distance", s.TotalDistance},
		{"creep_speed", creep},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v <= 0 {
			return &ConfigurationError{Field: f.name, Value: f.v, Reason: "must be a positive finite number"}
		}
	}
	if s.ScanLength >= s.TotalDistance {
		return &ConfigurationError{
			Field:  "scan_length",
			Value:  s.ScanLength,
			Reason: fmt.Sprintf("must be shorter than total_distance (%g)", s.TotalDistance),
		}
	}
	if s.ScanSpeed <= creep {
		return &ConfigurationError{
			Field:  "scan_speed",
			Value:  s.ScanSpeed,
			Reason: fmt.Sprintf("must exceed the creep speed (%g)", creep),
		}
	}
	return nil
}

// PhaseAt reports which segment elapsed falls in.
func (p *Profile) PhaseAt(elapsed float64) Phase {
	switch {
	case elapsed < p.AccelerationTime:
		return Accelerating
	case elapsed < p.AccelerationTime+p.CruiseTime:
		return Cruising
	case elapsed < p.TotalTime:
		return Decelerating
	default:
		return Done
	}
}

// SpeedAt returns the planned speed at elapsed, or 0 once the move is over.
// Negative elapsed is treated as the start of the move.
func (p *Profile) SpeedAt(elapsed float64) float64 {
	if elapsed < 0 {
		elapsed = 0
	}
	switch p.PhaseAt(elapsed) {
	case Accelerating:
		return p.CreepSpeed + (p.ScanSpeed-p.CreepSpeed)/p.AccelerationTime*elapsed
	case Cruising:
		return p.ScanSpeed
	case Decelerating:
		t := elapsed - (p.AccelerationTime + p.CruiseTime)
		return p.ScanSpeed - (p.ScanSpeed-p.CreepSpeed)/p.DecelerationTime*t
	default:
		return 0
	}
}

// DistanceAt returns the planned carriage travel at elapsed.
func (p *Profile) DistanceAt(elapsed float64) float64 {
	if elapsed <= 0 {
		return 0
	}
	cruiseStart := p.AccelerationTime
	decelStart := p.AccelerationTime + p.CruiseTime
	switch p.PhaseAt(elapsed) {
	case Accelerating:
		return p.CreepSpeed*elapsed + 0.5*p.Acceleration*elapsed*elapsed
	case Cruising:
		return p.AccelerationDistance + p.ScanSpeed*(elapsed-cruiseStart)
	case Decelerating:
		t := elapsed - decelStart
		return p.AccelerationDistance + p.ScanLength + p.ScanSpeed*t - 0.5*p.Deceleration*t*t
	default:
		return p.TotalDistance
	}
}

// Tracker turns a Profile into a stream of commanded speeds. Once the move
// is over it keeps returning the last nonzero speed it produced, so the
// step clock is never asked for an infinite period.
type Tracker struct {
	p    *Profile
	last float64
}

// NewTracker starts tracking p.
func NewTracker(p *Profile) *Tracker {
	return &Tracker{p: p}
}

// Profile returns the tracked profile.
func (t *Tracker) Profile() *Profile {
	return t.p
}

// TargetSpeed returns the commanded speed at elapsed.
func (t *Tracker) TargetSpeed(elapsed float64) float64 {
	v := t.p.SpeedAt(elapsed)
	if v != 0 {
		t.last = v
		return v
	}
	if t.last == 0 {
		// Nothing produced yet: the floor is the only safe nonzero value.
		return t.p.CreepSpeed
	}
	return t.last
}

// Reset forgets the held speed, for a new move.
func (t *Tracker) Reset() {
	t.last = 0
}
