package profile

import (
	"errors"
	"math"
	"testing"
)

func mustProfile(t *testing.T, s Settings) *Profile {
	t.Helper()
	p, err := New(s, DefaultCreepSpeed)
	if err != nil {
		t.Fatalf("New(%+v): %v", s, err)
	}
	return p
}

func within(got, want, relTol float64) bool {
	return math.Abs(got-want) <= math.Abs(want)*relTol
}

func TestNew_ReferenceScan(t *testing.T) {
	// 0.2 m/s over 0.8 m with 1.65 m total travel
	p := mustProfile(t, Settings{ScanSpeed: 0.200, ScanLength: 0.8, TotalDistance: 1.65})

	cases := []struct {
		name string
		got  float64
		want float64
	}{
		{"acceleration_distance", p.AccelerationDistance, 0.425},
		{"deceleration_distance", p.DecelerationDistance, 0.425},
		{"acceleration", p.Acceleration, (0.04 - 0.0004) / 0.85},
		{"acceleration_time", p.AccelerationTime, 3.86},
		{"cruise_time", p.CruiseTime, 4.0},
		{"total_time", p.TotalTime, 11.72},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !within(tc.got, tc.want, 0.01) {
				t.Errorf("%s = %v, want %v (±1%%)", tc.name, tc.got, tc.want)
			}
		})
	}
}

func TestNew_TimesAddUp(t *testing.T) {
	cases := []Settings{
		{ScanSpeed: 0.2, ScanLength: 0.8, TotalDistance: 1.65},
		{ScanSpeed: 0.021, ScanLength: 0.1, TotalDistance: 0.1001},
		{ScanSpeed: 0.3, ScanLength: 1.2, TotalDistance: 3},
		{ScanSpeed: 5, ScanLength: 0.001, TotalDistance: 10},
	}
	for _, s := range cases {
		p := mustProfile(t, s)
		sum := p.AccelerationTime + s.ScanLength/s.ScanSpeed + p.DecelerationTime
		if math.Abs(sum-p.TotalTime) > 1e-4 {
			t.Errorf("%+v: accel+cruise+decel = %v, total = %v", s, sum, p.TotalTime)
		}
	}
}

func TestNew_ConfigurationErrors(t *testing.T) {
	cases := []struct {
		name string
		s    Settings
	}{
		{"length_equals_total", Settings{ScanSpeed: 0.2, ScanLength: 1, TotalDistance: 1}},
		{"length_exceeds_total", Settings{ScanSpeed: 0.2, ScanLength: 2, TotalDistance: 1}},
		{"zero_speed", Settings{ScanSpeed: 0, ScanLength: 0.8, TotalDistance: 1.65}},
		{"speed_at_creep", Settings{ScanSpeed: DefaultCreepSpeed, ScanLength: 0.8, TotalDistance: 1.65}},
		{"negative_length", Settings{ScanSpeed: 0.2, ScanLength: -0.1, TotalDistance: 1.65}},
		{"zero_total", Settings{ScanSpeed: 0.2, ScanLength: 0.8, TotalDistance: 0}},
		{"nan_speed", Settings{ScanSpeed: math.NaN(), ScanLength: 0.8, TotalDistance: 1.65}},
		{"inf_total", Settings{ScanSpeed: 0.2, ScanLength: 0.8, TotalDistance: math.Inf(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(tc.s, DefaultCreepSpeed)
			if err == nil {
				t.Fatalf("expected error, got profile %+v", p)
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("error %v is not a *ConfigurationError", err)
			}
		})
	}
}

func TestNew_DefaultCreep(t *testing.T) {
	p, err := New(Settings{ScanSpeed: 0.2, ScanLength: 0.8, TotalDistance: 1.65}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.CreepSpeed != DefaultCreepSpeed {
		t.Errorf("CreepSpeed = %v, want %v", p.CreepSpeed, DefaultCreepSpeed)
	}
}

func TestSpeedAt_Shape(t *testing.T) {
	p := mustProfile(t, Settings{ScanSpeed: 0.2, ScanLength: 0.8, TotalDistance: 1.65})

	if got := p.SpeedAt(0); got != p.CreepSpeed {
		t.Errorf("SpeedAt(0) = %v, want creep %v", got, p.CreepSpeed)
	}
	if got := p.SpeedAt(-1); got != p.CreepSpeed {
		t.Errorf("SpeedAt(-1) = %v, want creep %v", got, p.CreepSpeed)
	}
	mid := p.AccelerationTime + p.CruiseTime/2
	if got := p.SpeedAt(mid); got != p.ScanSpeed {
		t.Errorf("SpeedAt(cruise) = %v, want %v", got, p.ScanSpeed)
	}
	halfRamp := p.SpeedAt(p.AccelerationTime / 2)
	if !within(halfRamp, (p.CreepSpeed+p.ScanSpeed)/2, 1e-9) {
		t.Errorf("SpeedAt(ta/2) = %v, want midpoint", halfRamp)
	}
	end := p.SpeedAt(p.TotalTime - 1e-9)
	if math.Abs(end-p.CreepSpeed) > 1e-6 {
		t.Errorf("SpeedAt(total-) = %v, want ~%v", end, p.CreepSpeed)
	}
	if got := p.SpeedAt(p.TotalTime); got != 0 {
		t.Errorf("SpeedAt(total) = %v, want 0 (raw profile)", got)
	}
}

func TestSpeedAt_NeverBelowCreepDuringMove(t *testing.T) {
	p := mustProfile(t, Settings{ScanSpeed: 0.25, ScanLength: 0.5, TotalDistance: 1.0})
	for e := 0.0; e < p.TotalTime; e += p.TotalTime / 500 {
		v := p.SpeedAt(e)
		if v < p.CreepSpeed-1e-9 || v > p.ScanSpeed+1e-9 {
			t.Fatalf("SpeedAt(%v) = %v outside [%v, %v]", e, v, p.CreepSpeed, p.ScanSpeed)
		}
	}
}

func TestPhaseAt(t *testing.T) {
	p := mustProfile(t, Settings{ScanSpeed: 0.2, ScanLength: 0.8, TotalDistance: 1.65})
	cases := []struct {
		elapsed float64
		want    Phase
	}{
		{0, Accelerating},
		{p.AccelerationTime, Cruising},
		{p.AccelerationTime + p.CruiseTime, Decelerating},
		{p.TotalTime, Done},
		{p.TotalTime + 10, Done},
	}
	for _, tc := range cases {
		if got := p.PhaseAt(tc.elapsed); got != tc.want {
			t.Errorf("PhaseAt(%v) = %v, want %v", tc.elapsed, got, tc.want)
		}
	}
}

func TestDistanceAt_Boundaries(t *testing.T) {
	p := mustProfile(t, Settings{ScanSpeed: 0.2, ScanLength: 0.8, TotalDistance: 1.65})

	if got := p.DistanceAt(p.AccelerationTime); !within(got, p.AccelerationDistance, 1e-6) {
		t.Errorf("DistanceAt(ta) = %v, want %v", got, p.AccelerationDistance)
	}
	cruiseEnd := p.AccelerationTime + p.CruiseTime
	if got := p.DistanceAt(cruiseEnd); !within(got, p.AccelerationDistance+p.ScanLength, 1e-6) {
		t.Errorf("DistanceAt(cruise end) = %v, want %v", got, p.AccelerationDistance+p.ScanLength)
	}
	if got := p.DistanceAt(p.TotalTime - 1e-9); !within(got, p.TotalDistance, 1e-6) {
		t.Errorf("DistanceAt(total-) = %v, want %v", got, p.TotalDistance)
	}
}

func TestTracker_HoldsLastNonzero(t *testing.T) {
	p := mustProfile(t, Settings{ScanSpeed: 0.2, ScanLength: 0.8, TotalDistance: 1.65})
	tr := NewTracker(p)

	last := tr.TargetSpeed(p.TotalTime - 0.01)
	for _, e := range []float64{p.TotalTime, p.TotalTime + 1, p.TotalTime + 100} {
		got := tr.TargetSpeed(e)
		if got == 0 {
			t.Fatalf("TargetSpeed(%v) = 0", e)
		}
		if got != last {
			t.Errorf("TargetSpeed(%v) = %v, want held %v", e, got, last)
		}
	}
}

func TestTracker_PastEndWithoutHistory(t *testing.T) {
	p := mustProfile(t, Settings{ScanSpeed: 0.2, ScanLength: 0.8, TotalDistance: 1.65})
	tr := NewTracker(p)

	if got := tr.TargetSpeed(p.TotalTime + 5); got != p.CreepSpeed {
		t.Errorf("TargetSpeed past end with no history = %v, want creep %v", got, p.CreepSpeed)
	}
}

func TestTracker_Reset(t *testing.T) {
	p := mustProfile(t, Settings{ScanSpeed: 0.2, ScanLength: 0.8, TotalDistance: 1.65})
	tr := NewTracker(p)

	tr.TargetSpeed(p.AccelerationTime + 1) // cruise speed held
	tr.Reset()
	if got := tr.TargetSpeed(p.TotalTime + 1); got != p.CreepSpeed {
		t.Errorf("after Reset, TargetSpeed past end = %v, want creep", got)
	}
}
