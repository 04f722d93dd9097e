package telemetry

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestShared_StartRequestIsConsumedOnce(t *testing.T) {
	s := NewShared(Settings{ScanLength: 0.8, ScanSpeed: 0.2})
	if s.TakeStartRequest() {
		t.Fatal("no start request expected initially")
	}
	s.RequestStart()
	if !s.TakeStartRequest() {
		t.Fatal("expected start request")
	}
	if s.TakeStartRequest() {
		t.Error("start request should be cleared after Take")
	}
}

func TestShared_StopRequestIsConsumedOnce(t *testing.T) {
	s := NewShared(Settings{})
	s.RequestStop()
	if !s.TakeStopRequest() {
		t.Fatal("expected stop request")
	}
	if s.TakeStopRequest() {
		t.Error("stop request should be cleared after Take")
	}
}

func TestShared_ResetRequestIsConsumedOnce(t *testing.T) {
	s := NewShared(Settings{})
	s.RequestReset()
	if !s.TakeResetRequest() {
		t.Fatal("expected reset request")
	}
	if s.TakeResetRequest() {
		t.Error("reset request should be cleared after Take")
	}
}

func TestShared_SettingsVersionBumps(t *testing.T) {
	s := NewShared(Settings{ScanLength: 0.8, ScanSpeed: 0.2})
	v0 := s.SettingsVersion()

	got := s.UpdateSettings(func(st *Settings) { st.ScanLength += 0.01 })
	if math.Abs(got.ScanLength-0.81) > 1e-12 {
		t.Errorf("ScanLength = %v, want 0.81", got.ScanLength)
	}
	if s.SettingsVersion() == v0 {
		t.Error("UpdateSettings should bump the version")
	}

	v1 := s.SettingsVersion()
	s.SetSettings(Settings{ScanLength: 1, ScanSpeed: 0.1})
	if s.SettingsVersion() == v1 {
		t.Error("SetSettings should bump the version")
	}
}

func TestShared_FrameIsConsistent(t *testing.T) {
	s := NewShared(Settings{ScanLength: 0.8, ScanSpeed: 0.2})
	s.SetTemperatures(21.5, 22.0)
	s.SetStatus(Run, "scanning")
	s.Publish(Measurements{Position: 0.1, Motor: "running"})

	now := time.Unix(100, 0)
	f := s.Frame(now)

	if f.Time != now || f.Status != "run" || f.Message != "scanning" {
		t.Errorf("unexpected frame header: %+v", f)
	}
	if f.Temperatures != [2]float64{21.5, 22.0} {
		t.Errorf("Temperatures = %v", f.Temperatures)
	}
	if f.Measurements.Position != 0.1 || f.Settings.ScanSpeed != 0.2 {
		t.Errorf("unexpected frame body: %+v", f)
	}
}

func TestShared_ConcurrentAccess(t *testing.T) {
	s := NewShared(Settings{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Publish(Measurements{Position: float64(j)})
				s.UpdateSettings(func(st *Settings) { st.ScanSpeed += 0.001 })
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Frame(time.Now())
				_ = s.Settings()
			}
		}()
	}
	wg.Wait()
}

func TestStatus_String(t *testing.T) {
	if Safe.String() != "safe" || Status(42).String() != "Status(42)" {
		t.Error("unexpected Status strings")
	}
}
