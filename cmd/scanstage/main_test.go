package main

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/cjeanneret/ScanGo/internal/config"
	"github.com/cjeanneret/ScanGo/internal/logic/profile"
)

const testConfig = `
stepper:
  step_pin: 17
  dir_pin: 27
  enable_pin: 22
encoder:
  pin_a: 23
  pin_b: 24
  gear_ratio: 0.0005
defaults:
  mock_gpio: true
`

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Parse([]byte(testConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return c
}

// ---------- applyOverrides ----------

func TestApplyOverrides_ZeroKeepsConfig(t *testing.T) {
	c := loadTestConfig(t)
	if err := applyOverrides(c, 0, 0); err != nil {
		t.Fatalf("zeros should be valid, got: %v", err)
	}
	if c.Profile.ScanSpeed != 0.2 || c.Profile.ScanLength != 0.8 {
		t.Errorf("profile = %+v", c.Profile)
	}
}

func TestApplyOverrides_Valid(t *testing.T) {
	cases := []struct {
		name          string
		speed, length float64
	}{
		{"min", 0.01, 0.1},
		{"max", 0.3, 1.2},
		{"mid", 0.15, 0.6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := loadTestConfig(t)
			if err := applyOverrides(c, tc.speed, tc.length); err != nil {
				t.Fatalf("expected valid, got: %v", err)
			}
			if c.Profile.ScanSpeed != tc.speed || c.Profile.ScanLength != tc.length {
				t.Errorf("profile = %+v", c.Profile)
			}
		})
	}
}

func TestApplyOverrides_Rejected(t *testing.T) {
	cases := []struct {
		name          string
		speed, length float64
	}{
		{"speed_fast", 0.31, 0},
		{"speed_negative", -0.1, 0},
		{"speed_NaN", math.NaN(), 0},
		{"speed_Inf", math.Inf(1), 0},
		{"length_long", 0, 1.3},
		{"length_short", 0, 0.05},
		{"length_NaN", 0, math.NaN()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := loadTestConfig(t)
			if err := applyOverrides(c, tc.speed, tc.length); err == nil {
				t.Error("expected error, got nil")
			}
			if c.Profile.ScanSpeed != 0.2 || c.Profile.ScanLength != 0.8 {
				t.Error("rejected override must not be applied")
			}
		})
	}
}

// ---------- printProfile ----------

func TestPrintProfile(t *testing.T) {
	c := loadTestConfig(t)
	var buf bytes.Buffer
	if err := printProfile(&buf, c, 1); err != nil {
		t.Fatalf("printProfile: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"total time        11.73 s",
		"cruise time       4.00 s",
		"cruising",
		"177",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintProfile_Invalid(t *testing.T) {
	c := loadTestConfig(t)
	c.Profile.ScanLength = 2

	var cfgErr *profile.ConfigurationError
	if err := printProfile(&bytes.Buffer{}, c, 1); !errors.As(err, &cfgErr) {
		t.Errorf("printProfile = %v, want ConfigurationError", err)
	}
	if err := printProfile(&bytes.Buffer{}, loadTestConfig(t), 0); err == nil {
		t.Error("expected error for zero sample interval")
	}
}
