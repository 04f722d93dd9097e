package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"periph.io/x/periph/conn/physic"

	"github.com/cjeanneret/ScanGo/internal/hw/encoder"
)

const minimal = `
stepper:
  step_pin: 17
  dir_pin: 27
encoder:
  pin_a: 23
  pin_b: 24
  gear_ratio: 0.0005
`

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
	if err := ValidateConfigPath("configs/default.yaml"); err != nil {
		t.Errorf("expected valid relative path, got error: %v", err)
	}
}

func TestValidateConfigPath_Rejected(t *testing.T) {
	cases := []string{
		"",
		"../../etc/passwd",
		"configs/../../../etc/shadow.yaml",
		"configs/default.json",
		"configs/default.yml",
		"configs/default",
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	if err := ValidateConfigPath(long); err != nil {
		t.Errorf("long but well-formed path rejected: %v", err)
	}
}

// ---------- Load / Parse ----------

func TestLoad_RepositoryDefault(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "default.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Profile.ScanSpeed != 0.2 || cfg.Profile.ScanLength != 0.8 || cfg.Profile.TotalDistance != 1.65 {
		t.Errorf("profile = %+v", cfg.Profile)
	}
	if cfg.GPIOBackend() != "mock" {
		t.Errorf("GPIOBackend() = %q, want mock", cfg.GPIOBackend())
	}
	if !cfg.Indicator.Enabled || !cfg.Indicator.ActiveLow {
		t.Errorf("indicator = %+v", cfg.Indicator)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.TimerClock() != 16*physic.MegaHertz {
		t.Errorf("TimerClock() = %v, want 16MHz", cfg.TimerClock())
	}
	if cfg.Timer.Prescaler != 8 || cfg.Timer.MinPeriod != 40 || cfg.Timer.MaxPeriod != 10000 {
		t.Errorf("timer = %+v", cfg.Timer)
	}
	if cfg.Stepper.StepsPerRev != 200 || cfg.Stepper.Microstepping != 16 || cfg.Stepper.PitchCircleMm != 36 {
		t.Errorf("stepper = %+v", cfg.Stepper)
	}
	if cfg.Profile.CreepSpeed != 0.02 {
		t.Errorf("creep speed = %v, want 0.02", cfg.Profile.CreepSpeed)
	}
	if cfg.PollInterval() != 10*time.Millisecond {
		t.Errorf("PollInterval() = %v", cfg.PollInterval())
	}
	if cfg.LinkInterval() != 100*time.Millisecond || cfg.Link.Baud != 115200 {
		t.Errorf("link = %+v", cfg.Link)
	}
	if cfg.EdgeTimeout() != 100*time.Millisecond {
		t.Errorf("EdgeTimeout() = %v", cfg.EdgeTimeout())
	}
	if cfg.JogStepDelay() != 500*time.Microsecond {
		t.Errorf("JogStepDelay() = %v", cfg.JogStepDelay())
	}
	if cfg.EncoderDecoding() != encoder.SingleEdge {
		t.Errorf("EncoderDecoding() = %v, want single edge", cfg.EncoderDecoding())
	}
	if cfg.Indicator.Enabled || cfg.BlinkPeriod() != 500*time.Millisecond {
		t.Errorf("indicator = %+v, blink %v", cfg.Indicator, cfg.BlinkPeriod())
	}
	if cfg.Web.Addr != ":8080" {
		t.Errorf("web addr = %q", cfg.Web.Addr)
	}
	if cfg.GPIOBackend() != "" {
		t.Errorf("GPIOBackend() = %q, want default", cfg.GPIOBackend())
	}
}

func TestParse_Quadrature(t *testing.T) {
	cfg, err := Parse([]byte(minimal + "  decoding: quadrature\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.EncoderDecoding() != encoder.FullQuadrature {
		t.Errorf("EncoderDecoding() = %v, want quadrature", cfg.EncoderDecoding())
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":      "stepper: [",
		"same pins":     "stepper:\n  step_pin: 5\n  dir_pin: 5\nencoder:\n  pin_a: 1\n  pin_b: 2\n  gear_ratio: 0.1\n",
		"no gear ratio": "stepper:\n  step_pin: 1\n  dir_pin: 2\nencoder:\n  pin_a: 3\n  pin_b: 4\n",
		"encoder pins":  "stepper:\n  step_pin: 1\n  dir_pin: 2\nencoder:\n  pin_a: 3\n  pin_b: 3\n  gear_ratio: 0.1\n",
		"decoding":      minimal + "  decoding: triple\n",
		"timer bounds":  minimal + "timer:\n  min_period: 500\n  max_period: 400\n",
		"debug level":   minimal + "defaults:\n  debug_level: 9\n",
		"backend":       minimal + "defaults:\n  gpio_backend: sysfs\n",
		"creep":         minimal + "profile:\n  creep_speed: -1\n",
		"travel":        minimal + "profile:\n  total_distance: -2\n",
		"led pins":      minimal + "indicator:\n  enabled: true\n  red_pin: 5\n  green_pin: 5\n  blue_pin: 6\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
