package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/periph/conn/physic"

	"github.com/cjeanneret/ScanGo/internal/hw/encoder"
)

// StepperConfig holds the wiring and drivetrain of the stepper motor.
type StepperConfig struct {
	StepPin       int     `yaml:"step_pin"`
	DirPin        int     `yaml:"dir_pin"`
	EnablePin     int     `yaml:"enable_pin"` // driver ENABLE pin (BCM), active LOW
	StepsPerRev   int     `yaml:"steps_per_rev"`
	Microstepping int     `yaml:"microstepping"`
	PitchCircleMm float64 `yaml:"pitch_circle_mm"` // effective pulley diameter
	JogStepUs     int     `yaml:"jog_step_us"`     // half period of a jog step (µs)
	Forward       bool    `yaml:"forward"`         // scan direction
}

// TimerConfig describes the step timer.
type TimerConfig struct {
	ClockHz   int64  `yaml:"clock_hz"`
	Prescaler int    `yaml:"prescaler"`
	MinPeriod uint32 `yaml:"min_period"` // ticks, fastest allowed
	MaxPeriod uint32 `yaml:"max_period"` // ticks, slowest allowed
}

// EncoderConfig describes the linear encoder.
type EncoderConfig struct {
	PinA          int     `yaml:"pin_a"`
	PinB          int     `yaml:"pin_b"`
	GearRatio     float64 `yaml:"gear_ratio"` // meters per channel-A edge
	Decoding      string  `yaml:"decoding"`   // single_edge or quadrature
	Invert        bool    `yaml:"invert"`
	EdgeTimeoutMs int     `yaml:"edge_timeout_ms"`
}

// ProfileConfig holds the scan targets loaded at boot.
type ProfileConfig struct {
	ScanSpeed     float64 `yaml:"scan_speed"`     // m/s
	ScanLength    float64 `yaml:"scan_length"`    // m
	TotalDistance float64 `yaml:"total_distance"` // m
	CreepSpeed    float64 `yaml:"creep_speed"`    // m/s
	FixedSpeed    float64 `yaml:"fixed_speed"`    // m/s, used with fixed
	Fixed         bool    `yaml:"fixed"`
}

// IndicatorConfig wires the RGB status LED. Enabled false leaves it out.
type IndicatorConfig struct {
	Enabled       bool `yaml:"enabled"`
	RedPin        int  `yaml:"red_pin"`
	GreenPin      int  `yaml:"green_pin"`
	BluePin       int  `yaml:"blue_pin"`
	ActiveLow     bool `yaml:"active_low"` // common-anode LED
	BlinkPeriodMs int  `yaml:"blink_period_ms"`
}

// LoopConfig sets the polling cadence.
type LoopConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

// LinkConfig configures the serial telemetry link. An empty port disables it.
type LinkConfig struct {
	Port       string `yaml:"port"`
	Baud       int    `yaml:"baud"`
	IntervalMs int    `yaml:"interval_ms"`
}

// WebConfig configures the HTTP surface.
type WebConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel  int    `yaml:"debug_level"`  // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO    bool   `yaml:"mock_gpio"`    // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	GPIOBackend string `yaml:"gpio_backend"` // rpio or periph, ignored with mock_gpio
}

// Config aggregates all application configuration.
type Config struct {
	Stepper   StepperConfig   `yaml:"stepper"`
	Timer     TimerConfig     `yaml:"timer"`
	Encoder   EncoderConfig   `yaml:"encoder"`
	Profile   ProfileConfig   `yaml:"profile"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Loop      LoopConfig      `yaml:"loop"`
	Link      LinkConfig      `yaml:"link"`
	Web       WebConfig       `yaml:"web"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// ValidateConfigPath rejects paths that escape a configs/ directory or do
// not name a .yaml file.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q: want a .yaml file", path)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q: parent references are not allowed", path)
		}
	}
	if filepath.Base(filepath.Dir(filepath.Clean(path))) != "configs" {
		return fmt.Errorf("config path %q: must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration with defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Stepper.StepsPerRev <= 0 {
		c.Stepper.StepsPerRev = 200
	}
	if c.Stepper.Microstepping <= 0 {
		c.Stepper.Microstepping = 16
	}
	if c.Stepper.PitchCircleMm <= 0 {
		c.Stepper.PitchCircleMm = 36
	}
	if c.Stepper.JogStepUs <= 0 {
		c.Stepper.JogStepUs = 500
	}

	if c.Timer.ClockHz <= 0 {
		c.Timer.ClockHz = 16_000_000
	}
	if c.Timer.Prescaler <= 0 {
		c.Timer.Prescaler = 8
	}
	if c.Timer.MinPeriod == 0 {
		c.Timer.MinPeriod = 40
	}
	if c.Timer.MaxPeriod == 0 {
		c.Timer.MaxPeriod = 10000
	}

	if c.Encoder.EdgeTimeoutMs <= 0 {
		c.Encoder.EdgeTimeoutMs = 100
	}

	if c.Profile.ScanSpeed == 0 {
		c.Profile.ScanSpeed = 0.2
	}
	if c.Profile.ScanLength == 0 {
		c.Profile.ScanLength = 0.8
	}
	if c.Profile.TotalDistance == 0 {
		c.Profile.TotalDistance = 1.65
	}
	if c.Profile.CreepSpeed == 0 {
		c.Profile.CreepSpeed = 0.02
	}

	if c.Indicator.BlinkPeriodMs <= 0 {
		c.Indicator.BlinkPeriodMs = 500
	}

	if c.Loop.PollIntervalMs <= 0 {
		c.Loop.PollIntervalMs = 10
	}
	if c.Link.Baud <= 0 {
		c.Link.Baud = 115200
	}
	if c.Link.IntervalMs <= 0 {
		c.Link.IntervalMs = 100
	}
	if c.Web.Addr == "" {
		c.Web.Addr = ":8080"
	}
}

// Validate checks the values that cannot be defaulted. The scan targets are
// checked again by the motion profile when a scan starts.
func (c *Config) Validate() error {
	if c.Stepper.StepPin == c.Stepper.DirPin {
		return fmt.Errorf("stepper.step_pin and stepper.dir_pin must differ (both %d)", c.Stepper.StepPin)
	}
	if c.Timer.MinPeriod >= c.Timer.MaxPeriod {
		return fmt.Errorf("timer.min_period (%d) must be below timer.max_period (%d)", c.Timer.MinPeriod, c.Timer.MaxPeriod)
	}
	if c.Encoder.PinA == c.Encoder.PinB {
		return fmt.Errorf("encoder.pin_a and encoder.pin_b must differ (both %d)", c.Encoder.PinA)
	}
	if c.Encoder.GearRatio <= 0 {
		return fmt.Errorf("encoder.gear_ratio must be > 0, got %g", c.Encoder.GearRatio)
	}
	if _, err := encoder.ParseDecoding(c.Encoder.Decoding); err != nil {
		return fmt.Errorf("encoder.decoding: %w", err)
	}
	if c.Profile.CreepSpeed < 0 {
		return fmt.Errorf("profile.creep_speed must be > 0, got %g", c.Profile.CreepSpeed)
	}
	if c.Profile.TotalDistance <= 0 {
		return fmt.Errorf("profile.total_distance must be > 0, got %g", c.Profile.TotalDistance)
	}
	if c.Indicator.Enabled {
		ind := c.Indicator
		if ind.RedPin == ind.GreenPin || ind.RedPin == ind.BluePin || ind.GreenPin == ind.BluePin {
			return fmt.Errorf("indicator pins must differ (red %d, green %d, blue %d)", ind.RedPin, ind.GreenPin, ind.BluePin)
		}
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	switch c.Defaults.GPIOBackend {
	case "", "rpio", "periph":
	default:
		return fmt.Errorf("defaults.gpio_backend must be rpio or periph, got %q", c.Defaults.GPIOBackend)
	}
	return nil
}

// GPIOBackend returns the backend name for gpio.NewDriver.
func (c *Config) GPIOBackend() string {
	if c.Defaults.MockGPIO {
		return "mock"
	}
	return c.Defaults.GPIOBackend
}

// TimerClock returns the step timer input clock.
func (c *Config) TimerClock() physic.Frequency {
	return physic.Frequency(c.Timer.ClockHz) * physic.Hertz
}

// EncoderDecoding returns the parsed decoding mode. Validate has already
// rejected unknown values.
func (c *Config) EncoderDecoding() encoder.Decoding {
	d, _ := encoder.ParseDecoding(c.Encoder.Decoding)
	return d
}

// EdgeTimeout returns how long an encoder watcher blocks before rechecking
// for cancellation.
func (c *Config) EdgeTimeout() time.Duration {
	return time.Duration(c.Encoder.EdgeTimeoutMs) * time.Millisecond
}

// JogStepDelay returns the half period of a jog step.
func (c *Config) JogStepDelay() time.Duration {
	return time.Duration(c.Stepper.JogStepUs) * time.Microsecond
}

// BlinkPeriod returns the indicator blink half period.
func (c *Config) BlinkPeriod() time.Duration {
	return time.Duration(c.Indicator.BlinkPeriodMs) * time.Millisecond
}

// PollInterval returns the scan loop cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Loop.PollIntervalMs) * time.Millisecond
}

// LinkInterval returns the telemetry frame period.
func (c *Config) LinkInterval() time.Duration {
	return time.Duration(c.Link.IntervalMs) * time.Millisecond
}
