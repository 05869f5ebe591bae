package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SignalsConfig holds the phase timing of the four-approach signal array.
// The cycle length is not configurable on its own: it is always
// steady + blink + yellow, so the configuration cannot describe a cycle
// that disagrees with its phases.
type SignalsConfig struct {
	SteadyMs        int `yaml:"steady_ms"`         // steady green duration
	BlinkMs         int `yaml:"blink_ms"`          // blinking green duration
	YellowMs        int `yaml:"yellow_ms"`         // yellow duration
	BlinkIntervalMs int `yaml:"blink_interval_ms"` // green blink toggle interval
	LeadMs          int `yaml:"lead_ms"`           // next-signal yellow pre-light window
}

// LampsConfig describes the row-multiplexed LED matrix.
// One select pin per approach, three shared color lines.
type LampsConfig struct {
	SignalPins []int `yaml:"signal_pins"` // 4 row select pins (BCM)
	RedPin     int   `yaml:"red_pin"`
	YellowPin  int   `yaml:"yellow_pin"`
	GreenPin   int   `yaml:"green_pin"`
	RowDwellUs int   `yaml:"row_dwell_us"` // per-row hold before clearing
}

// TurretConfig holds the camera turret stepper wiring and geometry.
type TurretConfig struct {
	StepPin          int `yaml:"step_pin"`
	DirPin           int `yaml:"dir_pin"`
	EnablePin        int `yaml:"enable_pin"` // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	StepsPerRev      int `yaml:"steps_per_rev"`
	QuarterTurnSteps int `yaml:"quarter_turn_steps"` // steps for 90°; 0 = steps_per_rev/4
	StepIntervalUs   int `yaml:"step_interval_us"`   // minimum time between steps
	PulseWidthUs     int `yaml:"pulse_width_us"`     // STEP pulse high time
}

// SerialConfig describes the supervisor link.
// An empty device means stdin/stdout (bench mode).
type SerialConfig struct {
	Device        string `yaml:"device"` // e.g. "/dev/ttyUSB0"
	Baud          int    `yaml:"baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"` // keeps the control loop from blocking on input
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Signals  SignalsConfig  `yaml:"signals"`
	Lamps    LampsConfig    `yaml:"lamps"`
	Turret   TurretConfig   `yaml:"turret"`
	Serial   SerialConfig   `yaml:"serial"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate applies defaults for zero values and rejects inconsistent settings.
func (c *Config) validate() error {
	// Phase timing defaults
	if c.Signals.SteadyMs <= 0 {
		c.Signals.SteadyMs = 5000
	}
	if c.Signals.BlinkMs <= 0 {
		c.Signals.BlinkMs = 2000
	}
	if c.Signals.YellowMs <= 0 {
		c.Signals.YellowMs = 2000
	}
	if c.Signals.BlinkIntervalMs <= 0 {
		c.Signals.BlinkIntervalMs = 500
	}
	if c.Signals.LeadMs <= 0 {
		c.Signals.LeadMs = 2000
	}
	if c.Signals.LeadMs >= c.CycleMs() {
		return fmt.Errorf("lead_ms (%d) must be shorter than the cycle (%d ms)",
			c.Signals.LeadMs, c.CycleMs())
	}

	// Lamp matrix
	if len(c.Lamps.SignalPins) == 0 {
		c.Lamps.SignalPins = []int{5, 6, 13, 19}
	}
	if len(c.Lamps.SignalPins) != 4 {
		return fmt.Errorf("lamps.signal_pins must list exactly 4 pins, got %d", len(c.Lamps.SignalPins))
	}
	if c.Lamps.RedPin <= 0 {
		c.Lamps.RedPin = 16
	}
	if c.Lamps.YellowPin <= 0 {
		c.Lamps.YellowPin = 20
	}
	if c.Lamps.GreenPin <= 0 {
		c.Lamps.GreenPin = 21
	}
	if c.Lamps.RowDwellUs <= 0 {
		c.Lamps.RowDwellUs = 2000 // 2ms per row, ~125Hz full refresh
	}

	// Turret
	if c.Turret.StepPin <= 0 {
		c.Turret.StepPin = 17
	}
	if c.Turret.DirPin <= 0 {
		c.Turret.DirPin = 27
	}
	if c.Turret.StepsPerRev <= 0 {
		c.Turret.StepsPerRev = 2048
	}
	if c.Turret.QuarterTurnSteps <= 0 {
		c.Turret.QuarterTurnSteps = c.Turret.StepsPerRev / 4
	}
	if c.Turret.StepIntervalUs <= 0 {
		c.Turret.StepIntervalUs = 2000
	}
	if c.Turret.PulseWidthUs <= 0 {
		c.Turret.PulseWidthUs = 10
	}

	// Serial
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = 9600
	}
	if c.Serial.ReadTimeoutMs <= 0 {
		c.Serial.ReadTimeoutMs = 20
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be 0-4, got %d", c.Defaults.DebugLevel)
	}

	return nil
}

// CycleMs returns the full cycle length in milliseconds
// (steady + blink + yellow, by construction).
func (c *Config) CycleMs() int {
	return c.Signals.SteadyMs + c.Signals.BlinkMs + c.Signals.YellowMs
}

// RowDwell returns the lamp matrix per-row hold duration.
func (c *Config) RowDwell() time.Duration {
	return time.Duration(c.Lamps.RowDwellUs) * time.Microsecond
}

// StepInterval returns the minimum duration between turret steps.
func (c *Config) StepInterval() time.Duration {
	return time.Duration(c.Turret.StepIntervalUs) * time.Microsecond
}

// PulseWidth returns the STEP pulse high time.
func (c *Config) PulseWidth() time.Duration {
	return time.Duration(c.Turret.PulseWidthUs) * time.Microsecond
}

// ReadTimeout returns the serial read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeoutMs) * time.Millisecond
}
