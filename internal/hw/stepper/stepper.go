package stepper

import (
	"time"

	"github.com/cjeanneret/FeuGo/internal/debug"
	"github.com/cjeanneret/FeuGo/internal/hw/gpio"
)

// Config holds the hardware configuration for a stepper motor.
type Config struct {
	StepPin      int
	DirPin       int
	EnablePin    int // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	StepsPerRev  int
	StepInterval time.Duration // minimum time between two steps. 0 = 2ms.
	PulseWidth   time.Duration // STEP pulse high time. 0 = 10µs.
}

// Stepper drives a STEP/DIR motor incrementally: the caller sets a target
// position and then calls Run once per control-loop iteration. Each Run
// emits at most one step pulse, rate-limited by StepInterval, so the
// motor shares the loop with the lamp renderer without blocking it.
type Stepper struct {
	gpio     gpio.Driver
	cfg      Config
	interval time.Duration
	pulse    time.Duration

	pos      int
	target   int
	lastStep time.Time
}

// NewStepper creates a new stepper motor controller at position 0.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupOutput(cfg.StepPin)
	_ = g.SetupOutput(cfg.DirPin)

	interval := cfg.StepInterval
	if interval <= 0 {
		interval = 2 * time.Millisecond
	}
	pulse := cfg.PulseWidth
	if pulse <= 0 {
		pulse = 10 * time.Microsecond
	}

	s := &Stepper{
		gpio:     g,
		cfg:      cfg,
		interval: interval,
		pulse:    pulse,
	}

	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		_ = g.SetupOutput(cfg.EnablePin)
		_ = g.WritePin(cfg.EnablePin, gpio.Low) // enable by default
	}

	return s
}

// MoveTo sets the absolute target position.
func (s *Stepper) MoveTo(target int) {
	debug.Printf("Stepper: target %d (at %d)", target, s.pos)
	s.target = target
}

// Move sets the target relative to the current position.
func (s *Stepper) Move(delta int) {
	s.MoveTo(s.pos + delta)
}

// Stop abandons the current target; the motor holds wherever it is.
func (s *Stepper) Stop() {
	s.target = s.pos
}

// CurrentPosition returns the position in steps since startup.
func (s *Stepper) CurrentPosition() int {
	return s.pos
}

// DistanceToGo returns the signed number of steps remaining.
func (s *Stepper) DistanceToGo() int {
	return s.target - s.pos
}

// Run emits one step toward the target if one is due. Returns true if a
// step was taken. Call it every loop iteration; it returns immediately
// when the motor is at target or the step interval has not elapsed.
func (s *Stepper) Run() (bool, error) {
	d := s.target - s.pos
	if d == 0 {
		return false, nil
	}
	now := time.Now()
	if now.Sub(s.lastStep) < s.interval {
		return false, nil
	}

	dirLevel := gpio.High
	inc := 1
	if d < 0 {
		dirLevel = gpio.Low
		inc = -1
	}
	if err := s.gpio.WritePin(s.cfg.DirPin, dirLevel); err != nil {
		return false, err
	}
	if err := s.stepPulse(); err != nil {
		return false, err
	}
	s.pos += inc
	s.lastStep = now
	return true, nil
}

func (s *Stepper) stepPulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.pulse)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	return nil
}

// Enable turns on the motor driver (A4988 ENABLE=LOW). Motor holds position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (A4988 ENABLE=HIGH). Motor freewheels,
// no holding torque.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
