package lamps

import (
	"time"

	"github.com/cjeanneret/FeuGo/internal/hw/gpio"
	"github.com/cjeanneret/FeuGo/internal/logic/signal"
)

// Config holds the wiring of the row-multiplexed LED matrix: one select
// pin per approach, three shared color lines.
type Config struct {
	SignalPins [signal.Count]int // row select (BCM), active HIGH
	RedPin     int
	YellowPin  int
	GreenPin   int
	RowDwell   time.Duration // per-row hold. 0 = 2ms.
}

// Matrix projects the logical lamp frame onto the physical outputs.
// It keeps no scheduling state of its own; each Render pass is a pure
// function of the frame it is given.
type Matrix struct {
	gpio  gpio.Driver
	cfg   Config
	dwell time.Duration
}

// NewMatrix sets all matrix pins up as outputs, everything off.
func NewMatrix(g gpio.Driver, cfg Config) *Matrix {
	for _, pin := range cfg.SignalPins {
		_ = g.SetupOutput(pin)
		_ = g.WritePin(pin, gpio.Low)
	}
	for _, pin := range []int{cfg.RedPin, cfg.YellowPin, cfg.GreenPin} {
		_ = g.SetupOutput(pin)
		_ = g.WritePin(pin, gpio.Low)
	}

	dwell := cfg.RowDwell
	if dwell <= 0 {
		dwell = 2 * time.Millisecond
	}

	return &Matrix{gpio: g, cfg: cfg, dwell: dwell}
}

// Render multiplexes one full pass over the frame: for each signal,
// drive its color lines, hold the row for the dwell time, then clear the
// colors before moving on so the next row doesn't ghost.
func (m *Matrix) Render(f signal.Frame) error {
	for i, pin := range m.cfg.SignalPins {
		lamp := f[i]
		if err := m.writeColors(lamp); err != nil {
			return err
		}
		if err := m.gpio.WritePin(pin, gpio.High); err != nil {
			return err
		}
		time.Sleep(m.dwell)
		if err := m.gpio.WritePin(pin, gpio.Low); err != nil {
			return err
		}
		// Clearing step between rows
		if err := m.writeColors(signal.Lamp{}); err != nil {
			return err
		}
	}
	return nil
}

// Blank switches every output off, e.g. on shutdown.
func (m *Matrix) Blank() error {
	if err := m.writeColors(signal.Lamp{}); err != nil {
		return err
	}
	for _, pin := range m.cfg.SignalPins {
		if err := m.gpio.WritePin(pin, gpio.Low); err != nil {
			return err
		}
	}
	return nil
}

func (m *Matrix) writeColors(l signal.Lamp) error {
	if err := m.gpio.WritePin(m.cfg.RedPin, gpio.Level(l.Red)); err != nil {
		return err
	}
	if err := m.gpio.WritePin(m.cfg.YellowPin, gpio.Level(l.Yellow)); err != nil {
		return err
	}
	return m.gpio.WritePin(m.cfg.GreenPin, gpio.Level(l.Green))
}
