package lamps

import (
	"testing"
	"time"

	"github.com/cjeanneret/FeuGo/internal/hw/gpio"
	"github.com/cjeanneret/FeuGo/internal/logic/signal"
)

type gpioCall struct {
	pin   int
	level gpio.Level
}

// recordingDriver records WritePin calls in order.
type recordingDriver struct {
	writes []gpioCall
}

func (d *recordingDriver) SetupOutput(pin int) error { return nil }

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.writes = append(d.writes, gpioCall{pin: pin, level: level})
	return nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) lastLevel(pin int) gpio.Level {
	level := gpio.Low
	for _, w := range d.writes {
		if w.pin == pin {
			level = w.level
		}
	}
	return level
}

var testConfig = Config{
	SignalPins: [signal.Count]int{5, 6, 13, 19},
	RedPin:     16,
	YellowPin:  20,
	GreenPin:   21,
	RowDwell:   time.Nanosecond,
}

func newTestMatrix() (*Matrix, *recordingDriver) {
	drv := &recordingDriver{}
	m := NewMatrix(drv, testConfig)
	drv.writes = nil // drop init writes
	return m, drv
}

func TestMatrix_RenderSelectsEachRowOnce(t *testing.T) {
	m, drv := newTestMatrix()

	if err := m.Render(signal.Frame{}); err != nil {
		t.Fatalf("Render: %v", err)
	}

	// Row pins go HIGH then LOW, in wiring order.
	var rowEvents []gpioCall
	for _, w := range drv.writes {
		for _, pin := range testConfig.SignalPins {
			if w.pin == pin {
				rowEvents = append(rowEvents, w)
			}
		}
	}
	if len(rowEvents) != 2*signal.Count {
		t.Fatalf("expected %d row writes, got %d", 2*signal.Count, len(rowEvents))
	}
	for i, pin := range testConfig.SignalPins {
		hi, lo := rowEvents[2*i], rowEvents[2*i+1]
		if hi.pin != pin || hi.level != gpio.High {
			t.Errorf("row %d: expected %d HIGH, got %v", i, pin, hi)
		}
		if lo.pin != pin || lo.level != gpio.Low {
			t.Errorf("row %d: expected %d LOW, got %v", i, pin, lo)
		}
	}
}

func TestMatrix_RenderColorsMatchFrame(t *testing.T) {
	m, drv := newTestMatrix()

	var f signal.Frame
	f[0] = signal.Lamp{Green: true}
	f[1] = signal.Lamp{Red: true}
	f[2] = signal.Lamp{Red: true, Yellow: true}
	f[3] = signal.Lamp{Red: true}

	if err := m.Render(f); err != nil {
		t.Fatalf("Render: %v", err)
	}

	// For each row, the color lines written just before the row select
	// must match the frame entry.
	for i, rowPin := range testConfig.SignalPins {
		var red, yellow, green gpio.Level
		for _, w := range drv.writes {
			switch w.pin {
			case testConfig.RedPin:
				red = w.level
			case testConfig.YellowPin:
				yellow = w.level
			case testConfig.GreenPin:
				green = w.level
			case rowPin:
				if w.level == gpio.High {
					lamp := f[i]
					if bool(red) != lamp.Red || bool(yellow) != lamp.Yellow || bool(green) != lamp.Green {
						t.Errorf("row %d lit with R=%v Y=%v G=%v, want %+v", i, red, yellow, green, lamp)
					}
				}
			}
		}
	}
}

func TestMatrix_RenderClearsColorsBetweenRows(t *testing.T) {
	m, drv := newTestMatrix()

	var f signal.Frame
	for i := range f {
		f[i] = signal.Lamp{Red: true, Yellow: true, Green: true}
	}
	if err := m.Render(f); err != nil {
		t.Fatalf("Render: %v", err)
	}

	// While any row pin is LOW between rows, the colors have been cleared:
	// after each row deselect the very next color writes are all LOW.
	rowDeselects := 0
	for idx, w := range drv.writes {
		isRow := false
		for _, pin := range testConfig.SignalPins {
			if w.pin == pin {
				isRow = true
			}
		}
		if !isRow || w.level != gpio.Low {
			continue
		}
		rowDeselects++
		for _, next := range drv.writes[idx+1 : min(idx+4, len(drv.writes))] {
			if next.level != gpio.Low {
				t.Fatalf("color line %d still HIGH right after row deselect", next.pin)
			}
		}
	}
	if rowDeselects != signal.Count {
		t.Errorf("expected %d row deselects, got %d", signal.Count, rowDeselects)
	}
}

func TestMatrix_Blank(t *testing.T) {
	m, drv := newTestMatrix()

	if err := m.Blank(); err != nil {
		t.Fatalf("Blank: %v", err)
	}

	pins := []int{testConfig.RedPin, testConfig.YellowPin, testConfig.GreenPin}
	pins = append(pins, testConfig.SignalPins[:]...)
	for _, pin := range pins {
		if drv.lastLevel(pin) != gpio.Low {
			t.Errorf("pin %d not LOW after Blank", pin)
		}
	}
}

func TestMatrix_NewMatrixInitsEverythingOff(t *testing.T) {
	drv := &recordingDriver{}
	NewMatrix(drv, testConfig)

	for _, pin := range []int{16, 20, 21, 5, 6, 13, 19} {
		if drv.lastLevel(pin) != gpio.Low {
			t.Errorf("pin %d not LOW after init", pin)
		}
	}
}
