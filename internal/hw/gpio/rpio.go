package gpio

import (
	"fmt"

	"github.com/cjeanneret/FeuGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver drives the pins through go-rpio on a real Raspberry Pi.
type RPiDriver struct {
	pins map[int]rpio.Pin
}

// NewRPiDriver opens the GPIO memory range. Requires /dev/gpiomem
// access or root.
func NewRPiDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	return &RPiDriver{
		pins: make(map[int]rpio.Pin),
	}, nil
}

func (r *RPiDriver) SetupOutput(pin int) error {
	debug.GPIO("SetupOutput", pin, nil)

	p := rpio.Pin(pin)
	p.Output()
	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, ok := r.pins[pin]
	if !ok {
		if err := r.SetupOutput(pin); err != nil {
			return err
		}
		p = r.pins[pin]
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}

	return nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	// Back to high-impedance inputs. Lamps go dark, the motor driver
	// releases.
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}

	return rpio.Close()
}
