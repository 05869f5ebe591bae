package motion

import (
	"errors"

	"github.com/cjeanneret/FeuGo/internal/debug"
	"github.com/cjeanneret/FeuGo/internal/hw/stepper"
)

// ErrBusy is returned when a move is requested while one is in flight.
// The in-flight move is unaffected.
var ErrBusy = errors.New("motor busy")

// mode is the tagged state of the turret. Target positions live inside
// the moving variants, so an idle machine cannot carry a stale target.
type mode interface {
	label() string
}

type idle struct{}

type turning struct {
	target int
}

type manualAdjust struct {
	target int
}

func (idle) label() string         { return "idle" }
func (turning) label() string      { return "turning" }
func (manualAdjust) label() string { return "manual" }

// Notify receives completion notices (TURN_DONE, MOVE_DONE). The control
// loop points it at the serial port; the supervisor polls for these.
type Notify func(format string, args ...interface{})

// Controller is the turret state machine: Idle, Turning (±90°), or
// ManualAdjustment (arbitrary step delta). One move in flight at most,
// no queueing. It drives the stepper one increment per Update call from
// the shared control loop.
type Controller struct {
	motor       *stepper.Stepper
	quarterTurn int
	notify      Notify
	state       mode
}

// NewController creates an idle turret over the given motor.
// quarterTurn is the step count equivalent to 90°. notify may be nil.
func NewController(motor *stepper.Stepper, quarterTurn int, notify Notify) *Controller {
	return &Controller{
		motor:       motor,
		quarterTurn: quarterTurn,
		notify:      notify,
		state:       idle{},
	}
}

// Busy reports whether a move is in flight.
func (c *Controller) Busy() bool {
	_, ok := c.state.(idle)
	return !ok
}

// StateLabel returns "idle", "turning" or "manual".
func (c *Controller) StateLabel() string {
	return c.state.label()
}

// Position returns the motor position in steps since startup.
func (c *Controller) Position() int {
	return c.motor.CurrentPosition()
}

// Turn starts a 90° turn, clockwise or not. Only valid from Idle.
func (c *Controller) Turn(clockwise bool) error {
	if c.Busy() {
		return ErrBusy
	}
	delta := c.quarterTurn
	if !clockwise {
		delta = -delta
	}
	target := c.motor.CurrentPosition() + delta
	c.motor.MoveTo(target)
	c.state = turning{target: target}
	debug.Live("turn started, target %d", target)
	return nil
}

// MoveBy starts a manual adjustment of delta steps. Only valid from Idle.
func (c *Controller) MoveBy(delta int) error {
	if c.Busy() {
		return ErrBusy
	}
	target := c.motor.CurrentPosition() + delta
	c.motor.MoveTo(target)
	c.state = manualAdjust{target: target}
	debug.Live("manual move started, target %d", target)
	return nil
}

// Pause halts the motor immediately and forces Idle, whatever was in
// flight. Valid from any state.
func (c *Controller) Pause() {
	c.motor.Stop()
	c.state = idle{}
	debug.Live("motion paused")
}

// Update steps the motor and checks for completion. Called once per
// control-loop iteration.
func (c *Controller) Update() error {
	if _, ok := c.state.(idle); ok {
		return nil
	}

	if _, err := c.motor.Run(); err != nil {
		return err
	}
	debug.Motion(c.state.label(), c.motor.DistanceToGo())

	if c.motor.DistanceToGo() != 0 {
		return nil
	}
	switch c.state.(type) {
	case turning:
		c.notifyf("TURN_DONE")
	case manualAdjust:
		c.notifyf("MOVE_DONE")
	}
	c.state = idle{}
	return nil
}

func (c *Controller) notifyf(format string, args ...interface{}) {
	if c.notify != nil {
		c.notify(format, args...)
	}
}
