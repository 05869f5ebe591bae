// Package controller runs the cooperative control loop: one logical
// actor that drains the supervisor link, feeds the two state machines,
// ticks the signal scheduler and renders the lamp frame, once per
// iteration. All mutable state is touched only from this loop, so a
// command is always applied whole between two ticks.
package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/FeuGo/internal/debug"
	"github.com/cjeanneret/FeuGo/internal/hw/lamps"
	"github.com/cjeanneret/FeuGo/internal/logic/motion"
	"github.com/cjeanneret/FeuGo/internal/logic/signal"
	"github.com/cjeanneret/FeuGo/internal/protocol"
)

// maxLine caps the input accumulator when the supervisor never sends a
// terminator.
const maxLine = 256

// Millis returns elapsed monotonic milliseconds as a free-running
// uint32, wrapping like a hardware counter.
type Millis func() uint32

// NewMillis derives a Millis from a start instant.
func NewMillis(start time.Time) Millis {
	return func() uint32 {
		return uint32(time.Since(start).Milliseconds())
	}
}

// State is a published snapshot of the controller, safe to read from
// outside the loop (web handlers).
type State struct {
	Frame    signal.Frame
	Active   int // 1-based
	Order    string
	Pending  string // empty if none
	Motion   string
	Position int
}

// Loop ties the serial link, the scheduler, the turret and the lamp
// matrix together.
type Loop struct {
	port   io.ReadWriter
	sched  *signal.Scheduler
	turret *motion.Controller
	matrix *lamps.Matrix
	clock  Millis

	lineBuf []byte
	readBuf [64]byte
	inject  chan string

	mu    sync.Mutex
	state State
}

// New assembles the loop. The scheduler and turret are expected to
// already notify through the same port (see cmd wiring).
func New(port io.ReadWriter, sched *signal.Scheduler, turret *motion.Controller, matrix *lamps.Matrix, clock Millis) *Loop {
	return &Loop{
		port:   port,
		sched:  sched,
		turret: turret,
		matrix: matrix,
		clock:  clock,
		inject: make(chan string, 8),
	}
}

// Run iterates until the context is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	debug.Info("control loop running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		l.Step()
	}
}

// Step performs one loop iteration: at most one command line, one
// scheduler tick, one render pass, one motion update.
func (l *Loop) Step() {
	if line, ok := l.pollLine(); ok {
		l.dispatch(line)
	}

	l.sched.Tick(l.clock())

	if l.matrix != nil {
		if err := l.matrix.Render(l.sched.Frame()); err != nil {
			debug.Error(err)
		}
	}
	if err := l.turret.Update(); err != nil {
		debug.Error(err)
	}

	l.publish()
}

// Inject queues a command line from outside the serial link (web).
// Returns false when the queue is full.
func (l *Loop) Inject(line string) bool {
	select {
	case l.inject <- line:
		return true
	default:
		return false
	}
}

// Snapshot returns the state as of the last completed Step.
func (l *Loop) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// pollLine returns at most one complete command line per iteration,
// preferring injected lines over the serial accumulator.
func (l *Loop) pollLine() (string, bool) {
	select {
	case s := <-l.inject:
		return s, true
	default:
	}

	n, err := l.port.Read(l.readBuf[:])
	if err != nil && !errors.Is(err, io.EOF) {
		debug.Error(err)
	}
	if n > 0 {
		l.lineBuf = append(l.lineBuf, l.readBuf[:n]...)
	}

	if i := bytes.IndexByte(l.lineBuf, '\n'); i >= 0 {
		line := strings.TrimRight(string(l.lineBuf[:i]), "\r")
		rest := l.lineBuf[i+1:]
		l.lineBuf = append(l.lineBuf[:0], rest...)
		return line, true
	}
	if len(l.lineBuf) > maxLine {
		debug.Warn("discarding %d unterminated input bytes", len(l.lineBuf))
		l.lineBuf = l.lineBuf[:0]
	}
	return "", false
}

// dispatch routes one parsed command and writes the acknowledgement or
// rejection line.
func (l *Loop) dispatch(line string) {
	cmd, err := protocol.Parse(line)
	if errors.Is(err, protocol.ErrEmpty) {
		return
	}
	if err != nil {
		l.sayf("ERR: %v", err)
		return
	}

	switch cmd.Kind {
	case protocol.Pause:
		l.turret.Pause()
		l.sayf("PAUSED")

	case protocol.Turn:
		if err := l.turret.Turn(true); err != nil {
			l.sayf("ERR: %v", err)
			return
		}
		l.sayf("Turning +90 degrees")

	case protocol.TurnBack:
		if err := l.turret.Turn(false); err != nil {
			l.sayf("ERR: %v", err)
			return
		}
		l.sayf("Turning -90 degrees")

	case protocol.Move:
		if err := l.turret.MoveBy(cmd.Steps); err != nil {
			l.sayf("ERR: %v", err)
			return
		}
		l.sayf("Moving %d steps", cmd.Steps)

	case protocol.SetCurrent:
		if err := l.sched.ForceCurrent(cmd.Signal, l.clock()); err != nil {
			l.sayf("ERR: %v", err)
			return
		}
		l.sayf("Current Signal: %d", cmd.Signal.Num())

	case protocol.SetNext:
		if err := l.sched.SetNext(cmd.Signal); err != nil {
			l.sayf("ERR: %v", err)
			return
		}
		l.sayf("Next Signal: %d", cmd.Signal.Num())

	case protocol.SetOrder:
		if err := l.sched.QueueOrder(cmd.Order); err != nil {
			l.sayf("ERR: %v", err)
			return
		}
		l.sayf("New Order Queued: %s", cmd.Order)
	}
}

// sayf writes one human-readable response line to the supervisor.
func (l *Loop) sayf(format string, args ...interface{}) {
	fmt.Fprintf(l.port, format+"\r\n", args...)
}

// publish copies the observable state out for concurrent readers.
func (l *Loop) publish() {
	pending := ""
	if o, ok := l.sched.PendingOrder(); ok {
		pending = o.String()
	}
	l.mu.Lock()
	l.state = State{
		Frame:    l.sched.Frame(),
		Active:   l.sched.Active().Num(),
		Order:    l.sched.AppliedOrder().String(),
		Pending:  pending,
		Motion:   l.turret.StateLabel(),
		Position: l.turret.Position(),
	}
	l.mu.Unlock()
}
