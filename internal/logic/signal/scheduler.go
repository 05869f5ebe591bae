package signal

import (
	"fmt"

	"github.com/cjeanneret/FeuGo/internal/debug"
)

// Timing holds the phase durations, all in milliseconds. The cycle
// length is always Steady+Blink+Yellow.
type Timing struct {
	SteadyMs        uint32 // steady green
	BlinkMs         uint32 // blinking green
	YellowMs        uint32 // yellow
	BlinkIntervalMs uint32 // green blink toggle interval (its own clock)
	LeadMs          uint32 // next-signal yellow pre-light window
}

// CycleMs returns the full cycle length.
func (t Timing) CycleMs() uint32 {
	return t.SteadyMs + t.BlinkMs + t.YellowMs
}

// Notify receives human-readable status and diagnostic lines
// (transitions, desync warnings). The control loop points it at the
// serial port.
type Notify func(format string, args ...interface{})

// Scheduler owns the lamp state of the four-approach array. Every tick
// it recomputes the frame from elapsed cycle time, and at each cycle
// boundary it resolves the next active signal under the four-level
// priority policy: one-shot override, pending order, applied order,
// sequential. All state lives here; the tick and boundary logic operate
// on this one struct, no ambient globals.
type Scheduler struct {
	timing Timing
	notify Notify

	frame  Frame
	active ID

	applied   Order
	orderIdx  int
	following bool

	pending    Order
	hasPending bool

	override    ID
	hasOverride bool

	cycleStart uint32 // millis at the start of the current cycle
	blinkLast  uint32 // millis of the last blink toggle
	blinkOn    bool
}

// New creates a scheduler on the identity order, signal 1 active, cycle
// timer at now. notify may be nil.
func New(t Timing, now uint32, notify Notify) *Scheduler {
	s := &Scheduler{
		timing:     t,
		notify:     notify,
		applied:    DefaultOrder(),
		orderIdx:   0,
		cycleStart: now,
		blinkLast:  now,
		blinkOn:    true,
	}
	s.active = s.applied[0]
	s.render(0)
	return s
}

// Active returns the signal currently in its green/yellow lifecycle.
func (s *Scheduler) Active() ID {
	return s.active
}

// Frame returns the logical lamp array as of the last Tick.
func (s *Scheduler) Frame() Frame {
	return s.frame
}

// AppliedOrder returns the priority order currently governing sequencing.
func (s *Scheduler) AppliedOrder() Order {
	return s.applied
}

// Following reports whether boundary resolution is walking the applied order.
func (s *Scheduler) Following() bool {
	return s.following
}

// PendingOrder returns the queued order, if any.
func (s *Scheduler) PendingOrder() (Order, bool) {
	return s.pending, s.hasPending
}

// ForceCurrent switches the active signal immediately: cycle timer
// reset, blink restarted steady-on, any override and pending order
// cleared. The applied order is left alone; if order-following is on,
// the next boundary resynchronizes to the forced signal.
func (s *Scheduler) ForceCurrent(id ID, now uint32) error {
	if !id.Valid() {
		return fmt.Errorf("signal %d out of range", id.Num())
	}
	s.active = id
	s.cycleStart = now
	s.blinkOn = true
	s.blinkLast = now
	s.hasOverride = false
	s.hasPending = false
	s.render(0)
	debug.Info("forced current signal to %d", id.Num())
	return nil
}

// SetNext arms the one-shot override consumed at the next boundary.
// A pending order loses to it. The current signal is not a valid target.
func (s *Scheduler) SetNext(id ID) error {
	if !id.Valid() {
		return fmt.Errorf("signal %d out of range", id.Num())
	}
	if id == s.active {
		return fmt.Errorf("next signal %d equals current", id.Num())
	}
	s.override = id
	s.hasOverride = true
	s.hasPending = false
	debug.Info("next signal override set to %d", id.Num())
	return nil
}

// QueueOrder stores a new priority order, applied at the next boundary.
// Only one may be outstanding; a newer one overwrites it. An armed
// override is dropped.
func (s *Scheduler) QueueOrder(o Order) error {
	if !o.Valid() {
		return fmt.Errorf("order %s is not a permutation", o)
	}
	s.pending = o
	s.hasPending = true
	s.hasOverride = false
	debug.Info("priority order %s queued", o)
	return nil
}

// Tick advances the scheduler to the monotonic millisecond instant now.
// Elapsed-time arithmetic is unsigned, so counter wraparound is safe.
func (s *Scheduler) Tick(now uint32) {
	// The blink clock is independent of the phase clock.
	if now-s.blinkLast >= s.timing.BlinkIntervalMs {
		s.blinkOn = !s.blinkOn
		s.blinkLast = now
	}

	if now-s.cycleStart >= s.timing.CycleMs() {
		// Boundary resolution reads the frame as it stood at the end of
		// the finished cycle, before the fresh render below.
		s.advance(now)
	}

	s.render(now - s.cycleStart)
}

// render recomputes the whole frame from elapsed cycle time t.
func (s *Scheduler) render(t uint32) {
	var f Frame
	for i := range f {
		f[i].Red = true
	}

	lamp := &f[s.active]
	lamp.Red = false
	switch {
	case t < s.timing.SteadyMs:
		lamp.Green = true
	case t < s.timing.SteadyMs+s.timing.BlinkMs:
		lamp.Green = s.blinkOn
	default:
		lamp.Yellow = true
	}

	// Lead window: pre-light the effective next signal's yellow so cross
	// traffic is warned before it goes green. The red/green flags of that
	// signal are left untouched.
	if t >= s.timing.CycleMs()-s.timing.LeadMs {
		if next := s.effectiveNext(); next != s.active {
			f[next].Yellow = true
		}
	}

	s.frame = f
}

// effectiveNext resolves the next signal under the four-level priority,
// without consuming anything. Used for the lead window; the boundary
// handler applies the same precedence with its candidate scan on top.
func (s *Scheduler) effectiveNext() ID {
	switch {
	case s.hasOverride:
		return s.override
	case s.hasPending:
		return s.pending[0]
	case s.following:
		// Relative to the active signal, not the bookkeeping index: the
		// two can disagree after a forced switch, and the boundary resync
		// resolves from the active signal too.
		return s.applied[(s.applied.IndexOf(s.active)+1)%Count]
	default:
		return s.active.Next()
	}
}

// advance handles a cycle boundary: timer reset, blink restarted
// steady-on, next active signal committed.
func (s *Scheduler) advance(now uint32) {
	s.cycleStart = now
	s.blinkOn = true
	s.blinkLast = now

	next, policy := s.resolveNext()
	if !next.Valid() {
		// Should be unreachable: every resolution path above picks a
		// valid signal. Keep the cycle running regardless.
		s.notifyf("ERROR: no next signal resolved, defaulting to 1")
		debug.Errorf("boundary resolution yielded invalid signal %d", next)
		next = 0
		s.following = false
	}
	s.active = next
	s.notifyf("Signal changed to %d (%s)", next.Num(), policy)
	debug.Signal(next.Num(), policy)
}

// resolveNext picks the committed next-active signal and reports which
// policy level produced it. Mutates the override/pending/order state
// according to the boundary rules.
func (s *Scheduler) resolveNext() (ID, string) {
	switch {
	case s.hasOverride:
		next := s.override
		s.hasOverride = false
		s.hasPending = false
		s.following = false
		return next, "override"

	case s.hasPending:
		s.applied = s.pending
		s.hasPending = false
		if idx, ok := s.firstWaiting(0); ok {
			s.orderIdx = idx
			s.following = true
			return s.applied[idx], "new order"
		}
		// Nothing red-or-yellow from the start of the new order; retry
		// just past the slot of the signal that just finished.
		if pos := s.applied.IndexOf(s.active); pos >= 0 {
			if idx, ok := s.firstWaiting(pos + 1); ok {
				s.orderIdx = idx
				s.following = true
				return s.applied[idx], "new order (offset)"
			}
		}
		// No valid path through the order at all. Safety net: plain
		// sequential, order-following off.
		s.following = false
		debug.Warn("no red/yellow candidate in new order, falling back to sequential")
		return s.active.Next(), "sequential fallback"

	case s.following:
		if s.applied[s.orderIdx] != s.active {
			// Desync between the active signal and its expected slot
			// (an explicit C command is the usual cause). Resync and
			// keep going.
			actual := s.applied.IndexOf(s.active)
			s.notifyf("WARN: order desync, signal %d not at slot %d, resyncing", s.active.Num(), s.orderIdx)
			debug.Warn("order desync: active %d, expected %d at slot %d",
				s.active.Num(), s.applied[s.orderIdx].Num(), s.orderIdx)
			if actual >= 0 {
				s.orderIdx = actual
			}
		}
		s.orderIdx = (s.orderIdx + 1) % Count
		return s.applied[s.orderIdx], "order"

	default:
		return s.active.Next(), "sequential"
	}
}

// firstWaiting scans the applied order from slot from, returning the
// first slot whose signal currently shows red or yellow. A signal
// already green is not a valid candidate.
func (s *Scheduler) firstWaiting(from int) (int, bool) {
	for i := from; i < Count; i++ {
		l := s.frame[s.applied[i]]
		if l.Red || l.Yellow {
			return i, true
		}
	}
	return 0, false
}

func (s *Scheduler) notifyf(format string, args ...interface{}) {
	if s.notify != nil {
		s.notify(format, args...)
	}
}
