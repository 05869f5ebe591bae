package signal

import "strconv"

// Count is the number of approaches on the array. The whole controller
// is built around exactly four signals.
const Count = 4

// ID identifies one approach, in [0, Count). Signals are 0-based
// internally; the wire protocol and status lines use 1-based numbers.
type ID int

// Valid reports whether the ID is within [0, Count).
func (id ID) Valid() bool {
	return id >= 0 && id < Count
}

// Next returns the sequential successor, wrapping after the last signal.
func (id ID) Next() ID {
	return (id + 1) % Count
}

// Num returns the 1-based wire number.
func (id ID) Num() int {
	return int(id) + 1
}

// Lamp is the logical state of one signal head.
type Lamp struct {
	Red    bool
	Yellow bool
	Green  bool
}

// Frame is the logical lamp state of the whole array. It is recomputed
// wholesale every tick, never mutated incrementally.
type Frame [Count]Lamp

// Order is a priority sequence over the four signals: a permutation of
// {0,1,2,3}.
type Order [Count]ID

// DefaultOrder returns the identity permutation.
func DefaultOrder() Order {
	return Order{0, 1, 2, 3}
}

// IndexOf returns the position of id in the order, or -1.
func (o Order) IndexOf(id ID) int {
	for i, s := range o {
		if s == id {
			return i
		}
	}
	return -1
}

// Valid reports whether the order is a permutation of all signals.
func (o Order) Valid() bool {
	var seen [Count]bool
	for _, s := range o {
		if !s.Valid() || seen[s] {
			return false
		}
		seen[s] = true
	}
	return true
}

// String renders the order with 1-based numbers, e.g. "3142".
func (o Order) String() string {
	b := make([]byte, 0, Count)
	for _, s := range o {
		b = strconv.AppendInt(b, int64(s.Num()), 10)
	}
	return string(b)
}
