// Package protocol parses the line-based supervisor protocol. One
// trimmed text line becomes one typed command; nothing here touches
// hardware or controller state.
//
// Recognized commands:
//
//	P        pause/stop motion
//	T        turn turret +90°
//	R        turn turret -90°
//	M<n>     manual move by n steps (n nonzero)
//	C<n>     force current signal (1..4)
//	N<n>     force next signal (1..4)
//	O<pppp>  queue priority order, permutation of 1..4, e.g. O3142
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/cjeanneret/FeuGo/internal/logic/signal"
)

// Rejection categories. Every parse failure wraps one of these.
var (
	ErrEmpty    = errors.New("empty command")
	ErrUnknown  = errors.New("unknown command")
	ErrBadArg   = errors.New("argument out of range")
	ErrBadOrder = errors.New("invalid priority order")
)

// Kind discriminates parsed commands.
type Kind int

const (
	Pause Kind = iota
	Turn
	TurnBack
	Move
	SetCurrent
	SetNext
	SetOrder
)

// Command is one parsed supervisor line.
type Command struct {
	Kind   Kind
	Signal signal.ID    // SetCurrent, SetNext (0-based)
	Steps  int          // Move
	Order  signal.Order // SetOrder (0-based)
}

// Parse turns a raw line into a command. The first character is the
// command tag; the remainder is parsed as a permissive signed integer
// where absent or non-numeric text yields 0, matching the original
// firmware contract.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrEmpty
	}

	tag := upper(line[0])
	arg := strings.TrimSpace(line[1:])

	switch tag {
	case 'P':
		return Command{Kind: Pause}, nil

	case 'T':
		return Command{Kind: Turn}, nil

	case 'R':
		return Command{Kind: TurnBack}, nil

	case 'M':
		steps := atoiPermissive(arg)
		if steps == 0 {
			return Command{}, fmt.Errorf("%w: M needs a nonzero step count", ErrBadArg)
		}
		return Command{Kind: Move, Steps: steps}, nil

	case 'C':
		id, err := parseSignal(arg)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: SetCurrent, Signal: id}, nil

	case 'N':
		id, err := parseSignal(arg)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: SetNext, Signal: id}, nil

	case 'O':
		order, err := parseOrder(arg)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: SetOrder, Order: order}, nil

	default:
		return Command{}, fmt.Errorf("%w %q", ErrUnknown, string(line[0]))
	}
}

// parseSignal maps a 1-based wire number onto an ID.
func parseSignal(arg string) (signal.ID, error) {
	n := atoiPermissive(arg)
	if n < 1 || n > signal.Count {
		return 0, fmt.Errorf("%w: signal %d not in 1..%d", ErrBadArg, n, signal.Count)
	}
	return signal.ID(n - 1), nil
}

// parseOrder validates an exactly-4-digit permutation of 1..4.
func parseOrder(arg string) (signal.Order, error) {
	var order signal.Order
	if len(arg) != signal.Count {
		return order, fmt.Errorf("%w: need %d digits, got %d", ErrBadOrder, signal.Count, len(arg))
	}
	for i := 0; i < len(arg); i++ {
		d := arg[i]
		if d < '1' || d > '0'+signal.Count {
			return order, fmt.Errorf("%w: %q is not a signal number", ErrBadOrder, string(d))
		}
		order[i] = signal.ID(d - '1')
	}
	if len(lo.Uniq(order[:])) != signal.Count {
		return order, fmt.Errorf("%w: %s repeats a signal", ErrBadOrder, arg)
	}
	return order, nil
}

// atoiPermissive reads an optional sign and leading digits, stopping at
// the first non-digit. No digits means 0, never an error.
func atoiPermissive(s string) int {
	i := 0
	negative := false
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		negative = s[i] == '-'
		i++
	}
	value := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		value = value*10 + int(s[i]-'0')
	}
	if negative {
		value = -value
	}
	return value
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
