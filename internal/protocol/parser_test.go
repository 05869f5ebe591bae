package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/FeuGo/internal/logic/signal"
)

func TestParse_MotionCommands(t *testing.T) {
	cases := []struct {
		line string
		kind Kind
	}{
		{"P", Pause},
		{"T", Turn},
		{"R", TurnBack},
		{"p", Pause}, // tags are case-insensitive
		{"t", Turn},
	}
	for _, tc := range cases {
		cmd, err := Parse(tc.line)
		require.NoError(t, err, tc.line)
		assert.Equal(t, tc.kind, cmd.Kind, tc.line)
	}
}

func TestParse_MotionArgumentIgnored(t *testing.T) {
	// P/T/R take no argument; trailing text is tolerated.
	cmd, err := Parse("T99")
	require.NoError(t, err)
	assert.Equal(t, Turn, cmd.Kind)
}

func TestParse_Move(t *testing.T) {
	cmd, err := Parse("M50")
	require.NoError(t, err)
	assert.Equal(t, Move, cmd.Kind)
	assert.Equal(t, 50, cmd.Steps)

	cmd, err = Parse("M-200")
	require.NoError(t, err)
	assert.Equal(t, -200, cmd.Steps)
}

func TestParse_MovePermissiveInteger(t *testing.T) {
	// Digits up to the first non-digit count; the tail is ignored.
	cmd, err := Parse("M50abc")
	require.NoError(t, err)
	assert.Equal(t, 50, cmd.Steps)
}

func TestParse_MoveZeroRejected(t *testing.T) {
	for _, line := range []string{"M", "M0", "Mxyz"} {
		_, err := Parse(line)
		assert.ErrorIs(t, err, ErrBadArg, line)
	}
}

func TestParse_SetCurrent(t *testing.T) {
	cmd, err := Parse("C2")
	require.NoError(t, err)
	assert.Equal(t, SetCurrent, cmd.Kind)
	assert.Equal(t, signal.ID(1), cmd.Signal, "wire numbers are 1-based")

	for _, line := range []string{"C0", "C5", "C", "C-1", "Cx"} {
		_, err := Parse(line)
		assert.ErrorIs(t, err, ErrBadArg, line)
	}
}

func TestParse_SetNext(t *testing.T) {
	cmd, err := Parse("N4")
	require.NoError(t, err)
	assert.Equal(t, SetNext, cmd.Kind)
	assert.Equal(t, signal.ID(3), cmd.Signal)

	_, err = Parse("N9")
	assert.ErrorIs(t, err, ErrBadArg)
}

func TestParse_SetOrder(t *testing.T) {
	cmd, err := Parse("O3142")
	require.NoError(t, err)
	assert.Equal(t, SetOrder, cmd.Kind)
	assert.Equal(t, signal.Order{2, 0, 3, 1}, cmd.Order)
}

func TestParse_SetOrderRejections(t *testing.T) {
	cases := []string{
		"O314",   // too short
		"O31425", // too long
		"O3144",  // repeated digit
		"O3145",  // digit out of range
		"O31a2",  // non-digit
		"O0123",  // 0 is not a signal number
		"O",      // empty payload
	}
	for _, line := range cases {
		_, err := Parse(line)
		assert.ErrorIs(t, err, ErrBadOrder, line)
	}
}

func TestParse_UnknownTag(t *testing.T) {
	for _, line := range []string{"X", "Z42", "?"} {
		_, err := Parse(line)
		assert.ErrorIs(t, err, ErrUnknown, line)
	}
}

func TestParse_Whitespace(t *testing.T) {
	cmd, err := Parse("  C2 \r")
	require.NoError(t, err)
	assert.Equal(t, SetCurrent, cmd.Kind)

	_, err = Parse("   ")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Parse("")
	assert.ErrorIs(t, err, ErrEmpty)
}
