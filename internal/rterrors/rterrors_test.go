package rterrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapNilIsNil(t *testing.T) {
	require.NoError(t, Wrap("x", nil))
}

func TestWrapPreservesUnwrap(t *testing.T) {
	inner := errors.New("boom")
	wrapped := Wrap("depend", inner)
	require.ErrorIs(t, wrapped, inner)
}

func TestAggregateEmptyIsNil(t *testing.T) {
	require.NoError(t, Aggregate())
	require.NoError(t, Aggregate(nil, nil))
}

func TestAggregateCollectsNonNilErrors(t *testing.T) {
	err := Aggregate(nil, errors.New("a"), errors.New("b"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "a")
	require.Contains(t, err.Error(), "b")
}

func TestFatalCallsExitFuncInsteadOfExiting(t *testing.T) {
	orig := exitFunc
	defer func() { exitFunc = orig }()

	var code int
	exitFunc = func(c int) { code = c }

	Fatal("test", errors.New("fatal condition"))
	require.Equal(t, 1, code)
}

func TestCheckInvariantNoopWhenDebugChecksDisabled(t *testing.T) {
	SetDebugChecks(false)
	orig := exitFunc
	defer func() { exitFunc = orig }()
	exitFunc = func(int) { t.Fatal("must not exit when debug checks are disabled") }

	CheckInvariant("test", false, "would trip if enabled")
}

func TestCheckInvariantFatalsWhenDebugChecksEnabledAndConditionFalse(t *testing.T) {
	SetDebugChecks(true)
	defer SetDebugChecks(false)

	orig := exitFunc
	defer func() { exitFunc = orig }()
	var exited bool
	exitFunc = func(int) { exited = true }

	CheckInvariant("test", false, "tripped")
	require.True(t, exited)
}

func TestCheckInvariantPassesWhenConditionTrue(t *testing.T) {
	SetDebugChecks(true)
	defer SetDebugChecks(false)

	orig := exitFunc
	defer func() { exitFunc = orig }()
	exitFunc = func(int) { t.Fatal("must not exit when the condition holds") }

	CheckInvariant("test", true, "never trips")
}

func TestDebugChecksEnabledReflectsSetDebugChecks(t *testing.T) {
	SetDebugChecks(true)
	require.True(t, DebugChecksEnabled())
	SetDebugChecks(false)
	require.False(t, DebugChecksEnabled())
}
