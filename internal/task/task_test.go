package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corert/corert/internal/rterrors"
)

func noopBody(context.Context, interface{}) error { return nil }

func TestNewSetsInitialReleaseCount(t *testing.T) {
	parent := New("parent", noopBody, nil, nil, 0)
	child := New("child", noopBody, nil, parent, 2)

	require.Equal(t, int64(0), child.RemainingPredecessors())
	require.Equal(t, int64(1), parent.PendingChildren())
	require.False(t, child.Decrement(2))
	require.True(t, child.Decrement(1))
}

func TestFlags(t *testing.T) {
	tsk := New("t", noopBody, nil, nil, 0)
	require.False(t, tsk.HasFlag(FlagFinished))
	tsk.SetFlag(FlagFinished)
	require.True(t, tsk.HasFlag(FlagFinished))
	tsk.ClearFlag(FlagFinished)
	require.False(t, tsk.HasFlag(FlagFinished))
}

func TestMarkAsReleasedOnlySucceedsOnce(t *testing.T) {
	tsk := New("t", noopBody, nil, nil, 0)
	require.True(t, tsk.MarkAsReleased())
	require.False(t, tsk.MarkAsReleased())
	require.True(t, tsk.Released())
}

func TestFinalizeRequiresReleaseAndNoChildren(t *testing.T) {
	parent := New("parent", noopBody, nil, nil, 0)
	child := New("child", noopBody, nil, parent, 0)

	require.False(t, parent.Finalize(), "not released yet")
	parent.MarkAsReleased()
	require.False(t, parent.Finalize(), "child still pending")

	require.True(t, parent.FinishChild(), "last child finishing returns true")
	require.True(t, parent.Finalize())

	_ = child
}

func TestDecrementWithDebugChecksEnabledStillWorksWhenNonNegative(t *testing.T) {
	rterrors.SetDebugChecks(true)
	defer rterrors.SetDebugChecks(false)

	tsk := New("t", noopBody, nil, nil, 1)
	require.False(t, tsk.Decrement(1))
	require.True(t, tsk.Decrement(1))
}
