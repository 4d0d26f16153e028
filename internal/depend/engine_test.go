package depend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corert/corert/internal/rterrors"
	"github.com/corert/corert/internal/task"
)

func noopBody(context.Context, interface{}) error { return nil }

func newTestTask(label string, region task.Region, typ task.AccessType) *task.Task {
	t := task.New(label, noopBody, nil, nil, 0)
	t.Accesses = []*task.DataAccess{task.NewDataAccess(region, typ, false)}
	return t
}

func TestRegisterAccessesFirstWriterIsImmediatelySatisfied(t *testing.T) {
	e := NewEngine()
	region := task.Region{Start: 0, Size: 64}

	writer := newTestTask("writer", region, task.Out)
	e.RegisterAccesses(writer)

	require.Len(t, writer.Accesses, 1)
	require.True(t, writer.Accesses[0].Satisfied(), "first access over a fresh region is satisfied immediately")
	require.Equal(t, int64(0), writer.RemainingPredecessors())
}

func TestUnregisterPropagatesToSuccessor(t *testing.T) {
	e := NewEngine()
	region := task.Region{Start: 0, Size: 64}

	writer := newTestTask("writer", region, task.Out)
	e.RegisterAccesses(writer)

	reader := newTestTask("reader", region, task.In)
	e.RegisterAccesses(reader)

	require.False(t, reader.Accesses[0].Satisfied(), "reader must wait on writer's completion")
	require.Equal(t, int64(1), reader.RemainingPredecessors())

	var cdd CPUDependencyData
	e.UnregisterAccesses(writer, &cdd)

	require.True(t, reader.Accesses[0].Satisfied())
	require.Contains(t, cdd.SatisfiedOriginators, reader)
	require.Contains(t, cdd.RemovableTasks, writer)
}

func TestUnregisterAccessesIsIdempotentPerFragment(t *testing.T) {
	e := NewEngine()
	region := task.Region{Start: 0, Size: 64}
	solo := newTestTask("solo", region, task.Out)
	e.RegisterAccesses(solo)

	var cdd1, cdd2 CPUDependencyData
	e.UnregisterAccesses(solo, &cdd1)
	e.UnregisterAccesses(solo, &cdd2)

	require.Contains(t, cdd1.RemovableTasks, solo)
	require.Empty(t, cdd2.RemovableTasks, "a second unregister of the same task produces no further side effects")
}

func TestTaskwaitSatisfiedImmediatelyWithNoChildren(t *testing.T) {
	e := NewEngine()
	parent := task.New("parent", noopBody, nil, nil, 0)

	sink := e.RegisterTaskwait(parent)
	require.True(t, sink.Complete())
}

func TestTaskwaitSatisfiedOnceLastChildFinishes(t *testing.T) {
	e := NewEngine()
	parent := task.New("parent", noopBody, nil, nil, 0)
	region := task.Region{Start: 0, Size: 64}

	child := task.New("child", noopBody, nil, parent, 0)
	child.Accesses = []*task.DataAccess{task.NewDataAccess(region, task.Out, false)}
	e.RegisterAccesses(child)

	sink := e.RegisterTaskwait(parent)
	require.False(t, sink.Complete())

	var cdd CPUDependencyData
	e.UnregisterAccesses(child, &cdd)

	require.True(t, sink.Complete())
	require.Contains(t, cdd.CompletedTaskwaits, sink)
}

func TestRegisterAccessesWithDebugChecksEnabledLeavesSegmentsWellFormed(t *testing.T) {
	rterrors.SetDebugChecks(true)
	defer rterrors.SetDebugChecks(false)

	e := NewEngine()
	overlap := task.Region{Start: 100, Size: 200}
	inner := task.Region{Start: 150, Size: 50}

	e.RegisterAccesses(newTestTask("outer", overlap, task.In))
	e.RegisterAccesses(newTestTask("inner", inner, task.Out))

	s := e.scopeFor(nil)
	require.NotEmpty(t, s.segments)
	checkSegmentsWellFormed(s.segments)
}
