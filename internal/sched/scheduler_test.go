package sched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corert/corert/internal/task"
)

func TestAddReadyTaskUsesImmediateSuccessorSlot(t *testing.T) {
	s := NewScheduler(NewPriorityAssigner(), true)

	t1 := task.New("t1", noopBody, nil, nil, 0)
	t1.ImmediateSuccessorCPU = 3

	s.AddReadyTask(t1, HintImmediateSuccessor)

	require.True(t, s.HasAvailableWork(3), "immediate successor slot alone still counts as available work")
	require.False(t, s.HasAvailableWork(4), "a different cpu's own slot is empty even though cpu 3's is occupied")
	require.Same(t, t1, s.GetReadyTask(3))
}

func TestImmediateSuccessorFallsBackOnSlotContention(t *testing.T) {
	s := NewScheduler(NewPriorityAssigner(), true)

	first := task.New("first", noopBody, nil, nil, 0)
	first.ImmediateSuccessorCPU = 0
	second := task.New("second", noopBody, nil, nil, 0)
	second.ImmediateSuccessorCPU = 0

	s.AddReadyTask(first, HintImmediateSuccessor)
	s.AddReadyTask(second, HintImmediateSuccessor)

	require.Same(t, first, s.GetReadyTask(0), "slot holds the first arrival")
	require.Same(t, second, s.GetReadyTask(0), "second arrival fell through to the host queue")
}

func TestGetReadyTaskReturnsNilWhenEmpty(t *testing.T) {
	s := NewScheduler(NewPriorityAssigner(), true)
	require.Nil(t, s.GetReadyTask(0))
	require.False(t, s.HasAvailableWork(0))
}

func TestClearImmediateSuccessorReturnsAndRemovesPending(t *testing.T) {
	s := NewScheduler(NewPriorityAssigner(), true)
	t1 := task.New("t1", noopBody, nil, nil, 0)
	t1.ImmediateSuccessorCPU = 5

	s.AddReadyTask(t1, HintImmediateSuccessor)
	require.Same(t, t1, s.ClearImmediateSuccessor(5))
	require.Nil(t, s.ClearImmediateSuccessor(5))
	require.Nil(t, s.GetReadyTask(5))
}

func TestAddReadyTasksAndHostQueueOrdering(t *testing.T) {
	s := NewScheduler(NewPriorityAssigner(), false)
	a := task.New("a", noopBody, nil, nil, 0)
	b := task.New("b", noopBody, nil, nil, 0)

	s.AddReadyTasks([]*task.Task{a, b}, HintNone)

	require.True(t, s.HasAvailableWork(0), "the host queue is shared, so any cpu id sees it")
	require.Same(t, a, s.GetReadyTask(0))
	require.Same(t, b, s.GetReadyTask(0))
	require.False(t, s.HasAvailableWork(0))
}
