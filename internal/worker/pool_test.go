package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corert/corert/internal/depend"
	"github.com/corert/corert/internal/sched"
	"github.com/corert/corert/internal/task"
	"github.com/corert/corert/internal/workflow"
)

func noopBody(context.Context, interface{}) error { return nil }

func newTestPool() *Pool {
	s := sched.NewScheduler(sched.NewPriorityAssigner(), true)
	return NewPool(s, depend.NewEngine(), []int{0})
}

func TestSubmitWithNoAccessesGoesReadyImmediately(t *testing.T) {
	p := newTestPool()
	tsk := task.New("t", noopBody, nil, nil, 0)

	p.Submit(tsk)

	require.Same(t, tsk, p.sched.GetReadyTask(0))
}

func TestSubmitWithUnsatisfiedAccessDoesNotEnqueue(t *testing.T) {
	p := newTestPool()
	region := task.Region{Start: 0, Size: 64}

	writer := task.New("writer", noopBody, nil, nil, 0)
	writer.Accesses = []*task.DataAccess{task.NewDataAccess(region, task.Out, false)}
	p.Submit(writer)
	require.Same(t, writer, p.sched.GetReadyTask(0))

	reader := task.New("reader", noopBody, nil, nil, 0)
	reader.Accesses = []*task.DataAccess{task.NewDataAccess(region, task.In, false)}
	p.Submit(reader)

	require.Nil(t, p.sched.GetReadyTask(0), "reader must wait for writer to release the region")
}

func TestAttachWorkflowSetsConcreteWorkflow(t *testing.T) {
	p := newTestPool()
	tsk := task.New("t", noopBody, nil, nil, 0)

	p.AttachWorkflow(tsk)

	wf, ok := tsk.Workflow.(*workflow.Workflow)
	require.True(t, ok)
	require.NotNil(t, wf)
}

func TestBlockCurrentTaskThenUnblockReenqueues(t *testing.T) {
	p := newTestPool()
	c := NewCPU(0, 0)
	c.Enable()
	tsk := task.New("t", noopBody, nil, nil, 0)

	p.BlockCurrentTask(c, tsk)
	require.True(t, c.blocked)

	p.Unblock(tsk)

	require.False(t, c.blocked)
	require.Same(t, tsk, p.sched.GetReadyTask(0))
}

func TestUnblockUnknownTaskStillEnqueues(t *testing.T) {
	p := newTestPool()
	tsk := task.New("orphan", noopBody, nil, nil, 0)

	p.Unblock(tsk)

	require.Same(t, tsk, p.sched.GetReadyTask(0))
}
