package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corert/corert/internal/depend"
	"github.com/corert/corert/internal/task"
)

func newTestTask(t *testing.T, ran *bool) *task.Task {
	t.Helper()
	body := func(context.Context, interface{}) error {
		*ran = true
		return nil
	}
	return task.New("t", body, nil, nil, 0)
}

func TestStartInWorkerContextRunsBodyAndReleases(t *testing.T) {
	var ran bool
	tsk := newTestTask(t, &ran)
	engine := depend.NewEngine()

	var drained *depend.CPUDependencyData
	drain := func(_ context.Context, cdd *depend.CPUDependencyData) { drained = cdd }
	reenqueue := func(*task.Task) { t.Fatal("must not reenqueue when already in a worker context") }

	wf := New(tsk, engine, reenqueue, drain)
	wf.Start(ContextWithWorker(context.Background()))

	require.True(t, ran)
	require.True(t, tsk.HasFlag(task.FlagFinished))
	require.NotNil(t, drained)
}

func TestStartOutsideWorkerContextReenqueuesInsteadOfRunning(t *testing.T) {
	var ran bool
	tsk := newTestTask(t, &ran)
	engine := depend.NewEngine()

	var reenqueued *task.Task
	reenqueue := func(rt *task.Task) { reenqueued = rt }
	drain := func(context.Context, *depend.CPUDependencyData) {
		t.Fatal("release must not run before execute has actually run")
	}

	wf := New(tsk, engine, reenqueue, drain)
	wf.Start(context.Background())

	require.False(t, ran, "body must not run outside a worker context")
	require.Same(t, tsk, reenqueued)
}

func TestRetryExecuteRunsBodyOnceDeferredThenRedequeued(t *testing.T) {
	var ran bool
	tsk := newTestTask(t, &ran)
	engine := depend.NewEngine()

	reenqueue := func(*task.Task) {}
	var drained bool
	drain := func(context.Context, *depend.CPUDependencyData) { drained = true }

	wf := New(tsk, engine, reenqueue, drain)
	wf.Start(context.Background())
	require.False(t, ran)

	wf.RetryExecute(ContextWithWorker(context.Background()))

	require.True(t, ran)
	require.True(t, drained)
}

func TestExecuteRunsBodyOnlyOnce(t *testing.T) {
	var count int
	body := func(context.Context, interface{}) error {
		count++
		return nil
	}
	tsk := task.New("t", body, nil, nil, 0)
	engine := depend.NewEngine()

	wf := New(tsk, engine, func(*task.Task) {}, func(context.Context, *depend.CPUDependencyData) {})

	wctx := ContextWithWorker(context.Background())
	wf.Start(wctx)
	wf.RetryExecute(wctx)

	require.Equal(t, 1, count, "runOnce guards against a duplicate retry after completion")
}

func TestCancelIsIdempotent(t *testing.T) {
	var ran bool
	tsk := newTestTask(t, &ran)
	engine := depend.NewEngine()
	wf := New(tsk, engine, func(*task.Task) {}, func(context.Context, *depend.CPUDependencyData) {})

	wf.Cancel()
	wf.Cancel()
}
