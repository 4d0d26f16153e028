package workflow

import (
	"context"
	"sync"

	"github.com/corert/corert/internal/depend"
	"github.com/corert/corert/internal/task"
)

type workerCtxKey struct{}

// ContextWithWorker marks ctx as running inside a worker's CPU loop, the
// only context in which the execute step is allowed to run a task body
// inline. Pool sets this before calling Workflow.Start.
func ContextWithWorker(ctx context.Context) context.Context {
	return context.WithValue(ctx, workerCtxKey{}, true)
}

func isWorkerContext(ctx context.Context) bool {
	v, _ := ctx.Value(workerCtxKey{}).(bool)
	return v
}

// noopStep runs no work of its own; used for the start, data-link and
// data-fetch steps of every workflow New builds, since register_accesses in internal/depend already recorded initial
// satisfiability and local memory needs no fetch.
type noopStep struct{}

func (noopStep) run(context.Context) {}

// releaseStep calls the dependency engine's unregister path and hands
// the resulting side effects to drain, matching §4.5's "worker walks
// the batch" contract — here the workflow, rather than the pool
// directly, is the caller that owns this boundary once a task carries a
// Workflow.
type releaseStep struct {
	engine *depend.Engine
	t      *task.Task
	drain  func(context.Context, *depend.CPUDependencyData)
}

func (s *releaseStep) run(ctx context.Context) {
	var cdd depend.CPUDependencyData
	s.engine.UnregisterAccesses(s.t, &cdd)
	if s.drain != nil {
		s.drain(ctx, &cdd)
	}
}

// executeNode is the special step from §4.4: "if started outside a
// worker context, it must re-enqueue the task into the scheduler
// instead of running inline." Unlike the other steps it is not wrapped
// in the generic once-per-arrival node, because it may be arrived at
// from a non-worker context, deferred, and completed later from a
// worker context without ever being "arrived at" a second time.
type executeNode struct {
	t         *task.Task
	reenqueue func(*task.Task)

	mu                    sync.Mutex
	remainingPredecessors int32
	state                 stepState
	successors            []arrivable

	runOnce sync.Once
}

func newExecuteNode(t *task.Task, reenqueue func(*task.Task)) *executeNode {
	return &executeNode{t: t, reenqueue: reenqueue}
}

// addPredecessor satisfies arrivable so executeNode can itself sit
// downstream of a plain node (its data-fetch predecessor).
func (e *executeNode) addPredecessor() {
	e.mu.Lock()
	e.remainingPredecessors++
	e.mu.Unlock()
}

func (e *executeNode) addSuccessor(succ arrivable) {
	e.mu.Lock()
	e.successors = append(e.successors, succ)
	e.mu.Unlock()

	succ.addPredecessor()
}

func (e *executeNode) arrive(ctx context.Context) {
	e.mu.Lock()
	e.remainingPredecessors--
	ready := e.remainingPredecessors == 0
	e.mu.Unlock()
	if !ready {
		return
	}
	e.attempt(ctx)
}

// attempt runs the task body if ctx marks a worker context; otherwise
// it re-enqueues the task and returns without releasing successors —
// Retry must be called again once the task is next dequeued by a
// worker.
func (e *executeNode) attempt(ctx context.Context) {
	if !isWorkerContext(ctx) {
		e.reenqueue(e.t)
		return
	}

	e.runOnce.Do(func() {
		if err := e.t.Body(ctx, e.t.Args); err != nil {
			log.Errorw("task body returned error", "task", e.t.ID, "label", e.t.Label, "err", err)
		}
		e.t.SetFlag(task.FlagFinished)

		e.mu.Lock()
		e.state = stepReleasing
		succs := e.successors
		e.successors = nil
		e.mu.Unlock()

		for _, s := range succs {
			s.arrive(ctx)
		}

		e.mu.Lock()
		e.state = stepDone
		e.mu.Unlock()
	})
}

// Retry re-attempts execute after a prior attempt deferred because it
// wasn't on a worker; called by Pool once the task is dequeued again.
func (e *executeNode) Retry(ctx context.Context) {
	e.attempt(ctx)
}

// Workflow is the concrete per-task step DAG:
// start → data-link → data-fetch → execute → release.
// It satisfies task.Workflow so *Task can hold it without
// internal/task importing this package.
type Workflow struct {
	t *task.Task

	start    *node
	dataLink *node
	dataFetch *node
	execute  *executeNode
	release  *node

	cancelled sync.Once
}

// New builds the minimal local-task shape from §4.4, with no-op
// data-link and data-fetch steps. There is no separate cluster
// constructor: a cluster-offloaded task uses this same shape, and its
// body (internal/cluster's Offloader.BodyFor) performs the offload.
func New(t *task.Task, engine *depend.Engine, reenqueue func(*task.Task), drain func(context.Context, *depend.CPUDependencyData)) *Workflow {
	return build(t, engine, reenqueue, drain, noopStep{}, noopStep{})
}

func build(t *task.Task, engine *depend.Engine, reenqueue func(*task.Task), drain func(context.Context, *depend.CPUDependencyData), dataLink, dataFetch Step) *Workflow {
	w := &Workflow{
		t:         t,
		start:     newNode(noopStep{}, "start"),
		dataLink:  newNode(dataLink, "data-link"),
		dataFetch: newNode(dataFetch, "data-fetch"),
		execute:   newExecuteNode(t, reenqueue),
		release:   newNode(&releaseStep{engine: engine, t: t, drain: drain}, "release"),
	}

	w.start.addSuccessor(w.dataLink)
	w.dataLink.addSuccessor(w.dataFetch)
	w.dataFetch.addSuccessor(w.execute)
	w.execute.addSuccessor(w.release)

	return w
}

// Start begins the step chain. Call with ContextWithWorker(ctx) when
// invoked from a worker's CPU loop so the execute step may run inline;
// otherwise it will re-enqueue instead of running the body, per §4.4.
func (w *Workflow) Start(ctx context.Context) {
	w.start.start(ctx)
}

// RetryExecute re-attempts the execute step; Pool calls this right after
// Start on every dequeue, so a task re-dequeued after execute deferred
// to a non-worker context on a prior attempt runs its body. Once the
// body has run it is a no-op.
func (w *Workflow) RetryExecute(ctx context.Context) {
	w.execute.Retry(ctx)
}

// Cancel tears down the workflow during forced shutdown. Steps that
// have not yet run are simply never arrived at again; this only
// prevents a second Cancel from doing redundant work.
func (w *Workflow) Cancel() {
	w.cancelled.Do(func() {
		log.Debugw("workflow cancelled", "task", w.t.ID)
	})
}
