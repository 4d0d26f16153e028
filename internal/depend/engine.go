// Package depend implements the dependency engine described in §4.1 of
// the design: per-task access registration against a per-scope region
// chain, satisfiability propagation, region fragmentation, reductions,
// and commutative mutual exclusion. It is deliberately unaware of
// scheduling — register/unregister only ever hand batches of
// now-satisfied or now-removable tasks to a caller-owned
// CPUDependencyData, which the worker loop drains after releasing the
// per-scope lock, exactly as §5 requires ("the outer loop drains this
// struct AFTER releasing the access-set lock, preventing lock-rank
// violations").
package depend

import (
	"context"
	"sync"

	"go.opencensus.io/stats"

	"github.com/corert/corert/internal/metrics"
	"github.com/corert/corert/internal/rtlog"
	"github.com/corert/corert/internal/task"
)

var log = rtlog.Named("depend")

// Engine owns the region chains for every active scope (a scope is the
// set of sibling accesses registered under one parent task; nil is the
// root scope for top-level tasks).
type Engine struct {
	mctx context.Context // metrics context, mirrors lotus Scheduler.mctx

	scopesMu sync.Mutex
	scopes   map[*task.Task]*scope

	commutative *commutativeScoreboard
}

// NewEngine constructs an empty dependency engine.
func NewEngine() *Engine {
	return NewEngineWithContext(context.Background())
}

// NewEngineWithContext is like NewEngine but records metrics against
// ctx (e.g. one carrying an OpenCensus tag.Context set up by
// cmd/corertd).
func NewEngineWithContext(ctx context.Context) *Engine {
	return &Engine{
		mctx:        ctx,
		scopes:      make(map[*task.Task]*scope),
		commutative: newCommutativeScoreboard(),
	}
}

func (e *Engine) scopeFor(parent *task.Task) *scope {
	e.scopesMu.Lock()
	defer e.scopesMu.Unlock()
	s, ok := e.scopes[parent]
	if !ok {
		s = newScope()
		e.scopes[parent] = s
	}
	return s
}

// dropScope releases a scope's bookkeeping once its parent task has
// finalized and can have no further children register accesses. Safe to
// call even if the scope still has entries (e.g. shutdown); it simply
// stops being reachable for new registrations.
func (e *Engine) dropScope(parent *task.Task) {
	e.scopesMu.Lock()
	delete(e.scopes, parent)
	e.scopesMu.Unlock()
}

// RegisterAccesses walks t's declared accesses, fragments each against
// the current state of its scope's region chain, and links the new
// fragments behind whatever last touched each sub-region. It replaces
// t.Accesses with the (possibly larger) fragment list, satisfying the
// invariant that a task's Accesses are always its true dependency-graph
// leaves. See §4.1 "register_accesses".
func (e *Engine) RegisterAccesses(t *task.Task) {
	done := metrics.Timer(e.mctx, metrics.DependencyRegisterDuration)
	defer done()

	s := e.scopeFor(t.Parent)

	declared := t.Accesses
	fragments := make([]*task.DataAccess, 0, len(declared))

	s.mu.Lock()
	var pendingCount int64
	for _, da := range declared {
		frags := s.fragmentAndLink(da, t)
		for _, f := range frags {
			fragments = append(fragments, f)
			if !f.Satisfied() {
				pendingCount++
			}
		}
	}
	s.mu.Unlock()

	t.Accesses = fragments
	if pendingCount > 0 {
		t.AddPredecessors(pendingCount)
	}

	stats.Record(e.mctx, metrics.DependencyFragmentCount.M(int64(len(fragments))))
}

// UnregisterAccesses is called once a task's body has returned. For each
// fragment it forwards the satisfiability the task's use conferred to
// the next fragment in the chain (or nothing, at the chain's end),
// batching every side effect — newly-ready successor tasks, released
// commutative regions, tasks now eligible for disposal — into cdd. See
// §4.1 "unregister_accesses" and §4.5 "Finalization".
func (e *Engine) UnregisterAccesses(t *task.Task, cdd *CPUDependencyData) {
	done := metrics.Timer(e.mctx, metrics.DependencyUnregisterDuration)
	defer done()

	for _, frag := range t.Accesses {
		if frag.Unregistered() {
			// Idempotent: a task's accesses are only unregistered once,
			// but a caller retrying after a partial batch failure must
			// not double-release the same fragment.
			continue
		}
		frag.SetComplete()
		frag.SetUnregistered()

		if frag.Type == task.Reduction {
			e.completeReductionContributor(frag, cdd)
			continue
		}

		op := completionOperation(frag)
		if frag.Type == task.Commutative {
			cdd.ReleasedCommutativeRegions = append(cdd.ReleasedCommutativeRegions, TaskAndRegion{Task: t, Region: frag.Region})
		}
		if frag.Successor != nil {
			op.Target = frag.Successor
			cdd.DelayedOperations = append(cdd.DelayedOperations, op)
		}
	}

	e.drainDelayed(cdd)

	if t.MarkAsReleased() {
		if t.Finalize() {
			cdd.RemovableTasks = append(cdd.RemovableTasks, t)
			e.dropScope(t)
			e.noteChildFinished(t, cdd)
		}
	}

	e.commutative.grantWaiters(cdd)
}

// ReleaseAccess unregisters a single fragment ahead of its owning task's
// overall completion, the early-release path a namespace task uses when
// forwarding a RemoteAccessReleaseMessage (§4.6: "when an offloadee
// propagates release, RemoteAccessRelease is sent back"). It performs the
// same per-fragment forwarding UnregisterAccesses does, but never touches
// the owning task's finalize/dispose bookkeeping — the task itself is
// still running remotely and only its own TaskFinished report retires it.
func (e *Engine) ReleaseAccess(frag *task.DataAccess, cdd *CPUDependencyData) {
	if frag.Unregistered() {
		return
	}
	frag.SetComplete()
	frag.SetUnregistered()

	if frag.Type == task.Reduction {
		e.completeReductionContributor(frag, cdd)
		e.drainDelayed(cdd)
		e.commutative.grantWaiters(cdd)
		return
	}

	op := completionOperation(frag)
	if frag.Type == task.Commutative {
		cdd.ReleasedCommutativeRegions = append(cdd.ReleasedCommutativeRegions, TaskAndRegion{Task: frag.Owner, Region: frag.Region})
	}
	if frag.Successor != nil {
		op.Target = frag.Successor
		cdd.DelayedOperations = append(cdd.DelayedOperations, op)
	}

	e.drainDelayed(cdd)
	e.commutative.grantWaiters(cdd)
}

// drainDelayed repeatedly applies queued UpdateOperations until no more
// are produced, the batching discipline described in §4.1's "propagate"
// contract and grounded on the original runtime's CPUDependencyData
// delayed-operations list.
func (e *Engine) drainDelayed(cdd *CPUDependencyData) {
	for len(cdd.DelayedOperations) > 0 {
		op := cdd.DelayedOperations[0]
		cdd.DelayedOperations = cdd.DelayedOperations[1:]
		e.propagate(op, cdd)
	}
}

// completionOperation builds the UpdateOperation that forwards
// whichever satisfiability kinds this access type confers once the
// task is done using the region.
func completionOperation(frag *task.DataAccess) UpdateOperation {
	op := UpdateOperation{Location: frag.Location, WriteID: frag.WriteID}
	switch frag.Type {
	case task.In:
		op.MakeReadSatisfied = true
		op.MakeWriteSatisfied = true
	case task.Out, task.InOut:
		op.MakeReadSatisfied = true
		op.MakeWriteSatisfied = true
	case task.Concurrent:
		op.MakeConcurrentSatisfied = true
	case task.Commutative:
		op.MakeCommutativeSatisfied = true
	case task.Reduction:
		op.MakeReadSatisfied = true
		op.MakeWriteSatisfied = true
	}
	return op
}
