// Package task implements the runtime's data model: Task, DataAccess, and
// the release-counter driven lifecycle described in the design's §3 and
// §4.5. It deliberately knows nothing about scheduling or dependency
// resolution; those live in internal/sched and internal/depend and hold
// *Task through the narrow methods this package exposes.
package task

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/corert/corert/internal/rterrors"
)

// Flag is the set of boolean state bits a task can carry, per §3
// ("State flags: spawned, remote, if0, main, finished, children-finished,
// released").
type Flag uint32

const (
	FlagSpawned Flag = 1 << iota
	FlagRemote
	FlagIf0
	FlagMain
	FlagFinished
	FlagChildrenFinished
	FlagReleased
)

// Body is the user-supplied task function. args is the caller's opaque
// arguments block.
type Body func(ctx context.Context, args interface{}) error

// CompletionCallback is invoked once a spawned task finishes, per the
// spawn_function API in §6.
type CompletionCallback func(args interface{})

// Workflow is the narrow capability a Task's workflow pointer needs: the
// concrete step DAG type lives in internal/workflow, which would import
// internal/task, so Task only depends on this interface to avoid a
// cycle.
type Workflow interface {
	// Start begins executing the workflow's step chain.
	Start(ctx context.Context)
	// Cancel tears down any steps that have not yet completed, used
	// during forced shutdown.
	Cancel()
}

// Task is a single unit of work with a declared set of memory-region
// accesses. Every field mutated after creation is either behind an
// atomic operation or guarded by mu; callers outside this package must
// go through the exported methods, never touch fields directly.
type Task struct {
	ID uuid.UUID

	Label string // tasktype label, used as the wisdom-file key
	Body  Body
	Args  interface{}

	Parent *Task // non-owning back-reference

	flags atomic.Uint32

	Priority int

	// ImmediateSuccessorCPU is the scheduler hint set by the workflow
	// when this task was released as the unique successor of the task
	// that just finished on a given CPU (§4.2 "Immediate-successor
	// optimization").
	ImmediateSuccessorCPU int32 // -1 when unset

	Accesses []*DataAccess

	Workflow Workflow

	remainingPredecessors atomic.Int64
	releaseCount          atomic.Int64
	pendingChildren       atomic.Int64

	mu       sync.Mutex
	children []*Task

	disposed atomic.Bool
}

// New constructs a task with an initial release count of 1 (self) plus
// the given number of initial pending events (e.g. outstanding data
// transfers), matching §4.5's release-counter contract.
func New(label string, body Body, args interface{}, parent *Task, initialEvents int64) *Task {
	t := &Task{
		ID:     uuid.New(),
		Label:  label,
		Body:   body,
		Args:   args,
		Parent: parent,
	}
	t.ImmediateSuccessorCPU = -1
	t.releaseCount.Store(1 + initialEvents)
	if parent != nil {
		parent.addChild(t)
	}
	return t
}

func (t *Task) addChild(child *Task) {
	t.mu.Lock()
	t.children = append(t.children, child)
	t.mu.Unlock()
	t.pendingChildren.Add(1)
}

// SetFlag/HasFlag/ClearFlag manipulate the state-flag bitset atomically.
func (t *Task) SetFlag(f Flag)   { t.flags.Or(uint32(f)) }
func (t *Task) ClearFlag(f Flag) { t.flags.And(^uint32(f)) }
func (t *Task) HasFlag(f Flag) bool {
	return t.flags.Load()&uint32(f) != 0
}

// RemainingPredecessors returns the count of not-yet-satisfied
// predecessor accesses gating this task's readiness.
func (t *Task) RemainingPredecessors() int64 { return t.remainingPredecessors.Load() }

// AddPredecessors increments the predecessor count, called by the
// dependency engine when a new blocking access is registered.
func (t *Task) AddPredecessors(n int64) int64 { return t.remainingPredecessors.Add(n) }

// SatisfyPredecessor decrements the predecessor count by one and
// reports whether the task became ready (count reached zero) as a
// result of this call.
func (t *Task) SatisfyPredecessor() bool {
	return t.remainingPredecessors.Add(-1) == 0
}

// Ready reports whether every declared access is currently satisfied.
// Used by worker.Pool.Submit to decide whether a freshly registered
// task can go straight onto the scheduler.
func (t *Task) Ready() bool {
	for _, a := range t.Accesses {
		if !a.Satisfied() {
			return false
		}
	}
	return true
}

// Increment adds n release events to the counter (e.g. a new pending
// data transfer registered after creation).
func (t *Task) Increment(n int64) { t.releaseCount.Add(n) }

// Decrement removes n release events and reports whether the counter
// reached zero as a result — the trigger for access unregistration
// described in §4.5.
func (t *Task) Decrement(n int64) bool {
	v := t.releaseCount.Add(-n)
	rterrors.CheckInvariant("task", v >= 0, "release counter went negative")
	return v == 0
}

// MarkAsReleased performs the CAS from not-released to released
// required by §4.5 ("a second 'released' flag separates unregistration
// from disposal... a CAS from false to true"). It returns true exactly
// once, on the call that wins the race.
func (t *Task) MarkAsReleased() bool {
	for {
		old := t.flags.Load()
		if old&uint32(FlagReleased) != 0 {
			return false
		}
		if t.flags.CompareAndSwap(old, old|uint32(FlagReleased)) {
			return true
		}
	}
}

// Released reports whether MarkAsReleased has already succeeded.
func (t *Task) Released() bool { return t.HasFlag(FlagReleased) }

// FinishChild removes child from the pending-children set and reports
// whether this was the last outstanding child (pendingChildren reached
// zero), the condition a taskwait sink access waits for.
func (t *Task) FinishChild() bool {
	return t.pendingChildren.Add(-1) == 0
}

// PendingChildren returns the number of children not yet finished.
func (t *Task) PendingChildren() int64 { return t.pendingChildren.Load() }

// Children returns a snapshot of the task's children. Children are
// owned by the parent's finalization logic per §3; callers must not
// retain the slice across a concurrent addChild.
func (t *Task) Children() []*Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Task, len(t.children))
	copy(out, t.children)
	return out
}

// Finalize runs the task's finalization step: it may only succeed
// (return true) once released is set and every child has finished, per
// the invariant in §3 ("A task is disposed only after released == true
// AND finalization returned true").
func (t *Task) Finalize() bool {
	if !t.Released() {
		return false
	}
	if t.PendingChildren() != 0 {
		return false
	}
	return true
}

// Dispose marks the task as freed. It is only valid to call once
// Finalize has returned true; calling it more than once is a dependency
// protocol violation.
func (t *Task) Dispose() {
	if !t.disposed.CompareAndSwap(false, true) {
		return
	}
}

// Disposed reports whether Dispose has already run.
func (t *Task) Disposed() bool { return t.disposed.Load() }
