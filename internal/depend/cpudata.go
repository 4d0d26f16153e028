package depend

import "github.com/corert/corert/internal/task"

// UpdateOperation is a single satisfiability delta to apply to one
// access, and the message that access's own successor should then
// receive. It mirrors the original runtime's CPUDependencyData::UpdateOperation
// (see original_source/src/dependencies/linear-regions-fragmented/CPUDependencyData.hpp),
// trimmed to the fields this Go runtime actually needs.
type UpdateOperation struct {
	Target *task.DataAccess

	MakeReadSatisfied        bool
	MakeWriteSatisfied       bool
	MakeConcurrentSatisfied  bool
	MakeCommutativeSatisfied bool

	Location *task.MemoryPlace
	WriteID  uint64

	SetReductionInfo bool
	ReductionInfo    *task.ReductionInfo

	// NamespacePredecessor is set only in cluster mode when the target
	// access's predecessor was offloaded to the same remote node,
	// letting the remote side propagate satisfiability locally instead
	// of round-tripping through the offloader (§4.1 "Namespace
	// propagation").
	NamespacePredecessor *task.Task
}

// Empty reports whether the operation carries no satisfiability change
// at all, matching the original's UpdateOperation::empty() early-out.
func (op UpdateOperation) Empty() bool {
	return !op.MakeReadSatisfied && !op.MakeWriteSatisfied &&
		!op.MakeConcurrentSatisfied && !op.MakeCommutativeSatisfied &&
		!op.SetReductionInfo && op.NamespacePredecessor == nil
}

// TaskAndRegion pairs a task with a region it held a commutative access
// over, used when batching scoreboard releases.
type TaskAndRegion struct {
	Task   *task.Task
	Region task.Region
}

// CPUDependencyData is the CPU-local batch of side effects produced by
// a single register/unregister call. The worker loop drains it after
// releasing the scope lock the engine used internally, keeping that
// critical section short and bounded per §4.5/§5.
type CPUDependencyData struct {
	SatisfiedOriginators            []*task.Task
	SatisfiedCommutativeOriginators []TaskAndRegion
	DelayedOperations               []UpdateOperation
	RemovableTasks                  []*task.Task
	ReleasedCommutativeRegions      []TaskAndRegion
	CompletedTaskwaits              []*task.DataAccess
}

// Empty reports whether there is nothing left for the worker to drain.
func (c *CPUDependencyData) Empty() bool {
	return len(c.SatisfiedOriginators) == 0 &&
		len(c.SatisfiedCommutativeOriginators) == 0 &&
		len(c.DelayedOperations) == 0 &&
		len(c.RemovableTasks) == 0 &&
		len(c.ReleasedCommutativeRegions) == 0 &&
		len(c.CompletedTaskwaits) == 0
}

// Reset clears the batch for reuse, avoiding a fresh allocation on the
// next dependency-engine call from the same worker.
func (c *CPUDependencyData) Reset() {
	c.SatisfiedOriginators = c.SatisfiedOriginators[:0]
	c.SatisfiedCommutativeOriginators = c.SatisfiedCommutativeOriginators[:0]
	c.DelayedOperations = c.DelayedOperations[:0]
	c.RemovableTasks = c.RemovableTasks[:0]
	c.ReleasedCommutativeRegions = c.ReleasedCommutativeRegions[:0]
	c.CompletedTaskwaits = c.CompletedTaskwaits[:0]
}
