package sched

import (
	"context"
	"sync"

	"github.com/corert/corert/internal/task"
	"go.opencensus.io/stats"

	"github.com/corert/corert/internal/metrics"
)

// deviceKey flattens Device into a comparable map key.
type deviceKey struct {
	kind DeviceKind
	node int
}

func keyOf(d Device) deviceKey { return deviceKey{kind: d.Kind, node: d.NodeID} }

// Scheduler is the outer synchronized facade over one unsynchronized
// inner queue per device, per §4.2: "The scheduler is two-level: an
// outer, mutex-guarded object shared by all callers, delegating to an
// inner, unsynchronized per-device queue." It also owns the
// immediate-successor per-CPU slot table, since that optimization spans
// devices (a CPU is always a host resource, but the task it's holding a
// slot for may have been assigned to any device before being pinned).
type Scheduler struct {
	mu       sync.Mutex
	assigner Assigner
	inner    map[deviceKey]readyQueue
	newQueue func() readyQueue

	// immediateSuccessor holds at most one task per CPU id, bypassing
	// the inner queue entirely per §4.2's "when a task finishes and has
	// exactly one ready successor, hand it directly to the CPU that just
	// went idle instead of requeuing it."
	immediateSuccessor map[int32]*task.Task
}

// NewScheduler builds a Scheduler with one inner queue per device.
// usePriority selects priorityQueue vs fifoQueue for newly created
// device queues.
func NewScheduler(assigner Assigner, usePriority bool) *Scheduler {
	newQueue := func() readyQueue { return newFIFOQueue() }
	if usePriority {
		newQueue = func() readyQueue { return newPriorityQueue() }
	}
	return &Scheduler{
		assigner:           assigner,
		inner:              make(map[deviceKey]readyQueue),
		newQueue:           newQueue,
		immediateSuccessor: make(map[int32]*task.Task),
	}
}

func (s *Scheduler) queueFor(d Device) readyQueue {
	k := keyOf(d)
	q, ok := s.inner[k]
	if !ok {
		q = s.newQueue()
		s.inner[k] = q
	}
	return q
}

// AddReadyTask enqueues a single ready task, honoring hint. An
// immediate-successor hint with a valid target CPU bypasses device
// assignment and the inner queue entirely, per §4.2.
func (s *Scheduler) AddReadyTask(t *task.Task, hint HintKind) {
	if hint == HintImmediateSuccessor && t.ImmediateSuccessorCPU >= 0 {
		s.mu.Lock()
		cpu := t.ImmediateSuccessorCPU
		if _, occupied := s.immediateSuccessor[cpu]; !occupied {
			s.immediateSuccessor[cpu] = t
			s.mu.Unlock()
			stats.Record(context.Background(), metrics.SchedImmediateSuccessor.M(1))
			return
		}
		s.mu.Unlock()
		// Slot already taken by a race; fall through to the normal path.
	}

	d := s.assigner.AssignDevice(t)
	s.mu.Lock()
	q := s.queueFor(d)
	q.Push(t)
	depth := int64(q.Len())
	s.mu.Unlock()
	stats.Record(context.Background(), metrics.SchedReadyQueueDepth.M(depth))
}

// AddReadyTasks enqueues a batch, e.g. the children released together by
// one CPUDependencyData drain.
func (s *Scheduler) AddReadyTasks(ts []*task.Task, hint HintKind) {
	for _, t := range ts {
		s.AddReadyTask(t, hint)
	}
}

// GetReadyTask pops the next task for the given CPU, checking its
// immediate-successor slot first, then falling back to the host device
// queue. Cluster-node inner queues are drained separately by the
// cluster layer's own workers, not by host CPUs.
func (s *Scheduler) GetReadyTask(cpuID int32) *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.immediateSuccessor[cpuID]; ok {
		delete(s.immediateSuccessor, cpuID)
		return t
	}
	return s.queueFor(Device{Kind: DeviceHost}).Pop()
}

// GetReadyTaskForDevice pops the next task queued against a specific
// device, used by cluster-node offload workers.
func (s *Scheduler) GetReadyTaskForDevice(d Device) *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueFor(d).Pop()
}

// HasAvailableWork reports whether a subsequent GetReadyTask(cpu) for
// this same cpu would return non-null: either cpu's own immediate-
// successor slot is occupied, or the shared host queue GetReadyTask
// falls back to has something in it. Per §4.2, this must be scoped to
// cpu specifically — a busy immediate-successor slot belonging to some
// other CPU says nothing about whether this one has work, and checking
// it anyway makes an idle CPU spin instead of parking.
func (s *Scheduler) HasAvailableWork(cpu int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.immediateSuccessor[cpu]; ok {
		return true
	}
	return s.queueFor(Device{Kind: DeviceHost}).Len() > 0
}

// ClearImmediateSuccessor empties cpuID's immediate-successor slot and
// returns the task it held (nil if empty), used when a CPU is being shut
// down and its pinned task must be requeued through the normal path
// instead of lost.
func (s *Scheduler) ClearImmediateSuccessor(cpuID int32) *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.immediateSuccessor[cpuID]
	if !ok {
		return nil
	}
	delete(s.immediateSuccessor, cpuID)
	return t
}
