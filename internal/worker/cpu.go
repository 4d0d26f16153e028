// Package worker implements the CPU / thread-pool manager described in
// the design's §4.3: one OS thread bound to each usable CPU, an
// idle/running state machine, and taskwait/block support. It is
// grounded on lotus's storage/sealer.WorkerHandle — a per-worker
// sync.Mutex-guarded handle plus a long-running goroutine — generalized
// from "seal-task resource accounting on a storage worker" to
// "ready-task admission and idle/running state on a CPU-pinned thread."
package worker

import (
	"context"
	"sync"

	"go.opencensus.io/stats"

	"github.com/corert/corert/internal/metrics"
	"github.com/corert/corert/internal/rtlog"
	"github.com/corert/corert/internal/task"
)

var log = rtlog.Named("worker")

// State is the CPU state machine from §4.3: "uninitialized → enabled →
// {acquired_running, acquired_idle, shutting_down} → terminated".
type State uint8

const (
	StateUninitialized State = iota
	StateEnabled
	StateAcquiredRunning
	StateAcquiredIdle
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateEnabled:
		return "enabled"
	case StateAcquiredRunning:
		return "acquired_running"
	case StateAcquiredIdle:
		return "acquired_idle"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "uninitialized"
	}
}

// CPU represents one worker-pool slot bound to a single logical CPU.
// State transitions are guarded by cond.L; other goroutines resume an
// idle CPU by calling Resume, which signals cond.
type CPU struct {
	ID     int32
	NodeID int // NUMA node this CPU belongs to, for locality-preserving resumption.

	mu    sync.Mutex
	cond  *sync.Cond
	state State

	blocked bool // task on this CPU called block_current_task
}

func NewCPU(id int32, nodeID int) *CPU {
	c := &CPU{ID: id, NodeID: nodeID, state: StateUninitialized}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Enable transitions uninitialized → enabled, the state a CPU starts in
// once the pool has bound an OS thread to it.
func (c *CPU) Enable() {
	c.mu.Lock()
	c.state = StateEnabled
	c.mu.Unlock()
}

// AcquireRunning transitions enabled or acquired_idle → acquired_running,
// called by the pool loop right before it hands the CPU a task to run.
func (c *CPU) AcquireRunning() {
	c.mu.Lock()
	c.state = StateAcquiredRunning
	c.mu.Unlock()
}

// BecomeIdle implements §4.3's idle-admission race: it re-checks
// hasWork under the same lock the idle transition itself is made under,
// so a task enqueued between the caller's "queue empty" observation and
// this call is never lost. Returns false (and does not change state) if
// work turned up in the meantime, telling the caller to loop again
// instead of parking.
func (c *CPU) BecomeIdle(hasWork func() bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hasWork() {
		return false
	}
	c.state = StateAcquiredIdle
	stats.Record(context.Background(), metrics.WorkerIdleCycles.M(1))
	for c.state == StateAcquiredIdle {
		c.cond.Wait()
	}
	return true
}

// Resume wakes a parked CPU, transitioning acquired_idle →
// acquired_running. A no-op if the CPU isn't currently idle (e.g. it
// raced ahead on its own).
func (c *CPU) Resume() {
	c.mu.Lock()
	if c.state == StateAcquiredIdle {
		c.state = StateAcquiredRunning
	}
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Shutdown transitions any state → shutting_down and wakes the CPU if
// parked, so the pool loop observes shutdown instead of blocking
// forever on an idle wait.
func (c *CPU) Shutdown() {
	c.mu.Lock()
	c.state = StateShuttingDown
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *CPU) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *CPU) Terminate() {
	c.mu.Lock()
	c.state = StateTerminated
	c.mu.Unlock()
}

// Block marks the CPU's current task as blocked (explicit
// block_current_task, §4.3), releasing the CPU to run other ready work.
// The blocked flag is bookkeeping only; the pool loop is responsible
// for actually moving on to another task once Block returns.
func (c *CPU) Block() {
	c.mu.Lock()
	c.blocked = true
	c.mu.Unlock()
}

func (c *CPU) Unblock() {
	c.mu.Lock()
	c.blocked = false
	c.mu.Unlock()
}

// blockedTask pairs a blocked task with the CPU it was running on when
// it called block_current_task, so Pool.Unblock knows which CPU to
// resume if that CPU has since gone idle waiting on the block to clear.
type blockedTask struct {
	t   *task.Task
	cpu *CPU
}
