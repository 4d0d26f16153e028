// Package workflow implements the per-task execution step DAG from the
// design's §4.4: start → data-link → data-fetch → execute → release.
// Offloaded tasks use the same steps; their body performs the offload.
// It is grounded on lotus's SchedWindow/Todo step-list shape
// generalized from "a batch of seal-task requests assigned to one
// worker's window" to "the ordered steps one task passes through before
// its body runs."
package workflow

import (
	"context"
	"sync"

	"github.com/corert/corert/internal/rtlog"
)

var log = rtlog.Named("workflow")

// stepState is the explicit lifecycle §9's redesign flag requires in
// place of "callbacks captured by raw pointer to `this` followed by
// self-delete": live while the step may still run or be waited on,
// releasing while release_successors is in progress, done once its
// successor list has been fully released and it will never be touched
// again.
type stepState uint8

const (
	stepLive stepState = iota
	stepReleasing
	stepDone
)

// Step is one node in a task's execution step DAG.
type Step interface {
	// run executes the step's work. It is only ever called once, after
	// every predecessor has released it (predecessor count reached
	// zero).
	run(ctx context.Context)
}

// arrivable is anything that can sit downstream of a node in the step
// DAG: the generic node, and executeNode, which needs its own arrival
// bookkeeping because it may be deferred and retried from outside the
// normal release path (§4.4).
type arrivable interface {
	arrive(ctx context.Context)
	addPredecessor()
}

// node wraps a Step with the successor bookkeeping and state machine
// common to every step kind, so concrete Step implementations only need
// to implement run.
type node struct {
	step Step
	name string

	mu    sync.Mutex
	state stepState

	remainingPredecessors int32
	successors            []arrivable

	once sync.Once
}

func newNode(step Step, name string) *node {
	return &node{step: step, name: name}
}

// addPredecessor records one more incoming edge onto n, called by a
// predecessor's addSuccessor before either node starts running.
func (n *node) addPredecessor() {
	n.mu.Lock()
	n.remainingPredecessors++
	n.mu.Unlock()
}

// addSuccessor records succ as depending on n, incrementing succ's
// predecessor count. Must be called before either node starts running.
func (n *node) addSuccessor(succ arrivable) {
	n.mu.Lock()
	n.successors = append(n.successors, succ)
	n.mu.Unlock()

	succ.addPredecessor()
}

// start runs an entry node with no wired predecessors directly, then
// releases its successors.
func (n *node) start(ctx context.Context) {
	n.once.Do(func() {
		n.step.run(ctx)
		n.releaseSuccessors(ctx)
	})
}

// arrive decrements the predecessor count by one; when it reaches zero,
// runs the step then releases successors. Called by a predecessor's
// release_successors.
func (n *node) arrive(ctx context.Context) {
	n.mu.Lock()
	n.remainingPredecessors--
	ready := n.remainingPredecessors == 0
	n.mu.Unlock()

	if !ready {
		return
	}

	n.once.Do(func() {
		n.step.run(ctx)
		n.releaseSuccessors(ctx)
	})
}

// releaseSuccessors implements §4.4's "calls release_successors which
// decrements each successor's predecessor-count atomically; reaching
// zero starts the successor," and then transitions this node
// releasing → done once every successor has been notified — the
// self-destruct condition, expressed as a state transition rather than
// a raw-pointer self-delete.
func (n *node) releaseSuccessors(ctx context.Context) {
	n.mu.Lock()
	n.state = stepReleasing
	succs := n.successors
	n.successors = nil
	n.mu.Unlock()

	for _, s := range succs {
		s.arrive(ctx)
	}

	n.mu.Lock()
	n.state = stepDone
	n.mu.Unlock()
}

func (n *node) isDone() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state == stepDone
}
