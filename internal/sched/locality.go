package sched

import (
	"sync"

	"github.com/corert/corert/internal/task"
)

// HomeNodeResolver is the narrow slice of the NUMA directory contract
// (§6 DSM interface's home_node_of, backed by internal/numa) that the
// locality policy needs: given a region, which node last touched it, or
// -1 if nobody has ("not first-touched yet").
type HomeNodeResolver interface {
	HomeNodeOf(region task.Region) int
}

// ClusterMembership answers whether a region lives in the distributed
// shared-memory space at all; a task with any access outside that space
// is pinned local regardless of byte distribution (§4.2: "If any access
// references non-cluster memory, the task is not offloadable").
type ClusterMembership interface {
	IsDSMAddress(region task.Region) bool
}

// LocalityAssigner implements §4.2's cluster locality policy: "compute
// per-node bytes touched across accesses ... the node with the greatest
// touched-byte count wins; ties broken by round-robin ... If the
// first-touch deficit exceeds a tunable multiple of the max, a
// round-robin node is picked."
type LocalityAssigner struct {
	numa    HomeNodeResolver
	dsm     ClusterMembership
	nodeIDs []int

	firstTouchDeficitRatio float64

	rrMu   sync.Mutex
	rrNext int
}

func NewLocalityAssigner(numa HomeNodeResolver, dsm ClusterMembership, nodeIDs []int, firstTouchDeficitRatio float64) *LocalityAssigner {
	if firstTouchDeficitRatio <= 0 {
		firstTouchDeficitRatio = 2.0
	}
	return &LocalityAssigner{
		numa:                   numa,
		dsm:                    dsm,
		nodeIDs:                nodeIDs,
		firstTouchDeficitRatio: firstTouchDeficitRatio,
	}
}

func (a *LocalityAssigner) AssignDevice(t *task.Task) Device {
	if len(a.nodeIDs) == 0 {
		return Device{Kind: DeviceHost}
	}

	bytesByNode := make(map[int]uint64, len(a.nodeIDs))
	var firstTouchDeficit uint64

	for _, acc := range t.Accesses {
		if !a.dsm.IsDSMAddress(acc.Region) {
			// Non-cluster memory anywhere in the access set pins the
			// task locally.
			return Device{Kind: DeviceHost}
		}
		node := a.numa.HomeNodeOf(acc.Region)
		if node < 0 {
			firstTouchDeficit += uint64(acc.Region.Size)
			continue
		}
		bytesByNode[node] += uint64(acc.Region.Size)
	}

	var maxNode = -1
	var maxBytes uint64
	for _, n := range a.nodeIDs {
		b := bytesByNode[n]
		if b > maxBytes || (b == maxBytes && b > 0 && maxNode == -1) {
			maxBytes = b
			maxNode = n
		}
	}

	if maxNode == -1 {
		// Nothing has a home yet; balance first-touch cost round-robin.
		return Device{Kind: DeviceCluster, NodeID: a.nextRoundRobin()}
	}

	if float64(firstTouchDeficit) > a.firstTouchDeficitRatio*float64(maxBytes) {
		return Device{Kind: DeviceCluster, NodeID: a.nextRoundRobin()}
	}

	// Tie check: if another node matches maxBytes exactly, break with
	// round-robin instead of always favoring the lowest node id (§4.2:
	// "ties broken by round-robin to avoid hot-spotting node 0").
	var tie bool
	for _, n := range a.nodeIDs {
		if n != maxNode && bytesByNode[n] == maxBytes {
			tie = true
			break
		}
	}
	if tie {
		return Device{Kind: DeviceCluster, NodeID: a.nextRoundRobin()}
	}

	return Device{Kind: DeviceCluster, NodeID: maxNode}
}

func (a *LocalityAssigner) nextRoundRobin() int {
	a.rrMu.Lock()
	defer a.rrMu.Unlock()
	n := a.nodeIDs[a.rrNext%len(a.nodeIDs)]
	a.rrNext++
	return n
}
