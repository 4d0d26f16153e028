// Package cluster implements the optional multi-node offload layer from
// the design's §4.6, §6: a pluggable Messenger transport, a DSM
// (distributed shared memory) home-node contract, a closed wire message
// sum type, the offload protocol, and the node-namespace task. Only the
// interfaces to Messenger/DSM are this repo's concern — concrete
// transports and the DSM implementation itself are external
// collaborators, per §1's non-goals.
package cluster

import (
	"context"

	"github.com/corert/corert/internal/rtlog"
	"github.com/corert/corert/internal/task"
)

var log = rtlog.Named("cluster")

// PendingTransfer is the optional handle a Messenger implementation may
// return from SendData/FetchData so the caller can poll or attach a
// completion callback instead of blocking, per §6's messenger contract.
type PendingTransfer interface {
	// Done reports whether the transfer has completed.
	Done() bool
	// Region is the memory range this transfer covers, used by the
	// data-fetch step to detect "an in-flight transfer already fully
	// contains this region."
	Region() task.Region
	// OnComplete registers a callback invoked exactly once when the
	// transfer finishes; if it has already finished, cb runs inline.
	OnComplete(cb func())
}

// Messenger is the wire transport the core consumes; §1 explicitly
// scopes the transport itself out — this repo owns only the interface
// and the message types sent across it.
type Messenger interface {
	SendMessage(ctx context.Context, msg Message, target int, blocking bool) error
	SendData(ctx context.Context, region task.Region, target int, messageID MessageID, blocking bool) (PendingTransfer, error)
	FetchData(ctx context.Context, region task.Region, source int, messageID MessageID, blocking bool) (PendingTransfer, error)
	CheckMail(ctx context.Context) (Message, bool, error)
	Barrier(ctx context.Context) error
	TestCompletion(pending []PendingTransfer) []PendingTransfer // returns the still-pending subset
}

// DSM is the distributed-shared-memory contract the core consumes for
// locality decisions and region acquisition; §1 scopes the DSM
// implementation itself out.
type DSM interface {
	IsDSMAddress(addr uintptr) bool
	HomeNodeOf(addr uintptr) int // -1 if not first-touched yet
	BlockSize() uintptr
	Acquire(ctx context.Context) error
	SelectiveAcquire(ctx context.Context, addr uintptr, size uintptr) error
	Release(ctx context.Context) error
}
