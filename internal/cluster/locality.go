package cluster

import "github.com/corert/corert/internal/task"

// DSMMembership adapts a DSM implementation's per-address contract to
// internal/sched.ClusterMembership's per-region one, satisfying it
// structurally so internal/sched never needs to import this package.
type DSMMembership struct {
	DSM DSM
}

// IsDSMAddress reports whether every byte of region falls inside the
// DSM's address space; checking both endpoints is sufficient because
// the DSM address space is contiguous by construction (§6: "is_dsm_address(addr)").
func (m DSMMembership) IsDSMAddress(region task.Region) bool {
	if region.Empty() {
		return true
	}
	return m.DSM.IsDSMAddress(region.Start) && m.DSM.IsDSMAddress(region.End()-1)
}

// DSMHomeNodeResolver adapts DSM.HomeNodeOf to internal/sched's
// per-region HomeNodeResolver, used as the fallback when
// internal/numa's own directory has no entry yet — the DSM's own
// first-touch bookkeeping is authoritative until this repo's directory
// catches up via SetHomeNode.
type DSMHomeNodeResolver struct {
	DSM DSM
}

func (r DSMHomeNodeResolver) HomeNodeOf(region task.Region) int {
	return r.DSM.HomeNodeOf(region.Start)
}

// layeredResolver checks a primary resolver (e.g. internal/numa's
// directory) before falling back to the DSM's own bookkeeping.
type layeredResolver struct {
	primary  interface{ HomeNodeOf(task.Region) int }
	fallback interface{ HomeNodeOf(task.Region) int }
}

// NewLayeredResolver combines primary and fallback into a single
// HomeNodeResolver: primary wins whenever it has an answer other than
// -1, otherwise fallback is consulted.
func NewLayeredResolver(primary, fallback interface{ HomeNodeOf(task.Region) int }) interface{ HomeNodeOf(task.Region) int } {
	return layeredResolver{primary: primary, fallback: fallback}
}

func (l layeredResolver) HomeNodeOf(region task.Region) int {
	if n := l.primary.HomeNodeOf(region); n >= 0 {
		return n
	}
	return l.fallback.HomeNodeOf(region)
}
