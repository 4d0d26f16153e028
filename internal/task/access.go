package task

import (
	"sync"
	"sync/atomic"
)

// AccessType is the kind of memory-region access a task declares, per §3
// of the design ("DataAccess ... access type (one of IN, OUT, INOUT,
// CONCURRENT, COMMUTATIVE, REDUCTION, NO_ACCESS)").
type AccessType uint8

const (
	NoAccess AccessType = iota
	In
	Out
	InOut
	Concurrent
	Commutative
	Reduction
)

func (t AccessType) String() string {
	switch t {
	case In:
		return "IN"
	case Out:
		return "OUT"
	case InOut:
		return "INOUT"
	case Concurrent:
		return "CONCURRENT"
	case Commutative:
		return "COMMUTATIVE"
	case Reduction:
		return "REDUCTION"
	default:
		return "NO_ACCESS"
	}
}

// RequiresRead reports whether this access type must observe
// read_satisfied before the task may begin using the region.
func (t AccessType) RequiresRead() bool {
	switch t {
	case In, InOut:
		return true
	default:
		return false
	}
}

// RequiresWrite reports whether this access type must observe
// write_satisfied before the task may begin using the region.
func (t AccessType) RequiresWrite() bool {
	switch t {
	case Out, InOut:
		return true
	default:
		return false
	}
}

// Region is a half-open memory range [Start, Start+Size).
type Region struct {
	Start uintptr
	Size  uintptr
}

// End returns the exclusive end address of the region.
func (r Region) End() uintptr { return r.Start + r.Size }

// Empty reports whether the region covers zero bytes.
func (r Region) Empty() bool { return r.Size == 0 }

// Intersect returns the overlapping sub-region of r and o, and whether
// they overlap at all.
func (r Region) Intersect(o Region) (Region, bool) {
	start := r.Start
	if o.Start > start {
		start = o.Start
	}
	end := r.End()
	if o.End() < end {
		end = o.End()
	}
	if start >= end {
		return Region{}, false
	}
	return Region{Start: start, Size: end - start}, true
}

// Contains reports whether r fully contains o.
func (r Region) Contains(o Region) bool {
	return o.Start >= r.Start && o.End() <= r.End()
}

// SatFlag is the atomic bitfield backing a DataAccess's satisfiability
// state, per §3 ("Atomic bitfield of satisfiability flags: read_satisfied,
// write_satisfied, concurrent_satisfied, commutative_satisfied, complete,
// unregistered, has_next, is_weak").
type SatFlag uint32

const (
	FlagReadSatisfied SatFlag = 1 << iota
	FlagWriteSatisfied
	FlagConcurrentSatisfied
	FlagCommutativeSatisfied
	FlagComplete
	FlagUnregistered
	FlagHasNext
	FlagIsWeak

	// FlagExternallySeeded marks a declared access whose initial
	// satisfiability flags did not come from local first-touch
	// semantics but from an external authority (a cluster offloader's
	// TaskNewMessage, per §4.6 step 2). The dependency engine's
	// fragmentAndLink honors these flags verbatim instead of assuming
	// "untouched region" means "immediately satisfied."
	FlagExternallySeeded
)

// MemoryPlace identifies the current owner of a region's latest value.
// The concrete node/device topology is an external collaborator (§1);
// this type is only the handle the dependency engine and workflow steps
// pass around.
type MemoryPlace struct {
	NodeID int
	Label  string
}

// ReductionInfo coordinates per-thread reduction slots for a single
// reduced region, per §4.1 "Reductions".
type ReductionInfo struct {
	Operator ReductionOp
	Index    int

	mu        atomicBitmap
	slotBytes int
}

// ReductionOp identifies the combining operator for a reduction access.
type ReductionOp uint8

const (
	ReduceSum ReductionOp = iota
	ReduceProd
	ReduceMax
	ReduceMin
)

// AllocateSlot claims the first free slot in the reduction's bitmap,
// growing it if every existing slot is taken. It returns the claimed
// slot index.
func (r *ReductionInfo) AllocateSlot() int {
	return r.mu.allocate()
}

// ReleaseSlot returns a slot to the free pool once its contribution has
// been combined.
func (r *ReductionInfo) ReleaseSlot(slot int) {
	r.mu.release(slot)
}

// DataAccess is a single declared use of a memory region by a task.
// Fields mutated concurrently by the dependency engine's propagation
// path are behind the atomic satFlags bitfield; everything else is set
// once at registration time and is safe to read without synchronization
// after that point, matching the discipline in §5 ("per-task access-set
// lock protects the access map during registration/unregistration;
// never held across scheduler calls").
type DataAccess struct {
	Region Region
	Type   AccessType
	Weak   bool

	// Owner is the task this fragment belongs to. Set by the dependency
	// engine when it produces the fragment; used to notify the owner's
	// predecessor counter when the fragment becomes satisfied.
	Owner *Task

	flags SatFlag

	// Successor is the next access in the chain for the same region,
	// set by the dependency engine at registration time (§3 "Successor
	// link (next access in the chain for the same region)"). It is a
	// plain pointer here; the arena/handle indirection required by the
	// design's redesign flag against intrusive linked lists lives in
	// the dependency engine's per-scope segment list (internal/depend's
	// scope.segments), which is the structure that actually walks and
	// mutates chains across
	// tasks. This field is the read-only edge a completed access uses
	// to know who to notify.
	Successor *DataAccess

	// Child is set when this access was itself produced by fragmenting
	// a parent scope's access into sub-regions for a nested task.
	Child *DataAccess

	Reduction    *ReductionInfo
	ReductionIdx int // slot claimed within Reduction, valid once ReductionInfo != nil and slot allocated

	Location *MemoryPlace
	WriteID  uint64

	// propagatedKinds tracks which satisfiability kinds propagate() has
	// already applied to this access, resolving the double-count/double-
	// free open question in §9: propagate() is idempotent per kind.
	propagatedKinds SatFlag
}

// NewDataAccess constructs an access record in its initial, unsatisfied
// state.
func NewDataAccess(region Region, typ AccessType, weak bool) *DataAccess {
	da := &DataAccess{Region: region, Type: typ, Weak: weak}
	if weak {
		da.setFlag(FlagIsWeak)
	}
	return da
}

// NewRemoteDataAccess constructs a declared access for a namespace
// task's local wrapper, seeded with the satisfiability an offloader
// already granted (§4.6 step 2's "satisfiability info (initial
// per-access)") instead of the local-first-touch default. The
// dependency engine's fragmentAndLink sees FlagExternallySeeded and
// copies these flags onto the resulting fragment rather than marking it
// satisfied outright.
func NewRemoteDataAccess(region Region, typ AccessType, weak, read, write, concurrent, commutative bool) *DataAccess {
	da := NewDataAccess(region, typ, weak)
	da.setFlag(FlagExternallySeeded)
	if read {
		da.SetReadSatisfied()
	}
	if write {
		da.SetWriteSatisfied()
	}
	if concurrent {
		da.SetConcurrentSatisfied()
	}
	if commutative {
		da.SetCommutativeSatisfied()
	}
	return da
}

func (d *DataAccess) setFlag(f SatFlag) {
	for {
		old := atomic.LoadUint32((*uint32)(&d.flags))
		next := old | uint32(f)
		if atomic.CompareAndSwapUint32((*uint32)(&d.flags), old, next) {
			return
		}
	}
}

func (d *DataAccess) clearFlag(f SatFlag) {
	for {
		old := atomic.LoadUint32((*uint32)(&d.flags))
		next := old &^ uint32(f)
		if atomic.CompareAndSwapUint32((*uint32)(&d.flags), old, next) {
			return
		}
	}
}

func (d *DataAccess) hasFlag(f SatFlag) bool {
	return atomic.LoadUint32((*uint32)(&d.flags))&uint32(f) != 0
}

// SetReadSatisfied is monotonic: once true it is never cleared, per §4.6
// "Satisfiability for a region is monotonic".
func (d *DataAccess) SetReadSatisfied()  { d.setFlag(FlagReadSatisfied) }
func (d *DataAccess) SetWriteSatisfied() { d.setFlag(FlagWriteSatisfied) }
func (d *DataAccess) SetConcurrentSatisfied() {
	d.setFlag(FlagConcurrentSatisfied)
}
func (d *DataAccess) SetCommutativeSatisfied() {
	d.setFlag(FlagCommutativeSatisfied)
}
func (d *DataAccess) SetComplete()     { d.setFlag(FlagComplete) }
func (d *DataAccess) SetUnregistered() { d.setFlag(FlagUnregistered) }
func (d *DataAccess) SetHasNext()      { d.setFlag(FlagHasNext) }

func (d *DataAccess) ReadSatisfied() bool        { return d.hasFlag(FlagReadSatisfied) }
func (d *DataAccess) WriteSatisfied() bool       { return d.hasFlag(FlagWriteSatisfied) }
func (d *DataAccess) ConcurrentSatisfied() bool  { return d.hasFlag(FlagConcurrentSatisfied) }
func (d *DataAccess) CommutativeSatisfied() bool { return d.hasFlag(FlagCommutativeSatisfied) }
func (d *DataAccess) Complete() bool             { return d.hasFlag(FlagComplete) }
func (d *DataAccess) Unregistered() bool         { return d.hasFlag(FlagUnregistered) }
func (d *DataAccess) HasNext() bool              { return d.hasFlag(FlagHasNext) }
func (d *DataAccess) IsWeak() bool               { return d.hasFlag(FlagIsWeak) }
func (d *DataAccess) ExternallySeeded() bool     { return d.hasFlag(FlagExternallySeeded) }

// Satisfied reports whether this access is satisfied to the degree its
// type demands: IN needs read, OUT/INOUT need read+write, CONCURRENT and
// COMMUTATIVE need their own matching flag. Weak accesses never block
// readiness themselves (§4.1 "Weak accesses never block the task's
// readiness").
func (d *DataAccess) Satisfied() bool {
	if d.IsWeak() {
		return true
	}
	switch d.Type {
	case In:
		return d.ReadSatisfied()
	case Out, InOut:
		return d.ReadSatisfied() && d.WriteSatisfied()
	case Concurrent:
		return d.ConcurrentSatisfied()
	case Commutative:
		return d.CommutativeSatisfied()
	case Reduction:
		// A reduction access only needs a free slot, granted eagerly by
		// the reduction combiner; it never blocks on read/write.
		return true
	default:
		return true
	}
}

// AlreadyPropagated reports whether kind has already been applied to
// this access, and records it as applied as a side effect. Used by the
// dependency engine's propagate() to make repeated satisfiability
// deliveries idempotent (§9 open question fix).
func (d *DataAccess) AlreadyPropagated(kind SatFlag) bool {
	for {
		old := atomic.LoadUint32((*uint32)(&d.propagatedKinds))
		if old&uint32(kind) != 0 {
			return true
		}
		next := old | uint32(kind)
		if atomic.CompareAndSwapUint32((*uint32)(&d.propagatedKinds), old, next) {
			return false
		}
	}
}

// atomicBitmap is a small mutex-guarded free-slot bitmap used by
// ReductionInfo. Reduction slot counts are small (bounded by worker
// count) so a slice-backed bitmap with a mutex is simpler and just as
// correct as a lock-free structure here.
type atomicBitmap struct {
	mu   sync.Mutex
	free []bool
}

func (b *atomicBitmap) allocate() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, f := range b.free {
		if f {
			b.free[i] = false
			return i
		}
	}
	b.free = append(b.free, false)
	return len(b.free) - 1
}

func (b *atomicBitmap) release(slot int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slot >= 0 && slot < len(b.free) {
		b.free[slot] = true
	}
}
