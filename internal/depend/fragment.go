package depend

import (
	"sort"
	"sync"

	"github.com/corert/corert/internal/rterrors"
	"github.com/corert/corert/internal/task"
)

// segment is one non-overlapping sub-range of a scope's address space
// that has been touched by at least one registered access. last is the
// most recently registered fragment covering exactly this sub-range;
// new registrations that overlap it become last's successor and inherit
// whatever satisfiability last has already propagated.
//
// This is the arena-of-handles the design's redesign notes call for in
// place of an intrusive linked list: segments live in a single scope's
// slice, addressed by position, and never point directly into another
// scope's memory.
type segment struct {
	region task.Region
	last   *task.DataAccess
}

// scope holds one parent task's region chain: the ordered, non-
// overlapping set of segments sibling accesses have touched so far.
type scope struct {
	mu           sync.Mutex
	segments     []segment // sorted by region.Start, non-overlapping
	reductions   map[task.Region]*reductionState
	taskwaitSink *task.DataAccess
}

func newScope() *scope {
	return &scope{reductions: make(map[task.Region]*reductionState)}
}

// fragmentAndLink registers da (a caller-declared access, not yet
// linked into any chain) for owner, splitting any overlapping segments
// so that afterward every segment exactly covering part of da.Region
// points at a newly created fragment, and returns the list of fragments
// created to cover it. Must be called with s.mu held.
//
// Coverage is never dropped: gaps in the existing segment list (regions
// nobody in this scope has touched yet) become brand-new fragments with
// no predecessor. Ordinarily these are immediately satisfied —
// inheriting the "top of scope" state, since this simplified two-level
// engine does not walk further up the parent chain than the immediate
// scope (see DESIGN.md). The one exception is a remote-origin access
// (task.NewRemoteDataAccess): its externally-seeded flags came from the
// offloader's own dependency state and are copied onto the gap fragment
// as-is instead of being blanket-satisfied, since "nobody in this scope
// has touched this region" says nothing about the state of the node
// that actually owns it.
func (s *scope) fragmentAndLink(da *task.DataAccess, owner *task.Task) []*task.DataAccess {
	region, typ, weak := da.Region, da.Type, da.Weak

	seedFresh := markInitiallySatisfied
	if da.ExternallySeeded() {
		seedFresh = func(f *task.DataAccess) { copySatisfiedFlags(da, f) }
	}

	if typ == task.Reduction {
		return []*task.DataAccess{s.registerReductionContributor(region, weak, owner)}
	}

	if region.Empty() {
		f := task.NewDataAccess(region, typ, weak)
		f.Owner = owner
		seedFresh(f)
		return []*task.DataAccess{f}
	}

	var created []*task.DataAccess
	var rebuilt []segment

	cursor := region.Start
	end := region.End()

	insertGap := func(gapStart, gapEnd uintptr) {
		if gapStart >= gapEnd {
			return
		}
		f := task.NewDataAccess(task.Region{Start: gapStart, Size: gapEnd - gapStart}, typ, weak)
		f.Owner = owner
		seedFresh(f)
		created = append(created, f)
		rebuilt = append(rebuilt, segment{region: f.Region, last: f})
	}

	i := sort.Search(len(s.segments), func(i int) bool {
		return s.segments[i].region.End() > region.Start
	})

	// Segments strictly before the touched range are untouched by this
	// registration and pass through unchanged.
	rebuilt = append(rebuilt, s.segments[:i]...)

	for ; i < len(s.segments); i++ {
		seg := s.segments[i]
		if seg.region.Start >= end {
			break
		}

		if seg.region.Start > cursor {
			insertGap(cursor, seg.region.Start)
			cursor = seg.region.Start
		}

		overlap, ok := seg.region.Intersect(region)
		if !ok {
			rebuilt = append(rebuilt, seg)
			continue
		}

		// Left remainder of seg, outside the new region: unaffected.
		if seg.region.Start < overlap.Start {
			rebuilt = append(rebuilt, segment{
				region: task.Region{Start: seg.region.Start, Size: overlap.Start - seg.region.Start},
				last:   seg.last,
			})
		}

		f := task.NewDataAccess(overlap, typ, weak)
		f.Owner = owner
		linkPredecessor(seg.last, f)
		created = append(created, f)
		rebuilt = append(rebuilt, segment{region: overlap, last: f})

		// Right remainder of seg, outside the new region: unaffected,
		// still owned by the old predecessor.
		if seg.region.End() > overlap.End() {
			rebuilt = append(rebuilt, segment{
				region: task.Region{Start: overlap.End(), Size: seg.region.End() - overlap.End()},
				last:   seg.last,
			})
		}

		cursor = overlap.End()
	}

	if cursor < end {
		insertGap(cursor, end)
	}

	rebuilt = append(rebuilt, s.segments[i:]...)
	s.segments = rebuilt

	if rterrors.DebugChecksEnabled() {
		checkSegmentsWellFormed(s.segments)
	}

	return created
}

// copySatisfiedFlags copies src's own satisfiability flags onto dst
// verbatim, used to seed a remote-origin access's fresh fragment from
// the state its declared access already carries (see fragmentAndLink).
func copySatisfiedFlags(src, dst *task.DataAccess) {
	if src.ReadSatisfied() {
		dst.SetReadSatisfied()
	}
	if src.WriteSatisfied() {
		dst.SetWriteSatisfied()
	}
	if src.ConcurrentSatisfied() {
		dst.SetConcurrentSatisfied()
	}
	if src.CommutativeSatisfied() {
		dst.SetCommutativeSatisfied()
	}
}

// checkSegmentsWellFormed is the §9 debug-mode region-coverage check:
// after any fragmentation, a scope's segments must remain sorted and
// non-overlapping, so no byte of address space is ever silently double-
// covered or dropped by a split.
func checkSegmentsWellFormed(segs []segment) {
	for i := 1; i < len(segs); i++ {
		rterrors.CheckInvariant("depend", segs[i-1].region.End() <= segs[i].region.Start,
			"scope segments overlap or are out of order after fragmentation")
	}
}

// linkPredecessor wires pred as the chain predecessor of next: pred
// gains a successor edge, and next starts out unsatisfied, waiting for
// pred's owning task to actually finish and forward satisfiability
// through the normal UnregisterAccesses -> propagate/forward path.
//
// The one exception is a pred that has already completed by the time
// next registers: UnregisterAccesses ran while pred.Successor was still
// nil, so forward() had nobody to deliver to and dropped the operation
// on the floor. next would otherwise wait forever for a completion
// event that already happened, so it is seeded directly with whatever
// completionOperation(pred) would have conferred.
func linkPredecessor(pred, next *task.DataAccess) {
	pred.Successor = next
	pred.SetHasNext()

	if !pred.Complete() {
		return
	}

	op := completionOperation(pred)
	if op.MakeReadSatisfied {
		next.SetReadSatisfied()
	}
	if op.MakeWriteSatisfied {
		next.SetWriteSatisfied()
	}
	if op.MakeConcurrentSatisfied {
		next.SetConcurrentSatisfied()
	}
	if op.MakeCommutativeSatisfied {
		next.SetCommutativeSatisfied()
	}
}

// markInitiallySatisfied sets the flags a fresh, predecessor-less
// fragment starts with: nothing constrains it, so it is immediately
// satisfied for whatever its type requires.
func markInitiallySatisfied(f *task.DataAccess) {
	f.SetReadSatisfied()
	f.SetWriteSatisfied()
	f.SetConcurrentSatisfied()
	f.SetCommutativeSatisfied()
}
