package depend

import (
	"sort"

	"github.com/corert/corert/internal/task"
)

// reductionState is the scope-local bookkeeping for one reduction
// "phase" over an exact region: a synthetic combiner access sits in the
// region chain where a normal access would, gating whatever registers
// after the reduction; any number of contributor tasks register
// concurrently against the same combiner without serializing against
// each other, each claiming its own slot per §4.1 "Reductions".
//
// This engine supports reduction phases whose contributors all declare
// the exact same region (the common case, and the one spec.md's
// concrete scenario 3 exercises: "100 tasks each with REDUCTION(+, x)").
// A reduction split across partially-overlapping regions degrades to
// ordinary fragmentation instead of combining, a documented limitation
// (see DESIGN.md).
type reductionState struct {
	info     *task.ReductionInfo
	combiner *task.DataAccess
	pending  int64
}

// registerReductionContributor is fragmentAndLink's Reduction-typed
// branch. Must be called with s.mu held.
func (s *scope) registerReductionContributor(region task.Region, weak bool, owner *task.Task) *task.DataAccess {
	rs, ok := s.reductions[region]
	if !ok {
		combiner := task.NewDataAccess(region, task.Reduction, false)
		combiner.Owner = owner

		s.linkCombinerIntoChain(region, combiner)

		rs = &reductionState{
			info:     &task.ReductionInfo{Operator: task.ReduceSum},
			combiner: combiner,
		}
		s.reductions[region] = rs
	}

	contributor := task.NewDataAccess(region, task.Reduction, weak)
	contributor.Owner = owner
	contributor.Reduction = rs.info
	contributor.ReductionIdx = rs.info.AllocateSlot()
	rs.pending++

	return contributor
}

// linkCombinerIntoChain splices combiner into the segment list at
// region exactly as a normal access would, without creating any of the
// per-contributor fan-out fragmentAndLink otherwise does — reductions
// only need one chain node for the whole phase.
func (s *scope) linkCombinerIntoChain(region task.Region, combiner *task.DataAccess) {
	// Reuse the generic splitter by treating this as registering a
	// single access of type Reduction over an exact region: since
	// reductions in this engine require exact-region contributors, the
	// only splitting that can occur here is against non-reduction
	// neighbors, which fragmentAndLink's general path already handles
	// correctly for any other access type. We inline the minimal
	// version needed for a single already-known-exact region.
	i := sort.Search(len(s.segments), func(i int) bool {
		return s.segments[i].region.End() > region.Start
	})

	var rebuilt []segment
	rebuilt = append(rebuilt, s.segments[:i]...)

	cursor := region.Start
	end := region.End()

	for ; i < len(s.segments); i++ {
		seg := s.segments[i]
		if seg.region.Start >= end {
			break
		}
		if seg.region.Start > cursor {
			gap := task.Region{Start: cursor, Size: seg.region.Start - cursor}
			markInitiallySatisfied(combiner)
			rebuilt = append(rebuilt, segment{region: gap, last: combiner})
			cursor = seg.region.Start
		}

		overlap, ok := seg.region.Intersect(region)
		if !ok {
			rebuilt = append(rebuilt, seg)
			continue
		}
		if seg.region.Start < overlap.Start {
			rebuilt = append(rebuilt, segment{
				region: task.Region{Start: seg.region.Start, Size: overlap.Start - seg.region.Start},
				last:   seg.last,
			})
		}
		linkPredecessor(seg.last, combiner)
		rebuilt = append(rebuilt, segment{region: overlap, last: combiner})
		if seg.region.End() > overlap.End() {
			rebuilt = append(rebuilt, segment{
				region: task.Region{Start: overlap.End(), Size: seg.region.End() - overlap.End()},
				last:   seg.last,
			})
		}
		cursor = overlap.End()
	}

	if cursor < end {
		markInitiallySatisfied(combiner)
		rebuilt = append(rebuilt, segment{region: task.Region{Start: cursor, Size: end - cursor}, last: combiner})
	}

	rebuilt = append(rebuilt, s.segments[i:]...)
	s.segments = rebuilt
}

// completeReductionContributor is called from UnregisterAccesses for
// every fragment of Reduction type. It releases the contributor's slot
// and, once every contributor of the phase has completed, marks the
// combiner satisfied and forwards it to whatever registered after the
// reduction — the "combine step runs exactly once" guarantee from
// spec.md scenario 3.
func (e *Engine) completeReductionContributor(frag *task.DataAccess, cdd *CPUDependencyData) {
	s := e.scopeFor(frag.Owner.Parent)
	s.mu.Lock()
	rs, ok := s.reductions[frag.Region]
	if !ok {
		s.mu.Unlock()
		return
	}
	rs.info.ReleaseSlot(frag.ReductionIdx)
	rs.pending--
	done := rs.pending == 0
	if done {
		delete(s.reductions, frag.Region)
	}
	s.mu.Unlock()

	if !done {
		return
	}

	rs.combiner.SetComplete()
	rs.combiner.SetUnregistered()
	if rs.combiner.Successor != nil {
		cdd.DelayedOperations = append(cdd.DelayedOperations, UpdateOperation{
			Target:             rs.combiner.Successor,
			MakeReadSatisfied:  true,
			MakeWriteSatisfied: true,
		})
	}
}
