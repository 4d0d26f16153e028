package depend

import "github.com/corert/corert/internal/task"

// propagate applies op to op.Target, following the per-access-type
// automaton sketched in §4.1 ("Satisfiability state machine"). Each
// satisfiability kind is applied at most once per access — repeated
// delivery of the same kind (the §9 double-count open question) is a
// no-op thanks to DataAccess.AlreadyPropagated — and, once applied,
// either unblocks the owning task (added to cdd.SatisfiedOriginators)
// or, for a weak access, is forwarded transparently to the successor
// regardless of the owning task's own readiness.
func (e *Engine) propagate(op UpdateOperation, cdd *CPUDependencyData) {
	frag := op.Target
	if frag == nil || op.Empty() {
		return
	}

	if op.Location != nil {
		frag.Location = op.Location
	}
	if op.WriteID != 0 {
		frag.WriteID = op.WriteID
	}
	if op.SetReductionInfo {
		frag.Reduction = op.ReductionInfo
	}

	var changed bool
	if op.MakeReadSatisfied && !frag.AlreadyPropagated(task.FlagReadSatisfied) {
		frag.SetReadSatisfied()
		changed = true
	}
	if op.MakeWriteSatisfied && !frag.AlreadyPropagated(task.FlagWriteSatisfied) {
		frag.SetWriteSatisfied()
		changed = true
	}
	if op.MakeConcurrentSatisfied && !frag.AlreadyPropagated(task.FlagConcurrentSatisfied) {
		frag.SetConcurrentSatisfied()
		changed = true
	}
	if op.MakeCommutativeSatisfied && !frag.AlreadyPropagated(task.FlagCommutativeSatisfied) {
		frag.SetCommutativeSatisfied()
		changed = true
	}

	if !changed {
		return
	}

	log.Debugw("propagate", "task", ownerLabel(frag), "region", frag.Region, "weak", frag.IsWeak())

	if frag.IsWeak() {
		// Weak accesses never gate their own task; forward transparently.
		e.forward(frag, op, cdd)
		return
	}

	if frag.Satisfied() {
		owner := frag.Owner
		if owner != nil && owner.SatisfyPredecessor() {
			if frag.Type == task.Commutative {
				cdd.SatisfiedCommutativeOriginators = append(cdd.SatisfiedCommutativeOriginators, TaskAndRegion{Task: owner, Region: frag.Region})
			} else {
				cdd.SatisfiedOriginators = append(cdd.SatisfiedOriginators, owner)
			}
		}
	}
}

// forward queues delivery of op's satisfiability kinds to frag's
// successor, if it has one; batched into cdd.DelayedOperations rather
// than recursing so a long chain never grows the call stack and the
// per-scope lock is never re-entered from inside propagate.
func (e *Engine) forward(frag *task.DataAccess, op UpdateOperation, cdd *CPUDependencyData) {
	if frag.Successor == nil {
		return
	}
	next := op
	next.Target = frag.Successor
	cdd.DelayedOperations = append(cdd.DelayedOperations, next)
}

func ownerLabel(frag *task.DataAccess) string {
	if frag.Owner == nil {
		return "<none>"
	}
	return frag.Owner.Label
}
