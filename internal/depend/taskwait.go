package depend

import "github.com/corert/corert/internal/task"

// sinkSize is a region large enough to act as a sentinel "whole address
// space" sink without overflowing uintptr arithmetic in Region.End().
const sinkSize = ^uintptr(0) >> 1

// RegisterTaskwait models a taskwait as a sink access over the calling
// task's entire scope, satisfied once every child registered under it
// has completed — §4.1's "tie-breaks and edge cases" entry: "A taskwait
// is modeled as a sink access over the task's entire scope; it becomes
// satisfied when all child accesses have completed." The returned
// access's Complete() is immediately true if there are no outstanding
// children; otherwise it becomes true when the last child finishes.
func (e *Engine) RegisterTaskwait(parent *task.Task) *task.DataAccess {
	sink := task.NewDataAccess(task.Region{Start: 0, Size: sinkSize}, task.NoAccess, false)
	sink.Owner = parent

	s := e.scopeFor(parent)
	s.mu.Lock()
	if parent.PendingChildren() == 0 {
		sink.SetComplete()
	} else {
		s.taskwaitSink = sink
	}
	s.mu.Unlock()

	return sink
}

// noteChildFinished is called after a child task's finalization decides
// it is removable. It decrements the parent's pending-children count
// and, if that was the last outstanding child, satisfies any
// registered taskwait sink, batching it into cdd for the worker loop.
func (e *Engine) noteChildFinished(child *task.Task, cdd *CPUDependencyData) {
	parent := child.Parent
	if parent == nil {
		return
	}
	if !parent.FinishChild() {
		return
	}

	s := e.scopeFor(parent)
	s.mu.Lock()
	sink := s.taskwaitSink
	s.taskwaitSink = nil
	s.mu.Unlock()

	if sink == nil || sink.Complete() {
		return
	}
	sink.SetComplete()
	cdd.CompletedTaskwaits = append(cdd.CompletedTaskwaits, sink)
}
