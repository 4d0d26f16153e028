package task

// EventCounter is the opaque counter handle from the task-creation API
// in §6: current_event_counter/increment/decrement. It wraps a Task's
// release counter behind a handle so callers outside this package never
// see the Task's internal atomic directly.
type EventCounter struct {
	t *Task
}

// CurrentEventCounter returns the opaque handle for t's release counter.
func CurrentEventCounter(t *Task) EventCounter { return EventCounter{t: t} }

// Increment adds n pending events.
func (c EventCounter) Increment(n int64) { c.t.Increment(n) }

// Decrement removes n pending events and reports whether the underlying
// task's counter reached zero.
func (c EventCounter) Decrement(n int64) bool { return c.t.Decrement(n) }

// Value reads the counter without mutating it, for diagnostics only.
func (c EventCounter) Value() int64 {
	// releaseCount is unexported; expose a read-only accessor here
	// rather than widen Task's public surface for a debug-only path.
	return c.t.releaseCountSnapshot()
}

func (t *Task) releaseCountSnapshot() int64 {
	return t.releaseCount.Load()
}
