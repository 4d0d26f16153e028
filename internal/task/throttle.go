package task

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Throttle implements the back-pressure admission control from §5:
// "when in-flight tasks exceed a configured pressure threshold,
// task_create may cooperatively execute ready work before returning,
// bounding memory consumption." It is grounded on golang.org/x/sync's
// weighted semaphore, the same package lotus's go.mod carries for its
// own bounded-concurrency gates.
type Throttle struct {
	sem *semaphore.Weighted
	max int64
}

// NewThrottle creates a throttle admitting at most maxInFlight
// outstanding tasks before AdmitOrDrain starts running drain work
// inline.
func NewThrottle(maxInFlight int64) *Throttle {
	return &Throttle{
		sem: semaphore.NewWeighted(maxInFlight),
		max: maxInFlight,
	}
}

// AdmitOrDrain reserves one in-flight slot. If none is immediately
// available, it repeatedly calls drain — expected to execute one unit
// of already-ready work and report whether it made progress — until a
// slot frees up. This gives task_create the "cooperatively execute
// ready work before returning" behavior without ever blocking on a
// worker that might itself be waiting on throttle admission.
func (th *Throttle) AdmitOrDrain(ctx context.Context, drain func() bool) error {
	for {
		if th.sem.TryAcquire(1) {
			return nil
		}
		if !drain() {
			// No immediately-runnable work found; block for real so we
			// don't spin.
			if err := th.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Release frees one in-flight slot, called once a task is fully
// disposed.
func (th *Throttle) Release() { th.sem.Release(1) }

// InFlightCapacity returns the configured maximum.
func (th *Throttle) InFlightCapacity() int64 { return th.max }
