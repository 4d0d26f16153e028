package sched

import "github.com/corert/corert/internal/task"

// Assigner decides which device (host, or a specific cluster node) a
// newly-ready task should be queued on. §9's redesign notes ask for a
// closed set of concrete types behind a narrow capability instead of an
// open scheduler-policy class hierarchy; this repo has exactly two:
// PriorityAssigner (the non-cluster default) and LocalityAssigner (the
// cluster bytes-touched policy from §4.2).
type Assigner interface {
	AssignDevice(t *task.Task) Device
}

// PriorityAssigner always targets the host device; ordering among host
// tasks is left entirely to the inner queue's priority policy.
type PriorityAssigner struct{}

func NewPriorityAssigner() *PriorityAssigner { return &PriorityAssigner{} }

func (PriorityAssigner) AssignDevice(*task.Task) Device {
	return Device{Kind: DeviceHost}
}
