package cluster

import (
	"fmt"
	"sync"

	"github.com/corert/corert/internal/task"
)

// Registry maps a tasktype label to the task.Body that implements it.
// A TaskNew message never carries a function value across the wire —
// only Label and an opaque Args block — so every node participating in
// offload must register the same task types ahead of time under the
// same labels, the same way a spawn_function call on the sending side
// names an implementation the receiving side already knows how to run.
type Registry struct {
	mu     sync.RWMutex
	bodies map[string]task.Body
}

func NewRegistry() *Registry {
	return &Registry{bodies: make(map[string]task.Body)}
}

// Register associates label with body. Registering the same label twice
// replaces the previous implementation.
func (r *Registry) Register(label string, body task.Body) {
	r.mu.Lock()
	r.bodies[label] = body
	r.mu.Unlock()
}

// Lookup returns the body registered for label, if any.
func (r *Registry) Lookup(label string) (task.Body, error) {
	r.mu.RLock()
	body, ok := r.bodies[label]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("cluster: no task type registered for label %q", label)
	}
	return body, nil
}
