package depend

import "github.com/corert/corert/internal/task"

// NamespacePredecessor returns frag's owner when frag has a chain
// successor, and nil otherwise, for use as the namespace predecessor
// in cluster mode (§4.1 "Namespace propagation" and the GLOSSARY entry
// for "Namespace (remote)"). It records nothing, and nothing in
// internal/cluster calls it.
func (e *Engine) NamespacePredecessor(frag *task.DataAccess) *task.Task {
	if frag.Successor == nil {
		return nil
	}
	return frag.Owner
}

// MarkValidNamespacePredecessor annotates the delayed operation that
// will be forwarded to succ so the remote side can resolve it without a
// round trip. Nothing in internal/cluster calls it.
func MarkValidNamespacePredecessor(op *UpdateOperation, predecessor *task.Task) {
	op.NamespacePredecessor = predecessor
}
