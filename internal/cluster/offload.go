package cluster

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/corert/corert/internal/depend"
	"github.com/corert/corert/internal/rterrors"
	"github.com/corert/corert/internal/task"
)

// Offloader is the sending half of §4.6's offload protocol: it turns a
// locally-created task destined for a remote node into a TaskNew
// message, and blocks the caller until that node reports completion.
type Offloader struct {
	Messenger Messenger
	SelfRank  int

	// Engine, if set, lets this offloader apply a RemoteAccessRelease
	// arriving early from an offloadee (§4.6: an offloadee may release an
	// individual access well before its whole remote task finishes). A
	// node that only ever dispatches work whose offloadees never send
	// this message can leave it nil.
	Engine *depend.Engine

	counter atomic.Uint64

	mu         sync.Mutex
	pending    map[uuid.UUID]*pendingRemote
	dispatched map[uuid.UUID][]*task.DataAccess
}

type pendingRemote struct {
	done chan struct{}
	err  error
}

func NewOffloader(m Messenger, selfRank int) *Offloader {
	return &Offloader{
		Messenger:  m,
		SelfRank:   selfRank,
		pending:    make(map[uuid.UUID]*pendingRemote),
		dispatched: make(map[uuid.UUID][]*task.DataAccess),
	}
}

func (o *Offloader) nextMessageID() MessageID {
	return NewMessageID(o.SelfRank, o.counter.Add(1))
}

// BodyFor returns the task.Body an offloaded task should run. Nothing
// about the workflow step DAG changes to support offload — the
// cluster-offload variant of the execute step described in §4.6 is
// simply "the task's body blocks on a network round trip instead of
// running locally," which this closure implements directly.
func (o *Offloader) BodyFor(t *task.Task, target int) task.Body {
	return func(ctx context.Context, _ interface{}) error {
		return o.Dispatch(ctx, t, target)
	}
}

// Dispatch sends t to target as a TaskNew message and blocks until a
// matching TaskFinished arrives (handled by HandleTaskFinished, which
// the local NamespaceTask/CheckMail loop must call), or ctx is
// cancelled.
func (o *Offloader) Dispatch(ctx context.Context, t *task.Task, target int) error {
	args, _ := t.Args.([]byte)

	descs := make([]AccessDescriptor, len(t.Accesses))
	for i, a := range t.Accesses {
		descs[i] = AccessDescriptor{
			Start: a.Region.Start,
			Size:  a.Region.Size,
			Type:  a.Type,
			Weak:  a.Weak,

			// t only reaches Dispatch (its execute step) once the
			// dependency engine has already satisfied every access it
			// declared, so the flags below are exactly the offloader's
			// confirmed initial satisfiability for the remote wrapper.
			ReadSatisfied:  a.ReadSatisfied(),
			WriteSatisfied: a.WriteSatisfied(),
			ConcurrentOK:   a.ConcurrentSatisfied(),
			CommutativeOK:  a.CommutativeSatisfied(),
		}
	}

	payload := append([]byte(t.Label), args...)
	payloadCID, err := PayloadCID(payload)
	if err != nil {
		return rterrors.Wrap("cluster", err)
	}

	msg := &TaskNewMessage{
		header:       header{kind: KindTaskNew, id: o.nextMessageID()},
		RemoteTaskID: t.ID,
		Label:        t.Label,
		Args:         args,
		Accesses:     descs,
		PayloadCID:   payloadCID,
	}

	wait := &pendingRemote{done: make(chan struct{})}
	o.mu.Lock()
	o.pending[t.ID] = wait
	// Retained so a later RemoteAccessRelease naming an AccessIndex into
	// this same TaskNew can be applied to the right local fragment.
	o.dispatched[t.ID] = t.Accesses
	o.mu.Unlock()

	if err := o.Messenger.SendMessage(ctx, msg, target, true); err != nil {
		o.mu.Lock()
		delete(o.pending, t.ID)
		delete(o.dispatched, t.ID)
		o.mu.Unlock()
		return rterrors.Wrap("cluster", err)
	}

	select {
	case <-wait.done:
		return wait.err
	case <-ctx.Done():
		o.mu.Lock()
		delete(o.pending, t.ID)
		delete(o.dispatched, t.ID)
		o.mu.Unlock()
		return ctx.Err()
	}
}

// HandleTaskFinished resolves the pending Dispatch call waiting on
// msg.RemoteTaskID, per §4.6 step 5. It is a no-op if no Dispatch is
// waiting on that id (e.g. a duplicate delivery after ctx cancellation
// already gave up).
func (o *Offloader) HandleTaskFinished(msg *TaskFinishedMessage) {
	o.mu.Lock()
	wait, ok := o.pending[msg.RemoteTaskID]
	if ok {
		delete(o.pending, msg.RemoteTaskID)
	}
	delete(o.dispatched, msg.RemoteTaskID)
	o.mu.Unlock()
	if !ok {
		return
	}
	if msg.Err != "" {
		wait.err = errors.New(msg.Err)
	}
	close(wait.done)
}

// HandleRemoteAccessRelease applies an early RemoteAccessRelease from an
// offloadee to the matching fragment of the task that was dispatched as
// msg.RemoteTaskID, forwarding satisfiability exactly as a local
// Engine.UnregisterAccesses would for that one fragment. sub is used to
// re-enqueue any local task the release unblocks; any task the release
// makes finalizable is disposed directly.
func (o *Offloader) HandleRemoteAccessRelease(m *RemoteAccessReleaseMessage, sub Submitter) {
	if o.Engine == nil {
		log.Errorw("remote access release received but offloader has no engine wired", "task", m.RemoteTaskID)
		return
	}

	o.mu.Lock()
	accs, ok := o.dispatched[m.RemoteTaskID]
	o.mu.Unlock()
	if !ok || m.AccessIndex < 0 || m.AccessIndex >= len(accs) {
		log.Debugw("remote access release for unknown task/access, dropping", "task", m.RemoteTaskID, "index", m.AccessIndex)
		return
	}

	var cdd depend.CPUDependencyData
	o.Engine.ReleaseAccess(accs[m.AccessIndex], &cdd)

	for _, t := range cdd.SatisfiedOriginators {
		sub.Unblock(t)
	}
	for _, tr := range cdd.SatisfiedCommutativeOriginators {
		sub.Unblock(tr.Task)
	}
	for _, t := range cdd.RemovableTasks {
		t.Dispose()
	}
}
