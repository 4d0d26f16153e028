package cluster

import (
	"sync"

	pool "github.com/libp2p/go-buffer-pool"

	"github.com/corert/corert/internal/task"
)

// bufferedTransfer is a synchronous PendingTransfer backed by a
// pooled byte buffer. §1 scopes the concrete memory-allocation pool out
// as "only its contract is needed" — this repo satisfies that contract
// by routing every data-transfer buffer through go-buffer-pool's
// Get/Put instead of the runtime allocator, the same package lotus's
// storage layer imports for its own transfer buffers.
type bufferedTransfer struct {
	region task.Region
	buf    []byte

	mu       sync.Mutex
	done     bool
	onDone   []func()
	released bool
}

// newBufferedTransfer claims a pooled buffer sized to region and
// returns a transfer handle over it. release must be called exactly
// once the payload is fully consumed, returning the buffer to the pool.
func newBufferedTransfer(region task.Region) *bufferedTransfer {
	return &bufferedTransfer{
		region: region,
		buf:    pool.Get(int(region.Size)),
	}
}

func (t *bufferedTransfer) Bytes() []byte { return t.buf }

func (t *bufferedTransfer) Region() task.Region { return t.region }

func (t *bufferedTransfer) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// MarkDone transitions the transfer to complete and runs every callback
// registered via OnComplete, in registration order.
func (t *bufferedTransfer) MarkDone() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	cbs := t.onDone
	t.onDone = nil
	t.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

func (t *bufferedTransfer) OnComplete(cb func()) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		cb()
		return
	}
	t.onDone = append(t.onDone, cb)
	t.mu.Unlock()
}

// Release returns the pooled buffer. Safe to call once; subsequent
// calls are no-ops so a caller racing shutdown against a completing
// transfer can't double-free the buffer.
func (t *bufferedTransfer) Release() {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return
	}
	t.released = true
	buf := t.buf
	t.buf = nil
	t.mu.Unlock()

	pool.Put(buf)
}
