package sched

import (
	"container/heap"

	"github.com/corert/corert/internal/task"
)

// readyQueue is the narrow capability every inner per-device scheduler
// exposes: push a ready task, pop the next one, report depth. Two
// concrete types satisfy it — fifoQueue and priorityQueue — in place of
// the open ReadyQueue class hierarchy the design's redesign notes flag
// (§9: "implement as sum types over the concrete queue variants behind
// a narrow trait-like capability").
type readyQueue interface {
	Push(t *task.Task)
	Pop() *task.Task
	Len() int
}

// fifoQueue is the no-priority host scheduler: pure submission order,
// grounded on the same shape as the teacher's requestQueue but without
// the priority comparison, for policies where FIFO is all that's
// needed.
type fifoQueue struct {
	items []*task.Task
}

func newFIFOQueue() *fifoQueue { return &fifoQueue{} }

func (q *fifoQueue) Push(t *task.Task) { q.items = append(q.items, t) }

func (q *fifoQueue) Pop() *task.Task {
	if len(q.items) == 0 {
		return nil
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t
}

func (q *fifoQueue) Len() int { return len(q.items) }

// priorityQueue orders tasks by (priority descending, enqueue order
// ascending), the ordering the teacher's requestQueue.Less encodes via
// sort.Sort; here it is expressed as a container/heap.Interface, the
// idiomatic Go rendition of the same comparator.
type priorityQueue struct {
	h priorityHeap
}

func newPriorityQueue() *priorityQueue {
	pq := &priorityQueue{}
	heap.Init(&pq.h)
	return pq
}

func (q *priorityQueue) Push(t *task.Task) {
	heap.Push(&q.h, &pqEntry{task: t, seq: q.h.nextSeq()})
}

func (q *priorityQueue) Pop() *task.Task {
	if q.h.Len() == 0 {
		return nil
	}
	e := heap.Pop(&q.h).(*pqEntry)
	return e.task
}

func (q *priorityQueue) Len() int { return q.h.Len() }

type pqEntry struct {
	task  *task.Task
	seq   uint64
	index int
}

type priorityHeap struct {
	entries []*pqEntry
	seqGen  uint64
}

func (h *priorityHeap) nextSeq() uint64 {
	h.seqGen++
	return h.seqGen
}

func (h *priorityHeap) Len() int { return len(h.entries) }

func (h *priorityHeap) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if a.task.Priority != b.task.Priority {
		return a.task.Priority > b.task.Priority // strictly descending priority
	}
	return a.seq < b.seq // FIFO within equal priority
}

func (h *priorityHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].index = i
	h.entries[j].index = j
}

func (h *priorityHeap) Push(x interface{}) {
	e := x.(*pqEntry)
	e.index = len(h.entries)
	h.entries = append(h.entries, e)
}

func (h *priorityHeap) Pop() interface{} {
	old := h.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	h.entries = old[:n-1]
	return e
}
