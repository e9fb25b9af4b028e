// Package timer holds the pending one-shot timer tasks of a reactor, ordered by
// absolute expiry. Equal expiries pop in insertion order.
//
// A Heap is not safe for concurrent use.
package timer

import (
	"container/heap"
	"time"
)

type Func func(data interface{})

type Task struct {
	Expiry   time.Time
	Callback Func
	Data     interface{}

	id    uint64
	index int
}

// ID is assigned by Insert and grows with every insertion, so it also records
// insertion order. Zero means the task was never inserted.
func (t *Task) ID() uint64 {
	return t.id
}

// Pending reports whether the task is still waiting in a heap.
func (t *Task) Pending() bool {
	return t.id != 0 && t.index >= 0
}

type Heap struct {
	q      taskQueue
	byID   map[uint64]*Task
	nextID uint64
}

func NewHeap() *Heap {
	return &Heap{byID: make(map[uint64]*Task)}
}

// Insert schedules t and returns its identity. Inserting a task that is
// already pending returns its current identity without moving it.
func (h *Heap) Insert(t *Task) uint64 {
	if t.Pending() {
		if _, ok := h.byID[t.id]; ok {
			return t.id
		}
	}
	h.nextID++
	t.id = h.nextID
	heap.Push(&h.q, t)
	h.byID[t.id] = t
	return t.id
}

// LastID is the identity handed out by the most recent Insert. Tasks with a
// larger identity were inserted after the call.
func (h *Heap) LastID() uint64 {
	return h.nextID
}

func (h *Heap) Len() int {
	return len(h.q)
}

// Min returns the earliest task without removing it, or nil.
func (h *Heap) Min() *Task {
	if len(h.q) == 0 {
		return nil
	}
	return h.q[0]
}

func (h *Heap) PeekMin() (time.Time, bool) {
	if len(h.q) == 0 {
		return time.Time{}, false
	}
	return h.q[0].Expiry, true
}

// PopMin removes and returns the earliest task, or nil when empty.
func (h *Heap) PopMin() *Task {
	if len(h.q) == 0 {
		return nil
	}
	t := heap.Pop(&h.q).(*Task)
	delete(h.byID, t.id)
	return t
}

// Cancel removes the pending task with the given identity.
func (h *Heap) Cancel(id uint64) bool {
	t, ok := h.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&h.q, t.index)
	delete(h.byID, id)
	return true
}

type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].Expiry.Equal(q[j].Expiry) {
		return q[i].id < q[j].id
	}
	return q[i].Expiry.Before(q[j].Expiry)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x interface{}) {
	t := x.(*Task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
