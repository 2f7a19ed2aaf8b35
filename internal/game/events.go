/*
Package game
File: events.go
Description:
    The tick-scheduled timed-event queue. Handlers push deadlines (mining
    completion, wormhole timeouts, respawns); the simulation loop pops due
    entries in deadline order each tick. Sequence numbers break ties so two
    events armed for the same instant fire in arming order.
*/

package game

import (
	"container/heap"
	"time"
)

type timedEvent struct {
	at  time.Time
	seq uint64
	run func(now time.Time)

	cancelled bool
	index     int
}

// Cancel marks the event dead; the queue skips it when its deadline comes up.
func (e *timedEvent) Cancel() {
	if e != nil {
		e.cancelled = true
	}
}

type eventHeap []*timedEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	ev := x.(*timedEvent)
	ev.index = len(*h)
	*h = append(*h, ev)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}

// eventQueue is owned by the simulation thread; no internal locking.
type eventQueue struct {
	heap eventHeap
	seq  uint64
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	heap.Init(&q.heap)
	return q
}

// schedule arms run to fire at deadline at. The returned handle cancels it.
func (q *eventQueue) schedule(at time.Time, run func(now time.Time)) *timedEvent {
	q.seq++
	ev := &timedEvent{at: at, seq: q.seq, run: run}
	heap.Push(&q.heap, ev)
	return ev
}

// fireDue pops and runs every event whose deadline is at or before now.
func (q *eventQueue) fireDue(now time.Time) {
	for len(q.heap) > 0 && !q.heap[0].at.After(now) {
		ev := heap.Pop(&q.heap).(*timedEvent)
		if ev.cancelled {
			continue
		}
		ev.run(now)
	}
}

func (q *eventQueue) pending() int {
	n := 0
	for _, ev := range q.heap {
		if !ev.cancelled {
			n++
		}
	}
	return n
}
