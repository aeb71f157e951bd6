package ioreactor

import (
	"container/heap"
	"sync"
	"time"
)

// timerEntry is one scheduled callback in the reactor's timer heap.
type timerEntry struct {
	deadline time.Time
	interval time.Duration // zero for a one-shot timer
	fn       func()
	id       uint64
	canceled bool
	index    int // heap index, maintained by container/heap
}

// timerHeap is a container/heap.Interface ordering entries by deadline.
type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// timerQueue owns the reactor's timer heap. It is only ever touched from the
// loop thread: scheduling and cancellation are always routed through
// ExecuteOnLoopThread by the Timer handle below, so no mutex is needed here.
type timerQueue struct {
	heap   timerHeap
	byID   map[uint64]*timerEntry
	nextID uint64
}

func newTimerQueue() *timerQueue {
	return &timerQueue{byID: make(map[uint64]*timerEntry)}
}

func (q *timerQueue) add(deadline time.Time, interval time.Duration, fn func()) uint64 {
	q.nextID++
	e := &timerEntry{deadline: deadline, interval: interval, fn: fn, id: q.nextID}
	q.byID[e.id] = e
	heap.Push(&q.heap, e)
	return e.id
}

func (q *timerQueue) cancel(id uint64) {
	e, ok := q.byID[id]
	if !ok {
		return
	}
	e.canceled = true
	delete(q.byID, id)
	if e.index >= 0 {
		heap.Remove(&q.heap, e.index)
	}
}

// fire pops and runs every entry whose deadline has passed, rescheduling
// interval timers. Returns the remaining time until the next deadline, and
// false if the heap is empty.
func (q *timerQueue) fire(now time.Time) (time.Duration, bool) {
	for q.heap.Len() > 0 {
		next := q.heap[0]
		if next.deadline.After(now) {
			break
		}
		heap.Pop(&q.heap)
		delete(q.byID, next.id)
		if next.canceled {
			continue
		}
		if next.interval > 0 {
			next.deadline = now.Add(next.interval)
			q.byID[next.id] = next
			heap.Push(&q.heap, next)
		}
		next.fn()
	}
	if q.heap.Len() == 0 {
		return 0, false
	}
	return q.heap[0].deadline.Sub(now), true
}

// Timer is a handle to a scheduled reactor callback, firing once after a
// delay or repeatedly at a fixed interval. It embeds Removable so callers can
// use the same lifecycle as every other handle.
type Timer struct {
	Removable
	reactor *Reactor

	mu sync.Mutex
	id uint64
}

// NewTimer schedules fn to run once, after d elapses, on the loop thread.
func NewTimer(r *Reactor, d time.Duration, fn func()) *Timer {
	return newTimer(r, d, 0, fn)
}

// NewTicker schedules fn to run repeatedly, every d, on the loop thread.
// The first firing happens after d, not immediately.
func NewTicker(r *Reactor, d time.Duration, fn func()) *Timer {
	return newTimer(r, d, d, fn)
}

func newTimer(r *Reactor, delay, interval time.Duration, fn func()) *Timer {
	t := &Timer{reactor: r}
	t.InitRemovable(r)
	t.SetOnScheduleRemoval(func() { t.stop() })
	_ = r.ExecuteOnLoopThread(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.id = r.timers.add(r.now().Add(delay), interval, fn)
	})
	return t
}

// Stop cancels the timer. Safe to call more than once, and from any
// goroutine.
func (t *Timer) Stop() {
	t.ScheduleRemoval()
}

func (t *Timer) stop() {
	t.mu.Lock()
	id := t.id
	t.mu.Unlock()
	if id == 0 {
		return
	}
	_ = t.reactor.ExecuteOnLoopThread(func() {
		t.reactor.timers.cancel(id)
	})
}
