package ioreactor

import (
	"math/bits"
	"time"
)

// BacklogWithTimeout is a bucketed expiration structure: items are placed
// in one of ⌊log2(timeoutMs)⌋+1 buckets, each driven by its own ticker with
// period timeoutMs, timeoutMs/2, timeoutMs/4, …, 1ms (integer halving). An
// item lives in the bucket with the largest period not exceeding its
// remaining life, so a single tick of a bucket's ticker recomputes and
// redistributes (or expires) every item currently in it — giving expiration
// accuracy within 2x of timeoutMs at O(1) amortized cost per item, with a
// fixed number of timers regardless of population.
type BacklogWithTimeout[T any] struct {
	r         *Reactor
	timeoutMs int64
	onExpired func(T)
	timeOf    func(T) time.Time
	clock     func() time.Time

	buckets []*backlogBucket[T]
	stopped bool
}

type backlogBucket[T any] struct {
	periodMs int64
	timer    *Timer
	items    []T
}

// NewBacklogWithTimeout constructs a backlog. timeOf extracts an item's
// reference timestamp (e.g. last-packet time); clock supplies the current
// time, normally time.Now but overridable for tests.
func NewBacklogWithTimeout[T any](r *Reactor, timeoutMs int64, onExpired func(T), timeOf func(T) time.Time, clock func() time.Time) *BacklogWithTimeout[T] {
	if clock == nil {
		clock = time.Now
	}
	b := &BacklogWithTimeout[T]{
		r:         r,
		timeoutMs: timeoutMs,
		onExpired: onExpired,
		timeOf:    timeOf,
		clock:     clock,
	}

	levels := bits.Len64(uint64(timeoutMs)) + 1
	period := timeoutMs
	for i := 0; i < levels; i++ {
		bucket := &backlogBucket[T]{periodMs: period}
		b.buckets = append(b.buckets, bucket)
		idx := i
		bucket.timer = NewTicker(r, time.Duration(period)*time.Millisecond, func() {
			b.tick(idx)
		})
		if period <= 1 {
			break
		}
		period /= 2
	}

	return b
}

// bucketFor returns the index of the bucket with the largest period not
// exceeding remainingMs.
func (b *BacklogWithTimeout[T]) bucketFor(remainingMs int64) int {
	if remainingMs <= 0 {
		return len(b.buckets) - 1
	}
	for i, bucket := range b.buckets {
		if bucket.periodMs <= remainingMs {
			return i
		}
	}
	return len(b.buckets) - 1
}

// AddItem computes the item's current age; if it has already exceeded the
// timeout, onExpired fires immediately and true is returned (false if the
// backlog was stopped from inside onExpired). Future-dated items (by
// timeOf) are rejected, returning false. Otherwise the item is placed in
// the bucket matching its remaining life.
func (b *BacklogWithTimeout[T]) AddItem(item T) bool {
	if b.stopped {
		return false
	}
	now := b.clock()
	itemTime := b.timeOf(item)
	if now.Before(itemTime) {
		return false
	}
	ageMs := now.Sub(itemTime).Milliseconds()
	if ageMs >= b.timeoutMs {
		b.onExpired(item)
		return !b.stopped
	}
	idx := b.bucketFor(b.timeoutMs - ageMs)
	b.buckets[idx].items = append(b.buckets[idx].items, item)
	return true
}

// RemoveItem erases the first element equal to item (via eq), returning
// true if one was found.
func (b *BacklogWithTimeout[T]) RemoveItem(item T, eq func(a, b T) bool) bool {
	for _, bucket := range b.buckets {
		for i, it := range bucket.items {
			if eq(it, item) {
				bucket.items = append(bucket.items[:i], bucket.items[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (b *BacklogWithTimeout[T]) tick(idx int) {
	if b.stopped {
		return
	}
	bucket := b.buckets[idx]
	pending := bucket.items
	bucket.items = nil

	now := b.clock()
	for _, item := range pending {
		if b.stopped {
			return
		}
		ageMs := now.Sub(b.timeOf(item)).Milliseconds()
		if ageMs >= b.timeoutMs {
			b.onExpired(item)
			continue
		}
		newIdx := b.bucketFor(b.timeoutMs - ageMs)
		b.buckets[newIdx].items = append(b.buckets[newIdx].items, item)
	}
}

// Stop clears all timers and state; subsequent operations are no-ops.
func (b *BacklogWithTimeout[T]) Stop() {
	if b.stopped {
		return
	}
	b.stopped = true
	for _, bucket := range b.buckets {
		bucket.timer.Stop()
		bucket.items = nil
	}
}
