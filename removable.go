package ioreactor

import "sync/atomic"

// Removable implements the two-phase deferred-destruction protocol every
// long-lived handle follows. Raw deletion is unsafe because the poller
// retains pointers to handles until their close callbacks fire; folding
// destruction into the reactor's own per-cycle dispatch order prevents
// double-release and use-after-free without reference counting every
// handle.
//
// Embed Removable by value in a handle struct and call InitRemovable once the
// handle's reactor is known.
type Removable struct {
	reactor  *Reactor
	scheduled atomic.Bool
	onRemove  func()
}

// InitRemovable associates this Removable with its owning reactor. Must be
// called before ScheduleRemoval.
func (r *Removable) InitRemovable(reactor *Reactor) {
	r.reactor = reactor
}

// SetOnScheduleRemoval registers the callback that fires exactly once, on
// the loop cycle after ScheduleRemoval is first called.
func (r *Removable) SetOnScheduleRemoval(f func()) {
	r.onRemove = f
}

// ScheduleRemoval is idempotent: the first call arms a one-shot callback on
// the reactor's next cycle; later calls are no-ops. Between this call and
// the callback firing, the handle still exists and its OS-driven callbacks
// may still run; implementations must tolerate that.
func (r *Removable) ScheduleRemoval() {
	if !r.scheduled.CompareAndSwap(false, true) {
		return
	}
	if r.reactor == nil {
		if r.onRemove != nil {
			r.onRemove()
		}
		return
	}
	r.reactor.ScheduleCallback(func() {
		if r.onRemove != nil {
			r.onRemove()
		}
	})
}

// IsScheduledForRemoval reports whether ScheduleRemoval has been called.
func (r *Removable) IsScheduledForRemoval() bool {
	return r.scheduled.Load()
}

// DeleteFunc returns a function value equal to "ScheduleRemoval then
// forget", suitable for use as a generic delete callback by an owner that
// only needs to trigger teardown, not observe completion.
func (r *Removable) DeleteFunc() func() {
	return r.ScheduleRemoval
}
