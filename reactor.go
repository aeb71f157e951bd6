package ioreactor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Reactor is the single-threaded event loop this library is built around.
// Exactly one goroutine — the one that calls Run — ever executes handle
// callbacks, timer callbacks, and per-cycle hooks; every other entry point a
// Reactor exposes either runs cheaply from any goroutine (ExecuteOnLoopThread,
// AddWork, Stop) or is documented as loop-thread-only.
type Reactor struct {
	state *FastState

	poller     FastPoller
	wakeReadFd int
	wakeWriteFd int

	mu      sync.Mutex
	pending *ChunkedIngress

	hooksMu    sync.Mutex
	hooks      map[uint64]func()
	hookOrder  []uint64
	nextHookID uint64

	timers *timerQueue

	workPool *workPool

	signals *signalRegistry

	blockExit      atomic.Int32
	blockExitTimer *Timer

	logger *Logger

	stopCh   chan struct{}
	stopOnce sync.Once

	tickTime time.Time

	opts *reactorOptions
}

// New constructs a Reactor. The returned Reactor does not start running
// until Run is called.
func New(options ...ReactorOption) (*Reactor, error) {
	opts, err := resolveReactorOptions(options)
	if err != nil {
		return nil, err
	}

	logger := opts.logger
	if logger == nil {
		logger = DefaultLogger()
	}

	r := &Reactor{
		state:   NewFastState(),
		pending: NewChunkedIngress(),
		hooks:   make(map[uint64]func()),
		timers:  newTimerQueue(),
		logger:  logger,
		stopCh:  make(chan struct{}),
		opts:    opts,
	}

	if err := r.poller.Init(); err != nil {
		return nil, err
	}

	poolSize := opts.threadPoolSize
	if poolSize <= 0 {
		poolSize = threadPoolSizeFromEnv()
	}
	if poolSize > 128 {
		poolSize = 128
	}
	r.workPool = newWorkPool(r, poolSize)
	r.signals = newSignalRegistry(r)

	wakeReadFd, wakeWriteFd, err := createWakeFd(0, EFD_CLOEXEC|EFD_NONBLOCK)
	if err != nil {
		_ = r.poller.Close()
		return nil, err
	}
	r.wakeReadFd = wakeReadFd
	r.wakeWriteFd = wakeWriteFd

	if wakeReadFd >= 0 {
		if err := r.poller.RegisterFD(wakeReadFd, EventRead, func(IOEvents) { r.drainWake() }); err != nil {
			_ = closeWakeFd(wakeReadFd, wakeWriteFd)
			_ = r.poller.Close()
			return nil, err
		}
	}

	return r, nil
}

func (r *Reactor) drainWake() {
	if r.wakeReadFd < 0 {
		return
	}
	var buf [64]byte
	for {
		n, err := readFD(r.wakeReadFd, buf[:])
		if err != nil || n <= 0 {
			return
		}
	}
}

func (r *Reactor) wake() {
	if r.wakeWriteFd >= 0 {
		buf := [8]byte{1}
		_, _ = writeFD(r.wakeWriteFd, buf[:])
	}
	_ = r.poller.Wakeup()
}

// now returns the reactor's cached current-tick time; only meaningful from
// the loop thread.
func (r *Reactor) now() time.Time {
	if r.tickTime.IsZero() {
		return time.Now()
	}
	return r.tickTime
}

// CurrentTickTime returns the time captured at the start of the current (or
// most recently completed) loop cycle.
func (r *Reactor) CurrentTickTime() time.Time {
	return r.now()
}

// State reports the reactor's current lifecycle state.
func (r *Reactor) State() LoopState {
	return r.state.Load()
}

// ExecuteOnLoopThread queues fn to run on the loop thread during a
// subsequent cycle. It is the only general-purpose way to act on the
// reactor safely from a goroutine other than the loop thread, and is also
// safe to call from the loop thread itself. Returns ErrReactorTerminated if
// the reactor has already shut down.
func (r *Reactor) ExecuteOnLoopThread(fn func()) error {
	if fn == nil {
		return nil
	}
	if r.state.IsTerminal() {
		return ErrReactorTerminated
	}
	r.mu.Lock()
	r.pending.Push(fn)
	r.mu.Unlock()
	r.wake()
	return nil
}

// ScheduleCallback arms a one-shot callback that runs on the next loop
// cycle. If the reactor has already terminated, fn runs immediately on the
// calling goroutine instead, so cleanup callbacks (see Removable) are never
// silently dropped.
func (r *Reactor) ScheduleCallback(fn func()) {
	if fn == nil {
		return
	}
	if err := r.ExecuteOnLoopThread(fn); err != nil {
		fn()
	}
}

// CallbackHandle references a registration made with
// ScheduleCallOnEachLoopCycle.
type CallbackHandle struct {
	r  *Reactor
	id uint64
}

// Stop deregisters the per-cycle hook. Safe to call more than once, and
// from any goroutine.
func (h CallbackHandle) Stop() {
	if h.r == nil {
		return
	}
	h.r.hooksMu.Lock()
	defer h.r.hooksMu.Unlock()
	if _, ok := h.r.hooks[h.id]; !ok {
		return
	}
	delete(h.r.hooks, h.id)
	for i, id := range h.r.hookOrder {
		if id == h.id {
			h.r.hookOrder = append(h.r.hookOrder[:i], h.r.hookOrder[i+1:]...)
			break
		}
	}
}

// ScheduleCallOnEachLoopCycle registers fn to run once per loop cycle, after
// the pending-callback queue drains and before timers are processed. Use the
// returned handle's Stop method to deregister it.
func (r *Reactor) ScheduleCallOnEachLoopCycle(fn func()) CallbackHandle {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.nextHookID++
	id := r.nextHookID
	r.hooks[id] = fn
	r.hookOrder = append(r.hookOrder, id)
	return CallbackHandle{r: r, id: id}
}

// StartBlockLoopFromExit runs a no-op internal ticker (period set by
// WithBlockExitPollPeriod) for as long as at least one reference is held.
// Run does not exit when idle: it returns only on Stop or context
// cancellation, so holding a reference adds periodic wakeups and does not
// change when Run returns. Each call to Start must be matched with a call
// to Stop.
func (r *Reactor) StartBlockLoopFromExit() {
	if r.blockExit.Add(1) == 1 {
		r.blockExitTimer = NewTicker(r, r.opts.blockExitPeriod, func() {})
	}
}

// StopBlockLoopFromExit releases one reference taken by
// StartBlockLoopFromExit.
func (r *Reactor) StopBlockLoopFromExit() {
	if r.blockExit.Add(-1) == 0 && r.blockExitTimer != nil {
		r.blockExitTimer.Stop()
		r.blockExitTimer = nil
	}
}

// RegisterFD registers fd for I/O readiness notification. TCP/UDP handles
// (and the TLS/DTLS handles layered on them) use this internally; File/Dir
// do not register fds, they run on the worker pool via AddWork.
func (r *Reactor) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	return r.poller.RegisterFD(fd, events, cb)
}

// UnregisterFD removes fd from I/O readiness notification. Always call this
// before closing fd, to avoid stale event delivery through FD recycling.
func (r *Reactor) UnregisterFD(fd int) error {
	return r.poller.UnregisterFD(fd)
}

// ModifyFD updates the event mask fd is registered with.
func (r *Reactor) ModifyFD(fd int, events IOEvents) error {
	return r.poller.ModifyFD(fd, events)
}

// Run drives the loop until ctx is canceled or Stop is called, blocking the
// calling goroutine: that goroutine becomes the loop thread for the
// remainder of this call. Returns ctx.Err() on context cancellation, nil on
// a clean Stop, or ErrReactorAlreadyRunning/ErrReactorTerminated if called
// in the wrong state.
func (r *Reactor) Run(ctx context.Context) error {
	if !r.state.TryTransition(StateAwake, StateRunning) {
		switch r.state.Load() {
		case StateTerminated, StateTerminating:
			return ErrReactorTerminated
		default:
			return ErrReactorAlreadyRunning
		}
	}

	defer r.shutdown()

	for {
		select {
		case <-ctx.Done():
			r.state.Store(StateTerminating)
			return ctx.Err()
		case <-r.stopCh:
			r.state.Store(StateTerminating)
			return nil
		default:
		}

		r.tick()
	}
}

// Stop requests the loop exit cleanly at the end of the current cycle. Safe
// to call from any goroutine, including the loop thread.
func (r *Reactor) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// tick runs exactly one loop cycle: drain the pending-callback queue, run
// per-cycle hooks, fire due timers, then poll for I/O with a timeout bounded
// by the next timer deadline.
func (r *Reactor) tick() {
	r.tickTime = time.Now()

	r.drainPending()
	r.runHooks()
	nextTimer, hasTimer := r.timers.fire(r.tickTime)

	timeoutMs := -1
	if hasTimer {
		timeoutMs = int(nextTimer / time.Millisecond)
		if timeoutMs < 0 {
			timeoutMs = 0
		}
	}
	if r.pending.Length() > 0 {
		timeoutMs = 0
	}

	_, _ = r.poller.PollIO(timeoutMs)
}

func (r *Reactor) drainPending() {
	r.mu.Lock()
	n := r.pending.Length()
	r.mu.Unlock()

	for i := 0; i < n; i++ {
		r.mu.Lock()
		fn, ok := r.pending.Pop()
		r.mu.Unlock()
		if !ok {
			return
		}
		fn()
	}
}

func (r *Reactor) runHooks() {
	r.hooksMu.Lock()
	order := append([]uint64(nil), r.hookOrder...)
	r.hooksMu.Unlock()

	for _, id := range order {
		r.hooksMu.Lock()
		fn, ok := r.hooks[id]
		r.hooksMu.Unlock()
		if ok {
			fn()
		}
	}
}

func (r *Reactor) shutdown() {
	r.signals.shutdown()
	r.workPool.shutdown()
	if r.wakeReadFd >= 0 {
		_ = r.poller.UnregisterFD(r.wakeReadFd)
	}
	_ = closeWakeFd(r.wakeReadFd, r.wakeWriteFd)
	_ = r.poller.Close()
	r.state.Store(StateTerminated)
}

// Close stops the loop if running by calling Stop. The reactor's resources
// are released when Run returns, so a reactor whose Run was never called
// keeps them. It does not block for Run to return; callers that need that
// should cancel their Run context (or call Stop) and wait on Run's return
// instead.
func (r *Reactor) Close() error {
	r.Stop()
	return nil
}
