package ioreactor

import (
	"context"
	"sync"
	"sync/atomic"
)

// WorkFunc is offloaded to the worker pool by AddWork. It receives a context
// canceled on CancelWork; reactor shutdown does not cancel it.
type WorkFunc func(ctx context.Context) (any, error)

// WorkDoneFunc is invoked on the loop thread once a WorkFunc settles, with
// either its result or an error. A canceled-before-start work item is
// reported via CodeError(OPERATION_CANCELED); a panic inside fn is reported
// as a PanicError; calling runtime.Goexit inside fn is reported as
// ErrGoexit.
type WorkDoneFunc func(result any, err error)

// WorkHandle references a single AddWork submission.
type WorkHandle struct {
	pool *workPool
	id   uint64
}

// Cancel requests cancellation of the referenced work item. If it hasn't
// started yet, done fires with OPERATION_CANCELED and it never runs; if
// already running, its context is canceled (cooperative only) and it's left
// to complete normally.
func (h WorkHandle) Cancel() {
	if h.pool == nil {
		return
	}
	h.pool.cancel(h.id)
}

type workItem struct {
	ctx     context.Context
	cancel  context.CancelFunc
	fn      WorkFunc
	done    WorkDoneFunc
	id      uint64
	started atomic.Bool
}

// workPool is a fixed-size goroutine pool draining a buffered job queue,
// sized via WithThreadPoolSize or IOREACTOR_THREADPOOL_SIZE. Completion
// callbacks are marshaled back onto the loop thread through
// ExecuteOnLoopThread, falling back to direct invocation if the reactor has
// already terminated, so a done callback always fires exactly once.
type workPool struct {
	r    *Reactor
	jobs chan *workItem
	wg   sync.WaitGroup

	mu      sync.Mutex
	pending map[uint64]*workItem
	nextID  uint64
	closed  atomic.Bool
}

func newWorkPool(r *Reactor, size int) *workPool {
	p := &workPool{
		r:       r,
		jobs:    make(chan *workItem, size*4),
		pending: make(map[uint64]*workItem),
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *workPool) worker() {
	defer p.wg.Done()
	for item := range p.jobs {
		p.run(item)
	}
}

func (p *workPool) submit(fn WorkFunc, done WorkDoneFunc) (WorkHandle, error) {
	if p.closed.Load() {
		return WorkHandle{}, ErrReactorTerminated
	}

	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.nextID++
	item := &workItem{ctx: ctx, cancel: cancel, fn: fn, done: done, id: p.nextID}
	p.pending[item.id] = item
	p.mu.Unlock()

	select {
	case p.jobs <- item:
	default:
		p.mu.Lock()
		delete(p.pending, item.id)
		p.mu.Unlock()
		cancel()
		p.deliver(item, nil, NewError(WORK_QUEUE_FULL, "work queue full"))
	}

	return WorkHandle{pool: p, id: item.id}, nil
}

func (p *workPool) cancel(id uint64) {
	p.mu.Lock()
	item, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	if item.started.CompareAndSwap(false, true) {
		item.cancel()
		p.deliver(item, nil, NewError(OPERATION_CANCELED, "work canceled"))
		return
	}
	item.cancel()
}

func (p *workPool) run(item *workItem) {
	if !item.started.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()
	delete(p.pending, item.id)
	p.mu.Unlock()

	var (
		result    any
		resErr    error
		completed bool
	)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				resErr = PanicError{Value: rec}
				completed = true
				return
			}
			if !completed {
				resErr = ErrGoexit
			}
		}()
		result, resErr = item.fn(item.ctx)
		completed = true
	}()

	item.cancel()
	p.deliver(item, result, resErr)
}

func (p *workPool) deliver(item *workItem, result any, err error) {
	if item.done == nil {
		return
	}
	if submitErr := p.r.ExecuteOnLoopThread(func() { item.done(result, err) }); submitErr != nil {
		item.done(result, err)
	}
}

// shutdown closes the job queue and waits for in-flight workers to drain.
// Queued-but-not-started items are left to run to completion; this mirrors
// CancelWork's "already running" branch rather than abandoning work.
func (p *workPool) shutdown() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.jobs)
	p.wg.Wait()
}

// AddWork offloads fn to the reactor's worker pool. done fires on the loop
// thread once fn settles. Returns ErrReactorTerminated if the reactor is
// past the point of accepting new work (already terminating or terminated).
func (r *Reactor) AddWork(fn WorkFunc, done WorkDoneFunc) (WorkHandle, error) {
	if !r.state.CanAcceptWork() {
		return WorkHandle{}, ErrReactorTerminated
	}
	return r.workPool.submit(fn, done)
}

// CancelWork cancels a work item previously returned by AddWork.
func (r *Reactor) CancelWork(h WorkHandle) {
	h.Cancel()
}
