package ioreactor

import (
	"os"
	"os/signal"
	"sync"
)

// signalHandler is one registration made via AddSignalHandler or
// HandleSignalOnce.
type signalHandler struct {
	fn   func()
	once bool
}

// signalRegistry delivers POSIX-style signals onto the loop thread. A
// single os/signal channel is shared across every registered os.Signal; the
// pump goroutine forwards each notification through ScheduleCallback so
// handlers run with the same single-threaded guarantee as everything else.
type signalRegistry struct {
	r *Reactor

	mu       sync.Mutex
	handlers map[os.Signal]*signalHandler
	notify   chan os.Signal
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func newSignalRegistry(r *Reactor) *signalRegistry {
	reg := &signalRegistry{
		r:        r,
		handlers: make(map[os.Signal]*signalHandler),
		notify:   make(chan os.Signal, 16),
		stopCh:   make(chan struct{}),
	}
	reg.wg.Add(1)
	go reg.pump()
	return reg
}

func (reg *signalRegistry) pump() {
	defer reg.wg.Done()
	for {
		select {
		case sig := <-reg.notify:
			reg.deliver(sig)
		case <-reg.stopCh:
			return
		}
	}
}

func (reg *signalRegistry) deliver(sig os.Signal) {
	reg.mu.Lock()
	h, ok := reg.handlers[sig]
	if ok && h.once {
		delete(reg.handlers, sig)
		signal.Stop(reg.notify)
		reg.resubscribeLocked()
	}
	reg.mu.Unlock()
	if !ok {
		return
	}
	reg.r.ScheduleCallback(h.fn)
}

// resubscribeLocked re-issues signal.Notify for the current handler set.
// Must be called with reg.mu held.
func (reg *signalRegistry) resubscribeLocked() {
	sigs := make([]os.Signal, 0, len(reg.handlers))
	for s := range reg.handlers {
		sigs = append(sigs, s)
	}
	if len(sigs) > 0 {
		signal.Notify(reg.notify, sigs...)
	}
}

func (reg *signalRegistry) add(sig os.Signal, fn func(), once bool) error {
	if !isKnownSignal(sig) {
		return CodeError(UNKNOWN_SIGNAL)
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.handlers[sig]; exists {
		return CodeError(SIGNAL_ALREADY_REGISTERED)
	}
	reg.handlers[sig] = &signalHandler{fn: fn, once: once}
	signal.Notify(reg.notify, sig)
	return nil
}

func (reg *signalRegistry) remove(sig os.Signal) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.handlers[sig]; !ok {
		return
	}
	delete(reg.handlers, sig)
	signal.Stop(reg.notify)
	reg.resubscribeLocked()
}

func (reg *signalRegistry) shutdown() {
	close(reg.stopCh)
	signal.Stop(reg.notify)
	reg.wg.Wait()
}

// AddSignalHandler registers fn to run on the loop thread every time sig is
// received, until RemoveSignalHandler is called. Returns
// SIGNAL_ALREADY_REGISTERED if sig already has a handler, or UNKNOWN_SIGNAL
// if sig isn't one of the supported signals.
func (r *Reactor) AddSignalHandler(sig os.Signal, fn func()) error {
	return r.signals.add(sig, fn, false)
}

// HandleSignalOnce registers fn to run once, the next time sig is received,
// automatically removing itself afterward.
func (r *Reactor) HandleSignalOnce(sig os.Signal, fn func()) error {
	return r.signals.add(sig, fn, true)
}

// RemoveSignalHandler deregisters sig's handler, if any.
func (r *Reactor) RemoveSignalHandler(sig os.Signal) {
	r.signals.remove(sig)
}
