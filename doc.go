// Package ioreactor is an asynchronous, event-driven network and filesystem
// I/O library built around a single-threaded reactor. Applications obtain a
// [Reactor], register long-lived handles (TCP listener, TCP connection, UDP
// endpoint, TLS/DTLS endpoint, timer, file, directory) and drive them via
// completion callbacks; the reactor multiplexes OS readiness notifications
// and dispatches them in arrival order.
//
// # Architecture
//
// The [Reactor] owns a platform poller (epoll on Linux, kqueue on Darwin,
// IOCP on Windows), a mutex-protected cross-thread FIFO for callbacks
// submitted from other goroutines ([Reactor.ExecuteOnLoopThread]), a
// one-shot per-cycle callback mechanism ([Reactor.ScheduleCallback]), a
// registry of per-tick hooks ([Reactor.ScheduleCallOnEachLoopCycle]), a
// worker pool for CPU-bound offload ([Reactor.AddWork]), and signal delivery
// ([Reactor.AddSignalHandler]).
//
// Handles ([TcpClient], [TcpServer], [UdpClient], [UdpServer], [TlsClient],
// [TlsServer], [DtlsClient], [DtlsServer], [File], [Dir], [Timer]) embed
// [Removable], a two-phase deferred-destruction protocol: scheduling a
// handle's removal defers the actual release to the next loop cycle so that
// in-flight OS callbacks naming the handle never observe a freed object.
//
// # Platform support
//
//   - Linux: epoll, eventfd wakeup
//   - Darwin: kqueue, self-pipe wakeup
//   - Windows: IOCP
//
// # Thread safety
//
// All handle state and user callbacks run on the reactor's own goroutine.
// The only safe cross-goroutine entry points are [Reactor.ExecuteOnLoopThread],
// [Reactor.AddWork], [Reactor.Stop], and the Stop methods of [CallbackHandle]
// and [Timer]; everything else must be called from the loop thread or from a
// handle's own callbacks.
//
// # Usage
//
//	r, err := ioreactor.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer r.Close()
//
//	srv := ioreactor.NewTcpServer(r)
//	if err := srv.Listen(ep, 128, onNewConn, onReceive, nil); err.Truthy() {
//		log.Fatal(err)
//	}
//
//	if err := r.Run(context.Background()); err != nil {
//		log.Fatal(err)
//	}
package ioreactor
