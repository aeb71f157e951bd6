package ioreactor

// RegisterFD, UnregisterFD, ModifyFD, and PollIO are implemented in
// platform-specific files:
//   - poller_linux.go (epoll)
//   - poller_darwin.go (kqueue)
//   - poller_windows.go (IOCP)
//
// TCP/UDP handles (and the TLS/DTLS handles layered on them) and the
// reactor's wake fd use this registration; File/Dir do not.
//
// Always call UnregisterFD before closing a file descriptor, to prevent
// stale event delivery due to FD recycling.
