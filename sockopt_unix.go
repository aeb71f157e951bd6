//go:build !windows

package ioreactor

import "golang.org/x/sys/unix"

// setReuseAddr sets SO_REUSEADDR, letting a UdpClient rebind a local
// ephemeral port across quick teardown/recreate cycles without waiting out
// the OS's TIME_WAIT-style recycling delay.
func setReuseAddr(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

// checkPeerName calls getpeername, surfacing the INVALID_ARGUMENT some
// platforms return for a connection accepted and then immediately RST'd
// before the kernel finished establishing it.
func checkPeerName(fd uintptr) error {
	_, err := unix.Getpeername(int(fd))
	return err
}

// socketError reads SO_ERROR, the pending asynchronous error (if any)
// latched on the socket. Used after an EOF read to distinguish a clean
// close from a peer RST.
func socketError(fd uintptr) (StatusCode, error) {
	errno, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return UNKNOWN_ERROR, err
	}
	if errno == 0 {
		return OK, nil
	}
	return FromOSError(unix.Errno(errno)), nil
}
