//go:build windows

package ioreactor

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// setReuseAddr sets SO_REUSEADDR, mirroring sockopt_unix.go.
func setReuseAddr(fd uintptr) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
}

// checkPeerName calls getpeername, mirroring sockopt_unix.go.
func checkPeerName(fd uintptr) error {
	_, err := windows.Getpeername(windows.Handle(fd))
	return err
}

// socketError reads SO_ERROR via the raw Getsockopt call, mirroring
// sockopt_unix.go's use of SO_ERROR to distinguish a clean EOF from a
// peer RST.
func socketError(fd uintptr) (StatusCode, error) {
	var errno int32
	l := int32(unsafe.Sizeof(errno))
	if err := windows.Getsockopt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_ERROR, (*byte)(unsafe.Pointer(&errno)), &l); err != nil {
		return UNKNOWN_ERROR, err
	}
	if errno == 0 {
		return OK, nil
	}
	return FromOSError(syscall.Errno(errno)), nil
}
