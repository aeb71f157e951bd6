//go:build !windows

package ioreactor

import (
	"net"

	"golang.org/x/sys/unix"
)

// detectSocketBufferLimits opens a throwaway UDP socket and bisects the
// largest SO_RCVBUF/SO_SNDBUF value the kernel will honor, following the
// same getsockopt-after-setsockopt readback pattern any OS uses to clamp
// requested sizes to its own ceiling; the minimum is the value read back
// after requesting a 1-byte buffer.
func detectSocketBufferLimits() (socketBufferLimits, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return socketBufferLimits{}, err
	}
	defer conn.Close()

	sc, err := conn.SyscallConn()
	if err != nil {
		return socketBufferLimits{}, err
	}

	var limits socketBufferLimits
	const lo, hi = 1 << 10, 1 << 28 // 1KiB .. 256MiB search bounds

	bisect := func(fd int, opt int, get func(fd int) (int, error)) int {
		lo, hi := lo, hi
		best := lo
		for lo <= hi {
			mid := lo + (hi-lo)/2
			if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, opt, mid); err != nil {
				hi = mid - 1
				continue
			}
			got, err := get(fd)
			if err != nil || got < mid {
				hi = mid - 1
				continue
			}
			best = mid
			lo = mid + 1
		}
		return best
	}

	err = sc.Control(func(fd uintptr) {
		f := int(fd)
		limits.maxRecv = bisect(f, unix.SO_RCVBUF, func(fd int) (int, error) {
			return unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF)
		})
		limits.maxSend = bisect(f, unix.SO_SNDBUF, func(fd int) (int, error) {
			return unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF)
		})
		if unix.SetsockoptInt(f, unix.SOL_SOCKET, unix.SO_RCVBUF, 1) == nil {
			if v, err := unix.GetsockoptInt(f, unix.SOL_SOCKET, unix.SO_RCVBUF); err == nil {
				limits.minRecv = v
			}
		}
		if unix.SetsockoptInt(f, unix.SOL_SOCKET, unix.SO_SNDBUF, 1) == nil {
			if v, err := unix.GetsockoptInt(f, unix.SOL_SOCKET, unix.SO_SNDBUF); err == nil {
				limits.minSend = v
			}
		}
	})
	if err != nil {
		return limits, err
	}
	return limits, nil
}
