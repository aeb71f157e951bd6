//go:build !windows

package ioreactor

import (
	"os"

	"golang.org/x/sys/unix"
)

// isKnownSignal restricts registration to the POSIX signals this library
// documents support for, rather than accepting arbitrary os.Signal values
// the process may not be able to usefully handle.
func isKnownSignal(sig os.Signal) bool {
	switch sig {
	case unix.SIGINT, unix.SIGHUP, unix.SIGWINCH, unix.SIGTERM, unix.SIGUSR1, unix.SIGUSR2:
		return true
	default:
		return false
	}
}
