//go:build windows

package ioreactor

import (
	"os"
	"syscall"
)

// isKnownSignal restricts registration to the signals Windows' runtime
// actually delivers through os/signal.Notify: Ctrl+C/Ctrl+Break (SIGINT) and
// process termination (SIGTERM). HUP/WINCH/USR1/USR2 have no Windows
// analogue.
func isKnownSignal(sig os.Signal) bool {
	switch sig {
	case os.Interrupt, syscall.SIGTERM:
		return true
	default:
		return false
	}
}
