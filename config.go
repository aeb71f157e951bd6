package ioreactor

import (
	"os"
	"strconv"
	"sync"
)

// GlobalConfig holds process-wide state shared by every Reactor in this
// process: the cipher list applied to new TLS/DTLS contexts, and the OS's
// detected min/max socket buffer sizes.
type GlobalConfig struct {
	mu         sync.Mutex
	cipherList string

	bufOnce   sync.Once
	bufLimits socketBufferLimits
	bufErr    error
}

type socketBufferLimits struct {
	minRecv, maxRecv int
	minSend, maxSend int
}

var globalConfig GlobalConfig

// SetCipherList sets the OpenSSL-style cipher list string applied whenever a
// new TLS/DTLS context is created from a TlsConfig whose own CipherList is
// empty. An invalid list is only discovered at context-creation time,
// reported as OPENSSL_ERROR.
func SetCipherList(list string) {
	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()
	globalConfig.cipherList = list
}

// CipherList returns the process-wide cipher list string, empty if unset.
func CipherList() string {
	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()
	return globalConfig.cipherList
}

// DetectedBufferLimits returns the OS's min/max receive and send
// socket-buffer sizes, computed once per process by bisecting setsockopt
// calls against a throwaway UDP socket and cached thereafter.
func DetectedBufferLimits() (minRecv, maxRecv, minSend, maxSend int, err error) {
	globalConfig.bufOnce.Do(func() {
		globalConfig.bufLimits, globalConfig.bufErr = detectSocketBufferLimits()
	})
	l := globalConfig.bufLimits
	return l.minRecv, l.maxRecv, l.minSend, l.maxSend, globalConfig.bufErr
}

// threadPoolSizeFromEnv reads IOREACTOR_THREADPOOL_SIZE (this library's
// analogue of libuv's UV_THREADPOOL_SIZE), clamped to [1, 128]. Returns the
// default of 4 if unset or unparsable.
func threadPoolSizeFromEnv() int {
	const def = 4
	const min, max = 1, 128
	v := os.Getenv("IOREACTOR_THREADPOOL_SIZE")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
