//go:build windows

package ioreactor

import "net"

// detectSocketBufferLimits does not bisect on Windows: it requests a 1MiB
// SO_RCVBUF/SO_SNDBUF via the stdlib's portable accessors and, where the
// request is accepted, records 1MiB as both the minimum and the maximum.
func detectSocketBufferLimits() (socketBufferLimits, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return socketBufferLimits{}, err
	}
	defer conn.Close()

	var limits socketBufferLimits
	if err := conn.SetReadBuffer(1 << 20); err == nil {
		limits.maxRecv = 1 << 20
		limits.minRecv = 1 << 20
	}
	if err := conn.SetWriteBuffer(1 << 20); err == nil {
		limits.maxSend = 1 << 20
		limits.minSend = 1 << 20
	}
	return limits, nil
}
