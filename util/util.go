package util

import (
	"errors"
	"strings"
	"syscall"
)

// ParseListenerAddr splits "unix:///tmp/s.sock" or "tcp://:8080" into network
// and address. A bare address means tcp.
func ParseListenerAddr(addr string) (network, address string) {
	network = "tcp"
	address = addr
	if i := strings.Index(address, "://"); i >= 0 {
		network = address[:i]
		address = address[i+3:]
	}
	return
}

// IsInterrupted reports an interrupted system call that should simply be retried.
func IsInterrupted(err error) bool {
	return errors.Is(err, syscall.EINTR)
}

func IsWouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}
