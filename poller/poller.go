// Package poller wraps the platform readiness primitive (epoll or kqueue) behind
// a small level-triggered interface. A Poller does not own a loop: the caller
// drives it by calling Wait with a bound derived from its own timers.
package poller

import (
	"errors"
	"math"
	"time"
)

type Event uint32

const (
	EventRead  Event = 0x1
	EventWrite Event = 0x2
	EventErr   Event = 0x4
)

// Ready is one descriptor reported by Wait.
type Ready struct {
	Fd     int
	Events Event
}

var (
	ErrClosed      = errors.New("poller: closed")
	ErrUnsupported = errors.New("poller: platform not supported")
)

type Poller interface {
	// Add starts watching fd for the given interest. Errors are always reported,
	// never deferred to Wait.
	Add(fd int, ev Event) error
	Mod(fd int, ev Event) error
	Del(fd int) error

	// Wait blocks for at most timeout (forever when timeout < 0) and fills ready.
	// It returns the raw error of the primitive, EINTR included. A call woken by
	// Wakeup returns n == 0.
	Wait(ready []Ready, timeout time.Duration) (n int, err error)

	// Wakeup interrupts a blocked Wait. Safe from any goroutine.
	Wakeup() error
	Close() error
}

// waitMillis rounds timeout up to whole milliseconds so a caller never wakes
// before its deadline.
func waitMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	return int(ms)
}
