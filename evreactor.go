// Package evreactor is a single-threaded event reactor: it multiplexes readiness
// over many descriptors, dispatches to registered EventHandlers and runs one-shot
// timer tasks from a min-heap, all on the goroutine that calls HandleEvents.
//
// The reactor never owns what it dispatches to. It keeps a lookup from Handle to
// EventHandler and nothing more: descriptors are opened and closed by their
// creators, and a handler object stays the caller's responsibility. A caller that
// is done with a handler calls RemoveHandler first and only then releases the
// descriptor, typically from inside the handler's own HandleError or HandleRead.
package evreactor

import (
	"errors"
	"time"

	"github.com/dreamans/evreactor/poller"
)

// Handle is a platform descriptor. Its zero value is a valid descriptor (stdin);
// use InvalidHandle for "no descriptor".
type Handle int

const InvalidHandle Handle = -1

func (h Handle) Valid() bool {
	return h >= 0
}

// Mask is the interest set of a registration. Error conditions need no bit:
// HandleError is delivered whenever the primitive reports one.
type Mask uint8

const (
	MaskNone      Mask = 0
	MaskRead      Mask = 0x1
	MaskWrite     Mask = 0x2
	MaskReadWrite      = MaskRead | MaskWrite
)

func (m Mask) String() string {
	switch m & MaskReadWrite {
	case MaskRead:
		return "read"
	case MaskWrite:
		return "write"
	case MaskReadWrite:
		return "read|write"
	}
	return "none"
}

func (m Mask) events() poller.Event {
	var ev poller.Event
	if m&MaskRead != 0 {
		ev |= poller.EventRead
	}
	if m&MaskWrite != 0 {
		ev |= poller.EventWrite
	}
	return ev
}

type Action uint8

const (
	ActionNone Action = iota
	ActionClose
)

var (
	ErrInvalidHandle       = errors.New("evreactor: invalid handle")
	ErrNilHandler          = errors.New("evreactor: nil handler")
	ErrUncomparableHandler = errors.New("evreactor: handler type is not comparable")
	ErrNoInterest          = errors.New("evreactor: empty interest mask")
	ErrPollerFailure       = errors.New("evreactor: poller failure")
	ErrReactorClosed       = errors.New("evreactor: reactor closed")
	ErrConnectionClosed    = errors.New("evreactor: connection closed")
	ErrServerClosed        = errors.New("evreactor: server closed")
	ErrListenerFailed      = errors.New("evreactor: listener failed")
)

// Metrics receives reactor activity. *metrics.Collector implements it.
type Metrics interface {
	SetHandlers(n int)
	SetPendingTimers(n int)
	Dispatched(kind string)
	TimerFired()
	WaitError(fatal bool)
	CycleDone()
}

type noopMetrics struct{}

func (noopMetrics) SetHandlers(int)      {}
func (noopMetrics) SetPendingTimers(int) {}
func (noopMetrics) Dispatched(string)    {}
func (noopMetrics) TimerFired()          {}
func (noopMetrics) WaitError(bool)       {}
func (noopMetrics) CycleDone()           {}

const defaultMaxEvents = 128

type options struct {
	poller    poller.Poller
	clock     Clock
	metrics   Metrics
	maxEvents int
}

type Option func(*options)

// WithPoller replaces the platform poller. The reactor takes ownership of p and
// closes it in Close.
func WithPoller(p poller.Poller) Option {
	return func(o *options) {
		o.poller = p
	}
}

func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func WithMetrics(m Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithMaxEvents sets the initial readiness batch size. The batch grows when a
// wait fills it.
func WithMaxEvents(n int) Option {
	return func(o *options) {
		o.maxEvents = n
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }
