package evreactor

import (
	"errors"
	"sync"
	"syscall"
	"time"

	"github.com/dreamans/evreactor/poller"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// waitStep is one scripted result of fakePoller.Wait.
type waitStep struct {
	advance time.Duration
	ready   []poller.Ready
	err     error
}

var errBlockedForever = errors.New("fake poller: wait without timeout and nothing scripted")

// fakePoller replays scripted waits. Without a script it advances the clock by
// the requested timeout, as a real wait that timed out would.
type fakePoller struct {
	clock    *fakeClock
	interest map[int]poller.Event
	reject   map[int]error
	script   []waitStep
	timeouts []time.Duration
	wake     chan struct{}
	closed   bool

	mu     sync.Mutex
	wakeup int
}

func newFakePoller(clock *fakeClock) *fakePoller {
	return &fakePoller{
		clock:    clock,
		interest: make(map[int]poller.Event),
		reject:   make(map[int]error),
		wake:     make(chan struct{}, 1),
	}
}

func (p *fakePoller) Add(fd int, ev poller.Event) error {
	if err, ok := p.reject[fd]; ok {
		return err
	}
	if _, ok := p.interest[fd]; ok {
		return syscall.EEXIST
	}
	p.interest[fd] = ev
	return nil
}

func (p *fakePoller) Mod(fd int, ev poller.Event) error {
	if _, ok := p.interest[fd]; !ok {
		return syscall.ENOENT
	}
	p.interest[fd] = ev
	return nil
}

func (p *fakePoller) Del(fd int) error {
	if _, ok := p.interest[fd]; !ok {
		return syscall.ENOENT
	}
	delete(p.interest, fd)
	return nil
}

func (p *fakePoller) push(steps ...waitStep) {
	p.script = append(p.script, steps...)
}

func (p *fakePoller) Wait(ready []poller.Ready, timeout time.Duration) (int, error) {
	p.timeouts = append(p.timeouts, timeout)
	if len(p.script) == 0 {
		if timeout >= 0 {
			p.clock.Advance(timeout)
			return 0, nil
		}
		select {
		case <-p.wake:
			return 0, nil
		case <-time.After(5 * time.Second):
			return 0, errBlockedForever
		}
	}

	step := p.script[0]
	p.script = p.script[1:]
	p.clock.Advance(step.advance)
	if step.err != nil {
		return 0, step.err
	}
	return copy(ready, step.ready), nil
}

func (p *fakePoller) Wakeup() error {
	p.mu.Lock()
	p.wakeup++
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

func (p *fakePoller) Close() error {
	p.closed = true
	return nil
}

// recorder is an EventHandler that logs its callbacks and runs optional hooks.
type recorder struct {
	fd      Handle
	name    string
	log     *[]string
	onRead  func()
	onWrite func()
	onError func()
}

func newRecorder(fd Handle, name string, log *[]string) *recorder {
	return &recorder{fd: fd, name: name, log: log}
}

func (h *recorder) GetHandle() Handle { return h.fd }

func (h *recorder) HandleRead() {
	*h.log = append(*h.log, h.name+":read")
	if h.onRead != nil {
		h.onRead()
	}
}

func (h *recorder) HandleWrite() {
	*h.log = append(*h.log, h.name+":write")
	if h.onWrite != nil {
		h.onWrite()
	}
}

func (h *recorder) HandleError() {
	*h.log = append(*h.log, h.name+":error")
	if h.onError != nil {
		h.onError()
	}
}

func ready(fd Handle, ev poller.Event) poller.Ready {
	return poller.Ready{Fd: int(fd), Events: ev}
}

func newTestReactor(opts ...Option) (*Reactor, *fakePoller, *fakeClock) {
	clock := newFakeClock()
	p := newFakePoller(clock)
	opts = append([]Option{WithPoller(p), WithClock(clock)}, opts...)
	r, err := NewReactor(opts...)
	if err != nil {
		panic(err)
	}
	return r, p, clock
}
