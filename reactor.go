package evreactor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/eapache/queue"

	"github.com/dreamans/evreactor/evlog"
	"github.com/dreamans/evreactor/poller"
	"github.com/dreamans/evreactor/timer"
	"github.com/dreamans/evreactor/util"
)

type registration struct {
	handler EventHandler
	mask    Mask
	// cycle in which handler was attached; such a registration is not visited
	// until the next cycle.
	cycle uint64
}

// Reactor is not safe for concurrent use. Every method except Stop must be
// called from the goroutine that runs HandleEvents, or from a callback it is
// dispatching.
//
// One HandleEvents call is one cycle: a bounded wait, then readiness dispatch,
// then expired timers in ascending expiry order, then the release queue.
type Reactor struct {
	poll     poller.Poller
	clock    Clock
	metrics  Metrics
	handlers map[Handle]*registration
	timers   *timer.Heap
	ready    []poller.Ready
	packet   []byte
	releases *queue.Queue
	cycle    uint64
	stopped  util.AtomicBool
	closed   bool
}

func NewReactor(opts ...Option) (*Reactor, error) {
	o := options{
		clock:     wallClock{},
		metrics:   noopMetrics{},
		maxEvents: defaultMaxEvents,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxEvents <= 0 {
		o.maxEvents = defaultMaxEvents
	}
	if o.poller == nil {
		poll, err := poller.New()
		if err != nil {
			return nil, err
		}
		o.poller = poll
	}

	return &Reactor{
		poll:     o.poller,
		clock:    o.clock,
		metrics:  o.metrics,
		handlers: make(map[Handle]*registration),
		timers:   timer.NewHeap(),
		ready:    make([]poller.Ready, o.maxEvents),
		packet:   make([]byte, 0xFFFF),
		releases: queue.New(),
	}, nil
}

// RegisterHandler attaches handler to its handle with the given interest, or
// updates the interest of an existing registration. Registering a different
// handler for an already registered handle replaces the handler; the new one is
// not dispatched to before the next cycle. On error nothing changed.
func (r *Reactor) RegisterHandler(handler EventHandler, mask Mask) error {
	if r.closed {
		return ErrReactorClosed
	}
	if handler == nil {
		return ErrNilHandler
	}
	if !isComparable(handler) {
		return ErrUncomparableHandler
	}
	fd := handler.GetHandle()
	if !fd.Valid() {
		return ErrInvalidHandle
	}
	mask &= MaskReadWrite
	if mask == MaskNone {
		return ErrNoInterest
	}

	if reg, ok := r.handlers[fd]; ok {
		if reg.mask != mask {
			if err := r.poll.Mod(int(fd), mask.events()); err != nil {
				return fmt.Errorf("evreactor: modify fd %d: %w", fd, err)
			}
			reg.mask = mask
		}
		if reg.handler != handler {
			reg.handler = handler
			reg.cycle = r.cycle
		}
		evlog.Debugf("[reactor.RegisterHandler]: fd %d interest %s", fd, mask)
		return nil
	}

	if err := r.poll.Add(int(fd), mask.events()); err != nil {
		return fmt.Errorf("evreactor: add fd %d: %w", fd, err)
	}
	r.handlers[fd] = &registration{
		handler: handler,
		mask:    mask,
		cycle:   r.cycle,
	}
	r.metrics.SetHandlers(len(r.handlers))
	evlog.Debugf("[reactor.RegisterHandler]: fd %d interest %s (new)", fd, mask)
	return nil
}

// RemoveHandler detaches handler. It is a no-op when the handle is not
// registered or is registered to another handler. Neither the descriptor nor
// the handler is touched; release them after this returns. Calling it from the
// handler's own callback is safe: nothing further is dispatched to it.
func (r *Reactor) RemoveHandler(handler EventHandler) {
	if handler == nil || !isComparable(handler) {
		return
	}
	fd := handler.GetHandle()
	reg, ok := r.handlers[fd]
	if !ok || reg.handler != handler {
		return
	}
	delete(r.handlers, fd)
	r.metrics.SetHandlers(len(r.handlers))

	if err := r.poll.Del(int(fd)); err != nil {
		// already closed descriptors leave epoll on their own
		evlog.Debugf("[reactor.RemoveHandler]: fd %d: %s", fd, err.Error())
	}
}

// RegisterTimerTask schedules task to run once, task.Delay from now. A delay of
// zero or less runs on the next cycle; registration never runs the callback.
func (r *Reactor) RegisterTimerTask(task *TimerTask) TimerID {
	if task == nil {
		return 0
	}
	delay := task.Delay
	if delay < 0 {
		delay = 0
	}
	id := r.timers.Insert(&timer.Task{
		Expiry:   r.clock.Now().Add(delay),
		Callback: task.Callback,
		Data:     task.Data,
	})
	r.metrics.SetPendingTimers(r.timers.Len())
	return TimerID(id)
}

// CancelTimerTask removes a pending timer. It reports false if the timer
// already fired or was cancelled.
func (r *Reactor) CancelTimerTask(id TimerID) bool {
	ok := r.timers.Cancel(uint64(id))
	if ok {
		r.metrics.SetPendingTimers(r.timers.Len())
	}
	return ok
}

// Release queues fn to run at the end of the current cycle, after every
// dispatch. Handlers close their descriptors through it so a descriptor number
// cannot be reused while the cycle still holds readiness for it.
func (r *Reactor) Release(fn func()) {
	if fn != nil {
		r.releases.Add(fn)
	}
}

// PacketBuf is a scratch read buffer shared by every handler of this reactor.
// Its contents are valid only until the callback returns.
func (r *Reactor) PacketBuf() []byte {
	return r.packet
}

// HandleEvents runs one cycle. It blocks until a handle is ready, the nearest
// timer expires or Stop is called. Interrupted waits are retried; any other
// failure of the readiness primitive is returned wrapped in ErrPollerFailure
// and should end the loop.
func (r *Reactor) HandleEvents() error {
	if r.closed {
		return ErrReactorClosed
	}
	r.cycle++
	mark := r.timers.LastID()

	n, err := r.wait()
	if err != nil {
		return err
	}
	now := r.clock.Now()

	for i := 0; i < n; i++ {
		r.dispatch(r.ready[i])
	}
	r.expire(now, mark)
	r.runReleases()

	// the wakeup descriptor takes a slot without being counted in n
	if n >= len(r.ready)-1 {
		r.grow()
	}
	r.metrics.CycleDone()
	return nil
}

// Run calls HandleEvents until Stop is called, ctx is done or the poller fails.
func (r *Reactor) Run(ctx context.Context) error {
	defer r.stopped.Unset()
	if ctx.Done() != nil {
		cancel := context.AfterFunc(ctx, r.Stop)
		defer cancel()
	}
	for !r.stopped.IsSet() {
		if err := r.HandleEvents(); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Stop makes Run return after the current cycle, or makes the next Run return
// without waiting. It is the only method that may be called from another
// goroutine.
func (r *Reactor) Stop() {
	r.stopped.Set()
	if err := r.poll.Wakeup(); err != nil && !errors.Is(err, poller.ErrClosed) {
		evlog.Errorf("[reactor.Stop]: %s", err.Error())
	}
}

// Close drains the release queue, forgets every registration and timer, and
// closes the poller. No handler callback is invoked.
func (r *Reactor) Close() error {
	if r.closed {
		return ErrReactorClosed
	}
	r.closed = true
	r.runReleases()
	r.handlers = make(map[Handle]*registration)
	r.timers = timer.NewHeap()
	return r.poll.Close()
}

func (r *Reactor) Len() int {
	return len(r.handlers)
}

func (r *Reactor) Registered(fd Handle) bool {
	_, ok := r.handlers[fd]
	return ok
}

func (r *Reactor) Interest(fd Handle) (Mask, bool) {
	reg, ok := r.handlers[fd]
	if !ok {
		return MaskNone, false
	}
	return reg.mask, true
}

func (r *Reactor) PendingTimers() int {
	return r.timers.Len()
}

func (r *Reactor) wait() (int, error) {
	for {
		n, err := r.poll.Wait(r.ready, r.timeout())
		if err == nil {
			return n, nil
		}
		if util.IsInterrupted(err) {
			r.metrics.WaitError(false)
			continue
		}
		r.metrics.WaitError(true)
		evlog.Errorf("[poller.Wait]: %s", err.Error())
		return 0, fmt.Errorf("%w: %w", ErrPollerFailure, err)
	}
}

// timeout is the time left until the nearest timer, or -1 without timers.
func (r *Reactor) timeout() time.Duration {
	expiry, ok := r.timers.PeekMin()
	if !ok {
		return -1
	}
	d := expiry.Sub(r.clock.Now())
	if d < 0 {
		d = 0
	}
	return d
}

// lookup returns the registration for fd if it may be dispatched to in this
// cycle.
func (r *Reactor) lookup(fd Handle) *registration {
	reg, ok := r.handlers[fd]
	if !ok || reg.cycle == r.cycle {
		return nil
	}
	return reg
}

func (r *Reactor) dispatch(rd poller.Ready) {
	fd := Handle(rd.Fd)
	reg := r.lookup(fd)
	if reg == nil {
		return
	}

	if rd.Events&poller.EventErr != 0 {
		r.metrics.Dispatched("error")
		reg.handler.HandleError()
		return
	}
	if rd.Events&poller.EventRead != 0 && reg.mask&MaskRead != 0 {
		r.metrics.Dispatched("read")
		reg.handler.HandleRead()
	}
	// HandleRead may have removed or replaced the registration
	if reg = r.lookup(fd); reg == nil {
		return
	}
	if rd.Events&poller.EventWrite != 0 && reg.mask&MaskWrite != 0 {
		r.metrics.Dispatched("write")
		reg.handler.HandleWrite()
	}
}

// expire runs the timers due at now. Timers inserted after mark, including those
// added by callbacks running in this cycle, wait for a later cycle.
func (r *Reactor) expire(now time.Time, mark uint64) {
	for {
		task := r.timers.Min()
		if task == nil || task.Expiry.After(now) || task.ID() > mark {
			break
		}
		r.timers.PopMin()
		r.metrics.TimerFired()
		if task.Callback != nil {
			task.Callback(task.Data)
		}
	}
	r.metrics.SetPendingTimers(r.timers.Len())
}

func (r *Reactor) grow() {
	size := len(r.ready) + len(r.ready)/2
	if size <= len(r.ready) {
		size = len(r.ready) + 1
	}
	r.ready = make([]poller.Ready, size)
}

// isComparable reports whether h can be compared with ==. Handlers whose
// dynamic type holds a slice, map or func would panic.
func isComparable(h EventHandler) bool {
	return reflect.TypeOf(h).Comparable()
}

func (r *Reactor) runReleases() {
	for r.releases.Length() > 0 {
		r.releases.Remove().(func())()
	}
}
