//go:build linux

package poller

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/dreamans/evreactor/util"
)

const (
	readEvent  = unix.EPOLLIN | unix.EPOLLPRI | unix.EPOLLRDHUP
	writeEvent = unix.EPOLLOUT
)

var wakeWriteBytes = []byte{1, 0, 0, 0, 0, 0, 0, 0}

type Epoll struct {
	fd      int
	eventFd int
	events  []unix.EpollEvent
	wakeBuf [8]byte
	closed  util.AtomicBool
}

func New() (Poller, error) {
	return EpollCreate()
}

func EpollCreate() (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	ep := &Epoll{
		fd:      fd,
		eventFd: efd,
	}
	if err := ep.Add(efd, EventRead); err != nil {
		_ = unix.Close(fd)
		_ = unix.Close(efd)
		return nil, err
	}
	return ep, nil
}

func (ep *Epoll) Add(fd int, ev Event) error {
	return ep.ctl(unix.EPOLL_CTL_ADD, fd, ev)
}

func (ep *Epoll) Mod(fd int, ev Event) error {
	return ep.ctl(unix.EPOLL_CTL_MOD, fd, ev)
}

func (ep *Epoll) Del(fd int) error {
	if ep.closed.IsSet() {
		return ErrClosed
	}
	return unix.EpollCtl(ep.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (ep *Epoll) Wait(ready []Ready, timeout time.Duration) (int, error) {
	if ep.closed.IsSet() {
		return 0, ErrClosed
	}
	if len(ep.events) < len(ready) {
		ep.events = make([]unix.EpollEvent, len(ready))
	}

	n, err := unix.EpollWait(ep.fd, ep.events[:len(ready)], waitMillis(timeout))
	if err != nil {
		return 0, err
	}

	j := 0
	for i := 0; i < n; i++ {
		fd := int(ep.events[i].Fd)
		if fd == ep.eventFd {
			ep.drainWakeup()
			continue
		}
		ready[j] = Ready{Fd: fd, Events: translate(ep.events[i].Events)}
		j++
	}
	return j, nil
}

func (ep *Epoll) Wakeup() error {
	if ep.closed.IsSet() {
		return ErrClosed
	}
	_, err := unix.Write(ep.eventFd, wakeWriteBytes)
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (ep *Epoll) Close() error {
	if ep.closed.IsSet() {
		return ErrClosed
	}
	ep.closed.Set()
	_ = unix.Close(ep.eventFd)
	return unix.Close(ep.fd)
}

func (ep *Epoll) drainWakeup() {
	for {
		if _, err := unix.Read(ep.eventFd, ep.wakeBuf[:]); err != nil {
			return
		}
	}
}

func (ep *Epoll) ctl(op int, fd int, ev Event) error {
	if ep.closed.IsSet() {
		return ErrClosed
	}
	var events uint32
	if ev&EventRead != 0 {
		events |= readEvent
	}
	if ev&EventWrite != 0 {
		events |= writeEvent
	}
	return unix.EpollCtl(ep.fd, op, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	})
}

// translate maps epoll bits to Event. A hangup with input still pending is
// reported as readable so the handler can drain it and observe EOF itself.
func translate(e uint32) Event {
	var event Event
	if e&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP) != 0 {
		event |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		event |= EventWrite
	}
	if e&unix.EPOLLERR != 0 || (e&unix.EPOLLHUP != 0 && e&unix.EPOLLIN == 0) {
		event |= EventErr
	}
	return event
}
