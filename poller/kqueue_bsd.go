//go:build darwin || freebsd || netbsd || dragonfly

package poller

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/dreamans/evreactor/util"
)

const wakeIdent = 0

type KQueue struct {
	fd       int
	events   []unix.Kevent_t
	interest map[int]Event
	closed   util.AtomicBool
}

func New() (Poller, error) {
	return KQueueCreate()
}

func KQueueCreate() (*KQueue, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(fd)

	var wake unix.Kevent_t
	unix.SetKevent(&wake, wakeIdent, unix.EVFILT_USER, unix.EV_ADD|unix.EV_CLEAR)
	if _, err := unix.Kevent(fd, []unix.Kevent_t{wake}, nil, nil); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return &KQueue{
		fd:       fd,
		interest: make(map[int]Event),
	}, nil
}

func (kq *KQueue) Add(fd int, ev Event) error {
	if err := kq.apply(fd, 0, ev); err != nil {
		return err
	}
	kq.interest[fd] = ev
	return nil
}

func (kq *KQueue) Mod(fd int, ev Event) error {
	old, ok := kq.interest[fd]
	if !ok {
		return unix.ENOENT
	}
	if err := kq.apply(fd, old, ev); err != nil {
		return err
	}
	kq.interest[fd] = ev
	return nil
}

func (kq *KQueue) Del(fd int) error {
	old, ok := kq.interest[fd]
	if !ok {
		return unix.ENOENT
	}
	delete(kq.interest, fd)
	return kq.apply(fd, old, 0)
}

func (kq *KQueue) Wait(ready []Ready, timeout time.Duration) (int, error) {
	if kq.closed.IsSet() {
		return 0, ErrClosed
	}
	if len(kq.events) < len(ready) {
		kq.events = make([]unix.Kevent_t, len(ready))
	}

	var ts *unix.Timespec
	if ms := waitMillis(timeout); ms >= 0 {
		t := unix.NsecToTimespec(int64(ms) * int64(time.Millisecond))
		ts = &t
	}

	n, err := unix.Kevent(kq.fd, nil, kq.events[:len(ready)], ts)
	if err != nil {
		return 0, err
	}

	j := 0
	for i := 0; i < n; i++ {
		ev := kq.events[i]
		if ev.Filter == unix.EVFILT_USER {
			continue
		}
		var event Event
		switch {
		case ev.Flags&unix.EV_ERROR != 0:
			event = EventErr
		case ev.Filter == unix.EVFILT_READ:
			event = EventRead
			if ev.Flags&unix.EV_EOF != 0 && ev.Data == 0 {
				event = EventErr
			}
		case ev.Filter == unix.EVFILT_WRITE:
			event = EventWrite
			if ev.Flags&unix.EV_EOF != 0 {
				event = EventErr
			}
		}
		ready[j] = Ready{Fd: int(ev.Ident), Events: event}
		j++
	}
	return j, nil
}

func (kq *KQueue) Wakeup() error {
	if kq.closed.IsSet() {
		return ErrClosed
	}
	var wake unix.Kevent_t
	unix.SetKevent(&wake, wakeIdent, unix.EVFILT_USER, 0)
	wake.Fflags = unix.NOTE_TRIGGER
	_, err := unix.Kevent(kq.fd, []unix.Kevent_t{wake}, nil, nil)
	return err
}

func (kq *KQueue) Close() error {
	if kq.closed.IsSet() {
		return ErrClosed
	}
	kq.closed.Set()
	return unix.Close(kq.fd)
}

// apply turns the filter set for fd from old into ev.
func (kq *KQueue) apply(fd int, old, ev Event) error {
	if kq.closed.IsSet() {
		return ErrClosed
	}
	var changes []unix.Kevent_t
	change := func(filter, flags int) {
		var k unix.Kevent_t
		unix.SetKevent(&k, fd, filter, flags)
		changes = append(changes, k)
	}
	for _, f := range []struct {
		bit    Event
		filter int
	}{
		{EventRead, unix.EVFILT_READ},
		{EventWrite, unix.EVFILT_WRITE},
	} {
		switch {
		case ev&f.bit != 0 && old&f.bit == 0:
			change(f.filter, unix.EV_ADD)
		case ev&f.bit == 0 && old&f.bit != 0:
			change(f.filter, unix.EV_DELETE)
		}
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(kq.fd, changes, nil, nil)
	return err
}
