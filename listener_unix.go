//go:build linux || darwin || freebsd || netbsd || dragonfly

package evreactor

import (
	"errors"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/dreamans/evreactor/evlog"
	"github.com/dreamans/evreactor/util"
)

// AcceptFunc receives a non-blocking accepted descriptor. It owns fd from then
// on and must close it if it cannot register a handler for it.
type AcceptFunc func(fd Handle, remote net.Addr)

// Listener is the acceptor: an EventHandler over a non-blocking listening
// socket. Register it with MaskRead; every readable notification accepts one
// pending connection.
type Listener struct {
	r        *Reactor
	ln       net.Listener
	file     *os.File
	fd       Handle
	onAccept AcceptFunc
	failed   bool
}

// NewListener listens on addr ("host:port", "tcp://host:port" or
// "unix:///path"). It does not register with r.
func NewListener(r *Reactor, addr string, onAccept AcceptFunc) (*Listener, error) {
	network, address := util.ParseListenerAddr(addr)
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		r:        r,
		ln:       ln,
		onAccept: onAccept,
	}
	if err := l.initNonblockFd(); err != nil {
		_ = ln.Close()
		return nil, err
	}
	return l, nil
}

func (l *Listener) GetHandle() Handle {
	return l.fd
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *Listener) HandleRead() {
	nfd, sa, err := unix.Accept(int(l.fd))
	if err != nil {
		if !util.IsWouldBlock(err) && !util.IsInterrupted(err) {
			evlog.Errorf("[unix.Accept]: %s", err.Error())
		}
		return
	}
	unix.CloseOnExec(nfd)
	if err := unix.SetNonblock(nfd, true); err != nil {
		_ = unix.Close(nfd)
		evlog.Errorf("[unix.SetNonblock]: %s", err.Error())
		return
	}

	remote := util.SockAddrToAddr(sa)
	evlog.Debugf("[Listener.HandleRead]: accepted fd %d from %v", nfd, remote)
	if l.onAccept == nil {
		_ = unix.Close(nfd)
		return
	}
	l.onAccept(Handle(nfd), remote)
}

func (l *Listener) HandleWrite() {}

// HandleError closes the failed listener and stops the reactor: without an
// acceptor there is nothing left to serve.
func (l *Listener) HandleError() {
	evlog.Errorf("[Listener.HandleError]: listening fd %d failed", l.fd)
	l.failed = true
	_ = l.Close()
	l.r.Stop()
}

// Failed reports whether the listener was closed by an error condition.
func (l *Listener) Failed() bool {
	return l.failed
}

// Close deregisters the listener and closes the socket once the current cycle
// is over.
func (l *Listener) Close() error {
	if l.file == nil {
		return ErrConnectionClosed
	}
	l.r.RemoveHandler(l)
	file, ln := l.file, l.ln
	l.file = nil
	l.r.Release(func() {
		_ = file.Close()
		_ = ln.Close()
	})
	return nil
}

func (l *Listener) initNonblockFd() error {
	fl, ok := l.ln.(interface{ File() (*os.File, error) })
	if !ok {
		return errors.New("evreactor: could not get listener file descriptor")
	}
	file, err := fl.File()
	if err != nil {
		return err
	}
	// Fd puts the file in blocking mode, so flip it back afterwards
	fd := int(file.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = file.Close()
		return err
	}
	l.file = file
	l.fd = Handle(fd)
	return nil
}
