//go:build linux || darwin || freebsd || netbsd || dragonfly

package evreactor

import (
	"context"
	"net"

	"golang.org/x/sys/unix"

	"github.com/dreamans/evreactor/evlog"
	"github.com/dreamans/evreactor/util"
)

// Server couples a Listener with buffered connections on one reactor. Every
// accepted descriptor becomes a Conn driven by handler.
type Server struct {
	r          *Reactor
	addr       string
	handler    ConnectionHandler
	ln         *Listener
	inShutdown util.AtomicBool
}

func NewServer(r *Reactor, addr string, handler ConnectionHandler) *Server {
	return &Server{
		r:       r,
		addr:    addr,
		handler: handler,
	}
}

// Start listens and registers the acceptor. Connections are served by whoever
// drives the reactor.
func (srv *Server) Start() error {
	if srv.inShutdown.IsSet() {
		return ErrServerClosed
	}
	if srv.ln != nil {
		return nil
	}
	return srv.initListener(srv.addr)
}

// Serve starts the server and runs the reactor until ctx is done, Shutdown is
// called, the poller fails or the listening socket fails. The listener is
// closed on return.
func (srv *Server) Serve(ctx context.Context) error {
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.closeListener()
	if err := srv.r.Run(ctx); err != nil {
		return err
	}
	if srv.ln.Failed() {
		return ErrListenerFailed
	}
	return nil
}

// Shutdown stops the reactor loop started by Serve. It may be called from
// another goroutine.
func (srv *Server) Shutdown() error {
	if srv.inShutdown.IsSet() {
		return ErrServerClosed
	}
	srv.inShutdown.Set()
	srv.r.Stop()
	return nil
}

func (srv *Server) Addr() net.Addr {
	if srv.ln == nil {
		return nil
	}
	return srv.ln.Addr()
}

func (srv *Server) initListener(addr string) error {
	l, err := NewListener(srv.r, addr, srv.newConnHandler)
	if err != nil {
		return err
	}
	if err := srv.r.RegisterHandler(l, MaskRead); err != nil {
		_ = l.Close()
		return err
	}
	srv.ln = l
	return nil
}

func (srv *Server) closeListener() {
	if srv.ln == nil {
		return
	}
	if err := srv.ln.Close(); err != nil {
		evlog.Debugf("[Server.closeListener]: %s", err.Error())
	}
	srv.r.runReleases()
}

func (srv *Server) newConnHandler(fd Handle, remote net.Addr) {
	if _, err := NewConn(srv.r, fd, srv.ln.Addr(), remote, srv.handler); err != nil {
		evlog.Errorf("[Server.newConnHandler]: %s", err.Error())
		_ = unix.Close(int(fd))
	}
}
