//go:build linux || darwin || freebsd || netbsd || dragonfly

package evreactor

import (
	"bytes"
	"context"
	"net"

	"golang.org/x/sys/unix"

	"github.com/dreamans/evreactor/evlog"
	"github.com/dreamans/evreactor/util"
)

type fdContextKey struct{}

// Conn is a buffered connection handler over a non-blocking stream descriptor.
type Conn struct {
	fd         Handle
	r          *Reactor
	handler    ConnectionHandler
	writeBuf   *bytes.Buffer
	localAddr  net.Addr
	remoteAddr net.Addr
	ctx        context.Context
	action     Action
	closed     bool
}

// NewConn registers fd for reading and calls OnOpen. If registration fails the
// error is returned and fd still belongs to the caller.
func NewConn(r *Reactor, fd Handle, local, remote net.Addr, handler ConnectionHandler) (*Conn, error) {
	c := &Conn{
		fd:         fd,
		r:          r,
		handler:    handler,
		localAddr:  local,
		remoteAddr: remote,
		action:     ActionNone,
	}
	if handler == nil {
		c.handler = &defaultConnectionHandler{}
	}
	c.ctx = context.WithValue(context.Background(), fdContextKey{}, fd)

	if err := r.RegisterHandler(c, MaskRead); err != nil {
		return nil, err
	}
	c.writeBuf = connBufferPool.Get().(*bytes.Buffer)
	c.writeBuf.Reset()
	c.handler.OnOpen(c)

	evlog.Debugf("[NewConn]: loc %s <--> remote %s", c.LocalAddr(), c.RemoteAddr())
	return c, nil
}

func (c *Conn) GetHandle() Handle {
	return c.fd
}

func (c *Conn) Handle() Handle {
	return c.fd
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

func (c *Conn) LocalAddr() net.Addr {
	return c.localAddr
}

func (c *Conn) Context() context.Context {
	return c.ctx
}

func (c *Conn) SetContext(ctx context.Context) {
	c.ctx = ctx
}

func (c *Conn) Send(buffer []byte, action Action) error {
	if c.closed {
		return ErrConnectionClosed
	}
	if len(buffer) == 0 && action == ActionNone {
		return nil
	}
	c.writeBuf.Write(buffer)
	if action != ActionNone {
		c.action = action
	}
	return c.r.RegisterHandler(c, MaskReadWrite)
}

// Close deregisters the connection and calls OnClose. The descriptor is closed
// at the end of the current cycle.
func (c *Conn) Close() error {
	if c.closed {
		return ErrConnectionClosed
	}
	c.closed = true
	c.r.RemoveHandler(c)
	c.handler.OnClose(c)

	fd, buf := c.fd, c.writeBuf
	c.writeBuf = nil
	c.r.Release(func() {
		if err := unix.Close(int(fd)); err != nil {
			evlog.Errorf("[unix.Close]: %s", err.Error())
		}
		connBufferPool.Put(buf)
	})

	evlog.Debugf("[Conn.Close]: loc %s <-x-> remote %s", c.LocalAddr(), c.RemoteAddr())
	return nil
}

func (c *Conn) HandleRead() {
	buf := c.r.PacketBuf()
	n, err := unix.Read(int(c.fd), buf)
	if err != nil {
		if util.IsWouldBlock(err) || util.IsInterrupted(err) {
			return
		}
		evlog.Errorf("[unix.Read]: %s", err.Error())
		_ = c.Close()
		return
	}
	if n == 0 {
		_ = c.Close()
		return
	}

	evlog.Debugf("[Conn.HandleRead]: loc %s <- remote %s, len {%d}", c.LocalAddr(), c.RemoteAddr(), n)
	c.handler.OnMessage(c, buf[:n])
}

func (c *Conn) HandleWrite() {
	if c.writeBuf.Len() > 0 {
		n, err := unix.Write(int(c.fd), c.writeBuf.Bytes())
		if err != nil {
			if util.IsWouldBlock(err) || util.IsInterrupted(err) {
				return
			}
			evlog.Errorf("[unix.Write]: %s", err.Error())
			_ = c.Close()
			return
		}
		evlog.Debugf("[Conn.HandleWrite]: loc %s -> remote %s, len {%d}", c.LocalAddr(), c.RemoteAddr(), n)
		c.writeBuf.Next(n)
	}
	if c.writeBuf.Len() > 0 {
		return
	}

	if c.action == ActionClose {
		_ = c.Close()
		return
	}
	if err := c.r.RegisterHandler(c, MaskRead); err != nil {
		evlog.Errorf("[reactor.RegisterHandler]: %s", err.Error())
		_ = c.Close()
	}
}

func (c *Conn) HandleError() {
	_ = c.Close()
}
