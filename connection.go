package evreactor

import (
	"bytes"
	"context"
	"net"
	"sync"
)

type Connection interface {
	Handle() Handle

	RemoteAddr() net.Addr

	LocalAddr() net.Addr

	Context() context.Context

	SetContext(context.Context)

	// Send queues data and arms write interest. With ActionClose the connection
	// is closed once everything queued has been written.
	Send([]byte, Action) error

	Close() error
}

// ConnectionHandler receives connection events on the reactor goroutine. The
// data passed to OnMessage is only valid during the call.
type ConnectionHandler interface {
	OnOpen(c Connection)
	OnMessage(c Connection, data []byte)
	OnClose(c Connection)
}

type defaultConnectionHandler struct{}

func (*defaultConnectionHandler) OnOpen(c Connection)                 {}
func (*defaultConnectionHandler) OnMessage(c Connection, data []byte) {}
func (*defaultConnectionHandler) OnClose(c Connection)                {}

var connBufferPool = newBufferPool()

func newBufferPool() *sync.Pool {
	return &sync.Pool{
		New: func() interface{} {
			return &bytes.Buffer{}
		},
	}
}
