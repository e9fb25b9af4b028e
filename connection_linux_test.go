//go:build linux

package evreactor

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// cycle runs one HandleEvents bounded by a guard timer.
func cycle(t *testing.T, r *Reactor) {
	t.Helper()
	guard := r.RegisterTimerTask(NewTimerTask(2*time.Second, func(interface{}) {
		t.Error("cycle timed out")
	}, nil))
	require.NoError(t, r.HandleEvents())
	r.CancelTimerTask(guard)
}

type replyHandler struct {
	opened   int
	closed   int
	messages []string
}

func (h *replyHandler) OnOpen(c Connection) { h.opened++ }

func (h *replyHandler) OnMessage(c Connection, data []byte) {
	msg := string(data)
	h.messages = append(h.messages, msg)
	switch msg {
	case "time":
		_ = c.Send([]byte("current time: fixed\r\n"), ActionNone)
	case "bye":
		_ = c.Send([]byte("bye\r\n"), ActionClose)
	case "exit":
		_ = c.Close()
	}
}

func (h *replyHandler) OnClose(c Connection) { h.closed++ }

type server struct {
	r       *Reactor
	ln      *Listener
	handler *replyHandler
	conns   []*Conn
}

func newServer(t *testing.T) *server {
	t.Helper()
	r, err := NewReactor()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	s := &server{r: r, handler: &replyHandler{}}
	s.ln, err = NewListener(r, "tcp://127.0.0.1:0", func(fd Handle, remote net.Addr) {
		c, err := NewConn(r, fd, s.ln.Addr(), remote, s.handler)
		if err != nil {
			_ = unix.Close(int(fd))
			t.Errorf("NewConn: %v", err)
			return
		}
		s.conns = append(s.conns, c)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.ln.Close() })
	require.NoError(t, r.RegisterHandler(s.ln, MaskRead))
	return s
}

func (s *server) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", s.ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	cycle(t, s.r)
	require.NotEmpty(t, s.conns)
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	return conn
}

func TestListenerAcceptRegistersConnection(t *testing.T) {
	s := newServer(t)
	client := s.dial(t)

	require.Len(t, s.conns, 1)
	c := s.conns[0]
	assert.Equal(t, 2, s.r.Len())
	mask, ok := s.r.Interest(c.Handle())
	require.True(t, ok)
	assert.Equal(t, MaskRead, mask)
	assert.Equal(t, 1, s.handler.opened)
	assert.Equal(t, client.LocalAddr().String(), c.RemoteAddr().String())
	assert.Equal(t, s.ln.Addr().String(), c.LocalAddr().String())
	assert.Equal(t, c.Handle(), c.Context().Value(fdContextKey{}))
}

func TestConnReplyThenExit(t *testing.T) {
	s := newServer(t)
	client := s.dial(t)
	c := s.conns[0]

	_, err := client.Write([]byte("time"))
	require.NoError(t, err)
	cycle(t, s.r)
	mask, _ := s.r.Interest(c.Handle())
	assert.Equal(t, MaskReadWrite, mask)

	cycle(t, s.r)
	mask, _ = s.r.Interest(c.Handle())
	assert.Equal(t, MaskRead, mask)

	buf := make([]byte, 64)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "current time: fixed\r\n", string(buf[:n]))

	_, err = client.Write([]byte("exit"))
	require.NoError(t, err)
	cycle(t, s.r)
	assert.False(t, s.r.Registered(c.Handle()))
	assert.Equal(t, 1, s.handler.closed)
	assert.Equal(t, []string{"time", "exit"}, s.handler.messages)
	assert.Equal(t, ErrConnectionClosed, c.Send([]byte("late"), ActionNone))
	assert.Equal(t, ErrConnectionClosed, c.Close())

	_, err = client.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestConnSendWithCloseAction(t *testing.T) {
	s := newServer(t)
	client := s.dial(t)
	c := s.conns[0]

	_, err := client.Write([]byte("bye"))
	require.NoError(t, err)
	cycle(t, s.r)
	cycle(t, s.r)
	assert.False(t, s.r.Registered(c.Handle()))
	assert.Equal(t, 1, s.handler.closed)

	data, err := io.ReadAll(client)
	require.NoError(t, err)
	assert.Equal(t, "bye\r\n", string(data))
}

func TestConnPeerClose(t *testing.T) {
	s := newServer(t)
	client := s.dial(t)
	c := s.conns[0]

	require.NoError(t, client.Close())
	cycle(t, s.r)
	assert.False(t, s.r.Registered(c.Handle()))
	assert.Equal(t, 1, s.handler.closed)
	assert.Empty(t, s.handler.messages)
}

func TestListenerClose(t *testing.T) {
	s := newServer(t)
	require.NoError(t, s.ln.Close())
	assert.Equal(t, ErrConnectionClosed, s.ln.Close())
	assert.Equal(t, 0, s.r.Len())
}
