package http

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
)

// errConnDone ends Serve once the single connection has been closed.
var errConnDone = errors.New("connection done")

// replayConn reads the already-consumed first line, then whatever the
// negotiator buffered, then the socket.
type replayConn struct {
	net.Conn
	r io.Reader

	once   sync.Once
	closed chan struct{}
}

func newReplayConn(conn net.Conn, firstLine string, r *bufio.Reader) *replayConn {
	var rest io.Reader = conn
	if r != nil {
		rest = r
	}
	return &replayConn{
		Conn:   conn,
		r:      io.MultiReader(strings.NewReader(firstLine), rest),
		closed: make(chan struct{}),
	}
}

func (c *replayConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *replayConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return c.Conn.Close()
}

// singleListener hands out one connection, then blocks until that connection
// or the listener is closed.
type singleListener struct {
	conn *replayConn

	mu       sync.Mutex
	accepted bool

	once sync.Once
	done chan struct{}
}

func newSingleListener(conn *replayConn) *singleListener {
	return &singleListener{conn: conn, done: make(chan struct{})}
}

func (l *singleListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if !l.accepted {
		l.accepted = true
		l.mu.Unlock()
		return l.conn, nil
	}
	l.mu.Unlock()

	select {
	case <-l.conn.closed:
	case <-l.done:
	}
	return nil, errConnDone
}

func (l *singleListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *singleListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}
