package tcp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pokeescape/pokeescape-server/internal/core"
)

const forestPayload = `{"name":"forest","features":null,"map":[]}`

type stubMaps map[string]string

func (m stubMaps) Render(name string) (string, error) {
	payload, ok := m[name]
	if !ok {
		return "", errors.New("no such map")
	}
	return payload, nil
}

func startCoordinator(t *testing.T) *core.Coordinator {
	t.Helper()

	coord := core.NewCoordinator(stubMaps{"forest": forestPayload}, nil, nil)
	go coord.Run(context.Background())
	t.Cleanup(func() {
		coord.Close()
		<-coord.Done()
	})
	return coord
}

func snapshot(t *testing.T, coord *core.Coordinator) core.Snapshot {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := coord.Snapshot(ctx)
	require.NoError(t, err)
	return s
}

// lineConn drives the client side of a connection line by line.
type lineConn struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func newLineConn(t *testing.T, conn net.Conn) *lineConn {
	return &lineConn{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *lineConn) send(line string) {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err, "send %q", line)
}

func (c *lineConn) readLine(timeout time.Duration) (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	line, err := c.r.ReadString('\n')
	return strings.TrimSuffix(line, "\n"), err
}

func (c *lineConn) expect(want string) {
	c.t.Helper()

	got, err := c.readLine(2 * time.Second)
	require.NoError(c.t, err, "waiting for %q", want)
	require.Equal(c.t, want, got)
}

// expectClosed asserts the peer closed the connection with nothing more to say.
func (c *lineConn) expectClosed() {
	c.t.Helper()

	got, err := c.readLine(2 * time.Second)
	require.ErrorIs(c.t, err, io.EOF, "unexpected line %q", got)
}
