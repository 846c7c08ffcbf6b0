package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pokeescape/pokeescape-server/internal/proto"
)

// ConnHandler takes over a connection whose first line looked like HTTP.
// firstLine is the line already consumed and r holds anything buffered after
// it.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn net.Conn, firstLine string, r *bufio.Reader) error
}

// negotiate reads the first line of conn and routes the connection.
func (s *Server) negotiate(ctx context.Context, conn net.Conn, logger *zerolog.Logger) error {
	r := bufio.NewReader(conn)

	if s.opts.HandshakeTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout)); err != nil {
			return fmt.Errorf("set handshake deadline: %w", err)
		}
	}
	line, err := r.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		s.metrics.Handshake("failed")
		return fmt.Errorf("read first line: %w", err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("clear handshake deadline: %w", err)
	}
	logger.Debug().Str("line", strings.TrimSpace(line)).Msg("got first line")

	route := proto.Classify(line)
	switch route {
	case proto.RouteSession:
		if _, err := io.WriteString(conn, proto.Greeting()); err != nil {
			return fmt.Errorf("write greeting: %w", err)
		}
		v, err := proto.ClientVersion(line)
		if err != nil {
			s.metrics.Handshake("malformed")
			return err
		}
		if !proto.Compatible(v) {
			s.metrics.Handshake("unsupported")
			logger.Info().Str("client_version", v.String()).Msg("client version not supported")
			return writeMismatch(conn)
		}
		s.metrics.Handshake(route.String())
		logger.Debug().Str("client_version", v.String()).Msg("client connected")

		return NewSession(conn, r, s.coord, s.opts.Session, logger, s.metrics).Run(ctx)

	case proto.RouteHTTP:
		if s.http == nil {
			s.metrics.Handshake(proto.RouteMismatch.String())
			return writeMismatch(conn)
		}
		s.metrics.Handshake(route.String())
		return s.http.ServeConn(ctx, conn, line, r)

	default:
		s.metrics.Handshake(route.String())
		return writeMismatch(conn)
	}
}

func writeMismatch(w io.Writer) error {
	if _, err := io.WriteString(w, proto.ReplyMismatch); err != nil {
		return fmt.Errorf("write mismatch: %w", err)
	}
	return nil
}
