// Package tcp serves the game port: it accepts connections, negotiates the
// protocol on the first line and runs line-protocol sessions.
package tcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pokeescape/pokeescape-server/internal/metrics"
	"github.com/pokeescape/pokeescape-server/internal/pool"
)

// Executor runs connection tasks. *pool.Pool satisfies it.
type Executor interface {
	Execute(task pool.Task) error
}

// Options configures a Server.
type Options struct {
	// HandshakeTimeout bounds the wait for the first line. Zero waits forever.
	HandshakeTimeout time.Duration
	Session          SessionConfig
}

// Server hands every accepted connection to the executor as one task that
// lives as long as the connection.
type Server struct {
	opts    Options
	coord   Coordinator
	exec    Executor
	http    ConnHandler
	log     *zerolog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[string]net.Conn
}

// NewServer builds a server. httpHandler may be nil, in which case HTTP
// requests get the mismatch reply.
func NewServer(opts Options, coord Coordinator, exec Executor, httpHandler ConnHandler, logger *zerolog.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:    opts,
		coord:   coord,
		exec:    exec,
		http:    httpHandler,
		log:     logger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[string]net.Conn),
	}
}

// Serve accepts connections until ln is closed. Accept errors other than a
// closed listener are logged and retried with backoff.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(delay*2, time.Second)
			}
			s.log.Error().Err(err).Dur("retry_in", delay).Msg("accept failed")
			time.Sleep(delay)
			continue
		}
		delay = 0
		s.dispatch(conn)
	}
}

func (s *Server) dispatch(conn net.Conn) {
	id := uuid.NewString()
	logger := s.log.With().Str("conn_id", id).Str("remote", conn.RemoteAddr().String()).Logger()

	if !s.track(id, conn) {
		_ = conn.Close()
		return
	}

	err := s.exec.Execute(func() {
		defer s.untrack(id)
		defer conn.Close()

		if err := s.negotiate(s.ctx, conn, &logger); err != nil {
			logger.Warn().Err(err).Msg("connection ended with error")
			return
		}
		logger.Debug().Msg("connection closed")
	})
	if err != nil {
		logger.Warn().Err(err).Msg("could not schedule connection")
		s.untrack(id)
		_ = conn.Close()
	}
}

// track records conn unless the server is already closing.
func (s *Server) track(id string, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[id] = conn
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

// Connections returns the number of connections accepted and not yet closed,
// queued ones included.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// CloseConnections cancels every running session and closes every tracked
// connection. Connections accepted afterwards are closed immediately. It
// returns how many connections were closed.
func (s *Server) CloseConnections() int {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.conns)
	for id, conn := range s.conns {
		if err := conn.Close(); err != nil {
			s.log.Debug().Err(err).Str("conn_id", id).Msg("close connection")
		}
	}
	return n
}
