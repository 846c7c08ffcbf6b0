package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pokeescape/pokeescape-server/internal/metrics"
	"github.com/pokeescape/pokeescape-server/internal/transport/tcp"
)

// WSHandler upgrades HTTP connections and runs the line protocol over them.
// Each text frame carries one command; each reply goes out as one text frame
// without the trailing newline.
type WSHandler struct {
	coord   tcp.Coordinator
	cfg     tcp.SessionConfig
	log     *zerolog.Logger
	metrics *metrics.Metrics
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(coord tcp.Coordinator, cfg tcp.SessionConfig, logger *zerolog.Logger, m *metrics.Metrics) stdhttp.Handler {
	return &WSHandler{coord: coord, cfg: cfg, log: logger, metrics: m}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	logger := h.log.With().Str("ws_id", uuid.NewString()).Logger()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	pr, pw := io.Pipe()
	stream := &wsStream{ctx: ctx, conn: conn, r: pr}
	session := tcp.NewSession(stream, nil, h.coord, h.cfg, &logger, h.metrics)

	readErr := make(chan error, 1)
	go func() {
		readErr <- h.readLoop(ctx, conn, pw)
	}()

	err = session.Run(ctx)

	status := websocket.StatusNormalClosure
	reason := "bye"
	if err != nil && !errors.Is(err, context.Canceled) {
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		} else {
			status = websocket.StatusInternalError
		}
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			reason = "session error"
			logger.Warn().Err(err).Msg("ws session ended with error")
		}
	}

	// Closing the pipe first stops the read loop from blocking on a session
	// that no longer reads.
	_ = pr.Close()
	_ = conn.Close(status, reason)
	cancel()
	<-readErr
}

// readLoop copies text frames into the session's input, one line per frame.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, pw *io.PipeWriter) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			_ = pw.Close()
			return err
		}
		if typ != websocket.MessageText {
			h.log.Debug().Str("type", typ.String()).Msg("ignoring non-text frame")
			continue
		}
		if !bytes.HasSuffix(data, []byte("\n")) {
			data = append(data, '\n')
		}
		if _, err := pw.Write(data); err != nil {
			return err
		}
	}
}

// wsStream is the session's view of a websocket: reads come from the frame
// pipe, writes become text frames.
type wsStream struct {
	ctx  context.Context
	conn *websocket.Conn
	r    io.Reader
}

func (s *wsStream) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.Write(s.ctx, websocket.MessageText, bytes.TrimSuffix(p, []byte("\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
