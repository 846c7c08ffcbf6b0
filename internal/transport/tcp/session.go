package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/pokeescape/pokeescape-server/internal/core"
	"github.com/pokeescape/pokeescape-server/internal/metrics"
	"github.com/pokeescape/pokeescape-server/internal/proto"
)

// Coordinator is where sessions send their messages.
type Coordinator interface {
	Send(msg core.Message) error
}

// SessionConfig tunes a session.
type SessionConfig struct {
	// IdleTimeout bounds the wait for each line and for a map reply. Zero
	// waits forever.
	IdleTimeout time.Duration
	// CloseOnDisconnect sends Close to the coordinator when the session ends
	// for any reason other than quit.
	CloseOnDisconnect bool
}

// State is the lifecycle position of a session.
type State int

const (
	StateUnidentified State = iota
	StateIdentified
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnidentified:
		return "unidentified"
	case StateIdentified:
		return "identified"
	default:
		return "closed"
	}
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Session runs the line protocol for one client until it quits or the
// connection fails.
type Session struct {
	r       *bufio.Reader
	w       io.Writer
	dl      readDeadliner
	coord   Coordinator
	cfg     SessionConfig
	reply   *core.ReplyChannel
	log     *zerolog.Logger
	metrics *metrics.Metrics

	id    core.ClientID
	state State
}

// NewSession wraps rw. If r is nil a new buffered reader over rw is used;
// pass the negotiator's reader so bytes it already buffered are not lost.
func NewSession(rw io.ReadWriter, r *bufio.Reader, coord Coordinator, cfg SessionConfig, logger *zerolog.Logger, m *metrics.Metrics) *Session {
	if r == nil {
		r = bufio.NewReader(rw)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	dl, _ := rw.(readDeadliner)
	return &Session{
		r:       r,
		w:       rw,
		dl:      dl,
		coord:   coord,
		cfg:     cfg,
		reply:   core.NewReplyChannel(),
		log:     logger,
		metrics: m,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// ClientID returns the id given with identify, or "" before that.
func (s *Session) ClientID() core.ClientID {
	return s.id
}

// Run processes lines until quit, a read or write failure, or ctx is done.
// A client hanging up between commands is not an error.
func (s *Session) Run(ctx context.Context) (err error) {
	s.metrics.SessionOpened()
	defer s.metrics.SessionClosed()
	defer s.reply.Close()
	defer func() {
		quit := s.state == StateClosed
		s.state = StateClosed
		if !quit && s.cfg.CloseOnDisconnect {
			s.send(core.Close{})
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := s.readLine()
		if readErr != nil && (line == "" || !errors.Is(readErr, io.EOF)) {
			if errors.Is(readErr, io.EOF) {
				s.log.Debug().Str("client_id", string(s.id)).Msg("client disconnected")
				return nil
			}
			return fmt.Errorf("read command: %w", readErr)
		}

		done, err := s.dispatch(ctx, line)
		if err != nil || done {
			return err
		}
		if readErr != nil {
			// Last line arrived without a newline.
			return nil
		}
	}
}

func (s *Session) readLine() (string, error) {
	if s.dl != nil && s.cfg.IdleTimeout > 0 {
		if err := s.dl.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
			return "", err
		}
	}
	return s.r.ReadString('\n')
}

// dispatch handles one line and reports whether the session is finished.
func (s *Session) dispatch(ctx context.Context, line string) (bool, error) {
	cmd := proto.ParseCommand(line)
	s.log.Debug().Str("command", cmd.Kind.String()).Str("arg", cmd.Arg).Msg("read")

	switch cmd.Kind {
	case proto.CmdQuit:
		if err := s.write(proto.ReplyBye); err != nil {
			return true, err
		}
		s.send(core.Close{})
		s.state = StateClosed
		return true, nil

	case proto.CmdIdentify:
		if s.state == StateIdentified || cmd.Arg == "" {
			return false, s.write(proto.ReplyError)
		}
		s.id = core.ClientID(cmd.Arg)
		s.state = StateIdentified
		s.send(core.Identify{ID: s.id, Reply: s.reply})
		return false, nil

	case proto.CmdJoin:
		if cmd.Arg == "" {
			s.log.Debug().Str("client_id", string(s.id)).Msg("join without a group, dropped")
			return false, nil
		}
		s.send(core.JoinGroup{Group: cmd.Arg})
		return false, nil

	case proto.CmdMap:
		return false, s.requestMap(ctx, cmd.Arg)

	default:
		return false, s.write(proto.ReplyUnknown)
	}
}

// requestMap sends GetMap and waits for the single reply. A session never has
// more than one request outstanding, so replies need no correlation.
func (s *Session) requestMap(ctx context.Context, name string) error {
	if s.state != StateIdentified {
		// The coordinator drops requests from unknown clients; nothing would
		// ever answer.
		s.send(core.GetMap{Name: name})
		return s.write(proto.ReplyMapError)
	}
	if !s.send(core.GetMap{Name: name}) {
		return s.write(proto.ReplyMapError)
	}

	if s.cfg.IdleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.IdleTimeout)
		defer cancel()
	}
	msg, err := s.reply.Receive(ctx)
	if err != nil {
		return fmt.Errorf("wait for map %q: %w", name, err)
	}

	switch body := msg.Body.(type) {
	case core.MapResult:
		return s.write(proto.MapReply(body.Payload))
	case core.ErrorResult:
		return s.write(proto.ReplyMapError)
	default:
		s.log.Warn().Str("kind", msg.Kind()).Msg("ignoring unexpected reply")
		return nil
	}
}

// send reports whether the coordinator accepted the message.
func (s *Session) send(body core.Body) bool {
	if err := s.coord.Send(core.Message{SenderID: s.id, Body: body}); err != nil {
		s.log.Warn().Err(err).Str("client_id", string(s.id)).Msg("coordinator unavailable")
		return false
	}
	return true
}

func (s *Session) write(reply string) error {
	if _, err := io.WriteString(s.w, reply); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}
