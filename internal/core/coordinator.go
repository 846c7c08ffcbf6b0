package core

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/pokeescape/pokeescape-server/internal/metrics"
	"github.com/pokeescape/pokeescape-server/internal/queue"
)

// MapStore renders maps by name.
type MapStore interface {
	Render(name string) (string, error)
}

// Coordinator owns every client record and group. Sessions talk to it only by
// sending messages; it processes them one at a time in arrival order, so its
// state needs no locking.
type Coordinator struct {
	inbox   *queue.Mailbox[Message]
	clients map[ClientID]*ClientRecord
	groups  map[string]*Group
	maps    MapStore
	log     *zerolog.Logger
	metrics *metrics.Metrics
	done    chan struct{}
}

// NewCoordinator creates a coordinator. Call Run to start processing.
func NewCoordinator(maps MapStore, logger *zerolog.Logger, m *metrics.Metrics) *Coordinator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Coordinator{
		inbox:   queue.New[Message](),
		clients: make(map[ClientID]*ClientRecord),
		groups:  make(map[string]*Group),
		maps:    maps,
		log:     logger,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Send enqueues a message. It never blocks.
func (c *Coordinator) Send(msg Message) error {
	if err := c.inbox.Send(msg); err != nil {
		return ErrStopped
	}
	return nil
}

// Close stops accepting messages. Run returns once the queue is drained.
func (c *Coordinator) Close() {
	c.inbox.Close()
}

// Done is closed when Run returns.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Run processes messages until the inbox is closed and drained or ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	c.log.Debug().Msg("coordinator started")

	for {
		msg, err := c.inbox.Receive(ctx)
		if err != nil {
			c.log.Debug().Err(err).Msg("coordinator stopped")
			return
		}
		c.handle(msg)
	}
}

func (c *Coordinator) handle(msg Message) {
	c.metrics.Message(msg.Kind())

	switch body := msg.Body.(type) {
	case Close:
		c.handleClose(msg.SenderID)
	case Identify:
		c.handleIdentify(body)
	case JoinGroup:
		c.handleJoin(msg.SenderID, body.Group)
	case GetMap:
		c.handleGetMap(msg.SenderID, body.Name)
	case snapshotRequest:
		body.reply <- c.snapshot()
	default:
		c.metrics.Dropped("unexpected_body")
		c.log.Error().
			Str("client_id", string(msg.SenderID)).
			Str("kind", msg.Kind()).
			Msg("unexpected message on coordinator queue")
	}
}

func (c *Coordinator) handleClose(id ClientID) {
	client, ok := c.clients[id]
	if !ok {
		c.log.Warn().Str("client_id", string(id)).Msg("close for client not in registry")
		return
	}
	delete(c.clients, id)
	c.metrics.SetClients(len(c.clients))
	c.log.Debug().Str("client_id", string(id)).Msg("removing client")

	if client.HasRoom {
		c.leaveGroup(id, client.Room)
	}
}

func (c *Coordinator) handleIdentify(ident Identify) {
	c.clients[ident.ID] = NewClientRecord(ident.Reply)
	c.metrics.SetClients(len(c.clients))
	c.log.Debug().Str("client_id", string(ident.ID)).Msg("client identified")
}

func (c *Coordinator) handleJoin(id ClientID, group string) {
	client, ok := c.clients[id]
	if !ok {
		c.metrics.Dropped("unknown_client")
		c.log.Error().Err(ErrUnknownClient).Str("client_id", string(id)).Str("group", group).Msg("join dropped")
		return
	}

	// Moving to another group leaves the old one so the record's room stays
	// the only group holding this id.
	if client.HasRoom && client.Room != group {
		c.leaveGroup(id, client.Room)
	}
	client.Room = group
	client.HasRoom = true

	g, ok := c.groups[group]
	if !ok {
		g = NewGroup(group)
		c.groups[group] = g
	}
	g.Add(id)
	c.log.Debug().
		Str("client_id", string(id)).
		Str("group", group).
		Int("entries", g.Count(id)).
		Msg("client joined group")
}

func (c *Coordinator) leaveGroup(id ClientID, group string) {
	g, ok := c.groups[group]
	if !ok {
		return
	}
	n := g.Remove(id)
	c.log.Debug().
		Str("client_id", string(id)).
		Str("group", group).
		Int("entries", n).
		Bool("group_empty", g.Empty()).
		Msg("client removed from group")
}

func (c *Coordinator) handleGetMap(id ClientID, name string) {
	client, ok := c.clients[id]
	if !ok {
		c.metrics.Dropped("unknown_client")
		c.log.Error().Err(ErrUnknownClient).Str("client_id", string(id)).Str("map", name).Msg("map request dropped")
		return
	}
	c.log.Debug().Str("client_id", string(id)).Str("map", name).Msg("load map")

	reply := Message{SenderID: "master"}
	payload, err := c.render(name)
	if err != nil {
		c.log.Debug().Err(err).Str("map", name).Msg("could not load map")
		reply.Body = ErrorResult{Reason: ReasonMapUnavailable}
	} else {
		reply.Body = MapResult{Payload: payload}
	}

	if client.Reply == nil {
		c.metrics.Dropped("no_reply_channel")
		c.log.Warn().Str("client_id", string(id)).Msg("client has no reply channel")
		return
	}
	if err := client.Reply.Send(reply); err != nil {
		c.metrics.Dropped("reply_closed")
		c.log.Warn().Err(err).Str("client_id", string(id)).Str("kind", reply.Kind()).Msg("could not deliver map reply")
	}
}

func (c *Coordinator) render(name string) (string, error) {
	if c.maps == nil {
		return "", errors.New("no map store")
	}
	return c.maps.Render(name)
}
