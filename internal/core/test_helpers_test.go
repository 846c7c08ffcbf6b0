package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeMaps renders a fixed set of maps.
type fakeMaps map[string]string

func (f fakeMaps) Render(name string) (string, error) {
	payload, ok := f[name]
	if !ok {
		return "", errors.New("not found")
	}
	return payload, nil
}

func startCoordinator(t *testing.T, maps MapStore) *Coordinator {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewCoordinator(maps, nil, nil)
	go c.Run(ctx)
	t.Cleanup(func() {
		c.Close()
		cancel()
		<-c.Done()
	})
	return c
}

func mustSend(t *testing.T, c *Coordinator, id ClientID, body Body) {
	t.Helper()

	if err := c.Send(Message{SenderID: id, Body: body}); err != nil {
		t.Fatalf("send %T: %v", body, err)
	}
}

func identify(t *testing.T, c *Coordinator, id ClientID) *ReplyChannel {
	t.Helper()

	reply := NewReplyChannel()
	mustSend(t, c, id, Identify{ID: id, Reply: reply})
	return reply
}

func mustSnapshot(t *testing.T, c *Coordinator) Snapshot {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return s
}

func mustReply(t *testing.T, reply *ReplyChannel) Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := reply.Receive(ctx)
	if err != nil {
		t.Fatalf("expected reply: %v", err)
	}
	return msg
}
