package core

import "context"

// Snapshot is a point-in-time copy of the coordinator registry.
type Snapshot struct {
	// Clients maps each identified client to its room ("" when none).
	Clients map[ClientID]string
	// Groups maps group names to member lists, duplicates included.
	Groups map[string][]ClientID
}

// Has reports whether id is registered.
func (s Snapshot) Has(id ClientID) bool {
	_, ok := s.Clients[id]
	return ok
}

type snapshotRequest struct {
	reply chan Snapshot
}

func (snapshotRequest) kind() string { return "snapshot" }

// Snapshot asks the coordinator for a copy of its registry. The request is
// queued behind every message sent before it.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := c.Send(Message{Body: snapshotRequest{reply: reply}}); err != nil {
		return Snapshot{}, err
	}

	select {
	case s := <-reply:
		return s, nil
	case <-c.done:
		// Run may have answered just before exiting.
		select {
		case s := <-reply:
			return s, nil
		default:
			return Snapshot{}, ErrStopped
		}
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (c *Coordinator) snapshot() Snapshot {
	s := Snapshot{
		Clients: make(map[ClientID]string, len(c.clients)),
		Groups:  make(map[string][]ClientID, len(c.groups)),
	}
	for id, client := range c.clients {
		s.Clients[id] = client.Room
	}
	for name, g := range c.groups {
		s.Groups[name] = g.Members()
	}
	return s
}
