package core

import "github.com/pokeescape/pokeescape-server/internal/queue"

// ClientID is the name a client chose with "identify". It is not checked for
// uniqueness; the last identify wins.
type ClientID string

// ReplyChannel carries coordinator responses back to one session.
type ReplyChannel = queue.Mailbox[Message]

// NewReplyChannel returns an empty reply channel for a new session.
func NewReplyChannel() *ReplyChannel {
	return queue.New[Message]()
}

// Message is the envelope every session sends to the coordinator.
type Message struct {
	SenderID ClientID
	Body     Body
}

// Body is one of Close, Identify, JoinGroup, GetMap, MapResult or ErrorResult.
type Body interface {
	kind() string
}

// Close ends the sender's session.
type Close struct{}

// Identify registers a client and the channel its responses go to.
type Identify struct {
	ID    ClientID
	Reply *ReplyChannel
}

// JoinGroup moves the sender into a group.
type JoinGroup struct {
	Group string
}

// GetMap requests a rendered map. The answer is a MapResult or ErrorResult on
// the sender's reply channel.
type GetMap struct {
	Name string
}

// MapResult carries a rendered map payload. Only sent on reply channels.
type MapResult struct {
	Payload string
}

// ErrorResult carries a failure reason. Only sent on reply channels.
type ErrorResult struct {
	Reason string
}

func (Close) kind() string       { return "close" }
func (Identify) kind() string    { return "identify" }
func (JoinGroup) kind() string   { return "join_group" }
func (GetMap) kind() string      { return "get_map" }
func (MapResult) kind() string   { return "map_result" }
func (ErrorResult) kind() string { return "error_result" }

// Kind names the body for logs and metrics.
func (m Message) Kind() string {
	if m.Body == nil {
		return "empty"
	}
	return m.Body.kind()
}
