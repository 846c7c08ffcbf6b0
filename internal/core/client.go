package core

// ClientRecord is the coordinator's view of an identified client.
type ClientRecord struct {
	Room    string
	HasRoom bool
	Reply   *ReplyChannel
}

// NewClientRecord builds a record for a freshly identified client.
func NewClientRecord(reply *ReplyChannel) *ClientRecord {
	return &ClientRecord{Reply: reply}
}
