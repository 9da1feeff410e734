package docstore

// Message types sent over a remote subscription.
const (
	MessageSnapshot = "snapshot"
	MessageError    = "error"
)

// Message is one frame of a subscription carried over the network. A
// snapshot frame holds the complete ordered result; an error frame ends
// the subscription.
type Message struct {
	Type      string     `json:"type"`
	Documents []Document `json:"documents"`
	Error     string     `json:"error,omitempty"`
}

// SnapshotMessage wraps docs in a snapshot frame. A nil slice is sent as
// an empty list.
func SnapshotMessage(docs []Document) Message {
	if docs == nil {
		docs = []Document{}
	}
	return Message{Type: MessageSnapshot, Documents: docs}
}

// ErrorMessage wraps err in an error frame.
func ErrorMessage(err error) Message {
	return Message{Type: MessageError, Error: err.Error()}
}
