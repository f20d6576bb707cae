// Package hub is a websocket broadcast hub: one hub per chat session,
// fanning chat events out to every subscriber over the channel-based
// register/unregister/broadcast pattern.
package hub

// MessageType indicates the websocket message format.
type MessageType int

const (
	// JSONMessage is a JSON-encoded chat event.
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data such as PCM audio frames.
	BinaryMessage
)

// Message is one frame to be broadcast to subscribers.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON bytes.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps binary data.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
