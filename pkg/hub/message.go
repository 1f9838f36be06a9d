package hub

import "github.com/gofiber/websocket/v2"

// MessageType selects the websocket frame a Message is sent as.
type MessageType int

const (
	// JSONMessage goes out as a text frame (state snapshots).
	JSONMessage MessageType = iota
	// BinaryMessage goes out as a binary frame (camera JPEGs).
	BinaryMessage
)

func (t MessageType) String() string {
	if t == BinaryMessage {
		return "binary"
	}
	return "json"
}

// Message is one broadcast payload. Data is shared by every client and must
// not be modified after Broadcast.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// frameType is the websocket opcode for the message.
func (m Message) frameType() int {
	if m.Type == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
