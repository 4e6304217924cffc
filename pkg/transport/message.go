package transport

import "github.com/backkem/uacp/pkg/message"

// ReceivedMessage is one deframed record from the network.
type ReceivedMessage struct {
	// Message is the decoded record.
	Message message.Message
	// PeerAddr identifies the source of the record.
	PeerAddr PeerAddress
}

// MessageHandler is called for each received record, in order, from the
// connection's read goroutine. Implementations should process records
// quickly or dispatch to a goroutine to avoid blocking the read loop.
type MessageHandler func(msg *ReceivedMessage)

// CloseHandler is called once after a connection's read loop has ended and
// the connection is closed.
type CloseHandler func(peer PeerAddress)
