// Package message implements OPC UA Connection Protocol (UACP) message
// framing as defined in OPC UA Part 6, section 7.1.
//
// The package provides:
//   - The message type registry (3-byte tags and chunk-kind markers)
//   - Hello, Acknowledge, Error and ReverseHello encoding/decoding
//   - Opaque chunks for OpenSecureChannel, CloseSecureChannel and MSG records
//   - A stateful Deframer that turns a byte stream into discrete records
//   - Flights: ordered record sequences decoded from a finite buffer
package message

// MessageType identifies the category of a UACP record from its 3-byte tag.
type MessageType uint8

const (
	// MessageTypeInvalid is the single classification for any unrecognized tag.
	MessageTypeInvalid MessageType = iota

	// MessageTypeHello ("HEL") opens a connection from the client side.
	MessageTypeHello

	// MessageTypeAcknowledge ("ACK") answers a Hello.
	MessageTypeAcknowledge

	// MessageTypeError ("ERR") reports a fatal connection error.
	MessageTypeError

	// MessageTypeReverseHello ("RHE") is sent by a server that initiates the connection.
	MessageTypeReverseHello

	// MessageTypeOpenSecureChannel ("OPN") carries an OpenSecureChannel request or response.
	MessageTypeOpenSecureChannel

	// MessageTypeCloseSecureChannel ("CLO") carries a CloseSecureChannel request.
	MessageTypeCloseSecureChannel

	// MessageTypeSecureMessage ("MSG") carries a chunk of a service message.
	MessageTypeSecureMessage
)

// Wire tags, indexed by MessageType.
var tags = [...][3]byte{
	MessageTypeHello:              {'H', 'E', 'L'},
	MessageTypeAcknowledge:        {'A', 'C', 'K'},
	MessageTypeError:              {'E', 'R', 'R'},
	MessageTypeReverseHello:       {'R', 'H', 'E'},
	MessageTypeOpenSecureChannel:  {'O', 'P', 'N'},
	MessageTypeCloseSecureChannel: {'C', 'L', 'O'},
	MessageTypeSecureMessage:      {'M', 'S', 'G'},
}

// ParseMessageType classifies a 3-byte tag. Any input that is not exactly
// one of the registered tags, including short input, yields
// MessageTypeInvalid.
func ParseMessageType(tag []byte) MessageType {
	if len(tag) < TagSize {
		return MessageTypeInvalid
	}
	for mt := MessageTypeHello; mt <= MessageTypeSecureMessage; mt++ {
		t := tags[mt]
		if tag[0] == t[0] && tag[1] == t[1] && tag[2] == t[2] {
			return mt
		}
	}
	return MessageTypeInvalid
}

// Tag returns the 3-byte wire tag. MessageTypeInvalid has no tag and
// returns three zero bytes.
func (t MessageType) Tag() [3]byte {
	if !t.IsValid() {
		return [3]byte{}
	}
	return tags[t]
}

// String returns the wire tag, or "Invalid".
func (t MessageType) String() string {
	if !t.IsValid() {
		return "Invalid"
	}
	tag := tags[t]
	return string(tag[:])
}

// IsValid returns true if the type is a registered message type.
func (t MessageType) IsValid() bool {
	return t >= MessageTypeHello && t <= MessageTypeSecureMessage
}

// IsSecureChannel reports whether records of this type belong to the secure
// channel layer and are carried as opaque chunks.
func (t MessageType) IsSecureChannel() bool {
	switch t {
	case MessageTypeOpenSecureChannel, MessageTypeCloseSecureChannel, MessageTypeSecureMessage:
		return true
	default:
		return false
	}
}

// AllowsChunkType reports whether the chunk-kind marker c is legal for this
// message type. Secure channel records (OPN, CLO, MSG) may be Final,
// Intermediate or Abort; connection records (HEL, ACK, ERR, RHE) must be
// Final. The function is defined for every byte value.
func (t MessageType) AllowsChunkType(c ChunkType) bool {
	switch t {
	case MessageTypeOpenSecureChannel, MessageTypeCloseSecureChannel, MessageTypeSecureMessage:
		return c == ChunkTypeFinal || c == ChunkTypeIntermediate || c == ChunkTypeAbort
	case MessageTypeHello, MessageTypeAcknowledge, MessageTypeError, MessageTypeReverseHello:
		return c == ChunkTypeFinal
	default:
		return false
	}
}

// ChunkType is the 1-byte chunk-kind marker that follows the tag.
type ChunkType byte

const (
	// ChunkTypeFinal ('F') marks the last chunk of a message.
	ChunkTypeFinal ChunkType = 'F'

	// ChunkTypeIntermediate ('C') marks a chunk that is continued by another.
	ChunkTypeIntermediate ChunkType = 'C'

	// ChunkTypeAbort ('A') marks a final chunk that aborts the message; its
	// body carries an error code and reason instead of message data.
	ChunkTypeAbort ChunkType = 'A'
)

// String returns a human-readable name for the chunk type.
func (c ChunkType) String() string {
	switch c {
	case ChunkTypeFinal:
		return "Final"
	case ChunkTypeIntermediate:
		return "Intermediate"
	case ChunkTypeAbort:
		return "Abort"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the chunk type is one of the defined markers.
func (c ChunkType) IsValid() bool {
	return c == ChunkTypeFinal || c == ChunkTypeIntermediate || c == ChunkTypeAbort
}
