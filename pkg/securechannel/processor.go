// Package securechannel holds the boundary between UACP framing and the
// OPC UA secure channel layer (Part 6, 6.7).
//
// A Processor verifies and strips the security headers from OPN, CLO and
// MSG chunks, and applies them when sending. Only SecurityPolicy None is
// implemented; signing and encryption are left to other Processors.
package securechannel

import (
	"github.com/backkem/uacp/pkg/message"
)

// ChunkBody is a chunk after its security has been removed.
type ChunkBody struct {
	MessageType     message.MessageType
	ChunkType       message.ChunkType
	SecureChannelID uint32

	// Asymmetric is set for OPN chunks, Symmetric for CLO and MSG chunks.
	Asymmetric *AsymmetricSecurityHeader
	Symmetric  *SymmetricSecurityHeader

	Sequence SequenceHeader

	// Body is the plaintext chunk body after the sequence header.
	Body []byte
}

// Processor applies and removes secure channel security.
type Processor interface {
	// Open verifies c and returns its plaintext body with the parsed headers.
	Open(c *message.Chunk) (*ChunkBody, error)

	// Seal builds a chunk carrying body. The processor assigns the sequence
	// number.
	Seal(mt message.MessageType, ct message.ChunkType, channelID, requestID uint32, body []byte) (*message.Chunk, error)

	// MaxBodySize returns the largest body that fits a chunk of bufferSize
	// bytes.
	MaxBodySize(mt message.MessageType, bufferSize int) int
}
