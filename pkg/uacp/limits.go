// Package uacp implements the UACP connection handshake (Part 6, 7.1.3):
// buffer and message limit negotiation and the mapping of failures to
// ERR records.
package uacp

import (
	"errors"
	"fmt"

	"github.com/backkem/uacp/pkg/message"
)

// ProtocolVersion is the only UACP protocol version defined.
const ProtocolVersion = 0

// String length limits for Hello and Error records.
const (
	MaxURLLength    = 4096
	MaxReasonLength = 4096
)

// Limits errors.
var (
	ErrBufferTooSmall = errors.New("uacp: buffer size below minimum")
	ErrBufferTooLarge = errors.New("uacp: receive buffer larger than deframer capacity")
)

// Limits are one side's connection parameters.
type Limits struct {
	ProtocolVersion   uint32
	ReceiveBufferSize uint32
	SendBufferSize    uint32

	// MaxMessageSize is the largest assembled message accepted; 0 means
	// no limit.
	MaxMessageSize uint32

	// MaxChunkCount is the largest number of chunks per message; 0 means
	// no limit.
	MaxChunkCount uint32
}

// DefaultLimits returns limits that use the whole deframer capacity.
func DefaultLimits() Limits {
	return Limits{
		ProtocolVersion:   ProtocolVersion,
		ReceiveBufferSize: message.MaxWireSize,
		SendBufferSize:    message.MaxWireSize,
		MaxMessageSize:    16 * 1024 * 1024,
		MaxChunkCount:     0,
	}
}

// Validate checks that the buffers are usable with a Deframer.
func (l Limits) Validate() error {
	if l.ReceiveBufferSize < message.MinBufferSize || l.SendBufferSize < message.MinBufferSize {
		return fmt.Errorf("%w: receive %d, send %d, minimum %d",
			ErrBufferTooSmall, l.ReceiveBufferSize, l.SendBufferSize, message.MinBufferSize)
	}
	if l.ReceiveBufferSize > message.MaxWireSize {
		return fmt.Errorf("%w: %d > %d", ErrBufferTooLarge, l.ReceiveBufferSize, message.MaxWireSize)
	}
	return nil
}

// NewHello builds the Hello a client sends with limits l.
func NewHello(endpointURL string, l Limits) *message.Hello {
	return &message.Hello{
		ProtocolVersion:   l.ProtocolVersion,
		ReceiveBufferSize: l.ReceiveBufferSize,
		SendBufferSize:    l.SendBufferSize,
		MaxMessageSize:    l.MaxMessageSize,
		MaxChunkCount:     l.MaxChunkCount,
		EndpointURL:       endpointURL,
	}
}
