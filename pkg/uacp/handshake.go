package uacp

import (
	"errors"
	"fmt"

	"github.com/backkem/uacp/pkg/message"
	"github.com/backkem/uacp/pkg/securechannel"
	"github.com/backkem/uacp/pkg/ua"
)

// Negotiate answers a client's Hello with the server's Acknowledge.
//
// Each direction's buffer size is the smaller of what the sender can send
// and what the receiver can receive. The returned error wraps the
// ua.StatusCode to send back in an ERR record.
func Negotiate(h *message.Hello, server Limits) (*message.Acknowledge, error) {
	if h.ProtocolVersion < server.ProtocolVersion {
		return nil, fmt.Errorf("%w: client version %d, server %d",
			ua.StatusBadProtocolVersionUnsupported, h.ProtocolVersion, server.ProtocolVersion)
	}
	if len(h.EndpointURL) > MaxURLLength {
		return nil, fmt.Errorf("%w: endpoint url is %d bytes", ua.StatusBadTCPEndpointURLInvalid, len(h.EndpointURL))
	}
	if h.ReceiveBufferSize < message.MinBufferSize || h.SendBufferSize < message.MinBufferSize {
		return nil, fmt.Errorf("%w: client buffers receive %d, send %d",
			ua.StatusBadTCPInternalError, h.ReceiveBufferSize, h.SendBufferSize)
	}

	return &message.Acknowledge{
		ProtocolVersion:   server.ProtocolVersion,
		ReceiveBufferSize: min(server.ReceiveBufferSize, h.SendBufferSize),
		SendBufferSize:    min(server.SendBufferSize, h.ReceiveBufferSize),
		MaxMessageSize:    server.MaxMessageSize,
		MaxChunkCount:     server.MaxChunkCount,
	}, nil
}

// Accept checks a server's Acknowledge against the Hello the client sent
// and returns the limits now in force for the client.
func Accept(h *message.Hello, ack *message.Acknowledge) (Limits, error) {
	if ack.ReceiveBufferSize > h.SendBufferSize || ack.SendBufferSize > h.ReceiveBufferSize {
		return Limits{}, fmt.Errorf("%w: acknowledged buffers exceed hello", ua.StatusBadTCPInternalError)
	}
	if ack.ReceiveBufferSize < message.MinBufferSize || ack.SendBufferSize < message.MinBufferSize {
		return Limits{}, fmt.Errorf("%w: acknowledged buffers below minimum", ua.StatusBadTCPInternalError)
	}
	return Limits{
		ProtocolVersion:   ack.ProtocolVersion,
		ReceiveBufferSize: ack.SendBufferSize,
		SendBufferSize:    ack.ReceiveBufferSize,
		MaxMessageSize:    ack.MaxMessageSize,
		MaxChunkCount:     ack.MaxChunkCount,
	}, nil
}

// ErrorFor maps err to the ERR record that reports it to the peer.
func ErrorFor(err error) *message.ErrorMessage {
	return &message.ErrorMessage{Error: StatusFor(err), Reason: truncate(err.Error(), MaxReasonLength)}
}

// StatusFor maps err to a status code.
func StatusFor(err error) ua.StatusCode {
	var code ua.StatusCode
	var derr *message.DecodeError
	switch {
	case errors.As(err, &code):
		return code
	case errors.Is(err, message.ErrRecordTooLarge):
		return ua.StatusBadTCPMessageTooLarge
	case errors.Is(err, message.ErrInvalidMessageType), errors.Is(err, message.ErrInvalidChunkType):
		return ua.StatusBadTCPMessageTypeInvalid
	case errors.As(err, &derr), errors.Is(err, message.ErrTrailingBytes):
		return ua.StatusBadDecodingError
	case errors.Is(err, securechannel.ErrPolicyUnsupported):
		return ua.StatusBadSecurityPolicyRejected
	case errors.Is(err, securechannel.ErrTokenUnknown):
		return ua.StatusBadSecureChannelTokenUnknown
	case errors.Is(err, securechannel.ErrSequenceOrder):
		return ua.StatusBadSequenceNumberInvalid
	default:
		return ua.StatusBadTCPInternalError
	}
}

// truncate shortens s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
