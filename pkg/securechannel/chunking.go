package securechannel

import (
	"fmt"

	"github.com/backkem/uacp/pkg/message"
	"github.com/backkem/uacp/pkg/ua"
	"github.com/backkem/uacp/pkg/uabin"
)

// Assemble joins the bodies of one message's chunks.
//
// The chunks must share a message type, channel and request id, carry
// increasing sequence numbers, and consist of Intermediate chunks followed
// by exactly one Final chunk. If the last chunk is an Abort chunk the
// result is an *AbortError.
func Assemble(chunks []*ChunkBody) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	first := chunks[0]
	window := NewSequenceWindow()
	size := 0
	for i, c := range chunks {
		if c.MessageType != first.MessageType {
			return nil, fmt.Errorf("%w: chunk %d is %s, want %s", ErrTypeMismatch, i, c.MessageType, first.MessageType)
		}
		if c.SecureChannelID != first.SecureChannelID {
			return nil, fmt.Errorf("%w: chunk %d on channel %d, want %d", ErrChannelMismatch, i, c.SecureChannelID, first.SecureChannelID)
		}
		if c.Sequence.RequestID != first.Sequence.RequestID {
			return nil, fmt.Errorf("%w: chunk %d for request %d, want %d", ErrRequestMismatch, i, c.Sequence.RequestID, first.Sequence.RequestID)
		}
		if !window.Accept(c.Sequence.SequenceNumber) {
			return nil, fmt.Errorf("%w: %d after %d", ErrSequenceOrder, c.Sequence.SequenceNumber, window.Last())
		}

		last := i == len(chunks)-1
		switch c.ChunkType {
		case message.ChunkTypeIntermediate:
			if last {
				return nil, ErrNoFinalChunk
			}
		case message.ChunkTypeFinal:
			if !last {
				return nil, fmt.Errorf("%w: final chunk at %d of %d", ErrChunkAfterFinal, i, len(chunks))
			}
		case message.ChunkTypeAbort:
			if !last {
				return nil, fmt.Errorf("%w: abort chunk at %d of %d", ErrChunkAfterFinal, i, len(chunks))
			}
			return nil, decodeAbort(c)
		default:
			return nil, fmt.Errorf("%w: %q", message.ErrInvalidChunkType, byte(c.ChunkType))
		}
		size += len(c.Body)
	}

	out := make([]byte, 0, size)
	for _, c := range chunks {
		out = append(out, c.Body...)
	}
	return out, nil
}

// decodeAbort reads the error code and reason that an Abort chunk carries
// in place of message data.
func decodeAbort(c *ChunkBody) error {
	r := uabin.NewReader(c.Body)
	code, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("%w: malformed abort body: %v", ErrAborted, err)
	}
	reason, err := r.ReadString()
	if err != nil {
		return fmt.Errorf("%w: malformed abort body: %v", ErrAborted, err)
	}
	return &AbortError{RequestID: c.Sequence.RequestID, Status: ua.StatusCode(code), Reason: reason}
}

// EncodeAbort builds the body of an Abort chunk.
func EncodeAbort(status ua.StatusCode, reason string) []byte {
	w := uabin.NewWriter(8 + len(reason))
	w.WriteUint32(uint32(status))
	w.WriteString(reason)
	return w.Bytes()
}

// Split cuts body into pieces of at most maxBody bytes. An empty body
// yields one empty piece. The pieces alias body.
func Split(body []byte, maxBody int) ([][]byte, error) {
	if maxBody <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, maxBody)
	}
	out := make([][]byte, 0, len(body)/maxBody+1)
	for len(body) > maxBody {
		out = append(out, body[:maxBody:maxBody])
		body = body[maxBody:]
	}
	return append(out, body), nil
}

// SealMessage splits body and seals each piece with p. Every chunk but the
// last is Intermediate.
func SealMessage(p Processor, mt message.MessageType, channelID, requestID uint32, body []byte, maxBody int) ([]*message.Chunk, error) {
	pieces, err := Split(body, maxBody)
	if err != nil {
		return nil, err
	}
	chunks := make([]*message.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		ct := message.ChunkTypeIntermediate
		if i == len(pieces)-1 {
			ct = message.ChunkTypeFinal
		}
		c, err := p.Seal(mt, ct, channelID, requestID, piece)
		if err != nil {
			return nil, fmt.Errorf("chunk %d of %d: %w", i+1, len(pieces), err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}
