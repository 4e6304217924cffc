package securechannel

import (
	"fmt"

	"github.com/backkem/uacp/pkg/message"
	"github.com/backkem/uacp/pkg/uabin"
)

// NonePolicy implements SecurityPolicy None: chunks are neither signed nor
// encrypted, and OPN chunks carry no certificates.
type NonePolicy struct {
	// TokenID is written to CLO and MSG chunks. When non-zero, Open rejects
	// symmetric chunks that name a different token.
	TokenID uint32

	seq *SequenceCounter
}

var _ Processor = (*NonePolicy)(nil)

// NewNonePolicy creates a None processor with a fresh sequence counter.
func NewNonePolicy(tokenID uint32) *NonePolicy {
	return NewNonePolicyWithSequence(tokenID, NewSequenceCounter())
}

// NewNonePolicyWithSequence creates a None processor that numbers chunks
// from seq.
func NewNonePolicyWithSequence(tokenID uint32, seq *SequenceCounter) *NonePolicy {
	return &NonePolicy{TokenID: tokenID, seq: seq}
}

// Open parses the security and sequence headers of c. The returned Body
// aliases c.Data.
func (p *NonePolicy) Open(c *message.Chunk) (*ChunkBody, error) {
	h, err := c.Header()
	if err != nil {
		return nil, err
	}
	if !h.MessageType.IsSecureChannel() {
		return nil, fmt.Errorf("%w: %s", ErrNotSecureChannel, h.MessageType)
	}
	if int(h.MessageSize) != len(c.Data) {
		return nil, fmt.Errorf("%w: header says %d, have %d", message.ErrSizeMismatch, h.MessageSize, len(c.Data))
	}

	cb := &ChunkBody{MessageType: h.MessageType, ChunkType: h.ChunkType}
	r := uabin.NewReader(c.Body())
	if cb.SecureChannelID, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChunkTooShort, err)
	}

	if h.MessageType == message.MessageTypeOpenSecureChannel {
		cb.Asymmetric = &AsymmetricSecurityHeader{}
		if err := cb.Asymmetric.Decode(r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrChunkTooShort, err)
		}
		if cb.Asymmetric.SecurityPolicyURI != SecurityPolicyNone {
			return nil, fmt.Errorf("%w: %q", ErrPolicyUnsupported, cb.Asymmetric.SecurityPolicyURI)
		}
	} else {
		cb.Symmetric = &SymmetricSecurityHeader{}
		if err := cb.Symmetric.Decode(r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrChunkTooShort, err)
		}
		if p.TokenID != 0 && cb.Symmetric.TokenID != p.TokenID {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrTokenUnknown, cb.Symmetric.TokenID, p.TokenID)
		}
	}

	if err := cb.Sequence.Decode(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChunkTooShort, err)
	}
	cb.Body = r.Rest()
	return cb, nil
}

// Seal builds an unsigned, unencrypted chunk.
func (p *NonePolicy) Seal(mt message.MessageType, ct message.ChunkType, channelID, requestID uint32, body []byte) (*message.Chunk, error) {
	if !mt.IsSecureChannel() {
		return nil, fmt.Errorf("%w: %s", ErrNotSecureChannel, mt)
	}
	if !mt.AllowsChunkType(ct) {
		return nil, fmt.Errorf("%w: %s with %q", message.ErrInvalidChunkType, mt, byte(ct))
	}

	w := uabin.NewWriter(ChannelIDSize + 64 + SequenceHeaderSize + len(body))
	w.WriteUint32(channelID)
	if mt == message.MessageTypeOpenSecureChannel {
		ash := AsymmetricSecurityHeader{SecurityPolicyURI: SecurityPolicyNone}
		ash.EncodeTo(w)
	} else {
		ssh := SymmetricSecurityHeader{TokenID: p.TokenID}
		ssh.EncodeTo(w)
	}
	seq := SequenceHeader{SequenceNumber: p.seq.Next(), RequestID: requestID}
	seq.EncodeTo(w)
	w.Write(body)

	return message.NewChunk(mt, ct, w.Bytes()), nil
}

// MaxBodySize returns bufferSize minus the header overhead of mt.
func (p *NonePolicy) MaxBodySize(mt message.MessageType, bufferSize int) int {
	overhead := message.HeaderSize + ChannelIDSize + SequenceHeaderSize
	if mt == message.MessageTypeOpenSecureChannel {
		ash := AsymmetricSecurityHeader{SecurityPolicyURI: SecurityPolicyNone}
		overhead += ash.Size()
	} else {
		overhead += SymmetricSecurityHeaderSize
	}
	return bufferSize - overhead
}
