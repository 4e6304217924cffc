package securechannel

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/backkem/uacp/pkg/message"
	"github.com/backkem/uacp/pkg/uabin"
)

func TestNonePolicySealOpen(t *testing.T) {
	tests := []struct {
		name string
		mt   message.MessageType
		ct   message.ChunkType
	}{
		{"open", message.MessageTypeOpenSecureChannel, message.ChunkTypeFinal},
		{"close", message.MessageTypeCloseSecureChannel, message.ChunkTypeFinal},
		{"msg final", message.MessageTypeSecureMessage, message.ChunkTypeFinal},
		{"msg intermediate", message.MessageTypeSecureMessage, message.ChunkTypeIntermediate},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewNonePolicyWithSequence(7, NewSequenceCounterWithValue(51))
			body := []byte("service body")

			c, err := p.Seal(tc.mt, tc.ct, 42, 3, body)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if c.Type() != tc.mt || c.ChunkType() != tc.ct {
				t.Errorf("Seal() chunk = %v", c)
			}

			// The chunk survives a trip through the wire codec.
			decoded, err := message.DecodeChunk(c.Encode())
			if err != nil {
				t.Fatalf("DecodeChunk() error = %v", err)
			}

			cb, err := p.Open(decoded)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if cb.MessageType != tc.mt || cb.ChunkType != tc.ct {
				t.Errorf("Open() type = %s/%s", cb.MessageType, cb.ChunkType)
			}
			if cb.SecureChannelID != 42 {
				t.Errorf("SecureChannelID = %d, want 42", cb.SecureChannelID)
			}
			if cb.Sequence != (SequenceHeader{SequenceNumber: 51, RequestID: 3}) {
				t.Errorf("Sequence = %+v", cb.Sequence)
			}
			if !bytes.Equal(cb.Body, body) {
				t.Errorf("Body = %q, want %q", cb.Body, body)
			}

			if tc.mt == message.MessageTypeOpenSecureChannel {
				if cb.Asymmetric == nil || cb.Asymmetric.SecurityPolicyURI != SecurityPolicyNone {
					t.Errorf("Asymmetric = %+v", cb.Asymmetric)
				}
				if cb.Symmetric != nil {
					t.Error("Symmetric set on OPN chunk")
				}
			} else {
				if cb.Symmetric == nil || cb.Symmetric.TokenID != 7 {
					t.Errorf("Symmetric = %+v", cb.Symmetric)
				}
			}
		})
	}
}

func TestNonePolicySealRejects(t *testing.T) {
	p := NewNonePolicy(0)

	if _, err := p.Seal(message.MessageTypeHello, message.ChunkTypeFinal, 1, 1, nil); !errors.Is(err, ErrNotSecureChannel) {
		t.Errorf("Seal(HEL) error = %v, want %v", err, ErrNotSecureChannel)
	}
	if _, err := p.Seal(message.MessageTypeOpenSecureChannel, message.ChunkType('X'), 1, 1, nil); !errors.Is(err, message.ErrInvalidChunkType) {
		t.Errorf("Seal(OPN/X) error = %v, want %v", err, message.ErrInvalidChunkType)
	}
}

func TestNonePolicyOpenRejectsOtherPolicy(t *testing.T) {
	w := uabin.NewWriter(128)
	w.WriteUint32(1)
	ash := AsymmetricSecurityHeader{
		SecurityPolicyURI: "http://opcfoundation.org/UA/SecurityPolicy#Basic256Sha256",
		SenderCertificate: []byte{0x30, 0x82},
	}
	ash.EncodeTo(w)
	seq := SequenceHeader{SequenceNumber: 1, RequestID: 1}
	seq.EncodeTo(w)
	c := message.NewChunk(message.MessageTypeOpenSecureChannel, message.ChunkTypeFinal, w.Bytes())

	if _, err := NewNonePolicy(0).Open(c); !errors.Is(err, ErrPolicyUnsupported) {
		t.Errorf("Open() error = %v, want %v", err, ErrPolicyUnsupported)
	}
}

func TestNonePolicyOpenErrors(t *testing.T) {
	sealed, err := NewNonePolicy(9).Seal(message.MessageTypeSecureMessage, message.ChunkTypeFinal, 1, 1, []byte{1})
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	truncated := message.NewChunk(message.MessageTypeSecureMessage, message.ChunkTypeFinal, sealed.Body()[:10])

	badSize := &message.Chunk{Data: append([]byte(nil), sealed.Data...)}
	binary.LittleEndian.PutUint32(badSize.Data[4:8], uint32(len(badSize.Data)+1))

	tests := []struct {
		name    string
		p       *NonePolicy
		c       *message.Chunk
		wantErr error
	}{
		{"truncated sequence header", NewNonePolicy(0), truncated, ErrChunkTooShort},
		{"no channel id", NewNonePolicy(0), message.NewChunk(message.MessageTypeSecureMessage, message.ChunkTypeFinal, nil), ErrChunkTooShort},
		{"wrong token", NewNonePolicy(10), sealed, ErrTokenUnknown},
		{"size mismatch", NewNonePolicy(0), badSize, message.ErrSizeMismatch},
		{"not a secure channel record", NewNonePolicy(0), &message.Chunk{Data: (&message.Acknowledge{}).Encode()}, ErrNotSecureChannel},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.p.Open(tc.c); !errors.Is(err, tc.wantErr) {
				t.Errorf("Open() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestNonePolicyMaxBodySize(t *testing.T) {
	p := NewNonePolicy(1)
	const buffer = 8192

	for _, mt := range []message.MessageType{
		message.MessageTypeOpenSecureChannel,
		message.MessageTypeCloseSecureChannel,
		message.MessageTypeSecureMessage,
	} {
		limit := p.MaxBodySize(mt, buffer)
		c, err := p.Seal(mt, message.ChunkTypeFinal, 1, 1, make([]byte, limit))
		if err != nil {
			t.Fatalf("Seal(%s) error = %v", mt, err)
		}
		if len(c.Data) != buffer {
			t.Errorf("%s chunk with MaxBodySize body = %d bytes, want %d", mt, len(c.Data), buffer)
		}
	}
}
