package service

import (
	"fmt"
	"strings"

	"github.com/backkem/uacp/pkg/message"
	"github.com/backkem/uacp/pkg/securechannel"
)

// Entry is one service message with the channel and request it travelled on.
type Entry struct {
	Message   ServiceMessage
	ChannelID uint32
	RequestID uint32
}

// Flight is an ordered sequence of service messages.
type Flight struct {
	entries []Entry
}

// NewFlight creates a flight holding msgs in order.
func NewFlight(msgs ...ServiceMessage) *Flight {
	f := &Flight{}
	for _, m := range msgs {
		f.Push(m)
	}
	return f
}

// Push appends m with zero channel and request ids.
func (f *Flight) Push(m ServiceMessage) {
	f.entries = append(f.entries, Entry{Message: m})
}

// Messages returns the messages in order.
func (f *Flight) Messages() []ServiceMessage {
	out := make([]ServiceMessage, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Message
	}
	return out
}

// Entries returns the messages with their channel and request ids. The
// slice must not be modified.
func (f *Flight) Entries() []Entry {
	return f.entries
}

// Len returns the number of messages.
func (f *Flight) Len() int {
	return len(f.entries)
}

func (f *Flight) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ServiceFlight{%d messages}", len(f.entries))
	for i, e := range f.entries {
		fmt.Fprintf(&sb, "\n  [%d] channel=%d request=%d %v", i, e.ChannelID, e.RequestID, e.Message)
	}
	return sb.String()
}

// FromMessageFlight opens every chunk of f with p, reassembles each
// request's chunks and decodes the result.
//
// Messages appear in the order their final chunks do. Every record in f
// must be a secure channel chunk, and every request must be complete.
func FromMessageFlight(f *message.Flight, p securechannel.Processor) (*Flight, error) {
	chunks, err := f.Chunks()
	if err != nil {
		return nil, err
	}

	out := &Flight{}
	pending := make(map[uint32][]*securechannel.ChunkBody)
	for i, c := range chunks {
		cb, err := p.Open(c)
		if err != nil {
			return out, fmt.Errorf("chunk %d: %w", i, err)
		}

		id := cb.Sequence.RequestID
		pending[id] = append(pending[id], cb)
		if cb.ChunkType == message.ChunkTypeIntermediate {
			continue
		}

		group := pending[id]
		delete(pending, id)
		body, err := securechannel.Assemble(group)
		if err != nil {
			return out, fmt.Errorf("request %d: %w", id, err)
		}
		m, err := Decode(body)
		if err != nil {
			return out, fmt.Errorf("request %d: %w", id, err)
		}
		if m.RecordType() != cb.MessageType {
			return out, fmt.Errorf("%w: %T in %s", ErrWrongSecureChannelType, m, cb.MessageType)
		}
		out.entries = append(out.entries, Entry{Message: m, ChannelID: cb.SecureChannelID, RequestID: id})
	}

	if len(pending) > 0 {
		return out, fmt.Errorf("%w: %d requests without a final chunk", ErrIncompleteMessage, len(pending))
	}
	return out, nil
}

// ToMessageFlight encodes every message of sf and seals it with p into
// chunks of at most maxChunkBody body bytes. Message i is sent with
// request id requestID+i.
func ToMessageFlight(sf *Flight, p securechannel.Processor, channelID, requestID uint32, maxChunkBody int) (*message.Flight, error) {
	f := message.NewFlight()
	for i, e := range sf.entries {
		id := requestID + uint32(i)
		chunks, err := securechannel.SealMessage(p, e.Message.RecordType(), channelID, id, Encode(e.Message), maxChunkBody)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", id, err)
		}
		for _, c := range chunks {
			f.Push(c)
		}
	}
	return f, nil
}
