package message

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/backkem/uacp/pkg/uabin"
	"github.com/pion/logging"
)

// Flight is an ordered sequence of records that together form one logical
// exchange, such as all chunks of one secure channel message. A Flight is
// append-only while it is built and is owned by whoever requested it.
type Flight struct {
	messages []Message
}

// NewFlight creates a flight holding msgs in order.
func NewFlight(msgs ...Message) *Flight {
	f := &Flight{}
	for _, m := range msgs {
		f.Push(m)
	}
	return f
}

// Push appends m to the flight.
func (f *Flight) Push(m Message) {
	f.messages = append(f.messages, m)
}

// Messages returns the records in order. The slice must not be modified.
func (f *Flight) Messages() []Message {
	return f.messages
}

// Len returns the number of records.
func (f *Flight) Len() int {
	return len(f.messages)
}

// Chunks returns the records as secure channel chunks. It fails with
// ErrNotAChunk if any record is a connection protocol message.
func (f *Flight) Chunks() ([]*Chunk, error) {
	chunks := make([]*Chunk, 0, len(f.messages))
	for i, m := range f.messages {
		c, ok := m.(*Chunk)
		if !ok {
			return nil, fmt.Errorf("%w: record %d is %s", ErrNotAChunk, i, m.Type())
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// Encode concatenates the records' encodings. No framing is added between
// records; each carries its own length-prefixed header.
func (f *Flight) Encode() []byte {
	w := uabin.NewWriter(64 * len(f.messages))
	f.EncodeTo(w)
	return w.Bytes()
}

// EncodeTo appends the concatenated record encodings to w.
func (f *Flight) EncodeTo(w *uabin.Writer) {
	for _, m := range f.messages {
		m.EncodeTo(w)
	}
}

// String lists the records, one per line.
func (f *Flight) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Flight{%d records}", len(f.messages))
	for i, m := range f.messages {
		fmt.Fprintf(&sb, "\n  [%d] %v", i, m)
	}
	return sb.String()
}

// Debug logs the flight at debug level, prefixed with info.
func (f *Flight) Debug(log logging.LeveledLogger, info string) {
	if log == nil {
		return
	}
	log.Debugf("%s: %s", info, f)
}

// ReadFlight decodes every record in the unread part of r by driving a fresh
// Deframer until r is exhausted.
//
// On error the returned flight holds the records decoded before the failure.
// A buffer that ends inside a record yields ErrIncompleteRecord. Bytes with
// an unrecognized header are discarded as the Deframer does for a stream.
func ReadFlight(r *uabin.Reader) (*Flight, error) {
	d := NewDeframer()
	f := NewFlight()

	for {
		n, err := d.Read(r)
		for m, ok := d.PopFrame(); ok; m, ok = d.PopFrame() {
			f.Push(m)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return f, err
		}
		if n == 0 {
			break
		}
	}

	if d.Buffered() > 0 {
		return f, fmt.Errorf("%w: %d bytes left over", ErrIncompleteRecord, d.Buffered())
	}
	return f, nil
}

// DecodeFlight decodes every record in data.
func DecodeFlight(data []byte) (*Flight, error) {
	return ReadFlight(uabin.NewReader(data))
}
