package message

import (
	"fmt"

	"github.com/backkem/uacp/pkg/uabin"
)

// payloadDecoder is implemented by the typed control messages.
type payloadDecoder interface {
	Message
	decode(r *uabin.Reader) error
}

// writeRecord appends a header, the payload written by body, and back-patches
// the MessageSize field once the payload length is known.
func writeRecord(w *uabin.Writer, mt MessageType, ct ChunkType, body func(w *uabin.Writer)) {
	start := w.Len()
	tag := mt.Tag()
	w.Write(tag[:])
	w.WriteByte(byte(ct))
	w.WriteUint32(0)
	body(w)
	w.PutUint32At(start+sizeOffset, uint32(w.Len()-start))
}

func encodeMessage(m Message) []byte {
	w := uabin.NewWriter(64)
	m.EncodeTo(w)
	return w.Bytes()
}

// Encode returns the wire encoding of m.
func Encode(m Message) []byte {
	return m.Encode()
}

// Decode decodes exactly one complete record. The record's variant is chosen
// from the tag alone; data must be exactly MessageSize bytes long.
// Chunk records copy data.
func Decode(data []byte) (Message, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if int(h.MessageSize) != len(data) {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrSizeMismatch, h.MessageSize, len(data))
	}

	switch h.MessageType {
	case MessageTypeHello:
		return decodePayload(&Hello{}, data)
	case MessageTypeAcknowledge:
		return decodePayload(&Acknowledge{}, data)
	case MessageTypeError:
		return decodePayload(&ErrorMessage{}, data)
	case MessageTypeReverseHello:
		return decodePayload(&ReverseHello{}, data)
	case MessageTypeOpenSecureChannel, MessageTypeCloseSecureChannel, MessageTypeSecureMessage:
		c := &Chunk{Data: make([]byte, len(data))}
		copy(c.Data, data)
		return c, nil
	case MessageTypeInvalid:
		return nil, ErrInvalidMessageType
	}
	return nil, ErrInvalidMessageType
}

func decodePayload[M payloadDecoder](m M, data []byte) (Message, error) {
	r := uabin.NewReader(data[HeaderSize:])
	if err := m.decode(r); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingBytes, r.Len())
	}
	return m, nil
}

// decodeAs decodes data and asserts the concrete type.
func decodeAs[M Message](data []byte, want MessageType) (M, error) {
	var zero M
	if ParseMessageType(data) != want {
		return zero, fmt.Errorf("%w: want %s", ErrInvalidMessageType, want)
	}
	m, err := Decode(data)
	if err != nil {
		return zero, err
	}
	return m.(M), nil
}

// DecodeHello decodes a complete HEL record.
func DecodeHello(data []byte) (*Hello, error) {
	return decodeAs[*Hello](data, MessageTypeHello)
}

// DecodeAcknowledge decodes a complete ACK record.
func DecodeAcknowledge(data []byte) (*Acknowledge, error) {
	return decodeAs[*Acknowledge](data, MessageTypeAcknowledge)
}

// DecodeErrorMessage decodes a complete ERR record.
func DecodeErrorMessage(data []byte) (*ErrorMessage, error) {
	return decodeAs[*ErrorMessage](data, MessageTypeError)
}

// DecodeReverseHello decodes a complete RHE record.
func DecodeReverseHello(data []byte) (*ReverseHello, error) {
	return decodeAs[*ReverseHello](data, MessageTypeReverseHello)
}

// DecodeChunk decodes a complete OPN, CLO or MSG record.
func DecodeChunk(data []byte) (*Chunk, error) {
	if !ParseMessageType(data).IsSecureChannel() {
		return nil, ErrNotAChunk
	}
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return m.(*Chunk), nil
}
