package message

import (
	"errors"
	"fmt"
)

// Message layer errors.
var (
	// Header decoding errors
	ErrMessageTooShort    = errors.New("message: data too short for header")
	ErrInvalidMessageType = errors.New("message: unrecognized message type")
	ErrInvalidChunkType   = errors.New("message: chunk type not allowed for message type")
	ErrSizeMismatch       = errors.New("message: declared size does not match data")
	ErrSizeTooSmall       = errors.New("message: declared size smaller than header")

	// Deframer errors
	ErrRecordTooLarge   = errors.New("message: record exceeds deframer capacity")
	ErrIncompleteRecord = errors.New("message: input ends inside a record")
	ErrNoProgress       = errors.New("message: reader returned no data")

	// Payload errors
	ErrTrailingBytes = errors.New("message: trailing bytes after payload")
	ErrNotAChunk     = errors.New("message: record is not a secure channel chunk")

	// ErrNotImplemented is returned by boundary hooks that have no
	// implementation in this package.
	ErrNotImplemented = errors.New("message: not implemented")
)

// Message format constants from OPC UA Part 6, 7.1.2.
const (
	// TagSize is the size of the message type tag.
	TagSize = 3

	// HeaderSize is the size of the message header:
	// MessageType (3) + ChunkType (1) + MessageSize (4) = 8
	HeaderSize = 8

	// sizeOffset is the offset of the MessageSize field.
	sizeOffset = 4

	// MaxWireSize is the capacity of the deframer's working buffer and the
	// largest record it can ever complete. It is an implementation ceiling,
	// not a protocol limit.
	MaxWireSize = 40960

	// MinBufferSize is the smallest receive/send buffer a peer may announce
	// (Part 6, 7.1.2.3).
	MinBufferSize = 8192
)

// DecodeError reports a record whose boundary was valid but whose payload
// could not be decoded.
type DecodeError struct {
	// Type is the record's classification.
	Type MessageType
	// Size is the declared (and consumed) record size.
	Size int
	// Err is the underlying decoder error.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("message: decode %s record (%d bytes): %v", e.Type, e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
