package message

import (
	"encoding/binary"
	"fmt"
)

// Header is the 8-byte UACP message header (Part 6, 7.1.2.2).
// All multi-byte fields are little-endian on the wire.
type Header struct {
	// MessageType is the record category from the 3-byte tag.
	MessageType MessageType

	// ChunkType is the chunk-kind marker.
	ChunkType ChunkType

	// MessageSize is the total record length including this header.
	MessageSize uint32
}

// ParseHeader decodes and validates a header from the start of data.
// It checks the tag against the registry and the chunk type against the
// tag, but not MessageSize against len(data).
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, ErrMessageTooShort
	}
	h := Header{
		MessageType: ParseMessageType(data[:TagSize]),
		ChunkType:   ChunkType(data[TagSize]),
		MessageSize: binary.LittleEndian.Uint32(data[sizeOffset:HeaderSize]),
	}
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// Validate checks the header fields against the registry.
func (h Header) Validate() error {
	if !h.MessageType.IsValid() {
		return ErrInvalidMessageType
	}
	if !h.MessageType.AllowsChunkType(h.ChunkType) {
		return fmt.Errorf("%w: %s with %q", ErrInvalidChunkType, h.MessageType, byte(h.ChunkType))
	}
	if h.MessageSize < HeaderSize {
		return ErrSizeTooSmall
	}
	return nil
}

// EncodeTo serializes the header into buf, which must hold HeaderSize bytes.
// Returns the number of bytes written.
func (h Header) EncodeTo(buf []byte) int {
	tag := h.MessageType.Tag()
	copy(buf[:TagSize], tag[:])
	buf[TagSize] = byte(h.ChunkType)
	binary.LittleEndian.PutUint32(buf[sizeOffset:HeaderSize], h.MessageSize)
	return HeaderSize
}

// Encode serializes the header to a new slice.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	h.EncodeTo(buf)
	return buf
}

// String returns a compact debug form, e.g. "HEL/F/32".
func (h Header) String() string {
	return fmt.Sprintf("%s/%c/%d", h.MessageType, byte(h.ChunkType), h.MessageSize)
}
