package uabin

import "errors"

var (
	// ErrShortBuffer is returned when a read needs more bytes than remain.
	ErrShortBuffer = errors.New("uabin: unexpected end of buffer")

	// ErrInvalidLength is returned when a String or ByteString carries a
	// negative length other than -1 (null).
	ErrInvalidLength = errors.New("uabin: invalid length prefix")

	// ErrUnsupported is returned for encodings this package does not decode,
	// such as String, Guid or Opaque NodeIds.
	ErrUnsupported = errors.New("uabin: unsupported encoding")
)
