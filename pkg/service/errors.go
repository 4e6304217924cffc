package service

import "errors"

// Service layer errors.
var (
	// ErrUnsupportedType is returned for a binary encoding id outside the
	// set this package decodes.
	ErrUnsupportedType = errors.New("service: unsupported message type")

	// ErrWrongSecureChannelType is returned when a message arrives in a
	// record type it cannot travel in, e.g. a CloseSecureChannelRequest in
	// an OPN chunk.
	ErrWrongSecureChannelType = errors.New("service: message in wrong record type")

	// ErrIncompleteMessage is returned when a flight ends before a request's
	// final chunk.
	ErrIncompleteMessage = errors.New("service: flight ends inside a message")

	// ErrTrailingBytes is returned when a message body has bytes left over.
	ErrTrailingBytes = errors.New("service: trailing bytes after message")

	// ErrExtensionObject is returned for an additional header that is not null.
	ErrExtensionObject = errors.New("service: non-null extension object not supported")
)
