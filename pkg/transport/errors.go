package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed transport.
	ErrClosed = errors.New("transport: closed")

	// ErrInvalidAddress is returned when an invalid peer address is provided.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrNoHandler is returned when no message handler is configured.
	ErrNoHandler = errors.New("transport: no message handler configured")

	// ErrAlreadyStarted is returned when Start is called on an already running transport.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrConnectionNotFound is returned when no connection exists for a peer address.
	ErrConnectionNotFound = errors.New("transport: connection not found for peer")

	// ErrTransportDisabled is returned when a peer's transport is not enabled.
	ErrTransportDisabled = errors.New("transport: transport not enabled")

	// ErrSubprotocol is returned when a WebSocket peer did not agree on the
	// opcua+uacp subprotocol.
	ErrSubprotocol = errors.New("transport: websocket subprotocol not negotiated")
)
