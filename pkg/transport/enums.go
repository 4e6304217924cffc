package transport

// TransportType identifies the transport a record arrived on.
type TransportType int

const (
	// TransportTypeUnknown is the zero value for unknown transport.
	TransportTypeUnknown TransportType = iota
	// TransportTypeTCP is opc.tcp: UACP records directly on a TCP stream.
	TransportTypeTCP
	// TransportTypeWebSocket is opc.wss: UACP records in binary WebSocket
	// messages with the "opcua+uacp" subprotocol.
	TransportTypeWebSocket
)

// String returns the string representation of the transport type.
func (t TransportType) String() string {
	switch t {
	case TransportTypeTCP:
		return "TCP"
	case TransportTypeWebSocket:
		return "WebSocket"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the transport type is a known valid type.
func (t TransportType) IsValid() bool {
	return t == TransportTypeTCP || t == TransportTypeWebSocket
}
