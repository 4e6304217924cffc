package service

import (
	"fmt"

	"github.com/backkem/uacp/pkg/uabin"
)

// Encode serializes m with its binary encoding id prefix.
func Encode(m ServiceMessage) []byte {
	w := uabin.NewWriter(128)
	w.WriteNodeID(uabin.NewNodeID(m.TypeID()))
	m.encode(w)
	return w.Bytes()
}

// Decode parses a message body that starts with a binary encoding id.
func Decode(data []byte) (ServiceMessage, error) {
	r := uabin.NewReader(data)
	id, err := r.ReadNodeID()
	if err != nil {
		return nil, fmt.Errorf("type id: %w", err)
	}

	m, err := newMessage(id)
	if err != nil {
		return nil, err
	}
	if err := m.decode(r); err != nil {
		return nil, fmt.Errorf("decode %T: %w", m, err)
	}
	if r.Len() > 0 {
		return nil, fmt.Errorf("%w: %d bytes after %T", ErrTrailingBytes, r.Len(), m)
	}
	return m, nil
}

func newMessage(id uabin.NodeID) (ServiceMessage, error) {
	if id.Namespace != 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, id)
	}
	switch id.ID {
	case TypeIDOpenSecureChannelRequest:
		return &OpenSecureChannelRequest{}, nil
	case TypeIDOpenSecureChannelResponse:
		return &OpenSecureChannelResponse{}, nil
	case TypeIDCloseSecureChannelRequest:
		return &CloseSecureChannelRequest{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, id)
	}
}
