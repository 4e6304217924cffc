// Package service decodes the OPC UA service messages that travel inside
// secure channel chunks, and projects message flights onto them.
//
// Only the messages that manage the channel itself are supported:
// OpenSecureChannel request and response, and CloseSecureChannel request.
package service

import (
	"fmt"

	"github.com/backkem/uacp/pkg/message"
	"github.com/backkem/uacp/pkg/uabin"
)

// Binary encoding ids (namespace 0) that prefix each message body.
const (
	TypeIDOpenSecureChannelRequest  uint32 = 446
	TypeIDOpenSecureChannelResponse uint32 = 449
	TypeIDCloseSecureChannelRequest uint32 = 452
)

// ServiceMessage is a decoded service request or response.
type ServiceMessage interface {
	// TypeID returns the binary encoding id.
	TypeID() uint32

	// RecordType returns the secure channel record type that carries the
	// message (OPN or CLO).
	RecordType() message.MessageType

	encode(w *uabin.Writer)
	decode(r *uabin.Reader) error
}

// OpenSecureChannelRequest asks the server to issue or renew a token.
type OpenSecureChannelRequest struct {
	RequestHeader         RequestHeader
	ClientProtocolVersion uint32
	RequestType           SecurityTokenRequestType
	SecurityMode          MessageSecurityMode
	ClientNonce           []byte
	RequestedLifetime     uint32 // milliseconds
}

func (*OpenSecureChannelRequest) TypeID() uint32 { return TypeIDOpenSecureChannelRequest }

func (*OpenSecureChannelRequest) RecordType() message.MessageType {
	return message.MessageTypeOpenSecureChannel
}

func (m *OpenSecureChannelRequest) encode(w *uabin.Writer) {
	m.RequestHeader.encode(w)
	w.WriteUint32(m.ClientProtocolVersion)
	w.WriteUint32(uint32(m.RequestType))
	w.WriteUint32(uint32(m.SecurityMode))
	w.WriteByteString(m.ClientNonce)
	w.WriteUint32(m.RequestedLifetime)
}

func (m *OpenSecureChannelRequest) decode(r *uabin.Reader) (err error) {
	if err = m.RequestHeader.decode(r); err != nil {
		return fmt.Errorf("request header: %w", err)
	}
	if m.ClientProtocolVersion, err = r.ReadUint32(); err != nil {
		return err
	}
	v, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.RequestType = SecurityTokenRequestType(v)
	if v, err = r.ReadUint32(); err != nil {
		return err
	}
	m.SecurityMode = MessageSecurityMode(v)
	if m.ClientNonce, err = r.ReadByteString(); err != nil {
		return err
	}
	m.RequestedLifetime, err = r.ReadUint32()
	return err
}

func (m *OpenSecureChannelRequest) String() string {
	return fmt.Sprintf("OpenSecureChannelRequest{Type: %s, Mode: %s, Lifetime: %dms}",
		m.RequestType, m.SecurityMode, m.RequestedLifetime)
}

// OpenSecureChannelResponse returns the issued token.
type OpenSecureChannelResponse struct {
	ResponseHeader        ResponseHeader
	ServerProtocolVersion uint32
	SecurityToken         ChannelSecurityToken
	ServerNonce           []byte
}

func (*OpenSecureChannelResponse) TypeID() uint32 { return TypeIDOpenSecureChannelResponse }

func (*OpenSecureChannelResponse) RecordType() message.MessageType {
	return message.MessageTypeOpenSecureChannel
}

func (m *OpenSecureChannelResponse) encode(w *uabin.Writer) {
	m.ResponseHeader.encode(w)
	w.WriteUint32(m.ServerProtocolVersion)
	m.SecurityToken.encode(w)
	w.WriteByteString(m.ServerNonce)
}

func (m *OpenSecureChannelResponse) decode(r *uabin.Reader) (err error) {
	if err = m.ResponseHeader.decode(r); err != nil {
		return fmt.Errorf("response header: %w", err)
	}
	if m.ServerProtocolVersion, err = r.ReadUint32(); err != nil {
		return err
	}
	if err = m.SecurityToken.decode(r); err != nil {
		return fmt.Errorf("security token: %w", err)
	}
	m.ServerNonce, err = r.ReadByteString()
	return err
}

func (m *OpenSecureChannelResponse) String() string {
	return fmt.Sprintf("OpenSecureChannelResponse{Result: %s, Channel: %d, Token: %d}",
		m.ResponseHeader.ServiceResult, m.SecurityToken.ChannelID, m.SecurityToken.TokenID)
}

// CloseSecureChannelRequest closes the channel. It has no response.
type CloseSecureChannelRequest struct {
	RequestHeader RequestHeader
}

func (*CloseSecureChannelRequest) TypeID() uint32 { return TypeIDCloseSecureChannelRequest }

func (*CloseSecureChannelRequest) RecordType() message.MessageType {
	return message.MessageTypeCloseSecureChannel
}

func (m *CloseSecureChannelRequest) encode(w *uabin.Writer) {
	m.RequestHeader.encode(w)
}

func (m *CloseSecureChannelRequest) decode(r *uabin.Reader) error {
	if err := m.RequestHeader.decode(r); err != nil {
		return fmt.Errorf("request header: %w", err)
	}
	return nil
}

func (m *CloseSecureChannelRequest) String() string {
	return fmt.Sprintf("CloseSecureChannelRequest{Handle: %d}", m.RequestHeader.RequestHandle)
}
