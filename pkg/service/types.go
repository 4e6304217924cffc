package service

import (
	"fmt"
	"time"

	"github.com/backkem/uacp/pkg/ua"
	"github.com/backkem/uacp/pkg/uabin"
)

// SecurityTokenRequestType selects whether OpenSecureChannel creates or
// renews a token.
type SecurityTokenRequestType uint32

const (
	SecurityTokenRequestTypeIssue SecurityTokenRequestType = 0
	SecurityTokenRequestTypeRenew SecurityTokenRequestType = 1
)

func (t SecurityTokenRequestType) String() string {
	switch t {
	case SecurityTokenRequestTypeIssue:
		return "Issue"
	case SecurityTokenRequestTypeRenew:
		return "Renew"
	default:
		return fmt.Sprintf("SecurityTokenRequestType(%d)", uint32(t))
	}
}

// MessageSecurityMode is the protection applied to a channel's messages.
type MessageSecurityMode uint32

const (
	MessageSecurityModeInvalid        MessageSecurityMode = 0
	MessageSecurityModeNone           MessageSecurityMode = 1
	MessageSecurityModeSign           MessageSecurityMode = 2
	MessageSecurityModeSignAndEncrypt MessageSecurityMode = 3
)

func (m MessageSecurityMode) String() string {
	switch m {
	case MessageSecurityModeInvalid:
		return "Invalid"
	case MessageSecurityModeNone:
		return "None"
	case MessageSecurityModeSign:
		return "Sign"
	case MessageSecurityModeSignAndEncrypt:
		return "SignAndEncrypt"
	default:
		return fmt.Sprintf("MessageSecurityMode(%d)", uint32(m))
	}
}

// RequestHeader is common to all requests. AdditionalHeader is always
// encoded as a null ExtensionObject.
type RequestHeader struct {
	AuthenticationToken uabin.NodeID
	Timestamp           time.Time
	RequestHandle       uint32
	ReturnDiagnostics   uint32
	AuditEntryID        string
	TimeoutHint         uint32
}

func (h *RequestHeader) encode(w *uabin.Writer) {
	w.WriteNodeID(h.AuthenticationToken)
	w.WriteDateTime(h.Timestamp)
	w.WriteUint32(h.RequestHandle)
	w.WriteUint32(h.ReturnDiagnostics)
	w.WriteString(h.AuditEntryID)
	w.WriteUint32(h.TimeoutHint)
	writeNullExtensionObject(w)
}

func (h *RequestHeader) decode(r *uabin.Reader) (err error) {
	if h.AuthenticationToken, err = r.ReadNodeID(); err != nil {
		return fmt.Errorf("authentication token: %w", err)
	}
	if h.Timestamp, err = r.ReadDateTime(); err != nil {
		return err
	}
	if h.RequestHandle, err = r.ReadUint32(); err != nil {
		return err
	}
	if h.ReturnDiagnostics, err = r.ReadUint32(); err != nil {
		return err
	}
	if h.AuditEntryID, err = r.ReadString(); err != nil {
		return err
	}
	if h.TimeoutHint, err = r.ReadUint32(); err != nil {
		return err
	}
	return readNullExtensionObject(r)
}

// ResponseHeader is common to all responses. ServiceDiagnostics and
// AdditionalHeader are always empty.
type ResponseHeader struct {
	Timestamp     time.Time
	RequestHandle uint32
	ServiceResult ua.StatusCode
	StringTable   []string
}

func (h *ResponseHeader) encode(w *uabin.Writer) {
	w.WriteDateTime(h.Timestamp)
	w.WriteUint32(h.RequestHandle)
	w.WriteUint32(uint32(h.ServiceResult))
	w.WriteByte(0) // DiagnosticInfo with no fields
	w.WriteStringArray(h.StringTable)
	writeNullExtensionObject(w)
}

func (h *ResponseHeader) decode(r *uabin.Reader) (err error) {
	if h.Timestamp, err = r.ReadDateTime(); err != nil {
		return err
	}
	if h.RequestHandle, err = r.ReadUint32(); err != nil {
		return err
	}
	code, err := r.ReadUint32()
	if err != nil {
		return err
	}
	h.ServiceResult = ua.StatusCode(code)

	mask, err := r.ReadByte()
	if err != nil {
		return err
	}
	if mask != 0 {
		return fmt.Errorf("service diagnostics mask 0x%02x: %w", mask, uabin.ErrUnsupported)
	}
	if h.StringTable, err = r.ReadStringArray(); err != nil {
		return err
	}
	return readNullExtensionObject(r)
}

// ChannelSecurityToken describes the token a server issued for a channel.
type ChannelSecurityToken struct {
	ChannelID       uint32
	TokenID         uint32
	CreatedAt       time.Time
	RevisedLifetime uint32 // milliseconds
}

func (t *ChannelSecurityToken) encode(w *uabin.Writer) {
	w.WriteUint32(t.ChannelID)
	w.WriteUint32(t.TokenID)
	w.WriteDateTime(t.CreatedAt)
	w.WriteUint32(t.RevisedLifetime)
}

func (t *ChannelSecurityToken) decode(r *uabin.Reader) (err error) {
	if t.ChannelID, err = r.ReadUint32(); err != nil {
		return err
	}
	if t.TokenID, err = r.ReadUint32(); err != nil {
		return err
	}
	if t.CreatedAt, err = r.ReadDateTime(); err != nil {
		return err
	}
	t.RevisedLifetime, err = r.ReadUint32()
	return err
}

// writeNullExtensionObject writes a null type id and an empty body mask.
func writeNullExtensionObject(w *uabin.Writer) {
	w.WriteNodeID(uabin.NodeID{})
	w.WriteByte(0)
}

func readNullExtensionObject(r *uabin.Reader) error {
	id, err := r.ReadNodeID()
	if err != nil {
		return fmt.Errorf("additional header: %w", err)
	}
	mask, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("additional header: %w", err)
	}
	if !id.IsNull() || mask != 0 {
		return fmt.Errorf("%w: type %s, mask 0x%02x", ErrExtensionObject, id, mask)
	}
	return nil
}
