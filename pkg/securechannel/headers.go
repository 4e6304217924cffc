package securechannel

import (
	"fmt"

	"github.com/backkem/uacp/pkg/uabin"
)

// SecurityPolicyNone is the URI of the policy that neither signs nor encrypts.
const SecurityPolicyNone = "http://opcfoundation.org/UA/SecurityPolicy#None"

// Fixed header sizes (Part 6, 6.7.2).
const (
	// ChannelIDSize is the size of the SecureChannelId after the message header.
	ChannelIDSize = 4

	// SymmetricSecurityHeaderSize is the size of the TokenId field.
	SymmetricSecurityHeaderSize = 4

	// SequenceHeaderSize is SequenceNumber (4) + RequestId (4).
	SequenceHeaderSize = 8
)

// AsymmetricSecurityHeader precedes the sequence header in OPN chunks.
type AsymmetricSecurityHeader struct {
	SecurityPolicyURI             string
	SenderCertificate             []byte
	ReceiverCertificateThumbprint []byte
}

// Size returns the encoded size of the header.
func (h *AsymmetricSecurityHeader) Size() int {
	return 12 + len(h.SecurityPolicyURI) + len(h.SenderCertificate) + len(h.ReceiverCertificateThumbprint)
}

// EncodeTo appends the header to w.
func (h *AsymmetricSecurityHeader) EncodeTo(w *uabin.Writer) {
	w.WriteString(h.SecurityPolicyURI)
	w.WriteByteString(h.SenderCertificate)
	w.WriteByteString(h.ReceiverCertificateThumbprint)
}

// Decode reads the header from r.
func (h *AsymmetricSecurityHeader) Decode(r *uabin.Reader) (err error) {
	if h.SecurityPolicyURI, err = r.ReadString(); err != nil {
		return fmt.Errorf("security policy uri: %w", err)
	}
	if h.SenderCertificate, err = r.ReadByteString(); err != nil {
		return fmt.Errorf("sender certificate: %w", err)
	}
	if h.ReceiverCertificateThumbprint, err = r.ReadByteString(); err != nil {
		return fmt.Errorf("receiver thumbprint: %w", err)
	}
	return nil
}

// SymmetricSecurityHeader precedes the sequence header in MSG and CLO chunks.
type SymmetricSecurityHeader struct {
	TokenID uint32
}

// EncodeTo appends the header to w.
func (h *SymmetricSecurityHeader) EncodeTo(w *uabin.Writer) {
	w.WriteUint32(h.TokenID)
}

// Decode reads the header from r.
func (h *SymmetricSecurityHeader) Decode(r *uabin.Reader) (err error) {
	h.TokenID, err = r.ReadUint32()
	return err
}

// SequenceHeader numbers a chunk and ties it to a request.
type SequenceHeader struct {
	SequenceNumber uint32
	RequestID      uint32
}

// EncodeTo appends the header to w.
func (h *SequenceHeader) EncodeTo(w *uabin.Writer) {
	w.WriteUint32(h.SequenceNumber)
	w.WriteUint32(h.RequestID)
}

// Decode reads the header from r.
func (h *SequenceHeader) Decode(r *uabin.Reader) (err error) {
	if h.SequenceNumber, err = r.ReadUint32(); err != nil {
		return err
	}
	h.RequestID, err = r.ReadUint32()
	return err
}
