package message

import (
	"encoding/binary"
	"fmt"

	"github.com/backkem/uacp/pkg/ua"
	"github.com/backkem/uacp/pkg/uabin"
)

// Message is one UACP record. Exactly one concrete type is active per record:
// *Hello, *Acknowledge, *ErrorMessage, *ReverseHello or *Chunk. The set is
// closed; the concrete type is chosen from the wire tag only.
type Message interface {
	// Type returns the record's message type.
	Type() MessageType

	// Encode returns the complete wire encoding including the header.
	Encode() []byte

	// EncodeTo appends the complete wire encoding to w.
	EncodeTo(w *uabin.Writer)

	isMessage()
}

// Hello is sent by the client to open a connection (Part 6, 7.1.2.3).
type Hello struct {
	ProtocolVersion   uint32
	ReceiveBufferSize uint32
	SendBufferSize    uint32
	MaxMessageSize    uint32
	MaxChunkCount     uint32
	EndpointURL       string
}

func (*Hello) Type() MessageType { return MessageTypeHello }
func (*Hello) isMessage()        {}

func (h *Hello) Encode() []byte { return encodeMessage(h) }

func (h *Hello) EncodeTo(w *uabin.Writer) {
	writeRecord(w, MessageTypeHello, ChunkTypeFinal, func(w *uabin.Writer) {
		w.WriteUint32(h.ProtocolVersion)
		w.WriteUint32(h.ReceiveBufferSize)
		w.WriteUint32(h.SendBufferSize)
		w.WriteUint32(h.MaxMessageSize)
		w.WriteUint32(h.MaxChunkCount)
		w.WriteString(h.EndpointURL)
	})
}

func (h *Hello) decode(r *uabin.Reader) (err error) {
	if h.ProtocolVersion, err = r.ReadUint32(); err != nil {
		return err
	}
	if h.ReceiveBufferSize, err = r.ReadUint32(); err != nil {
		return err
	}
	if h.SendBufferSize, err = r.ReadUint32(); err != nil {
		return err
	}
	if h.MaxMessageSize, err = r.ReadUint32(); err != nil {
		return err
	}
	if h.MaxChunkCount, err = r.ReadUint32(); err != nil {
		return err
	}
	h.EndpointURL, err = r.ReadString()
	return err
}

func (h *Hello) String() string {
	return fmt.Sprintf("Hello{v%d rcv=%d snd=%d maxMsg=%d maxChunks=%d url=%q}",
		h.ProtocolVersion, h.ReceiveBufferSize, h.SendBufferSize, h.MaxMessageSize, h.MaxChunkCount, h.EndpointURL)
}

// Acknowledge is the server's answer to a Hello (Part 6, 7.1.2.4).
type Acknowledge struct {
	ProtocolVersion   uint32
	ReceiveBufferSize uint32
	SendBufferSize    uint32
	MaxMessageSize    uint32
	MaxChunkCount     uint32
}

func (*Acknowledge) Type() MessageType { return MessageTypeAcknowledge }
func (*Acknowledge) isMessage()        {}

func (a *Acknowledge) Encode() []byte { return encodeMessage(a) }

func (a *Acknowledge) EncodeTo(w *uabin.Writer) {
	writeRecord(w, MessageTypeAcknowledge, ChunkTypeFinal, func(w *uabin.Writer) {
		w.WriteUint32(a.ProtocolVersion)
		w.WriteUint32(a.ReceiveBufferSize)
		w.WriteUint32(a.SendBufferSize)
		w.WriteUint32(a.MaxMessageSize)
		w.WriteUint32(a.MaxChunkCount)
	})
}

func (a *Acknowledge) decode(r *uabin.Reader) (err error) {
	if a.ProtocolVersion, err = r.ReadUint32(); err != nil {
		return err
	}
	if a.ReceiveBufferSize, err = r.ReadUint32(); err != nil {
		return err
	}
	if a.SendBufferSize, err = r.ReadUint32(); err != nil {
		return err
	}
	if a.MaxMessageSize, err = r.ReadUint32(); err != nil {
		return err
	}
	a.MaxChunkCount, err = r.ReadUint32()
	return err
}

func (a *Acknowledge) String() string {
	return fmt.Sprintf("Acknowledge{v%d rcv=%d snd=%d maxMsg=%d maxChunks=%d}",
		a.ProtocolVersion, a.ReceiveBufferSize, a.SendBufferSize, a.MaxMessageSize, a.MaxChunkCount)
}

// ErrorMessage reports a fatal connection error; the sender closes the
// connection afterwards (Part 6, 7.1.2.5).
type ErrorMessage struct {
	Error  ua.StatusCode
	Reason string
}

func (*ErrorMessage) Type() MessageType { return MessageTypeError }
func (*ErrorMessage) isMessage()        {}

func (e *ErrorMessage) Encode() []byte { return encodeMessage(e) }

func (e *ErrorMessage) EncodeTo(w *uabin.Writer) {
	writeRecord(w, MessageTypeError, ChunkTypeFinal, func(w *uabin.Writer) {
		w.WriteUint32(uint32(e.Error))
		w.WriteString(e.Reason)
	})
}

func (e *ErrorMessage) decode(r *uabin.Reader) error {
	code, err := r.ReadUint32()
	if err != nil {
		return err
	}
	e.Error = ua.StatusCode(code)
	e.Reason, err = r.ReadString()
	return err
}

// Err converts the message to an error value wrapping its status code.
func (e *ErrorMessage) Err() error {
	if e.Reason == "" {
		return e.Error
	}
	return fmt.Errorf("%w: %s", e.Error, e.Reason)
}

func (e *ErrorMessage) String() string {
	return fmt.Sprintf("Error{%s reason=%q}", e.Error, e.Reason)
}

// ReverseHello is sent by a server that opens the socket to a client
// (Part 6, 7.1.2.6).
type ReverseHello struct {
	ServerURI   string
	EndpointURL string
}

func (*ReverseHello) Type() MessageType { return MessageTypeReverseHello }
func (*ReverseHello) isMessage()        {}

func (rh *ReverseHello) Encode() []byte { return encodeMessage(rh) }

func (rh *ReverseHello) EncodeTo(w *uabin.Writer) {
	writeRecord(w, MessageTypeReverseHello, ChunkTypeFinal, func(w *uabin.Writer) {
		w.WriteString(rh.ServerURI)
		w.WriteString(rh.EndpointURL)
	})
}

func (rh *ReverseHello) decode(r *uabin.Reader) (err error) {
	if rh.ServerURI, err = r.ReadString(); err != nil {
		return err
	}
	rh.EndpointURL, err = r.ReadString()
	return err
}

func (rh *ReverseHello) String() string {
	return fmt.Sprintf("ReverseHello{server=%q url=%q}", rh.ServerURI, rh.EndpointURL)
}

// Chunk is an opaque secure channel record (OPN, CLO or MSG). Data holds the
// complete record including its header. The body may be signed or encrypted
// and is not interpreted here beyond the header.
type Chunk struct {
	Data []byte
}

// NewChunk builds a chunk record from a message type, chunk type and body
// (everything after the 8-byte header).
func NewChunk(mt MessageType, ct ChunkType, body []byte) *Chunk {
	w := uabin.NewWriter(HeaderSize + len(body))
	writeRecord(w, mt, ct, func(w *uabin.Writer) {
		w.Write(body)
	})
	return &Chunk{Data: w.Bytes()}
}

func (c *Chunk) Type() MessageType {
	if len(c.Data) < TagSize {
		return MessageTypeInvalid
	}
	return ParseMessageType(c.Data[:TagSize])
}

func (*Chunk) isMessage() {}

// Encode returns a copy of the chunk's bytes.
func (c *Chunk) Encode() []byte {
	out := make([]byte, len(c.Data))
	copy(out, c.Data)
	return out
}

func (c *Chunk) EncodeTo(w *uabin.Writer) {
	w.Write(c.Data)
}

// Header parses the chunk's message header.
func (c *Chunk) Header() (Header, error) {
	return ParseHeader(c.Data)
}

// ChunkType returns the chunk-kind marker, or 0 for a truncated chunk.
func (c *Chunk) ChunkType() ChunkType {
	if len(c.Data) <= TagSize {
		return 0
	}
	return ChunkType(c.Data[TagSize])
}

// SecureChannelID returns the channel id that follows the header of every
// secure channel record.
func (c *Chunk) SecureChannelID() (uint32, error) {
	if len(c.Data) < HeaderSize+4 {
		return 0, ErrMessageTooShort
	}
	return binary.LittleEndian.Uint32(c.Data[HeaderSize:]), nil
}

// Body returns the bytes after the message header. The slice aliases Data.
func (c *Chunk) Body() []byte {
	if len(c.Data) < HeaderSize {
		return nil
	}
	return c.Data[HeaderSize:]
}

func (c *Chunk) String() string {
	return fmt.Sprintf("Chunk{%s/%s %d bytes}", c.Type(), c.ChunkType(), len(c.Data))
}
