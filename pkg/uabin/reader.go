// Package uabin implements the OPC UA binary encoding primitives used by the
// connection protocol: a cursor over an in-memory byte slice for decoding and
// an appending writer for encoding. All multi-byte values are little-endian.
package uabin

import (
	"encoding/binary"
	"io"
	"math"
	"time"
)

// Reader is a sequential cursor over a byte slice.
// Slices returned by ReadBytes, Peek and Rest alias the underlying buffer.
type Reader struct {
	buf []byte
	off int
}

// NewReader creates a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.off
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.off
}

// Peek returns the next n bytes without consuming them.
func (r *Reader) Peek(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, ErrShortBuffer
	}
	return r.buf[r.off : r.off+n], nil
}

// Rest consumes and returns every unread byte.
func (r *Reader) Rest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 || r.Len() < n {
		return ErrShortBuffer
	}
	r.off += n
	return nil
}

// Read implements io.Reader so a Reader can feed stream consumers.
// It returns io.EOF once the buffer is exhausted.
func (r *Reader) Read(p []byte) (int, error) {
	if r.Len() == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, r.buf[r.off:])
	r.off += n
	return n, nil
}

// ReadBytes consumes n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.Peek(n)
	if err != nil {
		return nil, err
	}
	r.off += n
	return b, nil
}

// ReadByte consumes a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.Len() < 1 {
		return 0, ErrShortBuffer
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// ReadBool decodes a Boolean (any non-zero byte is true).
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

// ReadUint16 decodes a UInt16.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 decodes a UInt32.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 decodes a UInt64.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadInt32 decodes an Int32.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadInt64 decodes an Int64.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadByteString decodes a ByteString. A null ByteString (length -1)
// decodes to nil, an empty one to a non-nil empty slice.
// The returned slice is a copy.
func (r *Reader) ReadByteString() ([]byte, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	if n < -1 {
		return nil, ErrInvalidLength
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// ReadString decodes a String. Null and empty strings both decode to "".
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return "", err
	}
	if n == -1 {
		return "", nil
	}
	if n < -1 {
		return "", ErrInvalidLength
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadStringArray decodes an array of Strings. A null array decodes to nil.
func (r *Reader) ReadStringArray() ([]string, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	// Each element needs at least its 4-byte length.
	if n < -1 || int64(n)*4 > int64(r.Len()) {
		return nil, ErrInvalidLength
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = r.ReadString(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReadDateTime decodes a DateTime (100ns ticks since 1601-01-01 UTC).
// Zero ticks decode to the zero time.Time.
func (r *Reader) ReadDateTime() (time.Time, error) {
	ticks, err := r.ReadInt64()
	if err != nil {
		return time.Time{}, err
	}
	return ticksToTime(ticks), nil
}

func ticksToTime(ticks int64) time.Time {
	if ticks <= 0 || ticks == math.MaxInt64 {
		return time.Time{}
	}
	sec := ticks/ticksPerSecond + epochOffsetSeconds
	nsec := (ticks % ticksPerSecond) * 100
	return time.Unix(sec, nsec).UTC()
}
