package uabin

import (
	"encoding/binary"
	"time"
)

// DateTime conversion constants.
const (
	ticksPerSecond = 10_000_000

	// epochOffsetSeconds is the distance from 1601-01-01 to 1970-01-01.
	epochOffsetSeconds = -11644473600
)

// Writer appends encoded values to a growable byte slice.
type Writer struct {
	buf []byte
}

// NewWriter creates a Writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded bytes. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Write appends p. It never fails.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// WriteByte appends a single byte.
func (w *Writer) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

// WriteBool appends a Boolean.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// WriteUint16 appends a UInt16.
func (w *Writer) WriteUint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteUint32 appends a UInt32.
func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteUint64 appends a UInt64.
func (w *Writer) WriteUint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteInt32 appends an Int32.
func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

// WriteInt64 appends an Int64.
func (w *Writer) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

// PutUint32At overwrites four bytes at offset off. Used to back-patch
// length fields once a record's size is known.
func (w *Writer) PutUint32At(off int, v uint32) {
	binary.LittleEndian.PutUint32(w.buf[off:off+4], v)
}

// WriteByteString appends a ByteString; nil encodes as null.
func (w *Writer) WriteByteString(b []byte) {
	if b == nil {
		w.WriteInt32(-1)
		return
	}
	w.WriteInt32(int32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString appends a String; "" encodes as null.
func (w *Writer) WriteString(s string) {
	if s == "" {
		w.WriteInt32(-1)
		return
	}
	w.WriteInt32(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteStringArray appends an array of Strings; nil encodes as null.
func (w *Writer) WriteStringArray(ss []string) {
	if ss == nil {
		w.WriteInt32(-1)
		return
	}
	w.WriteInt32(int32(len(ss)))
	for _, s := range ss {
		w.WriteString(s)
	}
}

// WriteDateTime appends a DateTime. The zero time encodes as 0.
func (w *Writer) WriteDateTime(t time.Time) {
	w.WriteInt64(timeToTicks(t))
}

func timeToTicks(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	sec := t.Unix() - epochOffsetSeconds
	return sec*ticksPerSecond + int64(t.Nanosecond())/100
}
