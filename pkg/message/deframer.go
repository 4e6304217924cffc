package message

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pion/logging"
)

// ResyncPolicy selects what the Deframer does with buffered bytes when the
// record at the front of the buffer has an unrecognized header.
type ResyncPolicy int

const (
	// ResyncDiscard drops every buffered byte and waits for a clean header
	// in future input. Valid records buffered behind the corrupt one are lost.
	ResyncDiscard ResyncPolicy = iota

	// ResyncScan drops bytes only up to the next offset that starts a
	// plausible header and keeps deframing from there.
	ResyncScan
)

// String returns the policy name.
func (p ResyncPolicy) String() string {
	switch p {
	case ResyncDiscard:
		return "discard"
	case ResyncScan:
		return "scan"
	default:
		return "unknown"
	}
}

// DeframerConfig configures a Deframer.
type DeframerConfig struct {
	// Resync is the recovery policy for unrecognized headers.
	// Default: ResyncDiscard
	Resync ResyncPolicy

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// DeframerStats counts what a Deframer has done so far.
type DeframerStats struct {
	// Records is the number of records queued.
	Records uint64
	// Resyncs is the number of unrecognized headers encountered.
	Resyncs uint64
	// DiscardedBytes is the number of bytes dropped while resynchronizing.
	DiscardedBytes uint64
	// DecodeErrors is the number of records dropped because their payload
	// could not be decoded.
	DecodeErrors uint64
}

// bufferContent classifies the prefix of the working buffer.
type bufferContent int

const (
	contentPartial bufferContent = iota
	contentValid
	contentInvalid
	contentUndecodable
)

// Deframer turns one connection's inbound byte stream into records.
//
// It owns a fixed MaxWireSize working buffer of which the first used bytes
// hold live data. Every Read appends to the buffer and then extracts as many
// complete records as are buffered; a partial record stays at the front of
// the buffer until more bytes arrive.
//
// A Deframer is not safe for concurrent use. Each connection owns its own.
type Deframer struct {
	frames []Message
	buf    []byte
	used   int

	resync ResyncPolicy
	stats  DeframerStats
	log    logging.LeveledLogger
}

// NewDeframer creates an empty Deframer with the default configuration.
func NewDeframer() *Deframer {
	return NewDeframerWithConfig(DeframerConfig{})
}

// NewDeframerWithConfig creates an empty Deframer.
func NewDeframerWithConfig(config DeframerConfig) *Deframer {
	d := &Deframer{
		buf:    make([]byte, MaxWireSize),
		resync: config.Resync,
	}
	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("uacp-deframer")
	}
	return d
}

// Read performs a single read from r into the free tail of the buffer and
// then deframes everything it can. It returns the number of bytes taken
// from r.
//
// Bytes left buffered by an earlier *DecodeError are deframed before r is
// read, so a corrupt header behind the failed record is resynchronized
// rather than taken for an oversized record.
//
// Errors:
//   - ErrRecordTooLarge (wrapped) with n == 0 when the record at the front
//     declares more than MaxWireSize bytes. It can never complete, so r is
//     not read at all.
//   - *DecodeError when a record's boundary was valid but its payload did
//     not decode. The record is dropped; records before it are queued and
//     bytes after it stay buffered. If r also returned an error, both are
//     joined.
//   - any error returned by r.
func (d *Deframer) Read(r io.Reader) (int, error) {
	if err := d.deframe(); err != nil {
		return 0, err
	}
	if err := d.checkCapacity(); err != nil {
		return 0, err
	}

	n, err := r.Read(d.buf[d.used:])
	if n < 0 || n > len(d.buf)-d.used {
		return 0, io.ErrShortBuffer
	}
	d.used += n

	if derr := d.deframe(); derr != nil {
		if err != nil {
			return n, errors.Join(derr, err)
		}
		return n, derr
	}
	return n, err
}

// Write appends p to the buffer, deframing whenever the buffer fills, until
// all of p is consumed. It implements io.Writer so a Deframer can sit behind
// io.Copy. On error, n reports how much of p was consumed; the caller may
// retry with p[n:] after handling a *DecodeError. Records still buffered are
// deframed on the retry even when p[n:] is empty.
func (d *Deframer) Write(p []byte) (int, error) {
	if err := d.deframe(); err != nil {
		return 0, err
	}

	total := 0
	for len(p) > 0 {
		if err := d.checkCapacity(); err != nil {
			return total, err
		}
		n := copy(d.buf[d.used:], p)
		d.used += n
		total += n
		p = p[n:]

		if err := d.deframe(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Process deframes already-buffered bytes without reading. Use it to resume
// after a *DecodeError left complete records behind the failed one.
func (d *Deframer) Process() error {
	return d.deframe()
}

// PopFrame removes and returns the oldest complete record.
func (d *Deframer) PopFrame() (Message, bool) {
	if len(d.frames) == 0 {
		return nil, false
	}
	m := d.frames[0]
	d.frames[0] = nil
	d.frames = d.frames[1:]
	if len(d.frames) == 0 {
		d.frames = nil
	}
	return m, true
}

// HasPending reports whether records are queued or bytes are buffered,
// even if those bytes do not yet form a complete record.
func (d *Deframer) HasPending() bool {
	return len(d.frames) > 0 || d.used > 0
}

// Queued returns the number of complete records waiting in the queue.
func (d *Deframer) Queued() int {
	return len(d.frames)
}

// Buffered returns the number of live, unconsumed bytes in the buffer.
func (d *Deframer) Buffered() int {
	return d.used
}

// Stats returns a snapshot of the deframer's counters.
func (d *Deframer) Stats() DeframerStats {
	return d.stats
}

// Reset drops all queued records and buffered bytes.
func (d *Deframer) Reset() {
	d.frames = nil
	d.used = 0
}

// checkCapacity reports ErrRecordTooLarge when the front record can never fit.
func (d *Deframer) checkCapacity() error {
	if d.used < HeaderSize {
		return nil
	}
	size := binary.LittleEndian.Uint32(d.buf[sizeOffset:HeaderSize])
	if size > MaxWireSize {
		return fmt.Errorf("%w: %s record declares %d bytes, capacity %d",
			ErrRecordTooLarge, ParseMessageType(d.buf[:TagSize]), size, MaxWireSize)
	}
	return nil
}

// deframe extracts records until the buffer holds no complete record.
func (d *Deframer) deframe() error {
	for {
		content, err := d.tryDeframeOne()
		switch content {
		case contentValid:
			continue
		case contentPartial:
			return nil
		case contentInvalid:
			if !d.resynchronize() {
				return nil
			}
		case contentUndecodable:
			return err
		}
	}
}

// tryDeframeOne tries to decode one record off the front of the buffer.
// Bytes at or beyond used are never inspected.
func (d *Deframer) tryDeframeOne() (bufferContent, error) {
	if d.used < TagSize {
		return contentPartial, nil
	}
	mt := ParseMessageType(d.buf[:TagSize])
	if mt == MessageTypeInvalid {
		return contentInvalid, nil
	}

	if d.used < TagSize+1 {
		return contentPartial, nil
	}
	if !mt.AllowsChunkType(ChunkType(d.buf[TagSize])) {
		return contentInvalid, nil
	}

	if d.used < HeaderSize {
		return contentPartial, nil
	}
	size := binary.LittleEndian.Uint32(d.buf[sizeOffset:HeaderSize])
	if size < HeaderSize {
		return contentInvalid, nil
	}
	if size > uint32(d.used) {
		return contentPartial, nil
	}

	n := int(size)
	msg, err := Decode(d.buf[:n])
	d.consume(n)
	if err != nil {
		d.stats.DecodeErrors++
		derr := &DecodeError{Type: mt, Size: n, Err: err}
		if d.log != nil {
			d.log.Warnf("dropping undecodable record: %v", derr)
		}
		return contentUndecodable, derr
	}

	d.frames = append(d.frames, msg)
	d.stats.Records++
	if d.log != nil {
		d.log.Tracef("deframed %s/%c (%d bytes), %d bytes buffered", mt, chunkTypeOf(msg), n, d.used)
	}
	return contentValid, nil
}

func chunkTypeOf(m Message) byte {
	if c, ok := m.(*Chunk); ok {
		return byte(c.ChunkType())
	}
	return byte(ChunkTypeFinal)
}

// consume drops the first size bytes, shifting the remainder to the front.
// The cost is proportional to the bytes that remain, not to the capacity.
func (d *Deframer) consume(size int) {
	if size < d.used {
		copy(d.buf, d.buf[size:d.used])
		d.used -= size
		return
	}
	d.used = 0
}

// resynchronize recovers from an unrecognized header according to the
// policy. It returns true if live bytes remain that should be deframed.
func (d *Deframer) resynchronize() bool {
	d.stats.Resyncs++

	drop := d.used
	if d.resync == ResyncScan {
		for i := 1; i < d.used; i++ {
			if plausibleHeader(d.buf[i:d.used]) {
				drop = i
				break
			}
		}
	}

	if d.log != nil {
		d.log.Warnf("unrecognized header % x, discarding %d of %d buffered bytes (resync=%s)",
			d.buf[:min(d.used, HeaderSize)], drop, d.used, d.resync)
	}
	d.stats.DiscardedBytes += uint64(drop)
	d.consume(drop)
	return d.used > 0
}

// plausibleHeader reports whether b could be the start of a valid record.
// Short input is plausible if it is a prefix of some valid header.
func plausibleHeader(b []byte) bool {
	if len(b) < TagSize {
		for mt := MessageTypeHello; mt <= MessageTypeSecureMessage; mt++ {
			tag := mt.Tag()
			if string(tag[:len(b)]) == string(b) {
				return true
			}
		}
		return false
	}
	mt := ParseMessageType(b[:TagSize])
	if mt == MessageTypeInvalid {
		return false
	}
	if len(b) > TagSize && !mt.AllowsChunkType(ChunkType(b[TagSize])) {
		return false
	}
	if len(b) >= HeaderSize && binary.LittleEndian.Uint32(b[sizeOffset:HeaderSize]) < HeaderSize {
		return false
	}
	return true
}
