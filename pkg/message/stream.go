package message

import (
	"errors"
	"io"
)

// maxEmptyReads bounds consecutive (0, nil) reads before giving up,
// mirroring bufio's protection against misbehaving readers.
const maxEmptyReads = 100

// StreamWriter writes UACP records to an io.Writer.
type StreamWriter struct {
	w io.Writer
}

// NewStreamWriter creates a new stream writer.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w}
}

// WriteMessage writes one record in a single Write call.
func (sw *StreamWriter) WriteMessage(m Message) error {
	_, err := sw.w.Write(m.Encode())
	return err
}

// WriteFlight writes all records of f in a single Write call.
func (sw *StreamWriter) WriteFlight(f *Flight) error {
	_, err := sw.w.Write(f.Encode())
	return err
}

// StreamReader reads UACP records from an io.Reader through a Deframer.
type StreamReader struct {
	r       io.Reader
	d       *Deframer
	pending error
}

// NewStreamReader creates a stream reader with its own default Deframer.
func NewStreamReader(r io.Reader) *StreamReader {
	return NewStreamReaderWithDeframer(r, NewDeframer())
}

// NewStreamReaderWithDeframer creates a stream reader around d.
func NewStreamReaderWithDeframer(r io.Reader, d *Deframer) *StreamReader {
	return &StreamReader{r: r, d: d}
}

// Deframer returns the underlying deframer.
func (sr *StreamReader) Deframer() *Deframer {
	return sr.d
}

// ReadMessage blocks until a complete record is available and returns it.
//
// Records are returned in wire order. An error from the deframer or the
// underlying reader is reported only after the records queued before it
// have been returned. If the stream ends inside a record, the error is
// io.ErrUnexpectedEOF. A *DecodeError does not end the stream; the caller
// may keep reading.
func (sr *StreamReader) ReadMessage() (Message, error) {
	empty := 0
	for {
		if m, ok := sr.d.PopFrame(); ok {
			return m, nil
		}
		if sr.pending != nil {
			err := sr.pending
			var derr *DecodeError
			if errors.As(err, &derr) {
				// Records already buffered behind the bad one.
				sr.pending = sr.d.Process()
			}
			return nil, err
		}

		n, err := sr.d.Read(sr.r)
		if err != nil {
			var derr *DecodeError
			if errors.As(err, &derr) {
				// An error joined from the source is seen again on the next read.
				sr.pending = derr
				continue
			}
			if errors.Is(err, io.EOF) && sr.d.Buffered() > 0 {
				err = io.ErrUnexpectedEOF
			}
			sr.pending = err
			continue
		}
		if n == 0 && sr.d.Queued() == 0 {
			empty++
			if empty >= maxEmptyReads {
				return nil, ErrNoProgress
			}
			continue
		}
		empty = 0
	}
}
