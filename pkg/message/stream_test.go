package message

import (
	"bytes"
	"errors"
	"io"
	"net"
	"reflect"
	"testing"
	"testing/iotest"
	"time"
)

func TestStreamReaderReadsInOrder(t *testing.T) {
	msgs := testMessages()
	var buf bytes.Buffer
	sw := NewStreamWriter(&buf)
	for _, m := range msgs {
		if err := sw.WriteMessage(m); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
	}

	sr := NewStreamReader(iotest.HalfReader(&buf))
	for i, want := range msgs {
		got, err := sr.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() %d error = %v", i, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ReadMessage() %d = %v, want %v", i, got, want)
		}
	}
	if _, err := sr.ReadMessage(); err != io.EOF {
		t.Errorf("ReadMessage() at end error = %v, want EOF", err)
	}
}

func TestStreamReaderUnexpectedEOF(t *testing.T) {
	data := (&Hello{EndpointURL: "opc.tcp://x"}).Encode()
	sr := NewStreamReader(bytes.NewReader(data[:len(data)-1]))

	if _, err := sr.ReadMessage(); err != io.ErrUnexpectedEOF {
		t.Errorf("ReadMessage() error = %v, want %v", err, io.ErrUnexpectedEOF)
	}
}

func TestStreamReaderDecodeErrorOrdering(t *testing.T) {
	first := &Acknowledge{MaxChunkCount: 1}
	bad := []byte{'E', 'R', 'R', 'F', 10, 0, 0, 0, 0, 0}
	last := &Acknowledge{MaxChunkCount: 2}

	var stream []byte
	stream = append(stream, first.Encode()...)
	stream = append(stream, bad...)
	stream = append(stream, last.Encode()...)
	sr := NewStreamReader(bytes.NewReader(stream))

	m, err := sr.ReadMessage()
	if err != nil || !reflect.DeepEqual(m, first) {
		t.Fatalf("ReadMessage() = %v, %v; want %v", m, err, first)
	}

	_, err = sr.ReadMessage()
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("ReadMessage() error = %v, want *DecodeError", err)
	}
	if derr.Type != MessageTypeError {
		t.Errorf("DecodeError.Type = %v, want ERR", derr.Type)
	}

	m, err = sr.ReadMessage()
	if err != nil || !reflect.DeepEqual(m, last) {
		t.Fatalf("ReadMessage() after decode error = %v, %v; want %v", m, err, last)
	}
	if _, err := sr.ReadMessage(); err != io.EOF {
		t.Errorf("ReadMessage() at end error = %v, want EOF", err)
	}
}

func TestStreamReaderDecodeErrorWithEOF(t *testing.T) {
	bad := []byte{'H', 'E', 'L', 'F', 12, 0, 0, 0, 0, 0, 0, 0}
	ack := &Acknowledge{MaxChunkCount: 2}
	sr := NewStreamReader(&eofReader{data: append(append([]byte(nil), bad...), ack.Encode()...)})

	_, err := sr.ReadMessage()
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("ReadMessage() error = %v, want *DecodeError", err)
	}
	m, err := sr.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if !reflect.DeepEqual(m, ack) {
		t.Errorf("ReadMessage() = %v, want %v", m, ack)
	}
	if _, err := sr.ReadMessage(); err != io.EOF {
		t.Errorf("ReadMessage() error = %v, want io.EOF", err)
	}
}

func TestStreamReaderOversized(t *testing.T) {
	hdr := Header{MessageType: MessageTypeSecureMessage, ChunkType: ChunkTypeFinal, MessageSize: MaxWireSize + 1}
	data := append(hdr.Encode(), make([]byte, MaxWireSize)...)
	sr := NewStreamReader(bytes.NewReader(data))

	if _, err := sr.ReadMessage(); !errors.Is(err, ErrRecordTooLarge) {
		t.Errorf("ReadMessage() error = %v, want %v", err, ErrRecordTooLarge)
	}
}

func TestStreamReaderNoProgress(t *testing.T) {
	sr := NewStreamReader(zeroReader{})
	if _, err := sr.ReadMessage(); err != ErrNoProgress {
		t.Errorf("ReadMessage() error = %v, want %v", err, ErrNoProgress)
	}
}

func TestStreamOverPipe(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	flight := NewFlight(
		NewChunk(MessageTypeSecureMessage, ChunkTypeIntermediate, []byte{9, 0, 0, 0, 1}),
		NewChunk(MessageTypeSecureMessage, ChunkTypeFinal, []byte{9, 0, 0, 0, 2}),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- NewStreamWriter(a).WriteFlight(flight)
	}()

	_ = b.SetReadDeadline(time.Now().Add(5 * time.Second))
	sr := NewStreamReader(b)
	for i, want := range flight.Messages() {
		got, err := sr.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() %d error = %v", i, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ReadMessage() %d = %v, want %v", i, got, want)
		}
	}
	if err := <-errCh; err != nil {
		t.Fatalf("WriteFlight() error = %v", err)
	}
}

// zeroReader always returns (0, nil).
type zeroReader struct{}

func (zeroReader) Read([]byte) (int, error) { return 0, nil }
