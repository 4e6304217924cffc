package transport

import (
	"net"
	"testing"
	"time"

	"github.com/backkem/uacp/pkg/message"
)

// readString reads once from c in the background.
func readString(c net.Conn) <-chan string {
	out := make(chan string, 1)
	go func() {
		buf := make([]byte, 100)
		n, _ := c.Read(buf)
		out <- string(buf[:n])
	}()
	return out
}

func TestPipe_AutoProcess(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()

	if !pipe.AutoProcess() {
		t.Fatal("AutoProcess should be true by default")
	}

	conn0 := pipe.Conn(0, DefaultPort)
	conn1 := pipe.Conn(1, DefaultPort)

	got := readString(conn1)
	if _, err := conn0.Write([]byte("auto-delivered")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case s := <-got:
		if s != "auto-delivered" {
			t.Errorf("read %q, want %q", s, "auto-delivered")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout - auto-process may not be working")
	}
}

func TestPipe_ManualProcess(t *testing.T) {
	pipe := NewPipeWithConfig(PipeConfig{AutoProcess: false})
	defer pipe.Close()

	if pipe.AutoProcess() {
		t.Fatal("AutoProcess should be false")
	}

	conn0 := pipe.Conn(0, DefaultPort)
	conn1 := pipe.Conn(1, DefaultPort)

	got := readString(conn1)

	// Give reader time to block
	time.Sleep(10 * time.Millisecond)

	conn0.Write([]byte("manual"))

	select {
	case <-got:
		t.Fatal("data delivered without Process()")
	case <-time.After(20 * time.Millisecond):
	}

	if pipe.Process() == 0 {
		t.Error("Process() delivered nothing")
	}

	select {
	case s := <-got:
		if s != "manual" {
			t.Errorf("read %q, want %q", s, "manual")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout after Process()")
	}
}

func TestPipe_SegmentedRecordReassembles(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()
	pipe.SetCondition(NetworkCondition{MaxSegment: 3})

	conn0 := pipe.Conn(0, DefaultPort)
	conn1 := pipe.Conn(1, DefaultPort)

	records := make(chan message.Message, 2)
	go func() {
		sr := message.NewStreamReader(conn1)
		for i := 0; i < 2; i++ {
			m, err := sr.ReadMessage()
			if err != nil {
				return
			}
			records <- m
		}
	}()

	hello := testHello()
	msg := message.NewChunk(message.MessageTypeSecureMessage, message.ChunkTypeFinal, []byte("payload"))
	if _, err := conn0.Write(message.NewFlight(hello, msg).Encode()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	for i, want := range []message.MessageType{message.MessageTypeHello, message.MessageTypeSecureMessage} {
		select {
		case m := <-records:
			if m.Type() != want {
				t.Errorf("record %d type = %v, want %v", i, m.Type(), want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for record %d", i)
		}
	}
}

func TestNetworkCondition_Delay(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()
	pipe.SetCondition(NetworkCondition{
		DelayMin: 20 * time.Millisecond,
		DelayMax: 30 * time.Millisecond,
	})

	conn0 := pipe.Conn(0, DefaultPort)
	conn1 := pipe.Conn(1, DefaultPort)

	got := readString(conn1)
	start := time.Now()
	conn0.Write([]byte("late"))

	select {
	case <-got:
		if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
			t.Errorf("delivered after %v, want at least 20ms", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for delayed data")
	}
}

func TestPipeConn_Addresses(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()

	c := pipe.Conn(1, DefaultPort)
	if got := c.LocalAddr().String(); got != "pipe:1:4840" {
		t.Errorf("LocalAddr() = %q, want %q", got, "pipe:1:4840")
	}
	if got := c.RemoteAddr().String(); got != "pipe:0:4840" {
		t.Errorf("RemoteAddr() = %q, want %q", got, "pipe:0:4840")
	}
}

func TestPipeAddr_String(t *testing.T) {
	addr := PipeAddr{ID: 1, Port: 4840}
	if addr.Network() != "pipe" {
		t.Errorf("Network() = %q, want %q", addr.Network(), "pipe")
	}
	if addr.String() != "pipe:1:4840" {
		t.Errorf("String() = %q, want %q", addr.String(), "pipe:1:4840")
	}
}

func TestPipe_Close(t *testing.T) {
	pipe := NewPipe()

	if err := pipe.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// Second close should be no-op
	if err := pipe.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestPipeTCPListener_AcceptOnce(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()

	listener := pipe.Listener(0, DefaultPort)
	defer listener.Close()

	conn, err := listener.Accept()
	if err != nil {
		t.Fatalf("first Accept: %v", err)
	}
	if conn.LocalAddr().String() != "pipe:0:4840" {
		t.Errorf("accepted LocalAddr() = %v", conn.LocalAddr())
	}

	done := make(chan error, 1)
	go func() {
		_, err := listener.Accept()
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("second Accept should block")
	case <-time.After(50 * time.Millisecond):
	}

	listener.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("second Accept should return error after Close")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("second Accept should unblock after Close")
	}
}

func TestPipeTCPListener_AcceptAfterClose(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()

	listener := pipe.Listener(0, DefaultPort)
	listener.Close()

	if _, err := listener.Accept(); err == nil {
		t.Error("Accept on closed listener should return error")
	}
}

func TestPipeTCPListener_ServesTCP(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()

	received := make(chan *ReceivedMessage, 1)
	tcp, err := NewTCP(TCPConfig{
		Listener:       pipe.Listener(0, DefaultPort),
		MessageHandler: func(msg *ReceivedMessage) { received <- msg },
	})
	if err != nil {
		t.Fatalf("NewTCP() error = %v", err)
	}
	if err := tcp.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer tcp.Stop()

	client := pipe.Conn(1, DefaultPort)
	if _, err := client.Write(testHello().Encode()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg.Message.Type() != message.MessageTypeHello {
			t.Errorf("type = %v, want HEL", msg.Message.Type())
		}
		if msg.PeerAddr.Addr.String() != "pipe:1:4840" {
			t.Errorf("peer = %v, want pipe:1:4840", msg.PeerAddr.Addr)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for record")
	}
}

func TestPipe_SetAutoProcess(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()

	pipe.SetAutoProcess(false)
	if pipe.AutoProcess() {
		t.Error("AutoProcess should be false after disabling")
	}

	pipe.SetAutoProcess(true)
	if !pipe.AutoProcess() {
		t.Error("AutoProcess should be true after re-enabling")
	}
}

func TestPipeConfig_Defaults(t *testing.T) {
	config := DefaultPipeConfig()

	if !config.AutoProcess {
		t.Error("AutoProcess should be true by default")
	}
	if config.ProcessInterval != 1*time.Millisecond {
		t.Errorf("ProcessInterval = %v, want 1ms", config.ProcessInterval)
	}
}

// --- PipeManagerPair Tests ---

func TestPipeManagerPair_HelloAcknowledge(t *testing.T) {
	clientReceived := make(chan *ReceivedMessage, 1)

	var pair *PipeManagerPair
	server := func(msg *ReceivedMessage) {
		if _, ok := msg.Message.(*message.Hello); ok {
			pair.Manager(1).Send(&message.Acknowledge{
				ReceiveBufferSize: message.MinBufferSize,
				SendBufferSize:    message.MinBufferSize,
			}, msg.PeerAddr)
		}
	}

	pair, err := NewPipeManagerPair(PipeManagerConfig{
		Handlers: [2]MessageHandler{func(msg *ReceivedMessage) { clientReceived <- msg }, server},
	})
	if err != nil {
		t.Fatalf("NewPipeManagerPair: %v", err)
	}
	defer pair.Close()

	if err := pair.Manager(0).Send(testHello(), pair.PeerAddress(1)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-clientReceived:
		if msg.Message.Type() != message.MessageTypeAcknowledge {
			t.Errorf("client received %v, want ACK", msg.Message.Type())
		}
		if msg.PeerAddr.TransportType != TransportTypeTCP {
			t.Errorf("transport type = %v, want TCP", msg.PeerAddr.TransportType)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for ACK")
	}
}

func TestPipeManagerPair_Close(t *testing.T) {
	pair, err := NewPipeManagerPair(PipeManagerConfig{
		Handlers: [2]MessageHandler{func(*ReceivedMessage) {}, func(*ReceivedMessage) {}},
	})
	if err != nil {
		t.Fatalf("NewPipeManagerPair: %v", err)
	}

	pair.Close()

	if err := pair.Manager(0).Send(testHello(), pair.PeerAddress(1)); err == nil {
		t.Error("Send after Close should fail")
	}

	// Double close should be safe
	pair.Close()
}

func TestPipeManagerPair_ManagerAccess(t *testing.T) {
	pair, err := NewPipeManagerPair(PipeManagerConfig{
		Handlers: [2]MessageHandler{func(*ReceivedMessage) {}, func(*ReceivedMessage) {}},
	})
	if err != nil {
		t.Fatalf("NewPipeManagerPair: %v", err)
	}
	defer pair.Close()

	if pair.Manager(0) == nil || pair.Manager(1) == nil {
		t.Error("Manager(0) and Manager(1) should not be nil")
	}
	if pair.Manager(-1) != nil {
		t.Error("Manager(-1) should be nil")
	}
	if pair.Manager(2) != nil {
		t.Error("Manager(2) should be nil")
	}
	if pair.Pipe() == nil {
		t.Error("Pipe() should not be nil")
	}
}
