package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/backkem/uacp/pkg/message"
	"github.com/gorilla/websocket"
)

func newTestWebSocket(t *testing.T, handler MessageHandler) *WebSocket {
	t.Helper()
	ws, err := NewWebSocket(WebSocketConfig{
		ListenAddr:     "127.0.0.1:0",
		MessageHandler: handler,
	})
	if err != nil {
		t.Fatalf("NewWebSocket() error = %v", err)
	}
	if err := ws.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return ws
}

func TestNewWebSocket(t *testing.T) {
	if _, err := NewWebSocket(WebSocketConfig{ListenAddr: "127.0.0.1:0"}); err != ErrNoHandler {
		t.Errorf("NewWebSocket() error = %v, want %v", err, ErrNoHandler)
	}

	ws, err := NewWebSocket(WebSocketConfig{
		ListenAddr:     "127.0.0.1:0",
		Path:           "/uacp",
		MessageHandler: func(*ReceivedMessage) {},
	})
	if err != nil {
		t.Fatalf("NewWebSocket() error = %v", err)
	}
	defer ws.Stop()

	if !strings.HasSuffix(ws.URL(), "/uacp") || !strings.HasPrefix(ws.URL(), "ws://127.0.0.1:") {
		t.Errorf("URL() = %q", ws.URL())
	}
}

func TestWebSocketStartStop(t *testing.T) {
	ws := newTestWebSocket(t, func(*ReceivedMessage) {})

	if err := ws.Start(); err != ErrAlreadyStarted {
		t.Errorf("Start() second call error = %v, want %v", err, ErrAlreadyStarted)
	}
	if err := ws.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := ws.Stop(); err != ErrClosed {
		t.Errorf("Stop() second call error = %v, want %v", err, ErrClosed)
	}
}

func TestWebSocketRecordAcrossMessages(t *testing.T) {
	received := make(chan *ReceivedMessage, 1)
	ws := newTestWebSocket(t, func(msg *ReceivedMessage) { received <- msg })
	defer ws.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := DialWebSocket(ctx, ws.URL())
	if err != nil {
		t.Fatalf("DialWebSocket() error = %v", err)
	}
	defer c.Close()

	// One record split over two binary messages.
	data := testHello().Encode()
	if _, err := c.Write(data[:10]); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := c.Write(data[10:]); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg.Message.Type() != message.MessageTypeHello {
			t.Errorf("type = %v, want HEL", msg.Message.Type())
		}
		if msg.PeerAddr.TransportType != TransportTypeWebSocket {
			t.Errorf("TransportType = %v, want WebSocket", msg.PeerAddr.TransportType)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for record")
	}
}

func TestWebSocketSkipsTextMessages(t *testing.T) {
	received := make(chan *ReceivedMessage, 2)
	ws := newTestWebSocket(t, func(msg *ReceivedMessage) { received <- msg })
	defer ws.Stop()

	dialer := websocket.Dialer{Subprotocols: []string{WebSocketSubprotocol}}
	conn, _, err := dialer.Dial(ws.URL(), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("HELF garbage")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, testHello().Encode()); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	select {
	case msg := <-received:
		h, ok := msg.Message.(*message.Hello)
		if !ok || h.EndpointURL != testHello().EndpointURL {
			t.Errorf("received %v, want the binary Hello", msg.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for record")
	}
}

func TestWebSocketRejectsMissingSubprotocol(t *testing.T) {
	ws := newTestWebSocket(t, func(*ReceivedMessage) {})
	defer ws.Stop()

	conn, _, err := websocket.DefaultDialer.Dial(ws.URL(), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("ReadMessage() error = %v, want policy violation close", err)
	}
}

func TestDialWebSocketRequiresSubprotocol(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, err := DialWebSocket(context.Background(), url)
	if !errors.Is(err, ErrSubprotocol) {
		t.Errorf("DialWebSocket() error = %v, want %v", err, ErrSubprotocol)
	}
}

func TestWebSocketSendToPeer(t *testing.T) {
	var ws *WebSocket
	ws = newTestWebSocket(t, func(msg *ReceivedMessage) {
		ws.Send(&message.ErrorMessage{Reason: "no"}, msg.PeerAddr.Addr)
	})
	defer ws.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := DialWebSocket(ctx, ws.URL())
	if err != nil {
		t.Fatalf("DialWebSocket() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Write(testHello().Encode()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := message.NewStreamReader(c).ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	em, ok := reply.(*message.ErrorMessage)
	if !ok || em.Reason != "no" {
		t.Errorf("reply = %v, want ERR with reason %q", reply, "no")
	}
}
