package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/backkem/uacp/pkg/message"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"
)

// WebSocketSubprotocol is the subprotocol carrying UACP records in binary
// WebSocket messages.
const WebSocketSubprotocol = "opcua+uacp"

const closeGracePeriod = time.Second

// WebSocket carries UACP records over WebSocket (opc.wss).
// Message boundaries are ignored: the binary payloads form one byte stream
// that is deframed like a TCP connection.
type WebSocket struct {
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader
	path     string
	handler  MessageHandler
	onClose  CloseHandler
	deframer message.DeframerConfig
	closeCh  chan struct{}
	wg       sync.WaitGroup
	log      logging.LeveledLogger

	connsMu sync.RWMutex
	conns   map[string]*conn // Key: remote address string

	mu      sync.RWMutex
	started bool
	closed  bool
}

// WebSocketConfig configures the WebSocket transport.
type WebSocketConfig struct {
	// Listener is an optional pre-existing Listener to serve HTTP on.
	// If nil, a new listener will be created using ListenAddr.
	Listener net.Listener

	// ListenAddr is the address to listen on (e.g., ":4843").
	// Ignored if Listener is provided.
	ListenAddr string

	// Path is the HTTP path upgraded to WebSocket.
	// Default: "/"
	Path string

	// MessageHandler is called for each received record.
	// Required.
	MessageHandler MessageHandler

	// CloseHandler is called when a connection ends. Optional.
	CloseHandler CloseHandler

	// Resync is the deframer recovery policy for each connection.
	Resync message.ResyncPolicy

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewWebSocket creates a new WebSocket transport with the given configuration.
func NewWebSocket(config WebSocketConfig) (*WebSocket, error) {
	if config.MessageHandler == nil {
		return nil, ErrNoHandler
	}

	w := &WebSocket{
		listener: config.Listener,
		path:     config.Path,
		handler:  config.MessageHandler,
		onClose:  config.CloseHandler,
		deframer: message.DeframerConfig{Resync: config.Resync, LoggerFactory: config.LoggerFactory},
		closeCh:  make(chan struct{}),
		conns:    make(map[string]*conn),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{WebSocketSubprotocol},
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
	}
	if w.path == "" {
		w.path = "/"
	}

	if config.LoggerFactory != nil {
		w.log = config.LoggerFactory.NewLogger("transport-ws")
	}

	if w.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		w.listener = listener
	}

	mux := http.NewServeMux()
	mux.Handle(w.path, w)
	w.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	return w, nil
}

// Start begins serving WebSocket upgrades.
func (w *WebSocket) Start() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	if w.log != nil {
		w.log.Infof("starting WebSocket transport on %s%s", w.listener.Addr(), w.path)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.server.Serve(w.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if w.log != nil {
				w.log.Errorf("serve: %v", err)
			}
		}
	}()

	return nil
}

// Stop closes the server and all upgraded connections.
func (w *WebSocket) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	if w.log != nil {
		w.log.Info("stopping WebSocket transport")
	}

	close(w.closeCh)
	if started {
		w.server.Close()
	} else {
		w.listener.Close()
	}

	// Hijacked connections are not closed by the server.
	w.connsMu.Lock()
	for _, c := range w.conns {
		c.rw.Close()
	}
	w.conns = make(map[string]*conn)
	w.connsMu.Unlock()

	w.wg.Wait()
	return nil
}

// ServeHTTP upgrades the request and starts reading records from it.
// Peers that do not select the opcua+uacp subprotocol are closed with a
// policy violation.
func (w *WebSocket) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ws, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		if w.log != nil {
			w.log.Debugf("upgrade from %s: %v", r.RemoteAddr, err)
		}
		return
	}

	if ws.Subprotocol() != WebSocketSubprotocol {
		if w.log != nil {
			w.log.Warnf("%s: subprotocol %q not offered, closing", ws.RemoteAddr(), WebSocketSubprotocol)
		}
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subprotocol "+WebSocketSubprotocol+" required"))
		ws.Close()
		return
	}

	w.addConnection(newWSConn(ws))
}

// Send writes one record to the connected peer at addr.
// The WebSocket transport only answers peers that connected to it.
func (w *WebSocket) Send(m message.Message, addr net.Addr) error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrClosed
	}
	w.mu.RUnlock()

	if addr == nil {
		return ErrInvalidAddress
	}

	w.connsMu.RLock()
	c, ok := w.conns[addr.String()]
	w.connsMu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}
	return c.send(m)
}

// CloseConn closes the connection to addr.
func (w *WebSocket) CloseConn(addr net.Addr) error {
	if addr == nil {
		return ErrInvalidAddress
	}
	w.connsMu.RLock()
	c, ok := w.conns[addr.String()]
	w.connsMu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}
	return c.rw.Close()
}

// LocalAddr returns the local address the transport is listening on.
func (w *WebSocket) LocalAddr() net.Addr {
	return w.listener.Addr()
}

// URL returns the ws:// URL of the transport.
func (w *WebSocket) URL() string {
	return fmt.Sprintf("ws://%s%s", w.listener.Addr(), w.path)
}

func (w *WebSocket) addConnection(nc net.Conn) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		nc.Close()
		return
	}

	c := newConn(nc, NewWebSocketPeerAddress(nc.RemoteAddr()), w.deframer)
	remoteAddr := nc.RemoteAddr().String()

	w.connsMu.Lock()
	w.conns[remoteAddr] = c
	w.connsMu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			c.rw.Close()
			w.connsMu.Lock()
			if w.conns[remoteAddr] == c {
				delete(w.conns, remoteAddr)
			}
			w.connsMu.Unlock()
			if w.onClose != nil {
				w.onClose(c.peer)
			}
		}()

		if w.log != nil {
			w.log.Debugf("connection from %s", remoteAddr)
		}
		c.serve(w.handler, w.closeCh, w.log)
	}()
}

// DialWebSocket connects to a UACP WebSocket endpoint and returns the
// connection as a byte stream.
func DialWebSocket(ctx context.Context, url string) (net.Conn, error) {
	dialer := *websocket.DefaultDialer
	dialer.Subprotocols = []string{WebSocketSubprotocol}

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	if ws.Subprotocol() != WebSocketSubprotocol {
		ws.Close()
		return nil, ErrSubprotocol
	}
	return newWSConn(ws), nil
}

// wsConn presents the binary messages of a WebSocket as a net.Conn byte
// stream. Each Write is sent as one binary message.
type wsConn struct {
	ws *websocket.Conn
	r  io.Reader

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(b []byte) (int, error) {
	for {
		if c.r == nil {
			mt, r, err := c.ws.NextReader()
			if err != nil {
				return 0, wsReadError(err)
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			c.r = r
		}

		n, err := c.r.Read(b)
		if errors.Is(err, io.EOF) {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			return n, wsReadError(err)
		}
		return n, nil
	}
}

func (c *wsConn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *wsConn) Close() error {
	err := net.ErrClosed
	c.closeOnce.Do(func() {
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

var _ net.Conn = (*wsConn)(nil)

// wsReadError maps a peer close to io.EOF so stream readers end cleanly.
func wsReadError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return io.EOF
	}
	return err
}
