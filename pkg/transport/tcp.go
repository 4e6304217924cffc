package transport

import (
	"net"
	"sync"

	"github.com/backkem/uacp/pkg/message"
	"github.com/pion/logging"
)

// DefaultPort is the IANA-registered opc.tcp port.
const DefaultPort = 4840

// TCP carries UACP records over TCP (opc.tcp).
// It wraps a net.Listener and keeps one Deframer per connection.
type TCP struct {
	listener net.Listener
	handler  MessageHandler
	onClose  CloseHandler
	deframer message.DeframerConfig
	closeCh  chan struct{}
	wg       sync.WaitGroup
	log      logging.LeveledLogger

	// Connection tracking
	connsMu sync.RWMutex
	conns   map[string]*conn // Key: remote address string

	mu      sync.RWMutex
	started bool
	closed  bool
}

// TCPConfig configures the TCP transport.
type TCPConfig struct {
	// Listener is an optional pre-existing Listener to use.
	// If nil, a new listener will be created using ListenAddr.
	Listener net.Listener

	// ListenAddr is the address to listen on (e.g., ":4840").
	// Ignored if Listener is provided.
	ListenAddr string

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

// NewTCP creates a new TCP transport with the given configuration.
func NewTCP(config TCPConfig) (*TCP, error) {
	if config.MessageHandler == nil {
		return nil, ErrNoHandler
	}

	t := &TCP{
		listener: config.Listener,
		handler:  config.MessageHandler,
		onClose:  config.CloseHandler,
		deframer: message.DeframerConfig{Resync: config.Resync, LoggerFactory: config.LoggerFactory},
		closeCh:  make(chan struct{}),
		conns:    make(map[string]*conn),
	}

	if config.LoggerFactory != nil {
		t.log = config.LoggerFactory.NewLogger("transport-tcp")
	}

	if t.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0" // Use ephemeral port
		}

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		t.listener = listener
	}

	return t, nil
}

// Start begins accepting connections and receiving records.
func (t *TCP) Start() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	if t.log != nil {
		t.log.Infof("starting TCP transport on %s", t.listener.Addr())
	}

	t.wg.Add(1)
	go t.acceptLoop()

	return nil
}

// Stop closes all connections and the listener.
func (t *TCP) Stop() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.closed = true
	t.mu.Unlock()

	if t.log != nil {
		t.log.Info("stopping TCP transport")
	}

	close(t.closeCh)
	t.listener.Close()

	t.connsMu.Lock()
	for _, c := range t.conns {
		c.rw.Close()
	}
	t.conns = make(map[string]*conn)
	t.connsMu.Unlock()

	t.wg.Wait()
	return nil
}

// Send writes one record to the peer at addr.
// If no connection exists, one is dialed.
func (t *TCP) Send(m message.Message, addr net.Addr) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrClosed
	}
	t.mu.RUnlock()

	if addr == nil {
		return ErrInvalidAddress
	}

	c, err := t.getOrCreateConn(addr)
	if err != nil {
		return err
	}
	return c.send(m)
}

// CloseConn closes the connection to addr.
func (t *TCP) CloseConn(addr net.Addr) error {
	if addr == nil {
		return ErrInvalidAddress
	}
	t.connsMu.RLock()
	c, ok := t.conns[addr.String()]
	t.connsMu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}
	return c.rw.Close()
}

// LocalAddr returns the local address the transport is listening on.
func (t *TCP) LocalAddr() net.Addr {
	return t.listener.Addr()
}

// acceptLoop accepts incoming connections.
func (t *TCP) acceptLoop() {
	defer t.wg.Done()

	for {
		nc, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closeCh:
				return
			default:
				continue
			}
		}

		t.AddConnection(nc)
	}
}

// handleConn runs the read loop of a tracked connection.
func (t *TCP) handleConn(c *conn) {
	defer t.wg.Done()

	remoteAddr := c.rw.RemoteAddr().String()
	defer func() {
		c.rw.Close()
		t.connsMu.Lock()
		if t.conns[remoteAddr] == c {
			delete(t.conns, remoteAddr)
		}
		t.connsMu.Unlock()
		if t.onClose != nil {
			t.onClose(c.peer)
		}
	}()

	if t.log != nil {
		t.log.Debugf("connection from %s", remoteAddr)
	}
	c.serve(t.handler, t.closeCh, t.log)
}

// getOrCreateConn gets an existing connection or dials a new one.
func (t *TCP) getOrCreateConn(addr net.Addr) (*conn, error) {
	addrStr := addr.String()

	t.connsMu.RLock()
	c, ok := t.conns[addrStr]
	t.connsMu.RUnlock()
	if ok {
		return c, nil
	}

	nc, err := net.Dial("tcp", addrStr)
	if err != nil {
		return nil, err
	}

	c = newConn(nc, NewTCPPeerAddress(nc.RemoteAddr()), t.deframer)

	t.connsMu.Lock()
	// Check again in case another goroutine created it
	if existing, ok := t.conns[addrStr]; ok {
		t.connsMu.Unlock()
		nc.Close()
		return existing, nil
	}
	t.conns[addrStr] = c
	t.connsMu.Unlock()

	t.wg.Add(1)
	go t.handleConn(c)

	return c, nil
}

// AddConnection adds an existing connection to the transport and starts
// reading from it. This is useful for testing with net.Pipe().
func (t *TCP) AddConnection(nc net.Conn) {
	c := newConn(nc, NewTCPPeerAddress(nc.RemoteAddr()), t.deframer)

	t.connsMu.Lock()
	t.conns[nc.RemoteAddr().String()] = c
	t.connsMu.Unlock()

	t.wg.Add(1)
	go t.handleConn(c)
}
