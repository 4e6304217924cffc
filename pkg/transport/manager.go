package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/backkem/uacp/pkg/message"
	"github.com/pion/logging"
)

// Manager coordinates the TCP and WebSocket transports of a UACP endpoint.
// Records from both arrive at one handler, and replies are routed back by
// PeerAddress.TransportType.
type Manager struct {
	tcp     *TCP
	ws      *WebSocket
	handler MessageHandler

	mu      sync.RWMutex
	started bool
	closed  bool
}

// ManagerConfig configures the transport manager.
type ManagerConfig struct {
	// TCPEnabled controls whether the opc.tcp transport is enabled.
	// If neither transport is enabled, TCP is enabled.
	TCPEnabled bool

	// TCPListenAddr is the TCP address (default: ":4840").
	TCPListenAddr string

	// TCPListener is an optional pre-existing TCP listener for testing.
	TCPListener net.Listener

	// WebSocketEnabled controls whether the WebSocket transport is enabled.
	WebSocketEnabled bool

	// WebSocketListenAddr is the HTTP address for WebSocket upgrades.
	WebSocketListenAddr string

	// WebSocketListener is an optional pre-existing listener for testing.
	WebSocketListener net.Listener

	// MessageHandler is called for each received record.
	// Required.
	MessageHandler MessageHandler

	// CloseHandler is called when any connection ends. Optional.
	CloseHandler CloseHandler

	// Resync is the deframer recovery policy for every connection.
	Resync message.ResyncPolicy

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewManager creates a new transport manager with the given configuration.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.MessageHandler == nil {
		return nil, ErrNoHandler
	}

	if !config.TCPEnabled && !config.WebSocketEnabled {
		config.TCPEnabled = true
	}
	if config.TCPListenAddr == "" {
		config.TCPListenAddr = fmt.Sprintf(":%d", DefaultPort)
	}

	m := &Manager{
		handler: config.MessageHandler,
	}

	if config.TCPEnabled {
		tcp, err := NewTCP(TCPConfig{
			Listener:       config.TCPListener,
			ListenAddr:     config.TCPListenAddr,
			MessageHandler: config.MessageHandler,
			CloseHandler:   config.CloseHandler,
			Resync:         config.Resync,
			LoggerFactory:  config.LoggerFactory,
		})
		if err != nil {
			return nil, fmt.Errorf("creating TCP transport: %w", err)
		}
		m.tcp = tcp
	}

	if config.WebSocketEnabled {
		ws, err := NewWebSocket(WebSocketConfig{
			Listener:       config.WebSocketListener,
			ListenAddr:     config.WebSocketListenAddr,
			MessageHandler: config.MessageHandler,
			CloseHandler:   config.CloseHandler,
			Resync:         config.Resync,
			LoggerFactory:  config.LoggerFactory,
		})
		if err != nil {
			if m.tcp != nil {
				m.tcp.Stop()
			}
			return nil, fmt.Errorf("creating WebSocket transport: %w", err)
		}
		m.ws = ws
	}

	return m, nil
}

// Start begins accepting connections on all enabled transports.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	if m.tcp != nil {
		if err := m.tcp.Start(); err != nil {
			return fmt.Errorf("starting TCP transport: %w", err)
		}
	}

	if m.ws != nil {
		if err := m.ws.Start(); err != nil {
			if m.tcp != nil {
				m.tcp.Stop()
			}
			return fmt.Errorf("starting WebSocket transport: %w", err)
		}
	}

	return nil
}

// Stop closes all transports.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.mu.Unlock()

	var errs []error

	if m.tcp != nil {
		if err := m.tcp.Stop(); err != nil && err != ErrClosed {
			errs = append(errs, fmt.Errorf("stopping TCP: %w", err))
		}
	}

	if m.ws != nil {
		if err := m.ws.Stop(); err != nil && err != ErrClosed {
			errs = append(errs, fmt.Errorf("stopping WebSocket: %w", err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Send writes one record to the specified peer.
// The transport is selected by PeerAddress.TransportType.
func (m *Manager) Send(msg message.Message, peer PeerAddress) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	m.mu.RUnlock()

	if !peer.IsValid() {
		return ErrInvalidAddress
	}

	switch peer.TransportType {
	case TransportTypeTCP:
		if m.tcp == nil {
			return ErrTransportDisabled
		}
		return m.tcp.Send(msg, peer.Addr)
	case TransportTypeWebSocket:
		if m.ws == nil {
			return ErrTransportDisabled
		}
		return m.ws.Send(msg, peer.Addr)
	default:
		return ErrInvalidAddress
	}
}

// SendFlight writes every record of f to peer, in order.
func (m *Manager) SendFlight(f *message.Flight, peer PeerAddress) error {
	for _, msg := range f.Messages() {
		if err := m.Send(msg, peer); err != nil {
			return err
		}
	}
	return nil
}

// CloseConn closes the connection to peer.
func (m *Manager) CloseConn(peer PeerAddress) error {
	if !peer.IsValid() {
		return ErrInvalidAddress
	}
	switch peer.TransportType {
	case TransportTypeTCP:
		if m.tcp == nil {
			return ErrTransportDisabled
		}
		return m.tcp.CloseConn(peer.Addr)
	case TransportTypeWebSocket:
		if m.ws == nil {
			return ErrTransportDisabled
		}
		return m.ws.CloseConn(peer.Addr)
	default:
		return ErrInvalidAddress
	}
}

// LocalAddresses returns all local addresses the manager is listening on.
func (m *Manager) LocalAddresses() []net.Addr {
	var addrs []net.Addr

	if m.tcp != nil {
		addrs = append(addrs, m.tcp.LocalAddr())
	}
	if m.ws != nil {
		addrs = append(addrs, m.ws.LocalAddr())
	}

	return addrs
}

// TCP returns the TCP transport, or nil if not enabled.
func (m *Manager) TCP() *TCP {
	return m.tcp
}

// WebSocket returns the WebSocket transport, or nil if not enabled.
func (m *Manager) WebSocket() *WebSocket {
	return m.ws
}
