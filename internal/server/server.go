// Package server answers UACP clients: the Hello/Acknowledge handshake and
// SecurityPolicy None secure channels. Session services are not offered;
// a client that sends MSG chunks receives BadServiceUnsupported.
package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/backkem/uacp/internal/config"
	"github.com/backkem/uacp/pkg/message"
	"github.com/backkem/uacp/pkg/securechannel"
	"github.com/backkem/uacp/pkg/service"
	"github.com/backkem/uacp/pkg/transport"
	"github.com/backkem/uacp/pkg/ua"
	"github.com/backkem/uacp/pkg/uacp"
	"github.com/pion/logging"
)

// Token lifetime bounds in milliseconds.
const (
	MinTokenLifetime     = 10 * 1000
	MaxTokenLifetime     = 60 * 60 * 1000
	DefaultTokenLifetime = 10 * 60 * 1000
)

// Server errors.
var (
	ErrUnexpectedRecord = fmt.Errorf("server: unexpected record: %w", ua.StatusBadTCPMessageTypeInvalid)
	ErrChannelUnknown   = fmt.Errorf("server: unknown secure channel: %w", ua.StatusBadTCPSecureChannelUnknown)
	ErrSecurityMode     = fmt.Errorf("server: security mode not None: %w", ua.StatusBadSecurityModeRejected)
	ErrNoSessionService = fmt.Errorf("server: session services not offered: %w", ua.StatusBadServiceUnsupported)
)

// Sender delivers records to peers. *transport.Manager implements it.
type Sender interface {
	Send(m message.Message, peer transport.PeerAddress) error
	CloseConn(peer transport.PeerAddress) error
}

// connState is what the handler knows about one connection.
type connState struct {
	limits    uacp.Limits // Negotiated; zero until Hello
	policy    *securechannel.NonePolicy
	channelID uint32
	window    *securechannel.SequenceWindow
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	// Limits are offered to clients in the handshake.
	Limits uacp.Limits

	// Sender delivers replies. Required before the first record arrives.
	Sender Sender

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Handler processes records from every connection of an endpoint.
type Handler struct {
	limits uacp.Limits
	sender Sender
	log    logging.LeveledLogger

	mu        sync.Mutex
	conns     map[string]*connState // Key: PeerAddress.String()
	nextChan  uint32
	nextToken uint32
}

// NewHandler creates a handler.
func NewHandler(config HandlerConfig) *Handler {
	h := &Handler{
		limits:    config.Limits,
		sender:    config.Sender,
		conns:     make(map[string]*connState),
		nextChan:  1,
		nextToken: 1,
	}
	if config.LoggerFactory != nil {
		h.log = config.LoggerFactory.NewLogger("uacp-server")
	}
	return h
}

// Connections returns the number of connections with handler state.
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Handle processes one record. It is a transport.MessageHandler.
func (h *Handler) Handle(msg *transport.ReceivedMessage) {
	peer := msg.PeerAddr
	if h.log != nil {
		h.log.Debugf("%s: received %s", peer, msg.Message.Type())
	}

	var err error
	switch m := msg.Message.(type) {
	case *message.Hello:
		err = h.handleHello(peer, m)
	case *message.Chunk:
		err = h.handleChunk(peer, m)
	case *message.ErrorMessage:
		if h.log != nil {
			h.log.Warnf("%s: peer reported %s: %s", peer, m.Error, m.Reason)
		}
		h.close(peer)
		return
	default:
		// ACK and RHE are sent by servers only.
		err = fmt.Errorf("%w: %s", ErrUnexpectedRecord, m.Type())
	}

	if err != nil {
		h.fail(peer, err)
	}
}

// Closed drops the state of a connection. It is a transport.CloseHandler.
func (h *Handler) Closed(peer transport.PeerAddress) {
	h.mu.Lock()
	delete(h.conns, peer.String())
	h.mu.Unlock()
}

func (h *Handler) handleHello(peer transport.PeerAddress, hello *message.Hello) error {
	h.mu.Lock()
	if _, ok := h.conns[peer.String()]; ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: second Hello", ErrUnexpectedRecord)
	}
	h.mu.Unlock()

	ack, err := uacp.Negotiate(hello, h.limits)
	if err != nil {
		return err
	}

	state := &connState{
		limits: uacp.Limits{
			ProtocolVersion:   ack.ProtocolVersion,
			ReceiveBufferSize: ack.ReceiveBufferSize,
			SendBufferSize:    ack.SendBufferSize,
			MaxMessageSize:    ack.MaxMessageSize,
			MaxChunkCount:     ack.MaxChunkCount,
		},
		window: securechannel.NewSequenceWindow(),
	}
	h.mu.Lock()
	h.conns[peer.String()] = state
	h.mu.Unlock()

	if h.log != nil {
		h.log.Infof("%s: hello %s, receive %d send %d", peer, hello.EndpointURL, ack.ReceiveBufferSize, ack.SendBufferSize)
	}
	return h.sender.Send(ack, peer)
}

func (h *Handler) handleChunk(peer transport.PeerAddress, c *message.Chunk) error {
	h.mu.Lock()
	state, ok := h.conns[peer.String()]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s before Hello", ErrUnexpectedRecord, c.Type())
	}
	// OPN and CLO requests are handled one chunk at a time.
	if c.Type() != message.MessageTypeSecureMessage && c.ChunkType() != message.ChunkTypeFinal {
		return fmt.Errorf("%w: %s chunk %s", ErrUnexpectedRecord, c.Type(), c.ChunkType())
	}
	if c.Type() != message.MessageTypeOpenSecureChannel && state.policy == nil {
		return fmt.Errorf("%w: %s before OpenSecureChannel", ErrChannelUnknown, c.Type())
	}

	switch c.Type() {
	case message.MessageTypeOpenSecureChannel:
		return h.handleOpen(peer, state, c)
	case message.MessageTypeCloseSecureChannel:
		return h.handleClose(peer, state, c)
	default:
		cb, err := state.policy.Open(c)
		if err != nil {
			return err
		}
		if err := h.checkChunk(state, cb); err != nil {
			return err
		}
		return ErrNoSessionService
	}
}

// checkChunk verifies channel id and sequence number of an opened chunk.
func (h *Handler) checkChunk(state *connState, cb *securechannel.ChunkBody) error {
	if state.channelID != 0 && cb.SecureChannelID != state.channelID {
		return fmt.Errorf("%w: channel %d, want %d", ErrChannelUnknown, cb.SecureChannelID, state.channelID)
	}
	if !state.window.Accept(cb.Sequence.SequenceNumber) {
		return fmt.Errorf("%w: %d after %d", securechannel.ErrSequenceOrder, cb.Sequence.SequenceNumber, state.window.Last())
	}
	return nil
}

func (h *Handler) handleOpen(peer transport.PeerAddress, state *connState, c *message.Chunk) error {
	policy := state.policy
	if policy == nil {
		policy = securechannel.NewNonePolicy(0)
	}

	cb, err := policy.Open(c)
	if err != nil {
		return err
	}
	if err := h.checkChunk(state, cb); err != nil {
		return err
	}

	sf, err := service.FromMessageFlight(message.NewFlight(c), policy)
	if err != nil {
		return err
	}
	entry := sf.Entries()[0]
	req, ok := entry.Message.(*service.OpenSecureChannelRequest)
	if !ok {
		return fmt.Errorf("%w: %T in OPN", ErrUnexpectedRecord, entry.Message)
	}
	if req.SecurityMode != service.MessageSecurityModeNone {
		return fmt.Errorf("%w: %s", ErrSecurityMode, req.SecurityMode)
	}

	h.mu.Lock()
	switch req.RequestType {
	case service.SecurityTokenRequestTypeRenew:
		if state.policy == nil || entry.ChannelID != state.channelID {
			h.mu.Unlock()
			return fmt.Errorf("%w: renew of channel %d", ErrChannelUnknown, entry.ChannelID)
		}
	default:
		if state.policy != nil {
			h.mu.Unlock()
			return fmt.Errorf("%w: second Issue", ErrUnexpectedRecord)
		}
		state.channelID = h.nextChan
		h.nextChan++
		state.policy = policy
	}
	policy.TokenID = h.nextToken
	h.nextToken++
	h.mu.Unlock()

	now := time.Now()
	resp := &service.OpenSecureChannelResponse{
		ResponseHeader: service.ResponseHeader{
			Timestamp:     now,
			RequestHandle: req.RequestHeader.RequestHandle,
			ServiceResult: ua.StatusGood,
		},
		ServerProtocolVersion: h.limits.ProtocolVersion,
		SecurityToken: service.ChannelSecurityToken{
			ChannelID:       state.channelID,
			TokenID:         policy.TokenID,
			CreatedAt:       now,
			RevisedLifetime: reviseLifetime(req.RequestedLifetime),
		},
	}

	maxBody := policy.MaxBodySize(message.MessageTypeOpenSecureChannel, int(state.limits.SendBufferSize))
	out, err := service.ToMessageFlight(service.NewFlight(resp), policy, state.channelID, entry.RequestID, maxBody)
	if err != nil {
		return err
	}

	if h.log != nil {
		h.log.Infof("%s: %s channel %d token %d", peer, req.RequestType, state.channelID, policy.TokenID)
	}
	for _, m := range out.Messages() {
		if err := h.sender.Send(m, peer); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) handleClose(peer transport.PeerAddress, state *connState, c *message.Chunk) error {
	cb, err := state.policy.Open(c)
	if err != nil {
		return err
	}
	if err := h.checkChunk(state, cb); err != nil {
		return err
	}
	sf, err := service.FromMessageFlight(message.NewFlight(c), state.policy)
	if err != nil {
		return err
	}
	if _, ok := sf.Messages()[0].(*service.CloseSecureChannelRequest); !ok {
		return fmt.Errorf("%w: %T in CLO", ErrUnexpectedRecord, sf.Messages()[0])
	}

	if h.log != nil {
		h.log.Infof("%s: channel %d closed", peer, state.channelID)
	}
	h.close(peer)
	return nil
}

// fail reports err to the peer in an ERR record and closes the connection.
func (h *Handler) fail(peer transport.PeerAddress, err error) {
	if h.log != nil {
		h.log.Warnf("%s: %v", peer, err)
	}
	if serr := h.sender.Send(uacp.ErrorFor(err), peer); serr != nil && h.log != nil {
		h.log.Debugf("%s: send ERR: %v", peer, serr)
	}
	h.close(peer)
}

func (h *Handler) close(peer transport.PeerAddress) {
	h.Closed(peer)
	if err := h.sender.CloseConn(peer); err != nil && !errors.Is(err, transport.ErrConnectionNotFound) && h.log != nil {
		h.log.Debugf("%s: close: %v", peer, err)
	}
}

// reviseLifetime clamps a requested token lifetime.
func reviseLifetime(requested uint32) uint32 {
	switch {
	case requested == 0:
		return DefaultTokenLifetime
	case requested < MinTokenLifetime:
		return MinTokenLifetime
	case requested > MaxTokenLifetime:
		return MaxTokenLifetime
	default:
		return requested
	}
}

// Server is a UACP endpoint listening on TCP and optionally WebSocket.
type Server struct {
	manager *transport.Manager
	handler *Handler
	log     logging.LeveledLogger
}

// New creates a server from cfg. It does not start listening.
func New(cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	factory := cfg.LoggerFactory()
	handler := NewHandler(HandlerConfig{
		Limits:        cfg.Limits,
		LoggerFactory: factory,
	})

	manager, err := transport.NewManager(transport.ManagerConfig{
		TCPEnabled:          cfg.Listen != "",
		TCPListenAddr:       cfg.Listen,
		WebSocketEnabled:    cfg.WebSocket != "",
		WebSocketListenAddr: cfg.WebSocket,
		MessageHandler:      handler.Handle,
		CloseHandler:        handler.Closed,
		Resync:              cfg.Resync,
		LoggerFactory:       factory,
	})
	if err != nil {
		return nil, err
	}
	handler.sender = manager

	return &Server{
		manager: manager,
		handler: handler,
		log:     factory.NewLogger("uacp-server"),
	}, nil
}

// Start begins accepting connections.
func (s *Server) Start() error {
	if err := s.manager.Start(); err != nil {
		return err
	}
	for _, addr := range s.manager.LocalAddresses() {
		s.log.Infof("listening on %s", addr)
	}
	return nil
}

// Stop closes all listeners and connections.
func (s *Server) Stop() error {
	return s.manager.Stop()
}

// LocalAddresses returns the addresses the server listens on.
func (s *Server) LocalAddresses() []net.Addr {
	return s.manager.LocalAddresses()
}

// TCPAddr returns the TCP listen address, or nil if TCP is disabled.
func (s *Server) TCPAddr() net.Addr {
	if s.manager.TCP() == nil {
		return nil
	}
	return s.manager.TCP().LocalAddr()
}

// WebSocketURL returns the ws:// URL, or "" if WebSocket is disabled.
func (s *Server) WebSocketURL() string {
	if s.manager.WebSocket() == nil {
		return ""
	}
	return s.manager.WebSocket().URL()
}
