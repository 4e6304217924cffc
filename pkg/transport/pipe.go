package transport

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures stream behavior simulation.
// Use this to exercise record reassembly under realistic segmentation.
type NetworkCondition struct {
	// MaxSegment splits every Write into segments of at most this many
	// bytes, each delivered separately. Zero disables splitting.
	MaxSegment int

	// DelayMin is the minimum delay to add to each segment.
	DelayMin time.Duration

	// DelayMax is the maximum delay to add to each segment.
	// Actual delay is uniformly distributed between DelayMin and DelayMax.
	DelayMax time.Duration
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess enables automatic delivery in a background goroutine.
	// Default: true
	AutoProcess bool

	// ProcessInterval is how often the auto-processor delivers segments.
	// Default: 1ms
	ProcessInterval time.Duration
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: 1 * time.Millisecond,
	}
}

// Pipe provides a bidirectional in-memory byte stream between two endpoints.
// It wraps pion's test.Bridge and adds segmentation and delay simulation.
//
// Each Write becomes one or more bridge packets. A Read returns at most one
// packet, so records larger than the reader's free buffer must not be
// written in a single segment.
type Pipe struct {
	bridge *test.Bridge

	mu              sync.RWMutex
	condition       NetworkCondition
	closed          bool
	rng             *rand.Rand
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a new pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a new pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	p := &Pipe{
		bridge:          test.NewBridge(),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}

	if config.ProcessInterval == 0 {
		p.processInterval = 1 * time.Millisecond
	}

	if p.autoProcess {
		p.startAutoProcess()
	}

	return p
}

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// SetAutoProcess enables or disables automatic delivery.
// When disabled, call Tick or Process manually.
func (p *Pipe) SetAutoProcess(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.autoProcess == enabled {
		return
	}
	p.autoProcess = enabled

	if enabled {
		p.stopCh = make(chan struct{})
		p.startAutoProcess()
	} else {
		close(p.stopCh)
		p.wg.Wait()
	}
}

// AutoProcess returns whether auto-processing is enabled.
func (p *Pipe) AutoProcess() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.autoProcess
}

// SetCondition configures stream simulation for both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Condition returns the current network condition configuration.
func (p *Pipe) Condition() NetworkCondition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.condition
}

// Conn returns endpoint id (0 or 1) as a stream connection whose local
// address is PipeAddr{ID: id} and whose remote address is the other end.
func (p *Pipe) Conn(id int, port int) net.Conn {
	raw := p.bridge.GetConn0()
	if id == 1 {
		raw = p.bridge.GetConn1()
	}
	return &PipeTCPConn{
		conn:       raw,
		localAddr:  PipeAddr{ID: id, Port: port},
		remoteAddr: PipeAddr{ID: 1 - id, Port: port},
		pipe:       p,
	}
}

// Listener returns a listener on endpoint id that accepts that endpoint
// exactly once. Dial the other end with Conn(1-id, port).
func (p *Pipe) Listener(id int, port int) net.Listener {
	return &PipeTCPListener{
		localAddr: PipeAddr{ID: id, Port: port},
		conn:      p.Conn(id, port),
		closeCh:   make(chan struct{}),
	}
}

// Tick delivers one segment in each direction (if available).
// Returns the number of segments delivered (0, 1, or 2).
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers all queued segments.
// Returns the number of segments delivered.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			break
		}
		count += n
	}
	return count
}

// Close closes both endpoints of the pipe and stops auto-processing.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// write applies the pipe's condition to b and writes it to raw.
func (p *Pipe) write(raw net.Conn, b []byte) (int, error) {
	p.mu.RLock()
	cond := p.condition
	p.mu.RUnlock()

	segment := len(b)
	if cond.MaxSegment > 0 && cond.MaxSegment < segment {
		segment = cond.MaxSegment
	}

	written := 0
	for written < len(b) {
		end := min(written+segment, len(b))
		if cond.DelayMax > 0 {
			p.delay(cond)
		}
		n, err := raw.Write(b[written:end])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (p *Pipe) delay(cond NetworkCondition) {
	d := cond.DelayMin
	if cond.DelayMax > cond.DelayMin {
		p.mu.Lock()
		d += time.Duration(p.rng.Int63n(int64(cond.DelayMax - cond.DelayMin)))
		p.mu.Unlock()
	}
	if d > 0 {
		time.Sleep(d)
	}
}

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	ID   int // Endpoint ID (0 or 1)
	Port int // Logical port number
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns a string representation of the address.
func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d:%d", a.ID, a.Port) }

// PipeTCPListener implements net.Listener over one pipe endpoint.
// Accept returns the endpoint once and then blocks until Close.
type PipeTCPListener struct {
	localAddr PipeAddr
	conn      net.Conn
	closeCh   chan struct{}

	mu       sync.Mutex
	accepted bool
	closed   bool
}

// Accept returns the pipe endpoint on the first call.
func (l *PipeTCPListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, &net.OpError{Op: "accept", Net: "pipe", Addr: l.localAddr, Err: net.ErrClosed}
	}
	if l.accepted {
		l.mu.Unlock()
		<-l.closeCh
		return nil, &net.OpError{Op: "accept", Net: "pipe", Addr: l.localAddr, Err: net.ErrClosed}
	}
	l.accepted = true
	l.mu.Unlock()

	return l.conn, nil
}

// Close closes the listener.
func (l *PipeTCPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	close(l.closeCh)
	return nil
}

// Addr returns the listener's network address.
func (l *PipeTCPListener) Addr() net.Addr {
	return l.localAddr
}

var _ net.Listener = (*PipeTCPListener)(nil)

// PipeTCPConn is one pipe endpoint with pipe addresses and the pipe's
// network condition applied to writes.
type PipeTCPConn struct {
	conn       net.Conn
	localAddr  PipeAddr
	remoteAddr PipeAddr
	pipe       *Pipe
}

// Read reads data from the connection.
func (c *PipeTCPConn) Read(b []byte) (n int, err error) {
	return c.conn.Read(b)
}

// Write writes data to the connection, segmented per the pipe's condition.
func (c *PipeTCPConn) Write(b []byte) (n int, err error) {
	if c.pipe == nil {
		return c.conn.Write(b)
	}
	return c.pipe.write(c.conn, b)
}

// Close closes the connection.
func (c *PipeTCPConn) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the local network address.
func (c *PipeTCPConn) LocalAddr() net.Addr {
	return c.localAddr
}

// RemoteAddr returns the remote network address.
func (c *PipeTCPConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// SetDeadline sets the read and write deadlines.
func (c *PipeTCPConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline sets the read deadline.
func (c *PipeTCPConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *PipeTCPConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

var _ net.Conn = (*PipeTCPConn)(nil)

// PipeManagerConfig configures a PipeManagerPair.
type PipeManagerConfig struct {
	// Handlers are the record handlers for each manager.
	// Handlers[0] is for Manager(0), Handlers[1] is for Manager(1).
	Handlers [2]MessageHandler

	// PipeConfig configures the underlying pipe (optional).
	PipeConfig PipeConfig
}

// PipeManagerPair provides two Manager instances connected over one
// in-memory TCP pipe.
//
// Example:
//
//	pair, _ := transport.NewPipeManagerPair(transport.PipeManagerConfig{
//	    Handlers: [2]transport.MessageHandler{client, server},
//	})
//	defer pair.Close()
//
//	pair.Manager(0).Send(hello, pair.PeerAddress(1))
type PipeManagerPair struct {
	managers [2]*Manager
	pipe     *Pipe
}

// NewPipeManagerPair creates a pair of connected Manager instances.
// Both managers are started and ready to use.
func NewPipeManagerPair(config PipeManagerConfig) (*PipeManagerPair, error) {
	if config.PipeConfig.ProcessInterval == 0 {
		config.PipeConfig = DefaultPipeConfig()
	}

	pair := &PipeManagerPair{pipe: NewPipeWithConfig(config.PipeConfig)}

	for i := 0; i < 2; i++ {
		mgr, err := NewManager(ManagerConfig{
			TCPEnabled:     true,
			TCPListener:    newDummyTCPListener(PipeAddr{ID: i, Port: DefaultPort}),
			MessageHandler: config.Handlers[i],
		})
		if err != nil {
			pair.Close()
			return nil, err
		}
		pair.managers[i] = mgr

		// Conn i's remote address is the other endpoint, so Send to
		// PeerAddress(1-i) finds it.
		mgr.TCP().AddConnection(pair.pipe.Conn(i, DefaultPort))

		if err := mgr.Start(); err != nil {
			pair.Close()
			return nil, err
		}
	}

	return pair, nil
}

// dummyTCPListener keeps Manager from opening a real listener.
// Accept blocks until Close is called.
type dummyTCPListener struct {
	addr    net.Addr
	closeCh chan struct{}
	closed  bool
	mu      sync.Mutex
}

func newDummyTCPListener(addr net.Addr) *dummyTCPListener {
	return &dummyTCPListener{
		addr:    addr,
		closeCh: make(chan struct{}),
	}
}

func (l *dummyTCPListener) Accept() (net.Conn, error) {
	<-l.closeCh
	return nil, net.ErrClosed
}

func (l *dummyTCPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.closeCh)
	}
	return nil
}

func (l *dummyTCPListener) Addr() net.Addr {
	return l.addr
}

// Manager returns the manager at the given index (0 or 1).
func (p *PipeManagerPair) Manager(id int) *Manager {
	if id < 0 || id > 1 {
		return nil
	}
	return p.managers[id]
}

// PeerAddress returns the address to send to when targeting manager id
// from the other manager.
func (p *PipeManagerPair) PeerAddress(id int) PeerAddress {
	return NewTCPPeerAddress(PipeAddr{ID: id, Port: DefaultPort})
}

// Pipe returns the underlying pipe for configuration.
func (p *PipeManagerPair) Pipe() *Pipe {
	return p.pipe
}

// Close stops both managers and closes the pipe.
func (p *PipeManagerPair) Close() error {
	for i := 0; i < 2; i++ {
		if p.managers[i] != nil {
			// Ignore errors - manager may already be stopped
			p.managers[i].Stop()
		}
	}
	p.pipe.Close()
	return nil
}
