package transport

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/backkem/uacp/pkg/message"
	"github.com/backkem/uacp/pkg/uacp"
	"github.com/pion/logging"
)

// conn is one UACP connection: a byte stream with its own Deframer.
type conn struct {
	rw     net.Conn
	peer   PeerAddress
	reader *message.StreamReader
	writer *message.StreamWriter
	mu     sync.Mutex // Protects writes
}

func newConn(rw net.Conn, peer PeerAddress, deframer message.DeframerConfig) *conn {
	return &conn{
		rw:     rw,
		peer:   peer,
		reader: message.NewStreamReaderWithDeframer(rw, message.NewDeframerWithConfig(deframer)),
		writer: message.NewStreamWriter(rw),
	}
}

func (c *conn) send(m message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writer.WriteMessage(m)
}

// serve reads records until the stream ends or fails, passing each to
// handler. A framing or decode failure is reported to the peer in an ERR
// record before serve returns. The caller closes the connection.
func (c *conn) serve(handler MessageHandler, closeCh <-chan struct{}, log logging.LeveledLogger) {
	for {
		m, err := c.reader.ReadMessage()
		if err != nil {
			select {
			case <-closeCh:
				return
			default:
			}
			if isProtocolError(err) {
				if log != nil {
					log.Warnf("%s: %v, closing connection", c.peer, err)
				}
				if serr := c.send(uacp.ErrorFor(err)); serr != nil && log != nil {
					log.Debugf("%s: send ERR: %v", c.peer, serr)
				}
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				if log != nil {
					log.Debugf("%s: connection closed", c.peer)
				}
				return
			}
			if log != nil {
				log.Debugf("%s: read error: %v", c.peer, err)
			}
			return
		}

		handler(&ReceivedMessage{Message: m, PeerAddr: c.peer})
	}
}

// isProtocolError reports whether err was caused by the peer's bytes rather
// than by the connection.
func isProtocolError(err error) bool {
	var derr *message.DecodeError
	return errors.As(err, &derr) || errors.Is(err, message.ErrRecordTooLarge)
}
