package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/tkarlsson/sensord/config"
	"github.com/tkarlsson/sensord/internal/errors"
	"github.com/tkarlsson/sensord/internal/logging"
	"github.com/tkarlsson/sensord/internal/message"
	"github.com/tkarlsson/sensord/internal/wire"
)

var sockLog = logging.Component("socket")

// =============================================================================
// Producer
// =============================================================================

// SocketProducer sends messages to a listening consumer over TCP.
// It connects lazily on the first Send and redials after a failed send, so
// a producer created before the listener is up recovers on its own.
type SocketProducer struct {
	addr string

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// NewSocketProducer creates a producer that will connect to addr.
func NewSocketProducer(addr string) *SocketProducer {
	return &SocketProducer{addr: addr}
}

// Send encodes m and writes the full payload to the connection.
// net.Conn.Write only returns with n < len(p) together with an error, so a
// short or zero-byte write surfaces here as an error; the connection is then
// dropped and ErrUnavailable returned.
func (p *SocketProducer) Send(m *message.Message) error {
	payload, err := m.Encode()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.ErrClosed
	}
	if p.conn == nil {
		if err := p.dialLocked(); err != nil {
			return errors.ErrUnavailable
		}
	}

	if _, err := p.conn.Write(payload); err != nil {
		sockLog.Debug("send failed", "addr", p.addr, "error", err)
		p.conn.Close()
		p.conn = nil
		return errors.ErrUnavailable
	}
	return nil
}

// IsAvailable dials if no connection is established yet.
func (p *SocketProducer) IsAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if p.conn != nil {
		return true
	}
	return p.dialLocked() == nil
}

// Close is idempotent and releases the connection.
func (p *SocketProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

func (p *SocketProducer) dialLocked() error {
	conn, err := net.Dial("tcp", p.addr)
	if err != nil {
		return err
	}
	p.conn = conn
	return nil
}

// =============================================================================
// Consumer
// =============================================================================

// SocketConsumer reads framed payloads from one accepted connection.
type SocketConsumer struct {
	conn    net.Conn
	reader  *wire.Reader
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewSocketConsumer wraps an accepted connection.
func NewSocketConsumer(conn net.Conn) *SocketConsumer {
	return &SocketConsumer{
		conn:    conn,
		reader:  wire.NewReader(conn),
		timeout: config.DefaultReadTimeout,
	}
}

// Receive returns the next brace-balanced payload from the stream. Each
// blocking read carries a deadline so cancellation is observed within one
// timeout interval without requiring the peer to close its connection.
func (c *SocketConsumer) Receive(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c.conn.SetReadDeadline(time.Now().Add(c.timeout))
		payload, err := c.reader.ReadMessage()
		if err == nil {
			return payload, nil
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			continue
		}
		if errors.IsEndOfStream(err) {
			return nil, errors.ErrEndOfStream
		}
		// A read error on a closed or reset connection ends this consumer
		// only; the listener keeps serving other connections.
		sockLog.Debug("receive failed", "remote", c.conn.RemoteAddr(), "error", err)
		return nil, errors.ErrEndOfStream
	}
}

// Close is idempotent and unblocks an in-progress Receive.
func (c *SocketConsumer) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address, for logging.
func (c *SocketConsumer) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// =============================================================================
// Listener
// =============================================================================

// SocketListener accepts connections, each of which becomes one consumer
// endpoint run on its own ingestion loop.
type SocketListener struct {
	ln net.Listener
}

// ListenSocket starts a TCP listener on addr. Use port 0 for an ephemeral
// port; Addr reports the bound address.
func ListenSocket(addr string) (*SocketListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	sockLog.Info("listening", "addr", ln.Addr())
	return &SocketListener{ln: ln}, nil
}

// Accept blocks for the next connection and wraps it as a consumer.
func (l *SocketListener) Accept() (*SocketConsumer, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	sockLog.Info("connection accepted", "remote", conn.RemoteAddr())
	return NewSocketConsumer(conn), nil
}

// Addr returns the bound listen address.
func (l *SocketListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting. Live consumers are closed by their ingestion loops.
func (l *SocketListener) Close() error {
	return l.ln.Close()
}
