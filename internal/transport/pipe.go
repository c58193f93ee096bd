package transport

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tkarlsson/sensord/config"
	"github.com/tkarlsson/sensord/internal/errors"
	"github.com/tkarlsson/sensord/internal/logging"
	"github.com/tkarlsson/sensord/internal/message"
)

var pipeLog = logging.Component("pipe")

// =============================================================================
// Pair construction
// =============================================================================

// NewPipePair creates a bidirectional, message-preserving pipe and returns
// both endpoints. A seqpacket socketpair keeps write boundaries, so each
// Send is one atomic message and no framing is needed. Both endpoints must
// share a parent process.
func NewPipePair() (*PipeConsumer, *PipeProducer, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, nil, errors.Wrap(err, "socketpair")
	}

	// Non-blocking so the runtime poller can honor read deadlines.
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, nil, errors.Wrap(err, "set nonblock")
		}
	}

	producer := &PipeProducer{
		f:       os.NewFile(uintptr(fds[0]), "pipe-producer"),
		maxSize: config.DefaultPipeMessageSize,
	}
	consumer := &PipeConsumer{
		f:       os.NewFile(uintptr(fds[1]), "pipe-consumer"),
		buf:     make([]byte, config.DefaultPipeMessageSize),
		timeout: config.DefaultReadTimeout,
	}
	pipeLog.Info("pipe pair created")
	return consumer, producer, nil
}

// =============================================================================
// Producer
// =============================================================================

// PipeProducer transmits each encoded message as one atomic packet.
type PipeProducer struct {
	maxSize int

	mu     sync.Mutex
	f      *os.File
	closed bool
}

// Send writes the encoded payload as a single packet. A payload larger than
// the consumer's packet buffer would be silently truncated by the seqpacket
// read, so it is rejected here with ErrMessageTooLarge instead. A closed
// peer surfaces as ErrUnavailable.
func (p *PipeProducer) Send(m *message.Message) error {
	payload, err := m.Encode()
	if err != nil {
		return err
	}
	if len(payload) > p.maxSize {
		return errors.Wrapf(errors.ErrMessageTooLarge,
			"payload %d bytes, pipe packet limit %d", len(payload), p.maxSize)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.ErrClosed
	}
	if _, err := p.f.Write(payload); err != nil {
		pipeLog.Debug("send failed", "error", err)
		return errors.ErrUnavailable
	}
	return nil
}

// IsAvailable reports whether the endpoint is open.
func (p *PipeProducer) IsAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

// Close is idempotent. The peer consumer observes it as end-of-stream.
func (p *PipeProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.f.Close()
}

// =============================================================================
// Consumer
// =============================================================================

// PipeConsumer receives one message per read.
type PipeConsumer struct {
	f       *os.File
	buf     []byte
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Receive blocks for the next packet. End-of-stream on the pipe is normal
// termination. Reads carry a deadline so cancellation is observed without
// the peer having to close.
func (c *PipeConsumer) Receive(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c.f.SetReadDeadline(time.Now().Add(c.timeout))
		n, err := c.f.Read(c.buf)
		if n > 0 {
			payload := make([]byte, n)
			copy(payload, c.buf[:n])
			return payload, nil
		}
		if err == nil || err == io.EOF {
			return nil, errors.ErrEndOfStream
		}
		if os.IsTimeout(err) {
			continue
		}
		pipeLog.Debug("receive failed", "error", err)
		return nil, errors.ErrEndOfStream
	}
}

// Close is idempotent and unblocks an in-progress Receive.
func (c *PipeConsumer) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.f.Close()
	})
	return c.closeErr
}
