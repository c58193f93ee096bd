package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tkarlsson/sensord/config"
	"github.com/tkarlsson/sensord/internal/errors"
	"github.com/tkarlsson/sensord/internal/logging"
	"github.com/tkarlsson/sensord/internal/message"
)

var shmLog = logging.Component("mailbox")

// Mailbox region layout. The flag word sits at offset 0 so it is aligned
// for atomic access; the payload length follows, then the slot itself.
const (
	shmFlagOffset   = 0
	shmLenOffset    = 4
	shmHeaderSize   = 8
	shmFlagEmpty    = 0
	shmFlagOccupied = 1
)

// mailboxRegion is one mapping of the shared region. Producer and consumer
// each hold their own mapping of the same backing file, as two processes
// would. The mutex serializes slot access against unmapping on Close.
type mailboxRegion struct {
	path string

	mu  sync.RWMutex
	f   *os.File
	buf []byte
}

func openMailboxRegion(path string, size int, create bool) (*mailboxRegion, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "open mailbox")
	}
	if create {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			os.Remove(path)
			return nil, errors.Wrap(err, "size mailbox")
		}
	}

	buf, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "map mailbox")
	}
	return &mailboxRegion{path: path, f: f, buf: buf}, nil
}

func (r *mailboxRegion) flag() *uint32 {
	return (*uint32)(unsafe.Pointer(&r.buf[shmFlagOffset]))
}

func (r *mailboxRegion) unmap() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buf != nil {
		unix.Munmap(r.buf)
		r.buf = nil
	}
	if r.f != nil {
		r.f.Close()
		r.f = nil
	}
}

// =============================================================================
// Producer
// =============================================================================

// MailboxProducer writes messages into a single-slot shared-memory mailbox.
//
// Send spin-waits while the slot holds an unread message, sleeping one poll
// interval between checks. The capacity is a hard limit, not a queue: a
// payload larger than the slot fails with ErrMessageTooLarge.
//
// Close unlinks the backing file. That access failure is how the consumer
// learns the stream has ended; there is no explicit close message.
type MailboxProducer struct {
	region   *mailboxRegion
	capacity int
	interval time.Duration

	closed    atomic.Bool
	closeOnce sync.Once
}

// =============================================================================
// Consumer
// =============================================================================

// MailboxConsumer reads messages from a single-slot shared-memory mailbox.
// Receive spins on the same interval as the producer while the slot is
// empty. An unlinked backing file is a normal termination signal.
type MailboxConsumer struct {
	region   *mailboxRegion
	capacity int
	interval time.Duration

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewMailboxPair creates the backing file under dir and returns both
// endpoints. Only one producer and one consumer may hold a given pair;
// a second writer or reader is undefined behavior.
func NewMailboxPair(dir, name string, capacity int) (*MailboxConsumer, *MailboxProducer, error) {
	if dir == "" {
		dir = config.DefaultMailboxDir
	}
	if _, err := os.Stat(dir); err != nil {
		dir = os.TempDir()
	}
	if capacity <= 0 {
		capacity = config.DefaultMailboxCapacity
	}

	path := filepath.Join(dir, fmt.Sprintf("sensord-mbox-%s-%d", name, os.Getpid()))
	size := shmHeaderSize + capacity

	prodRegion, err := openMailboxRegion(path, size, true)
	if err != nil {
		return nil, nil, err
	}
	consRegion, err := openMailboxRegion(path, size, false)
	if err != nil {
		prodRegion.unmap()
		os.Remove(path)
		return nil, nil, err
	}

	shmLog.Info("mailbox created", "path", path, "capacity", capacity)

	producer := &MailboxProducer{
		region:   prodRegion,
		capacity: capacity,
		interval: config.DefaultPollInterval,
	}
	consumer := &MailboxConsumer{
		region:   consRegion,
		capacity: capacity,
		interval: config.DefaultPollInterval,
	}
	return consumer, producer, nil
}

// Send encodes m, waits for the slot to free up, then occupies it.
func (p *MailboxProducer) Send(m *message.Message) error {
	payload, err := m.Encode()
	if err != nil {
		return err
	}
	if len(payload) > p.capacity {
		return errors.Wrapf(errors.ErrMessageTooLarge,
			"payload %d bytes, capacity %d", len(payload), p.capacity)
	}

	for {
		if p.closed.Load() {
			return errors.ErrClosed
		}

		p.region.mu.RLock()
		if p.region.buf == nil {
			p.region.mu.RUnlock()
			return errors.ErrClosed
		}
		if atomic.LoadUint32(p.region.flag()) == shmFlagEmpty {
			copy(p.region.buf[shmHeaderSize:], payload)
			binary.LittleEndian.PutUint32(p.region.buf[shmLenOffset:], uint32(len(payload)))
			atomic.StoreUint32(p.region.flag(), shmFlagOccupied)
			p.region.mu.RUnlock()
			return nil
		}
		p.region.mu.RUnlock()

		// Slot occupied by an unread message: wait for the consumer.
		time.Sleep(p.interval)
	}
}

// IsAvailable reports whether the mailbox is still open.
func (p *MailboxProducer) IsAvailable() bool {
	return !p.closed.Load()
}

// Close releases and unlinks the shared region. Idempotent, and safe to call
// while another goroutine is blocked in Send.
func (p *MailboxProducer) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		path := p.region.path
		p.region.unmap()
		os.Remove(path)
		shmLog.Info("mailbox unlinked", "path", path)
	})
	return nil
}

// Receive spins until the slot is occupied, copies the payload out, and
// clears the flag. The backing file disappearing is end-of-stream.
func (c *MailboxConsumer) Receive(ctx context.Context) ([]byte, error) {
	for {
		if c.closed.Load() {
			return nil, errors.ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c.region.mu.RLock()
		if c.region.buf == nil {
			c.region.mu.RUnlock()
			return nil, errors.ErrClosed
		}
		if atomic.LoadUint32(c.region.flag()) == shmFlagOccupied {
			n := binary.LittleEndian.Uint32(c.region.buf[shmLenOffset:])
			if int(n) > c.capacity {
				c.region.mu.RUnlock()
				return nil, errors.Wrap(errors.ErrDecodeFailure, "corrupt slot length")
			}
			payload := make([]byte, n)
			copy(payload, c.region.buf[shmHeaderSize:shmHeaderSize+int(n)])
			atomic.StoreUint32(c.region.flag(), shmFlagEmpty)
			c.region.mu.RUnlock()
			return payload, nil
		}
		c.region.mu.RUnlock()

		// Empty slot: the producer unlinking the file means no more
		// messages are coming.
		if _, err := os.Stat(c.region.path); err != nil {
			return nil, errors.ErrEndOfStream
		}
		time.Sleep(c.interval)
	}
}

// Close releases this endpoint's mapping. Idempotent; unblocks Receive.
func (c *MailboxConsumer) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.region.unmap()
	})
	return nil
}
