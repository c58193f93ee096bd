package sink

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tkarlsson/sensord/internal/errors"
	"github.com/tkarlsson/sensord/internal/message"
)

// Console writes a tab-joined representation of each message to an output
// stream, synchronously and unbuffered.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

// NewConsole creates a console sink writing to w (normally os.Stdout).
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Kind returns KindConsole.
func (c *Console) Kind() Kind { return KindConsole }

// Append writes the message fields joined by tabs. A control message closes
// the sink instead of being printed.
func (c *Console) Append(m *message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrSinkClosed
	}
	if m.IsControl() {
		c.closed = true
		return nil
	}

	_, err := fmt.Fprintln(c.w, strings.Join(m.FieldValues(), "\t"))
	return err
}

// Close marks the sink closed. The output stream is not owned by the sink
// and stays open.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
