package sink

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tkarlsson/sensord/internal/errors"
	"github.com/tkarlsson/sensord/internal/message"
)

// recordSink captures appended messages and can be made to fail.
type recordSink struct {
	got  []*message.Message
	fail error
}

func (s *recordSink) Kind() Kind { return KindConsole }

func (s *recordSink) Append(m *message.Message) error {
	if s.fail != nil {
		return s.fail
	}
	s.got = append(s.got, m)
	return nil
}

func (s *recordSink) Close() error { return nil }

func TestChainFailureIsolation(t *testing.T) {
	first := &recordSink{}
	second := &recordSink{fail: errors.New("disk full")}
	third := &recordSink{}
	chain := NewChain(first, second, third)

	for i := int64(1); i <= 3; i++ {
		chain.Append(message.New(i, "cpu", message.Scalar(float64(i))))
	}

	// The failing middle sink never blocks delivery to its neighbors.
	if len(first.got) != 3 {
		t.Errorf("first sink got %d messages, want 3", len(first.got))
	}
	if len(second.got) != 0 {
		t.Errorf("failing sink recorded %d messages, want 0", len(second.got))
	}
	if len(third.got) != 3 {
		t.Errorf("third sink got %d messages, want 3", len(third.got))
	}
	for i, m := range third.got {
		if m.ID != int64(i+1) {
			t.Errorf("third sink message %d has id %d, want %d", i, m.ID, i+1)
		}
	}
}

func TestChainCloseClosesAll(t *testing.T) {
	var buf bytes.Buffer
	chain := NewChain(NewConsole(&buf), &recordSink{})
	if chain.Len() != 2 {
		t.Fatalf("Len = %d, want 2", chain.Len())
	}
	if err := chain.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestConsoleOutputAndControlLatch(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	m := message.New(4, "load", message.Scalar(0.25))
	if err := c.Append(m); err != nil {
		t.Fatalf("Append: %v", err)
	}
	want := strings.Join(m.FieldValues(), "\t") + "\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}

	// First control closes the sink without printing.
	if err := c.Append(message.Control(4, "load")); err != nil {
		t.Fatalf("Append control: %v", err)
	}
	if buf.String() != want {
		t.Errorf("control was printed: %q", buf.String())
	}

	// Every append after the control is rejected, including more controls.
	if err := c.Append(message.New(4, "load", message.Scalar(1))); !errors.Is(err, errors.ErrSinkClosed) {
		t.Errorf("Append after control: error = %v, want ErrSinkClosed", err)
	}
	if err := c.Append(message.Control(5, "other")); !errors.Is(err, errors.ErrSinkClosed) {
		t.Errorf("second control: error = %v, want ErrSinkClosed", err)
	}
	if buf.String() != want {
		t.Errorf("output changed after close: %q", buf.String())
	}
}
