package server

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tkarlsson/sensord/internal/message"
	"github.com/tkarlsson/sensord/internal/sink"
	"github.com/tkarlsson/sensord/internal/transport"
)

// captureSink records every delivered message, controls included.
type captureSink struct {
	mu  sync.Mutex
	got []*message.Message
}

func (s *captureSink) Kind() sink.Kind { return sink.KindConsole }

func (s *captureSink) Append(m *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, m)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) samples() []*message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*message.Message
	for _, m := range s.got {
		if !m.IsControl() {
			out = append(out, m)
		}
	}
	return out
}

func (s *captureSink) controls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.got {
		if m.IsControl() {
			n++
		}
	}
	return n
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	trimmed := strings.TrimRight(string(data), "\n")
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "\n"))
}

func TestSocketEndToEndIntoCSV(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "out.csv")
	csv, err := sink.NewCSV(csvPath, 64)
	if err != nil {
		t.Fatalf("NewCSV: %v", err)
	}

	srv := New(&Config{
		Chain:        sink.NewChain(csv),
		Transport:    transport.KindSocket,
		Listen:       "127.0.0.1:0",
		DrainTimeout: 5 * time.Second,
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if srv.Addr() == "" {
		t.Fatal("no bound address")
	}

	producer, err := srv.NewProducer()
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	for i := int64(1); i <= 5; i++ {
		if err := producer.Send(message.New(i, "cpu", message.Scalar(float64(i)))); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	producer.Close()

	// Wait for the rows to land before shutting down, so the drain is not
	// racing the sends.
	deadline := time.Now().Add(5 * time.Second)
	for countLines(t, csvPath) < 6 {
		if time.Now().After(deadline) {
			t.Fatalf("CSV has %d lines, want header + 5 rows", countLines(t, csvPath))
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.Shutdown()

	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("got %d lines after shutdown, want header + 5 rows:\n%s", len(lines), data)
	}
	if want := strings.Join(message.FieldNames(), ", "); lines[0] != want {
		t.Errorf("header = %q, want %q", lines[0], want)
	}
	for i := 1; i <= 5; i++ {
		if !strings.HasPrefix(lines[i], strconv.Itoa(i)+", ") {
			t.Errorf("row %d = %q, want id %d first", i, lines[i], i)
		}
	}

	// The control terminated the writer: a later append bounces and the file
	// does not change.
	if err := csv.Append(message.New(9, "late", message.Scalar(9))); err == nil {
		t.Error("Append after shutdown succeeded, want rejection")
	}
	if got := countLines(t, csvPath); got != 6 {
		t.Errorf("file grew to %d lines after shutdown", got)
	}
}

func TestPipeTransportDeliversAndShutsDownOnce(t *testing.T) {
	rec := &captureSink{}
	srv := New(&Config{
		Chain:        sink.NewChain(rec),
		Transport:    transport.KindPipe,
		DrainTimeout: 5 * time.Second,
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	producer, err := srv.NewProducer()
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	for i := int64(1); i <= 3; i++ {
		if err := producer.Send(message.New(i, "mem", message.Scalar(float64(i)))); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	producer.Close()

	deadline := time.Now().Add(5 * time.Second)
	for len(rec.samples()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("delivered %d samples, want 3", len(rec.samples()))
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.Shutdown()
	srv.Shutdown() // idempotent

	if n := rec.controls(); n != 1 {
		t.Errorf("chain received %d control messages, want exactly 1", n)
	}
}

func TestSharedMemoryTransportDelivers(t *testing.T) {
	rec := &captureSink{}
	srv := New(&Config{
		Chain:           sink.NewChain(rec),
		Transport:       transport.KindSharedMemory,
		MailboxDir:      t.TempDir(),
		MailboxCapacity: 1024,
		DrainTimeout:    5 * time.Second,
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	producer, err := srv.NewProducer()
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	for i := int64(1); i <= 3; i++ {
		if err := producer.Send(message.New(i, "load", message.Scalar(float64(i)))); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	producer.Close()

	deadline := time.Now().Add(5 * time.Second)
	for len(rec.samples()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("delivered %d samples, want 3", len(rec.samples()))
		}
		time.Sleep(5 * time.Millisecond)
	}
	srv.Shutdown()

	got := rec.samples()
	for i, m := range got {
		if m.ID != int64(i+1) {
			t.Errorf("sample %d has id %d, want %d", i, m.ID, i+1)
		}
	}
}

func TestShutdownIsPromptAfterCancellation(t *testing.T) {
	rec := &captureSink{}
	srv := New(&Config{
		Chain:        sink.NewChain(rec),
		Transport:    transport.KindPipe,
		DrainTimeout: 10 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := srv.NewProducer(); err != nil {
		t.Fatalf("NewProducer: %v", err)
	}

	// An idle consumer loop must observe cancellation within its read
	// timeout, so Shutdown joins well before the drain timeout.
	cancel()
	start := time.Now()
	srv.Shutdown()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Shutdown took %v, want prompt join after cancellation", elapsed)
	}
}

func TestNewProducerAfterShutdown(t *testing.T) {
	srv := New(&Config{
		Chain:     sink.NewChain(&captureSink{}),
		Transport: transport.KindPipe,
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	srv.Shutdown()

	if _, err := srv.NewProducer(); err == nil {
		t.Error("NewProducer after Shutdown succeeded, want error")
	}
}
