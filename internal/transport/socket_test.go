package transport

import (
	"context"
	"testing"
	"time"

	"github.com/tkarlsson/sensord/internal/errors"
	"github.com/tkarlsson/sensord/internal/message"
)

func newTestSocketPair(t *testing.T) (*SocketConsumer, *SocketProducer) {
	t.Helper()
	ln, err := ListenSocket("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenSocket: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	producer := NewSocketProducer(ln.Addr().String())
	if !producer.IsAvailable() {
		t.Fatal("producer could not reach listener")
	}

	consumer, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	t.Cleanup(func() {
		producer.Close()
		consumer.Close()
	})
	return consumer, producer
}

func TestSocketRoundTrip(t *testing.T) {
	consumer, producer := newTestSocketPair(t)

	for i := int64(1); i <= 5; i++ {
		if err := producer.Send(message.New(i, "cpu", message.Scalar(float64(i)*1.5))); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	for i := int64(1); i <= 5; i++ {
		payload, err := consumer.Receive(context.Background())
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		m, err := message.Decode(payload)
		if err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if m.ID != i || m.Data.Value() != float64(i)*1.5 {
			t.Errorf("message %d: got id=%d data=%v", i, m.ID, m.Data.Value())
		}
	}
}

func TestSocketProducerLazyConnect(t *testing.T) {
	// No listener yet: the producer reports unavailable but does not fail
	// construction, and sends surface as retryable.
	producer := NewSocketProducer("127.0.0.1:1")
	defer producer.Close()

	if producer.IsAvailable() {
		t.Fatal("producer available with nothing listening")
	}
	err := producer.Send(message.New(1, "a", message.Scalar(1)))
	if !errors.Is(err, errors.ErrUnavailable) {
		t.Errorf("Send with no listener: error = %v, want ErrUnavailable", err)
	}
}

func TestSocketProducerCloseEndsStream(t *testing.T) {
	consumer, producer := newTestSocketPair(t)

	if err := producer.Send(message.New(1, "a", message.Scalar(1))); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := consumer.Receive(context.Background()); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	producer.Close()

	if _, err := consumer.Receive(context.Background()); !errors.IsEndOfStream(err) {
		t.Errorf("Receive after producer close: error = %v, want end of stream", err)
	}
}

func TestSocketReceiveCancellation(t *testing.T) {
	consumer, _ := newTestSocketPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := consumer.Receive(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * consumer.timeout):
		t.Fatal("Receive did not observe cancellation within two timeout intervals")
	}
}
