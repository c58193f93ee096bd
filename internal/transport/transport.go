// Package transport provides the three interchangeable endpoint pairs that
// move encoded messages from sensors to the ingestion loop: TCP socket,
// shared-memory mailbox, and seqpacket pipe.
//
// Every variant exposes a Producer (sensor side) and a Consumer (ingestion
// side). Producers serialize and deliver one message per Send; consumers
// return one raw encoded payload per Receive. Decoding happens once, in the
// ingestion loop, never inside a transport.
package transport

import (
	"context"
	"fmt"

	"github.com/tkarlsson/sensord/internal/message"
)

// Producer is the sensor-side half of a transport.
//
// Send attempts delivery of one message. Ordinary disconnection is reported
// as errors.ErrUnavailable and is safe to retry; depending on the variant a
// later Send may reconnect. A payload over the variant's capacity (mailbox
// slot size, pipe packet limit) fails with errors.ErrMessageTooLarge, which
// the caller must surface.
//
// Close is idempotent and safe to call from a different goroutine than Send.
type Producer interface {
	Send(m *message.Message) error
	IsAvailable() bool
	Close() error
}

// Consumer is the ingestion-side half of a transport.
//
// Receive blocks for the next discrete encoded payload. It returns
// errors.ErrEndOfStream when the peer producer has gone away, and
// ctx.Err() within one polling interval of the context being cancelled.
//
// Close is idempotent and unblocks an in-progress Receive.
type Consumer interface {
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Kind selects a transport variant.
type Kind int

const (
	KindSocket Kind = iota
	KindSharedMemory
	KindPipe
)

// String returns the config name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSocket:
		return "socket"
	case KindSharedMemory:
		return "shm"
	case KindPipe:
		return "pipe"
	default:
		return "unknown"
	}
}

// ParseKind parses a transport kind from its config name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "socket", "tcp":
		return KindSocket, nil
	case "shm", "shared-memory":
		return KindSharedMemory, nil
	case "pipe":
		return KindPipe, nil
	default:
		return 0, fmt.Errorf("unknown transport kind %q", s)
	}
}
