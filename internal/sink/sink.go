// Package sink provides the fan-out chain and the concrete message sinks:
// console, CSV, SQL (DuckDB), Parquet archive, and plot.
//
// The chain is an explicit ordered list of tagged sink values composed once
// at startup; there is no ambient global and no wrapper nesting. Each sink
// isolates its own failures: an I/O error in one member never prevents
// delivery to the rest.
//
// A control message (sentinel data) triggers a sink's shutdown/flush
// behavior. Sinks latch closed on the first control they see and reject
// every later append, so the behavior runs exactly once no matter how many
// producers emit sentinels.
package sink

import (
	"github.com/tkarlsson/sensord/internal/errors"
	"github.com/tkarlsson/sensord/internal/logging"
	"github.com/tkarlsson/sensord/internal/message"
)

var log = logging.Component("sink")

// Kind tags a sink variant.
type Kind int

const (
	KindConsole Kind = iota
	KindCSV
	KindSQL
	KindParquet
	KindPlot
)

// String returns the config name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConsole:
		return "console"
	case KindCSV:
		return "csv"
	case KindSQL:
		return "sql"
	case KindParquet:
		return "parquet"
	case KindPlot:
		return "plot"
	default:
		return "unknown"
	}
}

// Sink consumes fully decoded messages. Append must not block the ingestion
// loop for longer than a synchronous write; sinks with slow I/O own a worker
// goroutine and an internal queue. Messages are shared between sinks and
// must be treated as read-only.
type Sink interface {
	Kind() Kind
	Append(m *message.Message) error
	Close() error
}

// =============================================================================
// Chain
// =============================================================================

// Chain fans every message out to an ordered list of sinks.
// The member list is fixed at construction and never mutated concurrently
// with Append.
type Chain struct {
	sinks []Sink
}

// NewChain builds a chain over the given sinks, in delivery order.
func NewChain(sinks ...Sink) *Chain {
	return &Chain{sinks: sinks}
}

// Append forwards m to every member sink in order. A failing sink is logged
// and skipped; delivery to the remaining sinks continues.
func (c *Chain) Append(m *message.Message) {
	for _, s := range c.sinks {
		if err := s.Append(m); err != nil {
			if errors.IsSinkRejection(err) {
				log.Debug("sink rejected message", "sink", s.Kind(), "error", err)
			} else {
				log.Warn("sink append failed", "sink", s.Kind(), "error", err)
			}
		}
	}
}

// Len returns the number of member sinks.
func (c *Chain) Len() int {
	return len(c.sinks)
}

// Close closes every sink in order, joining worker goroutines. The first
// error is returned; later sinks are still closed.
func (c *Chain) Close() error {
	var first error
	for _, s := range c.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
