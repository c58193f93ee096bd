// Package ingest runs the per-consumer ingestion loop.
//
// One loop runs on its own goroutine for every consumer endpoint. It blocks
// for the next discrete payload, decodes it once, and forwards the message
// to the sink chain. Decode failures are logged and skipped; transport
// termination ends the loop for that endpoint only.
package ingest

import (
	"context"

	"github.com/tkarlsson/sensord/internal/errors"
	"github.com/tkarlsson/sensord/internal/logging"
	"github.com/tkarlsson/sensord/internal/message"
	"github.com/tkarlsson/sensord/internal/sink"
	"github.com/tkarlsson/sensord/internal/transport"
)

var log = logging.Component("ingest")

// Loop drains one consumer endpoint into the chain until the context is
// cancelled or the peer producer goes away. The endpoint is closed before
// returning. The returned error is nil for every normal termination path.
func Loop(ctx context.Context, c transport.Consumer, chain *sink.Chain) error {
	defer c.Close()

	for {
		if err := ctx.Err(); err != nil {
			log.Debug("loop cancelled")
			return nil
		}

		payload, err := c.Receive(ctx)
		if err != nil {
			switch {
			case errors.IsEndOfStream(err), errors.Is(err, errors.ErrClosed):
				log.Debug("peer gone, loop ending")
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil
			default:
				log.Error("receive error", "error", err)
				return err
			}
		}

		m, err := message.Decode(payload)
		if err != nil {
			// Malformed payloads are skipped, not fatal.
			log.Warn("decode failure", "error", err, "payload_bytes", len(payload))
			continue
		}

		chain.Append(m)
	}
}
