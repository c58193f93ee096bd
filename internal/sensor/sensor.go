// Package sensor runs the producer-side sampling loop.
//
// A sensor binds a probe to a producer endpoint: at each tick it invokes the
// probe, stamps the value into a message, and sends it. The loop observes
// the shared run context and closes its endpoint on cancellation, so a
// simulation run can wind down every sensor cooperatively.
package sensor

import (
	"context"
	"time"

	"github.com/tkarlsson/sensord/config"
	"github.com/tkarlsson/sensord/internal/errors"
	"github.com/tkarlsson/sensord/internal/logging"
	"github.com/tkarlsson/sensord/internal/message"
	"github.com/tkarlsson/sensord/internal/probe"
	"github.com/tkarlsson/sensord/internal/transport"
)

var log = logging.Component("sensor")

// Sensor samples a probe on a fixed period and sends each sample through
// its producer endpoint. The id is stable for the sensor's lifetime; the
// name need not be unique.
type Sensor struct {
	id       int64
	name     string
	period   time.Duration
	probe    probe.Func
	producer transport.Producer
}

// New creates a sensor. A zero period falls back to the default sampling
// period.
func New(id int64, name string, period time.Duration, p probe.Func, producer transport.Producer) *Sensor {
	if period <= 0 {
		period = config.DefaultSamplingPeriod
	}
	return &Sensor{
		id:       id,
		name:     name,
		period:   period,
		probe:    p,
		producer: producer,
	}
}

// ID returns the sensor id.
func (s *Sensor) ID() int64 { return s.id }

// Name returns the sensor name.
func (s *Sensor) Name() string { return s.name }

// Run samples until the context is cancelled or the transport goes away for
// good, then closes the producer endpoint. Capacity and misuse errors from
// Send are fatal and returned to the owner; ordinary unavailability is
// retried as long as the endpoint still reports available.
func (s *Sensor) Run(ctx context.Context) error {
	// A Send blocked inside the transport (a full mailbox slot, most
	// notably) cannot watch the context itself, so cancellation closes the
	// endpoint out from under it. Producers guarantee Close is safe from
	// another goroutine and a blocked Send then exits with ErrClosed.
	stop := context.AfterFunc(ctx, func() { s.producer.Close() })
	defer stop()
	defer s.producer.Close()

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sensor stopping", "id", s.id, "name", s.name)
			return nil
		case <-ticker.C:
		}

		data, err := s.probe()
		if err != nil {
			log.Warn("probe failed", "id", s.id, "name", s.name, "error", err)
			continue
		}

		m := message.New(s.id, s.name, data)
		if err := s.producer.Send(m); err != nil {
			if ctx.Err() != nil {
				log.Info("sensor stopping", "id", s.id, "name", s.name)
				return nil
			}
			if errors.IsFatal(err) {
				log.Error("send failed", "id", s.id, "name", s.name, "error", err)
				return err
			}
			if !s.producer.IsAvailable() {
				log.Info("endpoint gone, sensor stopping", "id", s.id, "name", s.name)
				return nil
			}
			log.Debug("send retryable failure", "id", s.id, "error", err)
		}
	}
}
