// Package server orchestrates the ingestion side of a run: it owns the
// transport consumers, runs one ingestion loop per consumer endpoint, and
// coordinates the shutdown sequence.
//
// Shutdown order: the run context is cancelled, the listener stops accepting
// and live consumers drain, then one control message is appended to the
// chain so every sink flushes and its worker joins, then the sinks close.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tkarlsson/sensord/config"
	"github.com/tkarlsson/sensord/internal/errors"
	"github.com/tkarlsson/sensord/internal/ingest"
	"github.com/tkarlsson/sensord/internal/logging"
	"github.com/tkarlsson/sensord/internal/message"
	"github.com/tkarlsson/sensord/internal/sink"
	"github.com/tkarlsson/sensord/internal/transport"
)

var log = logging.Component("server")

// Config holds server configuration.
type Config struct {
	// Chain is the sink chain every consumer delivers into (required).
	Chain *sink.Chain

	// Transport selects the endpoint variant.
	Transport transport.Kind

	// Listen is the socket transport listen address; port 0 binds an
	// ephemeral port.
	Listen string

	// Mailbox settings for the shared-memory transport.
	MailboxDir      string
	MailboxCapacity int

	// DrainTimeout bounds how long Shutdown waits for consumer loops.
	DrainTimeout time.Duration
}

// Server runs the consumer side of every transport endpoint.
type Server struct {
	cfg   *Config
	chain *sink.Chain

	listener *transport.SocketListener

	g      *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool
	pairSeq int
}

// New creates a server.
func New(cfg *Config) *Server {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = config.DefaultDrainTimeout
	}
	return &Server{cfg: cfg, chain: cfg.Chain}
}

// Start begins serving. For the socket transport this binds the listener
// and starts the accept loop; the mailbox and pipe transports create their
// endpoint pairs on demand in NewProducer.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("server already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.ctx = runCtx
	s.cancel = cancel
	s.g, _ = errgroup.WithContext(runCtx)

	if s.cfg.Transport == transport.KindSocket {
		ln, err := transport.ListenSocket(s.cfg.Listen)
		if err != nil {
			cancel()
			return err
		}
		s.listener = ln
		s.g.Go(func() error { return s.acceptLoop(runCtx) })
	}

	log.Info("server started", "transport", s.cfg.Transport)
	return nil
}

// Addr returns the bound socket listen address, or "" for other transports.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// NewProducer creates a producer endpoint for one sensor. The matching
// consumer endpoint is wired to the sink chain and its ingestion loop is
// already running when this returns.
func (s *Server) NewProducer() (transport.Producer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return nil, errors.ErrClosed
	}

	switch s.cfg.Transport {
	case transport.KindSocket:
		// The consumer side comes from the accept loop.
		return transport.NewSocketProducer(s.listener.Addr().String()), nil

	case transport.KindSharedMemory:
		s.pairSeq++
		name := fmt.Sprintf("p%d", s.pairSeq)
		consumer, producer, err := transport.NewMailboxPair(
			s.cfg.MailboxDir, name, s.cfg.MailboxCapacity)
		if err != nil {
			return nil, err
		}
		s.g.Go(func() error { return ingest.Loop(s.ctx, consumer, s.chain) })
		return producer, nil

	case transport.KindPipe:
		consumer, producer, err := transport.NewPipePair()
		if err != nil {
			return nil, err
		}
		s.g.Go(func() error { return ingest.Loop(s.ctx, consumer, s.chain) })
		return producer, nil

	default:
		return nil, fmt.Errorf("unknown transport kind %v", s.cfg.Transport)
	}
}

// acceptLoop turns each accepted connection into one ingestion loop on its
// own goroutine. Accepting and reading existing connections proceed
// concurrently.
func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		consumer, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Error("accept error", "error", err)
			continue
		}
		s.g.Go(func() error { return ingest.Loop(ctx, consumer, s.chain) })
	}
}

// Shutdown stops the server: cancels the run context, closes the listener,
// waits for every ingestion loop to join (bounded by the drain timeout),
// then delivers the control message to the chain and closes the sinks.
// Idempotent.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	log.Info("shutting down")
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.g.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("consumer loops joined")
	case <-time.After(s.cfg.DrainTimeout):
		log.Warn("drain timeout waiting for consumer loops")
	}

	// One in-band control message terminates every sink worker; sinks latch
	// closed so a duplicate sentinel from a producer is harmless.
	s.chain.Append(message.Control(-1, "shutdown"))
	if err := s.chain.Close(); err != nil {
		log.Warn("sink close", "error", err)
	}

	log.Info("shutdown complete")
}
