// sensord moves timestamped sensor measurements over a choice of transport
// (TCP socket, shared-memory mailbox, or seqpacket pipe) into a chain of
// persistence and visualization sinks.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tkarlsson/sensord/internal/loader"
	"github.com/tkarlsson/sensord/internal/logging"
	"github.com/tkarlsson/sensord/internal/sensor"
	"github.com/tkarlsson/sensord/internal/server"
	"github.com/tkarlsson/sensord/internal/sink"
	"github.com/tkarlsson/sensord/internal/transport"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	transportName := flag.String("transport", "", "transport: socket, shm or pipe (overrides config)")
	csvPath := flag.String("csv", "", "CSV sink output file (overrides config)")
	dbPath := flag.String("db", "", "SQL sink database path (overrides config)")
	duration := flag.Duration("duration", 0, "stop after this long (0 = run until signal)")
	debug := flag.Bool("debug", false, "debug logging")
	jsonLog := flag.Bool("json-log", false, "JSON log output")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logging.Init(level, *jsonLog)
	logging.Info("sensord starting", "version", Version)

	// Load config
	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("no config file found, using defaults")
			cfg = loader.DefaultConfig()
		} else {
			logging.Error("load config", "error", err)
			os.Exit(1)
		}
	}

	// CLI overrides
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *transportName != "" {
		cfg.Transport = *transportName
	}
	if *csvPath != "" {
		cfg.Sinks.CSV = loader.CSVConfig{Enabled: true, Path: *csvPath}
	}
	if *dbPath != "" {
		cfg.Sinks.SQL = loader.SQLConfig{Enabled: true, Path: *dbPath}
	}

	kind, err := transport.ParseKind(cfg.Transport)
	if err != nil {
		logging.Error("bad transport", "error", err)
		os.Exit(1)
	}

	// =========================================================================
	// Sink Chain
	// =========================================================================

	chain, err := buildChain(cfg)
	if err != nil {
		logging.Error("build sink chain", "error", err)
		os.Exit(1)
	}
	logging.Info("sink chain composed", "sinks", chain.Len())

	// =========================================================================
	// Server and Sensors
	// =========================================================================

	srv := server.New(&server.Config{
		Chain:           chain,
		Transport:       kind,
		Listen:          cfg.Listen,
		MailboxDir:      cfg.Mailbox.Dir,
		MailboxCapacity: cfg.Mailbox.Capacity,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		logging.Error("start server", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	for i := range cfg.Sensors {
		sc := &cfg.Sensors[i]

		probeFn, err := loader.BuildProbe(sc)
		if err != nil {
			logging.Error("build probe", "sensor", sc.Name, "error", err)
			os.Exit(1)
		}
		producer, err := srv.NewProducer()
		if err != nil {
			logging.Error("create producer", "sensor", sc.Name, "error", err)
			os.Exit(1)
		}

		sn := sensor.New(sc.ID, sc.Name, sc.Period(), probeFn, producer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sn.Run(ctx); err != nil {
				logging.Error("sensor failed", "sensor", sn.Name(), "error", err)
			}
		}()
	}
	logging.Info("sensors running", "count", len(cfg.Sensors))

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	if *duration > 0 {
		time.AfterFunc(*duration, cancel)
	}

	select {
	case <-sig:
		logging.Info("signal received, shutting down")
		cancel()
	case <-ctx.Done():
	}

	// Sensors join first; each closes its own producer endpoint on the way
	// out, which the consumer loops observe as end-of-stream.
	wg.Wait()

	// Then the server drains consumers and terminates the sinks.
	srv.Shutdown()
	logging.Info("sensord stopped")
}

// buildChain composes the sink chain from configuration, in delivery order.
func buildChain(cfg *loader.Config) (*sink.Chain, error) {
	var sinks []sink.Sink

	if cfg.Sinks.Console {
		sinks = append(sinks, sink.NewConsole(os.Stdout))
	}
	if cfg.Sinks.CSV.Enabled {
		s, err := sink.NewCSV(cfg.Sinks.CSV.Path, cfg.Sinks.QueueSize)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Sinks.SQL.Enabled {
		s, err := sink.NewSQL(cfg.Sinks.SQL.Path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Sinks.Parquet.Enabled {
		s, err := sink.NewParquet(cfg.Sinks.Parquet.Dir, cfg.Sinks.QueueSize)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Sinks.Plot {
		sinks = append(sinks, sink.NewPlot(os.Stdout, cfg.Sinks.QueueSize))
	}

	return sink.NewChain(sinks...), nil
}
