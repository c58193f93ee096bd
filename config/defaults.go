// Package config provides configuration defaults and utilities
// for the sensord application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command-line flags.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default socket transport listen address.
	// Override via config: listen
	DefaultListenAddress = "127.0.0.1:33333"

	// DefaultReadChunkSize is the receive buffer size used while scanning
	// a socket byte stream for message boundaries.
	DefaultReadChunkSize = 2048

	// DefaultMaxMessageSize limits a single framed message to prevent OOM
	// when a peer sends an unterminated payload.
	DefaultMaxMessageSize = 1 * 1024 * 1024
)

// =============================================================================
// Polling Defaults
// =============================================================================

const (
	// DefaultPollInterval is the spin interval for the shared-memory mailbox
	// and the cancellation-check interval for blocking consumer loops.
	// Every consumer loop observes cancellation within one interval.
	// Override via config: poll_interval_ms
	DefaultPollInterval = 1 * time.Millisecond

	// DefaultSamplingPeriod is the default sensor sampling period.
	// Override per sensor via config: sensors[].period_ms
	DefaultSamplingPeriod = 500 * time.Millisecond

	// DefaultReadTimeout is the deadline applied to each blocking socket or
	// pipe read so a consumer loop can observe cancellation. A blocked
	// consumer exits within at most one timeout of the signal firing.
	DefaultReadTimeout = 100 * time.Millisecond
)

// =============================================================================
// Transport Defaults
// =============================================================================

const (
	// DefaultMailboxCapacity is the payload capacity of the shared-memory
	// mailbox in bytes. This is a hard limit, not a queue: a payload larger
	// than this fails the send with a capacity error.
	// Override via config: mailbox_capacity
	DefaultMailboxCapacity = 4096

	// DefaultMailboxDir is where mailbox backing files are created.
	DefaultMailboxDir = "/dev/shm"

	// DefaultPipeMessageSize is the receive buffer for one pipe message.
	// Seqpacket sockets preserve message boundaries, so one read returns
	// exactly one encoded message.
	DefaultPipeMessageSize = 64 * 1024
)

// =============================================================================
// Sink Defaults
// =============================================================================

const (
	// DefaultSinkQueueSize is the capacity of the queue owned by sinks that
	// run a dedicated writer worker (CSV, Parquet, plot). Appends never
	// block the ingestion loop; a full queue drops with an error.
	// Override via config: sinks.queue_size
	DefaultSinkQueueSize = 1024

	// DefaultCSVPath is the default CSV sink output file.
	DefaultCSVPath = "sensorlog.csv"

	// DefaultSQLPath is the default DuckDB database file for the SQL sink.
	DefaultSQLPath = "sensord.db"

	// DefaultParquetDir is the default directory for Parquet archive files.
	DefaultParquetDir = "archive"

	// DefaultParquetBatchSize is how many rows the Parquet sink accumulates
	// before writing a row group.
	DefaultParquetBatchSize = 1000

	// DefaultPlotMargin is the fraction added above and below the observed
	// value range when auto-expanding plot axis limits.
	DefaultPlotMargin = 0.05
)

// =============================================================================
// Shutdown Defaults
// =============================================================================

const (
	// DefaultDrainTimeout is how long shutdown waits for sensors, consumer
	// loops, and sink workers to join before giving up.
	DefaultDrainTimeout = 30 * time.Second
)
