// Package loader - Configuration Types
//
// Defines the YAML configuration structure for sensord: transport selection,
// sink chain composition, and the sensor set.
package loader

import (
	"fmt"
	"time"

	"github.com/tkarlsson/sensord/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for sensord.
type Config struct {
	// Listen is the socket transport listen address.
	// Default: "127.0.0.1:33333"
	Listen string `yaml:"listen"`

	// Transport selects the endpoint variant: socket, shm or pipe.
	Transport string `yaml:"transport"`

	// Mailbox configures the shared-memory transport.
	Mailbox MailboxConfig `yaml:"mailbox"`

	// Sinks configures the fan-out chain, in delivery order:
	// console, csv, sql, parquet, plot.
	Sinks SinksConfig `yaml:"sinks"`

	// Sensors defines the producer set.
	Sensors []SensorConfig `yaml:"sensors"`
}

// MailboxConfig configures the single-slot shared-memory mailbox.
type MailboxConfig struct {
	// Dir is where mailbox backing files live. Default: /dev/shm.
	Dir string `yaml:"dir"`

	// Capacity is the slot size in bytes, a hard per-message limit.
	Capacity int `yaml:"capacity"`
}

// SinksConfig composes the sink chain.
type SinksConfig struct {
	// QueueSize is the internal queue capacity of worker-owned sinks.
	QueueSize int `yaml:"queue_size"`

	Console bool          `yaml:"console"`
	CSV     CSVConfig     `yaml:"csv"`
	SQL     SQLConfig     `yaml:"sql"`
	Parquet ParquetConfig `yaml:"parquet"`
	Plot    bool          `yaml:"plot"`
}

// CSVConfig configures the CSV sink.
type CSVConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SQLConfig configures the DuckDB sink.
type SQLConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ParquetConfig configures the Parquet archive sink.
type ParquetConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// SensorConfig defines one sensor.
type SensorConfig struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name"`
	Probe    string `yaml:"probe"`
	PeriodMs int    `yaml:"period_ms"`

	// SNMP holds the remote gauge settings when probe is "snmp".
	SNMP *SNMPProbeConfig `yaml:"snmp"`
}

// Period returns the sampling period.
func (s *SensorConfig) Period() time.Duration {
	if s.PeriodMs <= 0 {
		return config.DefaultSamplingPeriod
	}
	return time.Duration(s.PeriodMs) * time.Millisecond
}

// SNMPProbeConfig identifies a remote SNMP gauge.
type SNMPProbeConfig struct {
	Target    string `yaml:"target"`
	Port      uint16 `yaml:"port"`
	Community string `yaml:"community"`
	OID       string `yaml:"oid"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// =============================================================================
// Defaults and Validation
// =============================================================================

// DefaultConfig returns the configuration used when no file is present:
// socket transport with console and CSV sinks and one load-average sensor.
func DefaultConfig() *Config {
	return &Config{
		Listen:    config.DefaultListenAddress,
		Transport: "socket",
		Mailbox: MailboxConfig{
			Dir:      config.DefaultMailboxDir,
			Capacity: config.DefaultMailboxCapacity,
		},
		Sinks: SinksConfig{
			QueueSize: config.DefaultSinkQueueSize,
			Console:   true,
			CSV: CSVConfig{
				Enabled: true,
				Path:    config.DefaultCSVPath,
			},
			SQL: SQLConfig{
				Path: config.DefaultSQLPath,
			},
			Parquet: ParquetConfig{
				Dir: config.DefaultParquetDir,
			},
		},
		Sensors: []SensorConfig{
			{ID: 1, Name: "load", Probe: "load"},
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Transport {
	case "socket", "tcp", "shm", "shared-memory", "pipe":
	default:
		return fmt.Errorf("transport: unknown kind %q", c.Transport)
	}

	if c.Mailbox.Capacity < 0 {
		return fmt.Errorf("mailbox.capacity: must be positive")
	}

	seen := make(map[int64]string, len(c.Sensors))
	for i, s := range c.Sensors {
		if s.Name == "" {
			return fmt.Errorf("sensors[%d]: name required", i)
		}
		if prev, ok := seen[s.ID]; ok {
			return fmt.Errorf("sensors[%d]: id %d already used by %q", i, s.ID, prev)
		}
		seen[s.ID] = s.Name
		if s.Probe == "snmp" && (s.SNMP == nil || s.SNMP.Target == "" || s.SNMP.OID == "") {
			return fmt.Errorf("sensors[%d]: snmp probe requires target and oid", i)
		}
	}
	return nil
}
