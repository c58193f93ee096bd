// Package loader handles configuration file loading and validation.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Merging file values over defaults
//   - Constructing probes from sensor configuration
package loader

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tkarlsson/sensord/internal/probe"
)

// Load loads configuration from a YAML file. Values not present in the file
// keep their defaults. Environment variables in the file are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// BuildProbe constructs the probe function for a sensor entry.
func BuildProbe(s *SensorConfig) (probe.Func, error) {
	if s.Probe == "snmp" {
		cfg := probe.SNMPConfig{
			Target:    s.SNMP.Target,
			Port:      s.SNMP.Port,
			Community: s.SNMP.Community,
			OID:       s.SNMP.OID,
		}
		if s.SNMP.TimeoutMs > 0 {
			cfg.Timeout = time.Duration(s.SNMP.TimeoutMs) * time.Millisecond
		}
		return probe.NewSNMPGauge(cfg)
	}
	return probe.New(s.Probe)
}
