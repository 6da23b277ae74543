// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage implements the telemetry storage and query engine:
// bounded in-memory stores for OTLP logs, traces and metrics, a
// lazily-populated application registry, a subscription hub for
// live-update notifications, and the Repository facade tying them
// together.
package storage // import "github.com/spyglasshq/spyglass/storage"

import (
	"fmt"

	"go.uber.org/multierr"
)

// Config holds the retention limits the engine enforces. The engine
// consumes the settings; loading them from file or flags belongs to
// the embedding host.
type Config struct {
	// MaxLogCount bounds the retained log entries per application.
	// Each application gets its own budget.
	MaxLogCount int `mapstructure:"max_log_count"`

	// MaxTraceCount bounds the retained traces across all
	// applications; traces are inherently cross-application.
	MaxTraceCount int `mapstructure:"max_trace_count"`

	// MaxMetricPointCount bounds the retained points per metric
	// dimension; the oldest points are dropped first.
	MaxMetricPointCount int `mapstructure:"max_metric_point_count"`
}

// DefaultConfig returns the retention limits the dashboard ships with.
func DefaultConfig() Config {
	return Config{
		MaxLogCount:         10_000,
		MaxTraceCount:       10_000,
		MaxMetricPointCount: 50_000,
	}
}

// Validate checks the config and returns all violations.
func (cfg Config) Validate() error {
	var err error
	if cfg.MaxLogCount < 1 {
		err = multierr.Append(err, fmt.Errorf("max_log_count must be positive, got %d", cfg.MaxLogCount))
	}
	if cfg.MaxTraceCount < 1 {
		err = multierr.Append(err, fmt.Errorf("max_trace_count must be positive, got %d", cfg.MaxTraceCount))
	}
	if cfg.MaxMetricPointCount < 1 {
		err = multierr.Append(err, fmt.Errorf("max_metric_point_count must be positive, got %d", cfg.MaxMetricPointCount))
	}
	return err
}
