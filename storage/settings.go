// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package storage // import "github.com/spyglasshq/spyglass/storage"

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// Settings carries the APIs the engine uses to report its own
// telemetry. Zero values are usable: logging and metrics default to
// no-ops.
type Settings struct {
	Logger        *zap.Logger
	MeterProvider metric.MeterProvider
}

func (set Settings) withDefaults() Settings {
	if set.Logger == nil {
		set.Logger = zap.NewNop()
	}
	if set.MeterProvider == nil {
		set.MeterProvider = noop.NewMeterProvider()
	}
	return set
}
