// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package storage // import "github.com/spyglasshq/spyglass/storage"

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
)

// scopeName identifies the engine's own instrumentation scope.
const scopeName = "github.com/spyglasshq/spyglass/storage"

// ingestMetrics reports accepted/refused counts per signal through the
// host-provided MeterProvider.
type ingestMetrics struct {
	acceptedLogRecords   metric.Int64Counter
	refusedLogRecords    metric.Int64Counter
	acceptedSpans        metric.Int64Counter
	refusedSpans         metric.Int64Counter
	acceptedMetricPoints metric.Int64Counter
	refusedMetricPoints  metric.Int64Counter
}

func newIngestMetrics(mp metric.MeterProvider) (*ingestMetrics, error) {
	meter := mp.Meter(scopeName)

	var errs error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("1"))
		errs = multierr.Append(errs, err)
		return c
	}

	im := &ingestMetrics{
		acceptedLogRecords:   counter("spyglass_storage_accepted_log_records", "Log records successfully stored."),
		refusedLogRecords:    counter("spyglass_storage_refused_log_records", "Malformed log records skipped."),
		acceptedSpans:        counter("spyglass_storage_accepted_spans", "Spans successfully stored."),
		refusedSpans:         counter("spyglass_storage_refused_spans", "Malformed spans skipped."),
		acceptedMetricPoints: counter("spyglass_storage_accepted_metric_points", "Metric data points successfully stored."),
		refusedMetricPoints:  counter("spyglass_storage_refused_metric_points", "Malformed or unsupported metric data points skipped."),
	}
	if errs != nil {
		return nil, errs
	}
	return im, nil
}

func (im *ingestMetrics) recordLogs(ctx context.Context, accepted, refused int) {
	im.acceptedLogRecords.Add(ctx, int64(accepted))
	im.refusedLogRecords.Add(ctx, int64(refused))
}

func (im *ingestMetrics) recordSpans(ctx context.Context, accepted, refused int) {
	im.acceptedSpans.Add(ctx, int64(accepted))
	im.refusedSpans.Add(ctx, int64(refused))
}

func (im *ingestMetrics) recordMetricPoints(ctx context.Context, accepted, refused int) {
	im.acceptedMetricPoints.Add(ctx, int64(accepted))
	im.refusedMetricPoints.Add(ctx, int64(refused))
}
