// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package storage // import "github.com/spyglasshq/spyglass/storage"

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.uber.org/zap"

	"github.com/spyglasshq/spyglass/telemetry"
)

// ErrInvalidQuery is returned when query parameters fail validation
// before storage is touched.
var ErrInvalidQuery = errors.New("invalid query parameters")

func validatePage(startIndex, count int) error {
	if startIndex < 0 {
		return fmt.Errorf("%w: start index %d is negative", ErrInvalidQuery, startIndex)
	}
	if count < 1 {
		return fmt.Errorf("%w: count %d is not positive", ErrInvalidQuery, count)
	}
	return nil
}

// AddContext accumulates per-record failures across one or more Add
// calls. The calls themselves never fail because of malformed records;
// callers inspect FailureCount afterwards to decide on logging or
// alerting. Not safe for concurrent use by multiple Add calls.
type AddContext struct {
	FailureCount int
}

// Repository is the engine's public entry point. Ingestion takes
// decoded OTLP batches and fans them out to the bounded stores;
// queries hand back copied view models; subscriptions deliver
// asynchronous change notifications.
//
// Ingestion and queries may run concurrently from any number of
// goroutines. Record parsing happens before store locks are taken, and
// notification dispatch happens outside them.
type Repository struct {
	logger *zap.Logger
	cfg    Config

	registry *applicationRegistry
	logs     *logStore
	traces   *traceStore
	metrics  *metricStore
	hub      *notificationHub
	obs      *ingestMetrics
}

// NewRepository builds a repository with the given retention limits.
func NewRepository(set Settings, cfg Config) (*Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}
	set = set.withDefaults()

	obs, err := newIngestMetrics(set.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage instruments: %w", err)
	}

	return &Repository{
		logger:   set.Logger,
		cfg:      cfg,
		registry: newApplicationRegistry(set.Logger),
		logs:     newLogStore(set.Logger, cfg.MaxLogCount),
		traces:   newTraceStore(set.Logger, cfg.MaxTraceCount),
		metrics:  newMetricStore(set.Logger, cfg.MaxMetricPointCount),
		hub:      newNotificationHub(set.Logger),
		obs:      obs,
	}, nil
}

// Close stops notification dispatch and waits for in-flight callbacks.
// Stored telemetry remains queryable.
func (r *Repository) Close() {
	r.hub.close()
}

// AddLogs ingests a decoded OTLP logs batch. Malformed records are
// skipped and counted in ac; one bad record never drops the remainder
// of the batch.
func (r *Repository) AddLogs(ctx context.Context, ld plog.Logs, ac *AddContext) {
	if ac == nil {
		ac = &AddContext{}
	}
	accepted, refused := 0, 0
	byApp := make(map[telemetry.ApplicationKey][]*telemetry.LogEntry)

	for i := 0; i < ld.ResourceLogs().Len(); i++ {
		rl := ld.ResourceLogs().At(i)
		key, err := resourceKey(rl.Resource())
		if err != nil {
			n := 0
			for j := 0; j < rl.ScopeLogs().Len(); j++ {
				n += rl.ScopeLogs().At(j).LogRecords().Len()
			}
			refused += n
			r.logger.Warn("dropping log records for unidentifiable resource",
				zap.Int("count", n), zap.Error(err))
			continue
		}
		if _, created := r.registry.getOrAdd(key, false); created {
			r.hub.notifyNewApplication()
		}

		for j := 0; j < rl.ScopeLogs().Len(); j++ {
			sl := rl.ScopeLogs().At(j)
			for k := 0; k < sl.LogRecords().Len(); k++ {
				entry, err := newLogEntry(key, sl.Scope(), sl.LogRecords().At(k))
				if err != nil {
					refused++
					r.logger.Debug("skipping malformed log record", zap.Error(err))
					continue
				}
				byApp[key] = append(byApp[key], entry)
				accepted++
			}
		}
	}

	for key, entries := range byApp {
		r.logs.add(key, entries)
		r.hub.notifyNewData(key)
	}

	ac.FailureCount += refused
	r.obs.recordLogs(ctx, accepted, refused)
	if refused > 0 {
		r.logger.Warn("log batch partially failed",
			zap.Int("accepted", accepted), zap.Int("refused", refused))
	}
}

// AddTraces ingests a decoded OTLP traces batch, linking spans into
// existing traces regardless of arrival order.
func (r *Repository) AddTraces(ctx context.Context, td ptrace.Traces, ac *AddContext) {
	if ac == nil {
		ac = &AddContext{}
	}
	accepted, refused := 0, 0
	affected := make(map[telemetry.ApplicationKey]struct{})

	for i := 0; i < td.ResourceSpans().Len(); i++ {
		rs := td.ResourceSpans().At(i)
		key, err := resourceKey(rs.Resource())
		if err != nil {
			n := 0
			for j := 0; j < rs.ScopeSpans().Len(); j++ {
				n += rs.ScopeSpans().At(j).Spans().Len()
			}
			refused += n
			r.logger.Warn("dropping spans for unidentifiable resource",
				zap.Int("count", n), zap.Error(err))
			continue
		}
		if _, created := r.registry.getOrAdd(key, false); created {
			r.hub.notifyNewApplication()
		}

		for j := 0; j < rs.ScopeSpans().Len(); j++ {
			ss := rs.ScopeSpans().At(j)
			for k := 0; k < ss.Spans().Len(); k++ {
				span, err := newSpan(key, ss.Scope(), ss.Spans().At(k))
				if err != nil {
					refused++
					r.logger.Debug("skipping malformed span", zap.Error(err))
					continue
				}
				if peerKey, ok := peerApplicationKey(span); ok {
					if _, created := r.registry.getOrAdd(peerKey, true); created {
						r.hub.notifyNewApplication()
					}
				}
				r.traces.addSpan(span)
				affected[key] = struct{}{}
				accepted++
			}
		}
	}

	for key := range affected {
		r.hub.notifyNewData(key)
	}

	ac.FailureCount += refused
	r.obs.recordSpans(ctx, accepted, refused)
	if refused > 0 {
		r.logger.Warn("trace batch partially failed",
			zap.Int("accepted", accepted), zap.Int("refused", refused))
	}
}

// AddMetrics ingests a decoded OTLP metrics batch, accumulating data
// points into per-instrument dimension scopes.
func (r *Repository) AddMetrics(ctx context.Context, md pmetric.Metrics, ac *AddContext) {
	if ac == nil {
		ac = &AddContext{}
	}
	accepted, refused := 0, 0
	affected := make(map[telemetry.ApplicationKey]struct{})

	for i := 0; i < md.ResourceMetrics().Len(); i++ {
		rm := md.ResourceMetrics().At(i)
		key, err := resourceKey(rm.Resource())
		if err != nil {
			n := 0
			for j := 0; j < rm.ScopeMetrics().Len(); j++ {
				sm := rm.ScopeMetrics().At(j)
				for k := 0; k < sm.Metrics().Len(); k++ {
					n += metricPointCount(sm.Metrics().At(k))
				}
			}
			refused += n
			r.logger.Warn("dropping metric points for unidentifiable resource",
				zap.Int("count", n), zap.Error(err))
			continue
		}
		if _, created := r.registry.getOrAdd(key, false); created {
			r.hub.notifyNewApplication()
		}

		for j := 0; j < rm.ScopeMetrics().Len(); j++ {
			sm := rm.ScopeMetrics().At(j)
			for k := 0; k < sm.Metrics().Len(); k++ {
				inst, points, failed := convertMetric(sm.Metrics().At(k))
				refused += failed
				if failed > 0 {
					r.logger.Debug("skipping metric data points",
						zap.String("instrument", inst.Name),
						zap.String("type", inst.Type.String()),
						zap.Int("count", failed))
				}
				if len(points) == 0 {
					continue
				}
				r.metrics.add(key, inst, points)
				affected[key] = struct{}{}
				accepted += len(points)
			}
		}
	}

	for key := range affected {
		r.hub.notifyNewData(key)
	}

	ac.FailureCount += refused
	r.obs.recordMetricPoints(ctx, accepted, refused)
	if refused > 0 {
		r.logger.Warn("metric batch partially failed",
			zap.Int("accepted", accepted), zap.Int("refused", refused))
	}
}

// GetApplications returns all known applications ordered by name then
// instance id.
func (r *Repository) GetApplications() []ApplicationView {
	return r.registry.snapshot()
}

// GetLogs returns one page of an application's filtered log entries.
func (r *Repository) GetLogs(ctx context.Context, req GetLogsRequest) (*LogsResult, error) {
	return r.logs.getLogs(ctx, req)
}

// GetLogPropertyKeys returns the distinct attribute keys seen in the
// application's logs, for filter-builder UIs.
func (r *Repository) GetLogPropertyKeys(app telemetry.ApplicationKey) []string {
	return r.logs.getPropertyKeys(app)
}

// GetTraces returns one page of traces in chronological order.
func (r *Repository) GetTraces(ctx context.Context, req GetTracesRequest) (*TracesResult, error) {
	return r.traces.getTraces(ctx, req)
}

// GetTrace returns a copy of the trace with the given id, or false
// when it is not retained.
func (r *Repository) GetTrace(traceID string) (*telemetry.Trace, bool) {
	return r.traces.getTrace(traceID)
}

// GetInstrument returns an instrument's dimensions restricted to the
// requested time range, or false when the instrument is unknown.
func (r *Repository) GetInstrument(ctx context.Context, req GetInstrumentRequest) (*InstrumentResult, bool, error) {
	return r.metrics.getInstrument(ctx, req)
}

// GetInstrumentsSummary lists an application's known instruments.
func (r *Repository) GetInstrumentsSummary(app telemetry.ApplicationKey) []telemetry.Instrument {
	return r.metrics.getInstrumentsSummary(app)
}

// OnNewApplications registers cb to run after a previously unknown
// application appears. Close the returned subscription to stop.
func (r *Repository) OnNewApplications(cb func()) *Subscription {
	return r.hub.subscribe(nil, cb)
}

// OnNewData registers cb to run after new telemetry arrives for the
// application. Close the returned subscription to stop.
func (r *Repository) OnNewData(app telemetry.ApplicationKey, cb func()) *Subscription {
	return r.hub.subscribe(&app, cb)
}
