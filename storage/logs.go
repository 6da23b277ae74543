// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package storage // import "github.com/spyglasshq/spyglass/storage"

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/spyglasshq/spyglass/internal/ringbuffer"
	"github.com/spyglasshq/spyglass/telemetry"
)

// ctxCheckInterval is how many records a filtered scan visits between
// cancellation checks.
const ctxCheckInterval = 256

// GetLogsRequest selects a page of an application's logs.
type GetLogsRequest struct {
	Application telemetry.ApplicationKey
	StartIndex  int
	Count       int
	Filters     []LogFilter
}

// LogsResult is one page of filtered log entries plus the total number
// of entries matching the filters.
type LogsResult struct {
	Items          []*telemetry.LogEntry
	TotalItemCount int
}

// logStore retains a bounded window of log entries per application.
// One mutex guards all per-application buffers; reads copy under the
// lock and release it before returning.
type logStore struct {
	logger      *zap.Logger
	maxLogCount int

	mu   sync.Mutex
	apps map[telemetry.ApplicationKey]*applicationLogs
}

type applicationLogs struct {
	entries *ringbuffer.RingBuffer[*telemetry.LogEntry]
	// propertyKeys accumulates every attribute key seen for the
	// application, surviving entry eviction.
	propertyKeys map[string]struct{}
}

func newLogStore(logger *zap.Logger, maxLogCount int) *logStore {
	return &logStore{
		logger:      logger,
		maxLogCount: maxLogCount,
		apps:        make(map[telemetry.ApplicationKey]*applicationLogs),
	}
}

// add appends parsed entries belonging to one application.
func (s *logStore) add(app telemetry.ApplicationKey, entries []*telemetry.LogEntry) {
	if len(entries) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	al, ok := s.apps[app]
	if !ok {
		// Capacity validated at construction, the error is impossible.
		buf, _ := ringbuffer.New[*telemetry.LogEntry](s.maxLogCount)
		al = &applicationLogs{entries: buf, propertyKeys: make(map[string]struct{})}
		s.apps[app] = al
	}
	for _, e := range entries {
		al.entries.Add(e)
		for _, kv := range e.Attributes {
			al.propertyKeys[kv.Key] = struct{}{}
		}
	}
	s.logger.Debug("log entries stored",
		zap.String("service_name", app.Name),
		zap.String("instance_id", app.InstanceID),
		zap.Int("count", len(entries)))
}

// getLogs returns one page of the application's entries matching the
// filters. Unknown applications yield an empty result. The page is
// computed against a snapshot taken under the lock, so concurrent
// appends cannot skew pagination mid-read.
func (s *logStore) getLogs(ctx context.Context, req GetLogsRequest) (*LogsResult, error) {
	if err := validatePage(req.StartIndex, req.Count); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	al, ok := s.apps[req.Application]
	if !ok {
		return &LogsResult{Items: []*telemetry.LogEntry{}}, nil
	}

	var matched []*telemetry.LogEntry
	visited := 0
	for e := range al.entries.All() {
		if visited++; visited%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !matchesAll(e, req.Filters) {
			continue
		}
		matched = append(matched, e)
	}

	result := &LogsResult{TotalItemCount: len(matched)}
	start := min(req.StartIndex, len(matched))
	end := min(start+req.Count, len(matched))
	result.Items = make([]*telemetry.LogEntry, 0, end-start)
	for _, e := range matched[start:end] {
		result.Items = append(result.Items, e.Clone())
	}
	return result, nil
}

func matchesAll(e *telemetry.LogEntry, filters []LogFilter) bool {
	for _, f := range filters {
		if !f.matches(e) {
			return false
		}
	}
	return true
}

// getPropertyKeys returns the sorted distinct attribute keys seen so
// far for the application; empty for unknown applications.
func (s *logStore) getPropertyKeys(app telemetry.ApplicationKey) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	al, ok := s.apps[app]
	if !ok {
		return []string{}
	}
	keys := make([]string, 0, len(al.propertyKeys))
	for k := range al.propertyKeys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
