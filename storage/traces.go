// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package storage // import "github.com/spyglasshq/spyglass/storage"

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spyglasshq/spyglass/internal/ringbuffer"
	"github.com/spyglasshq/spyglass/telemetry"
)

// GetTracesRequest selects a page of traces, optionally restricted to
// traces touching one application.
type GetTracesRequest struct {
	// Application filters to traces containing at least one span owned
	// by the application; nil returns traces from all applications.
	Application *telemetry.ApplicationKey
	StartIndex  int
	Count       int
}

// TracesResult is one page of traces. Every trace is a defensive copy.
type TracesResult struct {
	Items          []*telemetry.Trace
	TotalItemCount int
}

// traceStore keeps a bounded buffer of reconstructed traces, ordered
// by each trace's earliest span start time. Traces are shared across
// applications, so a single buffer and lock cover them all. Spans may
// arrive out of order: a span for a known trace id joins the existing
// trace and may reposition it; an unknown trace id starts a new trace
// inserted at its chronological position. When the buffer is full the
// chronologically oldest trace is evicted; an incoming trace that
// would sort before every stored trace is dropped outright, since it
// would be the immediate eviction victim.
type traceStore struct {
	logger *zap.Logger

	mu     sync.Mutex
	traces *ringbuffer.RingBuffer[*telemetry.Trace]
	// byID tracks the buffered traces for O(1) trace-id lookup; kept
	// in lockstep with every insert and eviction.
	byID map[string]*telemetry.Trace
}

func newTraceStore(logger *zap.Logger, maxTraceCount int) *traceStore {
	// Capacity validated at construction, the error is impossible.
	buf, _ := ringbuffer.New[*telemetry.Trace](maxTraceCount)
	return &traceStore{
		logger: logger,
		traces: buf,
		byID:   make(map[string]*telemetry.Trace),
	}
}

// addSpan routes one parsed span into its trace.
func (s *traceStore) addSpan(span *telemetry.Span) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tr, ok := s.byID[span.TraceID]; ok {
		oldEarliest := tr.FirstSpan().StartTime
		tr.AddSpan(span)
		if !tr.FirstSpan().StartTime.Equal(oldEarliest) {
			s.reposition(tr)
		}
		return
	}

	tr := telemetry.NewTrace(span.TraceID)
	tr.AddSpan(span)
	idx := s.insertionIndex(tr)
	if s.traces.Len() == s.traces.Cap() {
		if idx == 0 {
			// Older than everything retained; it would be evicted
			// immediately.
			s.logger.Debug("trace dropped, older than retention window",
				zap.String("trace_id", tr.TraceID))
			return
		}
		s.evictOldest()
		idx--
	}
	if err := s.traces.Insert(idx, tr); err != nil {
		// Unreachable: idx comes from insertionIndex.
		s.logger.Error("trace insert failed", zap.Error(err))
		return
	}
	s.byID[tr.TraceID] = tr
}

// insertionIndex finds the ordered position for a trace: after every
// stored trace whose earliest start is not later, so equal starts keep
// arrival order.
func (s *traceStore) insertionIndex(tr *telemetry.Trace) int {
	start := tr.FirstSpan().StartTime
	// Traces usually arrive near-chronologically, scan from the end.
	idx := s.traces.Len()
	for idx > 0 {
		prev, _ := s.traces.At(idx - 1)
		if !prev.FirstSpan().StartTime.After(start) {
			break
		}
		idx--
	}
	return idx
}

// reposition moves a trace whose earliest start changed back to its
// ordered position.
func (s *traceStore) reposition(tr *telemetry.Trace) {
	for i := 0; i < s.traces.Len(); i++ {
		cur, _ := s.traces.At(i)
		if cur != tr {
			continue
		}
		_ = s.traces.RemoveAt(i)
		_ = s.traces.Insert(s.insertionIndex(tr), tr)
		return
	}
}

func (s *traceStore) evictOldest() {
	victim, err := s.traces.At(0)
	if err != nil {
		return
	}
	_ = s.traces.RemoveAt(0)
	delete(s.byID, victim.TraceID)
	s.logger.Debug("trace evicted", zap.String("trace_id", victim.TraceID))
}

// getTraces returns one page of traces in chronological order, oldest
// first, as defensive copies.
func (s *traceStore) getTraces(ctx context.Context, req GetTracesRequest) (*TracesResult, error) {
	if err := validatePage(req.StartIndex, req.Count); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*telemetry.Trace
	visited := 0
	for tr := range s.traces.All() {
		if visited++; visited%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if req.Application != nil && !traceTouchesApplication(tr, *req.Application) {
			continue
		}
		matched = append(matched, tr)
	}

	result := &TracesResult{TotalItemCount: len(matched)}
	start := min(req.StartIndex, len(matched))
	end := min(start+req.Count, len(matched))
	result.Items = make([]*telemetry.Trace, 0, end-start)
	for _, tr := range matched[start:end] {
		result.Items = append(result.Items, tr.Clone())
	}
	return result, nil
}

func traceTouchesApplication(tr *telemetry.Trace, app telemetry.ApplicationKey) bool {
	for _, span := range tr.Spans {
		if span.Source == app {
			return true
		}
	}
	return false
}

// getTrace returns a copy of the trace with the given id.
func (s *traceStore) getTrace(traceID string) (*telemetry.Trace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, ok := s.byID[traceID]
	if !ok {
		return nil, false
	}
	return tr.Clone(), true
}
