// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package storage // import "github.com/spyglasshq/spyglass/storage"

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spyglasshq/spyglass/internal/ringbuffer"
	"github.com/spyglasshq/spyglass/telemetry"
)

// GetInstrumentRequest selects one instrument's dimensions restricted
// to a time range. Zero times leave that side of the range open.
type GetInstrumentRequest struct {
	Application    telemetry.ApplicationKey
	InstrumentName string
	StartTime      time.Time
	EndTime        time.Time
}

// InstrumentResult is an instrument's metadata plus its matched
// dimension scopes, each restricted to points overlapping the
// requested range.
type InstrumentResult struct {
	Instrument telemetry.Instrument
	Scopes     []*telemetry.DimensionScope
}

// metricStore accumulates dimensioned metric points per application
// and instrument. Raw reported points are retained, including
// cumulative counter values; delta and rate math is the reader's
// concern. Each dimension holds at most maxPointCount points, oldest
// dropped first.
type metricStore struct {
	logger        *zap.Logger
	maxPointCount int

	mu   sync.Mutex
	apps map[telemetry.ApplicationKey]map[string]*instrumentState
}

type instrumentState struct {
	definition telemetry.Instrument
	// scopes is keyed by the dimension's canonical attribute key.
	scopes map[string]*dimensionState
}

type dimensionState struct {
	attrs  []telemetry.Attribute
	points *ringbuffer.RingBuffer[telemetry.MetricPoint]
}

func newMetricStore(logger *zap.Logger, maxPointCount int) *metricStore {
	return &metricStore{
		logger:        logger,
		maxPointCount: maxPointCount,
		apps:          make(map[telemetry.ApplicationKey]map[string]*instrumentState),
	}
}

// add appends one metric's parsed points for an application. The
// instrument definition is refreshed on every batch so renamed units
// or descriptions converge on the latest report.
func (s *metricStore) add(app telemetry.ApplicationKey, inst telemetry.Instrument, points []parsedPoint) {
	if len(points) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	instruments, ok := s.apps[app]
	if !ok {
		instruments = make(map[string]*instrumentState)
		s.apps[app] = instruments
	}
	state, ok := instruments[inst.Name]
	if !ok {
		state = &instrumentState{scopes: make(map[string]*dimensionState)}
		instruments[inst.Name] = state
	}
	state.definition = inst

	for _, pp := range points {
		key := telemetry.DimensionKey(pp.attrs)
		dim, ok := state.scopes[key]
		if !ok {
			// Capacity validated at construction, the error is impossible.
			buf, _ := ringbuffer.New[telemetry.MetricPoint](s.maxPointCount)
			dim = &dimensionState{attrs: pp.attrs, points: buf}
			state.scopes[key] = dim
		}
		dim.insertOrdered(pp.point)
	}
	s.logger.Debug("metric points stored",
		zap.String("service_name", app.Name),
		zap.String("instrument", inst.Name),
		zap.Int("count", len(points)))
}

// insertOrdered appends the point, falling back to a positional insert
// when the point's end time regresses so the sequence stays in
// non-decreasing end-time order.
func (d *dimensionState) insertOrdered(p telemetry.MetricPoint) {
	n := d.points.Len()
	if n == 0 {
		d.points.Add(p)
		return
	}
	last, _ := d.points.At(n - 1)
	if !p.End.Before(last.End) {
		d.points.Add(p)
		return
	}
	idx := n
	for idx > 0 {
		prev, _ := d.points.At(idx - 1)
		if !prev.End.After(p.End) {
			break
		}
		idx--
	}
	// A full buffer treats this as insert-then-evict-oldest; a point
	// older than the whole window is dropped by the buffer itself.
	_ = d.points.Insert(idx, p)
}

// getInstrument returns the instrument's metadata and dimensions with
// points overlapping [StartTime, EndTime]. Unknown applications or
// instruments yield (nil, false).
func (s *metricStore) getInstrument(ctx context.Context, req GetInstrumentRequest) (*InstrumentResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	instruments, ok := s.apps[req.Application]
	if !ok {
		return nil, false, nil
	}
	state, ok := instruments[req.InstrumentName]
	if !ok {
		return nil, false, nil
	}

	result := &InstrumentResult{Instrument: state.definition}
	visited := 0
	for _, dim := range state.scopes {
		scope := &telemetry.DimensionScope{Attributes: slices.Clone(dim.attrs)}
		for p := range dim.points.All() {
			if visited++; visited%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, false, err
				}
			}
			if !p.Overlaps(req.StartTime, req.EndTime) {
				continue
			}
			scope.Points = append(scope.Points, p.Clone())
		}
		result.Scopes = append(result.Scopes, scope)
	}
	// Map iteration order is random; sort for deterministic rendering.
	slices.SortFunc(result.Scopes, func(a, b *telemetry.DimensionScope) int {
		return strings.Compare(telemetry.DimensionKey(a.Attributes), telemetry.DimensionKey(b.Attributes))
	})
	return result, true, nil
}

// getInstrumentsSummary lists the application's known instruments,
// sorted by name.
func (s *metricStore) getInstrumentsSummary(app telemetry.ApplicationKey) []telemetry.Instrument {
	s.mu.Lock()
	defer s.mu.Unlock()

	instruments, ok := s.apps[app]
	if !ok {
		return []telemetry.Instrument{}
	}
	out := make([]telemetry.Instrument, 0, len(instruments))
	for _, state := range instruments {
		out = append(out, state.definition)
	}
	slices.SortFunc(out, func(a, b telemetry.Instrument) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}
