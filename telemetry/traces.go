// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry // import "github.com/spyglasshq/spyglass/telemetry"

import (
	"slices"
	"time"

	"go.opentelemetry.io/collector/pdata/ptrace"
)

// SpanEvent is a timed annotation attached to a span.
type SpanEvent struct {
	Name       string
	Timestamp  time.Time
	Attributes []Attribute
}

// Span is a single timed operation within a trace. Spans carry no
// reference to their owning Trace; the association is by trace id
// only, so copying a Trace never drags shared state along.
type Span struct {
	TraceID      string
	SpanID       string
	ParentSpanID string

	Name          string
	Kind          ptrace.SpanKind
	StatusCode    ptrace.StatusCode
	StatusMessage string

	StartTime time.Time
	EndTime   time.Time

	Scope      string
	Source     ApplicationKey
	Attributes []Attribute
	Events     []SpanEvent
}

// Duration returns the span's elapsed time, zero when the span has not
// ended.
func (s *Span) Duration() time.Duration {
	if s.EndTime.IsZero() || s.EndTime.Before(s.StartTime) {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Clone returns a deep copy of the span.
func (s *Span) Clone() *Span {
	c := *s
	c.Attributes = slices.Clone(s.Attributes)
	if s.Events != nil {
		c.Events = make([]SpanEvent, len(s.Events))
		for i, ev := range s.Events {
			c.Events[i] = ev
			c.Events[i].Attributes = slices.Clone(ev.Attributes)
		}
	}
	return &c
}

// Trace aggregates the spans sharing a trace id. Spans may arrive out
// of order and from different applications; the span list is kept
// sorted by start time and the root pointer is recomputed after every
// mutation rather than trusted as a cached field.
type Trace struct {
	TraceID string

	// Spans is sorted by start time, then arrival order.
	Spans []*Span

	// Root is the root span, nil while no span qualifies. Derived
	// state: maintained by AddSpan, never set directly.
	Root *Span
}

// NewTrace returns an empty trace for the given id.
func NewTrace(traceID string) *Trace {
	return &Trace{TraceID: traceID}
}

// AddSpan inserts span in start-time order and recomputes the root
// pointer. Spans with equal start times keep arrival order.
func (t *Trace) AddSpan(span *Span) {
	i, _ := slices.BinarySearchFunc(t.Spans, span, func(a, b *Span) int {
		return a.StartTime.Compare(b.StartTime)
	})
	// BinarySearchFunc returns the first equal position; advance past
	// equal starts to preserve arrival order.
	for i < len(t.Spans) && t.Spans[i].StartTime.Equal(span.StartTime) {
		i++
	}
	t.Spans = slices.Insert(t.Spans, i, span)
	t.Root = RootSpan(t.Spans)
}

// FirstSpan returns the span with the earliest start time, nil for an
// empty trace.
func (t *Trace) FirstSpan() *Span {
	if len(t.Spans) == 0 {
		return nil
	}
	return t.Spans[0]
}

// Duration returns the elapsed time from the earliest span start to
// the latest span end.
func (t *Trace) Duration() time.Duration {
	first := t.FirstSpan()
	if first == nil {
		return 0
	}
	var end time.Time
	for _, s := range t.Spans {
		if s.EndTime.After(end) {
			end = s.EndTime
		}
	}
	if end.Before(first.StartTime) {
		return 0
	}
	return end.Sub(first.StartTime)
}

// Clone returns a deep copy: mutating the result never affects t.
func (t *Trace) Clone() *Trace {
	c := &Trace{TraceID: t.TraceID}
	if t.Spans != nil {
		c.Spans = make([]*Span, len(t.Spans))
		for i, s := range t.Spans {
			c.Spans[i] = s.Clone()
			if s == t.Root {
				c.Root = c.Spans[i]
			}
		}
	}
	return c
}

// RootSpan derives the root from a start-time-ordered span list: the
// earliest span with no parent id, else the earliest span whose parent
// is absent from the trace (its parent has not arrived yet). Returns
// nil when no span qualifies.
func RootSpan(spans []*Span) *Span {
	present := make(map[string]struct{}, len(spans))
	for _, s := range spans {
		present[s.SpanID] = struct{}{}
	}
	var orphan *Span
	for _, s := range spans {
		if s.ParentSpanID == "" {
			return s
		}
		if orphan == nil {
			if _, ok := present[s.ParentSpanID]; !ok {
				orphan = s
			}
		}
	}
	return orphan
}
