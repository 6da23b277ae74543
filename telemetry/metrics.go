// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry // import "github.com/spyglasshq/spyglass/telemetry"

import (
	"slices"
	"time"

	"go.opentelemetry.io/collector/pdata/pmetric"
)

// Instrument describes one metric instrument reported by an
// application. Identity within an application is the instrument name.
type Instrument struct {
	Name        string
	Description string
	Unit        string
	Type        pmetric.MetricType
	Temporality pmetric.AggregationTemporality
	Monotonic   bool
}

// MetricPoint is one accumulated data point within a dimension. For
// sums and histograms with cumulative temporality the raw reported
// value is retained; delta or rate computation is a read-time concern
// of the caller.
type MetricPoint struct {
	Start time.Time
	End   time.Time
	Count uint64

	// Exactly one of DoubleValue/IntValue is meaningful for number
	// points, selected by IsFloat. Histogram points leave both zero.
	DoubleValue float64
	IntValue    int64
	IsFloat     bool

	// Histogram is set for histogram points only.
	Histogram *HistogramData
}

// HistogramData carries a histogram point's buckets verbatim.
type HistogramData struct {
	Bounds       []float64
	BucketCounts []uint64
	Sum          float64
	HasSum       bool
	Min          float64
	HasMin       bool
	Max          float64
	HasMax       bool
}

// Value returns the number point's value as a float64.
func (p MetricPoint) Value() float64 {
	if p.IsFloat {
		return p.DoubleValue
	}
	return float64(p.IntValue)
}

// Clone returns a copy sharing no mutable state with p.
func (p MetricPoint) Clone() MetricPoint {
	c := p
	if p.Histogram != nil {
		h := *p.Histogram
		h.Bounds = slices.Clone(p.Histogram.Bounds)
		h.BucketCounts = slices.Clone(p.Histogram.BucketCounts)
		c.Histogram = &h
	}
	return c
}

// Overlaps reports whether the point intersects [start, end]. Points
// without a start time are treated as instants at their end time.
func (p MetricPoint) Overlaps(start, end time.Time) bool {
	pointStart := p.Start
	if pointStart.IsZero() {
		pointStart = p.End
	}
	if !end.IsZero() && pointStart.After(end) {
		return false
	}
	if !start.IsZero() && p.End.Before(start) {
		return false
	}
	return true
}

// DimensionScope is one time series within an instrument: the ordered
// point sequence for a unique attribute set. Points are held in
// non-decreasing end-time order.
type DimensionScope struct {
	// Attributes is the sorted attribute set identifying the dimension.
	Attributes []Attribute
	Points     []MetricPoint
}

// Clone returns a deep copy of the scope.
func (d *DimensionScope) Clone() *DimensionScope {
	c := &DimensionScope{Attributes: slices.Clone(d.Attributes)}
	if d.Points != nil {
		c.Points = make([]MetricPoint, len(d.Points))
		for i, p := range d.Points {
			c.Points[i] = p.Clone()
		}
	}
	return c
}
