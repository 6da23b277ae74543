// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package storage // import "github.com/spyglasshq/spyglass/storage"

import (
	"errors"
	"strings"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.opentelemetry.io/collector/pdata/ptrace"
	conventions "go.opentelemetry.io/collector/semconv/v1.27.0"

	"github.com/spyglasshq/spyglass/telemetry"
)

// originalFormatKey is the conventional attribute carrying the
// structured-logging message template.
const originalFormatKey = "{OriginalFormat}"

// unknownServiceName names resources that carry attributes but no
// service.name.
const unknownServiceName = "unknown_service"

var (
	errMissingServiceName = errors.New("resource has no identifying attributes")
	errMissingTimestamp   = errors.New("log record has no timestamp")
	errMissingTraceID     = errors.New("span has no trace id")
	errMissingSpanID      = errors.New("span has no span id")
	errNegativeDuration   = errors.New("span ends before it starts")
)

// resourceKey resolves the owning application identity from an OTLP
// resource. A missing instance id falls back to the service name; a
// missing service name falls back to unknown_service provided the
// resource carries at least one other attribute.
func resourceKey(res pcommon.Resource) (telemetry.ApplicationKey, error) {
	attrs := res.Attributes()
	name := ""
	if v, ok := attrs.Get(conventions.AttributeServiceName); ok {
		name = v.AsString()
	}
	if name == "" {
		if attrs.Len() == 0 {
			return telemetry.ApplicationKey{}, errMissingServiceName
		}
		name = unknownServiceName
	}
	instanceID := name
	if v, ok := attrs.Get(conventions.AttributeServiceInstanceID); ok && v.AsString() != "" {
		instanceID = v.AsString()
	}
	return telemetry.ApplicationKey{Name: name, InstanceID: instanceID}, nil
}

// newLogEntry parses one OTLP log record into a LogEntry owned by app.
func newLogEntry(app telemetry.ApplicationKey, scope pcommon.InstrumentationScope, lr plog.LogRecord) (*telemetry.LogEntry, error) {
	ts := lr.Timestamp().AsTime()
	observed := lr.ObservedTimestamp().AsTime()
	if lr.Timestamp() == 0 {
		if lr.ObservedTimestamp() == 0 {
			return nil, errMissingTimestamp
		}
		ts = observed
	}

	attrs := telemetry.AttributesFromMap(lr.Attributes())
	format := ""
	if v, ok := telemetry.GetAttribute(attrs, originalFormatKey); ok {
		format = v
		attrs = deleteAttribute(attrs, originalFormatKey)
	}

	e := &telemetry.LogEntry{
		Timestamp:         ts,
		ObservedTimestamp: observed,
		Severity:          lr.SeverityNumber(),
		SeverityText:      lr.SeverityText(),
		Message:           renderMessage(lr.Body().AsString(), format, attrs),
		OriginalFormat:    format,
		Flags:             uint32(lr.Flags()),
		Scope:             scope.Name(),
		Application:       app,
		Attributes:        attrs,
	}
	if !lr.TraceID().IsEmpty() {
		e.TraceID = lr.TraceID().String()
	}
	if !lr.SpanID().IsEmpty() {
		e.SpanID = lr.SpanID().String()
	}
	return e, nil
}

func deleteAttribute(attrs []telemetry.Attribute, key string) []telemetry.Attribute {
	for i, kv := range attrs {
		if kv.Key == key {
			return append(attrs[:i], attrs[i+1:]...)
		}
	}
	return attrs
}

// renderMessage returns the record body when present, otherwise the
// template with {name} placeholders substituted from the attributes.
func renderMessage(body, format string, attrs []telemetry.Attribute) string {
	if body != "" || format == "" {
		return body
	}
	var sb strings.Builder
	rest := format
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			sb.WriteString(rest)
			return sb.String()
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			sb.WriteString(rest)
			return sb.String()
		}
		name := rest[open+1 : open+closing]
		sb.WriteString(rest[:open])
		if v, ok := telemetry.GetAttribute(attrs, name); ok {
			sb.WriteString(v)
		} else {
			// Unknown placeholder, keep it verbatim.
			sb.WriteString(rest[open : open+closing+1])
		}
		rest = rest[open+closing+1:]
	}
}

// newSpan parses one OTLP span into a Span owned by app.
func newSpan(app telemetry.ApplicationKey, scope pcommon.InstrumentationScope, s ptrace.Span) (*telemetry.Span, error) {
	if s.TraceID().IsEmpty() {
		return nil, errMissingTraceID
	}
	if s.SpanID().IsEmpty() {
		return nil, errMissingSpanID
	}
	start := s.StartTimestamp().AsTime()
	end := s.EndTimestamp().AsTime()
	if s.EndTimestamp() != 0 && end.Before(start) {
		return nil, errNegativeDuration
	}
	if s.EndTimestamp() == 0 {
		end = start
	}

	span := &telemetry.Span{
		TraceID:       s.TraceID().String(),
		SpanID:        s.SpanID().String(),
		Name:          s.Name(),
		Kind:          s.Kind(),
		StatusCode:    s.Status().Code(),
		StatusMessage: s.Status().Message(),
		StartTime:     start,
		EndTime:       end,
		Scope:         scope.Name(),
		Source:        app,
		Attributes:    telemetry.AttributesFromMap(s.Attributes()),
	}
	if !s.ParentSpanID().IsEmpty() {
		span.ParentSpanID = s.ParentSpanID().String()
	}
	if n := s.Events().Len(); n > 0 {
		span.Events = make([]telemetry.SpanEvent, 0, n)
		for i := 0; i < n; i++ {
			ev := s.Events().At(i)
			span.Events = append(span.Events, telemetry.SpanEvent{
				Name:       ev.Name(),
				Timestamp:  ev.Timestamp().AsTime(),
				Attributes: telemetry.AttributesFromMap(ev.Attributes()),
			})
		}
	}
	return span, nil
}

// peerApplicationKey infers a synthetic downstream application from an
// outgoing span's peer.service attribute.
func peerApplicationKey(span *telemetry.Span) (telemetry.ApplicationKey, bool) {
	if span.Kind != ptrace.SpanKindClient && span.Kind != ptrace.SpanKindProducer {
		return telemetry.ApplicationKey{}, false
	}
	peer, ok := telemetry.GetAttribute(span.Attributes, conventions.AttributePeerService)
	if !ok || peer == "" {
		return telemetry.ApplicationKey{}, false
	}
	return telemetry.ApplicationKey{Name: peer, InstanceID: peer}, true
}

// parsedPoint is one converted metric data point with its dimension.
type parsedPoint struct {
	attrs []telemetry.Attribute
	point telemetry.MetricPoint
}

// convertMetric parses a metric's data points. Malformed or
// unsupported points are skipped and counted; the remainder of the
// metric is preserved.
func convertMetric(m pmetric.Metric) (telemetry.Instrument, []parsedPoint, int) {
	inst := telemetry.Instrument{
		Name:        m.Name(),
		Description: m.Description(),
		Unit:        m.Unit(),
		Type:        m.Type(),
	}

	if m.Name() == "" {
		return inst, nil, metricPointCount(m)
	}

	var points []parsedPoint
	failed := 0
	switch m.Type() {
	case pmetric.MetricTypeGauge:
		points, failed = convertNumberPoints(m.Gauge().DataPoints())
	case pmetric.MetricTypeSum:
		inst.Temporality = m.Sum().AggregationTemporality()
		inst.Monotonic = m.Sum().IsMonotonic()
		points, failed = convertNumberPoints(m.Sum().DataPoints())
	case pmetric.MetricTypeHistogram:
		inst.Temporality = m.Histogram().AggregationTemporality()
		points, failed = convertHistogramPoints(m.Histogram().DataPoints())
	default:
		return inst, nil, metricPointCount(m)
	}
	return inst, points, failed
}

func convertNumberPoints(dps pmetric.NumberDataPointSlice) ([]parsedPoint, int) {
	points := make([]parsedPoint, 0, dps.Len())
	failed := 0
	for i := 0; i < dps.Len(); i++ {
		dp := dps.At(i)
		if dp.Timestamp() == 0 {
			failed++
			continue
		}
		p := telemetry.MetricPoint{
			Start: dp.StartTimestamp().AsTime(),
			End:   dp.Timestamp().AsTime(),
			Count: 1,
		}
		if dp.StartTimestamp() == 0 {
			p.Start = p.End
		}
		if dp.ValueType() == pmetric.NumberDataPointValueTypeDouble {
			p.DoubleValue = dp.DoubleValue()
			p.IsFloat = true
		} else {
			p.IntValue = dp.IntValue()
		}
		points = append(points, parsedPoint{attrs: telemetry.AttributesFromMap(dp.Attributes()), point: p})
	}
	return points, failed
}

func convertHistogramPoints(dps pmetric.HistogramDataPointSlice) ([]parsedPoint, int) {
	points := make([]parsedPoint, 0, dps.Len())
	failed := 0
	for i := 0; i < dps.Len(); i++ {
		dp := dps.At(i)
		if dp.Timestamp() == 0 {
			failed++
			continue
		}
		p := telemetry.MetricPoint{
			Start: dp.StartTimestamp().AsTime(),
			End:   dp.Timestamp().AsTime(),
			Count: dp.Count(),
			Histogram: &telemetry.HistogramData{
				Bounds:       dp.ExplicitBounds().AsRaw(),
				BucketCounts: dp.BucketCounts().AsRaw(),
				Sum:          dp.Sum(),
				HasSum:       dp.HasSum(),
				Min:          dp.Min(),
				HasMin:       dp.HasMin(),
				Max:          dp.Max(),
				HasMax:       dp.HasMax(),
			},
		}
		if dp.StartTimestamp() == 0 {
			p.Start = p.End
		}
		points = append(points, parsedPoint{attrs: telemetry.AttributesFromMap(dp.Attributes()), point: p})
	}
	return points, failed
}

// metricPointCount counts a metric's data points regardless of type.
func metricPointCount(m pmetric.Metric) int {
	switch m.Type() {
	case pmetric.MetricTypeGauge:
		return m.Gauge().DataPoints().Len()
	case pmetric.MetricTypeSum:
		return m.Sum().DataPoints().Len()
	case pmetric.MetricTypeHistogram:
		return m.Histogram().DataPoints().Len()
	case pmetric.MetricTypeExponentialHistogram:
		return m.ExponentialHistogram().DataPoints().Len()
	case pmetric.MetricTypeSummary:
		return m.Summary().DataPoints().Len()
	}
	return 0
}
