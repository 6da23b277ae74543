// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.opentelemetry.io/collector/pdata/ptrace"
	conventions "go.opentelemetry.io/collector/semconv/v1.27.0"

	"github.com/spyglasshq/spyglass/telemetry"
)

var testBase = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestRepository(t *testing.T, cfg Config) *Repository {
	t.Helper()
	repo, err := NewRepository(Settings{}, cfg)
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	return repo
}

func testAppKey(service string) telemetry.ApplicationKey {
	return telemetry.ApplicationKey{Name: service, InstanceID: service + "-1"}
}

func setTestResource(attrs pcommon.Map, service string) {
	attrs.PutStr(conventions.AttributeServiceName, service)
	attrs.PutStr(conventions.AttributeServiceInstanceID, service+"-1")
}

func tid(b byte) pcommon.TraceID {
	var id [16]byte
	id[15] = b
	return pcommon.TraceID(id)
}

func sid(b byte) pcommon.SpanID {
	var id [8]byte
	id[7] = b
	return pcommon.SpanID(id)
}

// newTestLogs builds a single-resource logs batch; build is invoked
// once per requested record to fill it in.
func newTestLogs(service string, count int, build func(i int, lr plog.LogRecord)) plog.Logs {
	ld := plog.NewLogs()
	rl := ld.ResourceLogs().AppendEmpty()
	setTestResource(rl.Resource().Attributes(), service)
	sl := rl.ScopeLogs().AppendEmpty()
	sl.Scope().SetName("test.scope")
	for i := 0; i < count; i++ {
		lr := sl.LogRecords().AppendEmpty()
		lr.SetTimestamp(pcommon.NewTimestampFromTime(testBase.Add(time.Duration(i) * time.Second)))
		lr.SetSeverityNumber(plog.SeverityNumberInfo)
		lr.SetSeverityText("Information")
		lr.Body().SetStr("test message")
		if build != nil {
			build(i, lr)
		}
	}
	return ld
}

type testSpanSpec struct {
	traceID  byte
	spanID   byte
	parentID byte // zero means no parent
	start    time.Time
	end      time.Time
	kind     ptrace.SpanKind
	attrs    map[string]string
}

// newTestTraces builds a single-resource traces batch from specs.
func newTestTraces(service string, specs ...testSpanSpec) ptrace.Traces {
	td := ptrace.NewTraces()
	rs := td.ResourceSpans().AppendEmpty()
	setTestResource(rs.Resource().Attributes(), service)
	ss := rs.ScopeSpans().AppendEmpty()
	ss.Scope().SetName("test.scope")
	for _, spec := range specs {
		sp := ss.Spans().AppendEmpty()
		sp.SetTraceID(tid(spec.traceID))
		sp.SetSpanID(sid(spec.spanID))
		if spec.parentID != 0 {
			sp.SetParentSpanID(sid(spec.parentID))
		}
		sp.SetName("test-span")
		if spec.kind != ptrace.SpanKindUnspecified {
			sp.SetKind(spec.kind)
		} else {
			sp.SetKind(ptrace.SpanKindServer)
		}
		start := spec.start
		if start.IsZero() {
			start = testBase
		}
		end := spec.end
		if end.IsZero() {
			end = start.Add(time.Second)
		}
		sp.SetStartTimestamp(pcommon.NewTimestampFromTime(start))
		sp.SetEndTimestamp(pcommon.NewTimestampFromTime(end))
		for k, v := range spec.attrs {
			sp.Attributes().PutStr(k, v)
		}
	}
	return td
}

// newTestSumMetrics builds a cumulative monotonic sum with one int
// point per value, timestamped one second apart.
func newTestSumMetrics(service, instrument string, attrs map[string]string, values ...int64) pmetric.Metrics {
	md := pmetric.NewMetrics()
	rm := md.ResourceMetrics().AppendEmpty()
	setTestResource(rm.Resource().Attributes(), service)
	sm := rm.ScopeMetrics().AppendEmpty()
	sm.Scope().SetName("test.scope")
	m := sm.Metrics().AppendEmpty()
	m.SetName(instrument)
	m.SetUnit("1")
	sum := m.SetEmptySum()
	sum.SetAggregationTemporality(pmetric.AggregationTemporalityCumulative)
	sum.SetIsMonotonic(true)
	for i, v := range values {
		dp := sum.DataPoints().AppendEmpty()
		dp.SetStartTimestamp(pcommon.NewTimestampFromTime(testBase))
		dp.SetTimestamp(pcommon.NewTimestampFromTime(testBase.Add(time.Duration(i+1) * time.Second)))
		dp.SetIntValue(v)
		for k, av := range attrs {
			dp.Attributes().PutStr(k, av)
		}
	}
	return md
}
