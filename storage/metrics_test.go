// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.uber.org/zap"

	"github.com/spyglasshq/spyglass/telemetry"
)

func TestAddMetricsAccumulatesDimensions(t *testing.T) {
	repo := newTestRepository(t, DefaultConfig())
	app := testAppKey("TestService")

	repo.AddMetrics(context.Background(), newTestSumMetrics("TestService", "http.requests",
		map[string]string{"route": "/a"}, 1, 2), nil)
	repo.AddMetrics(context.Background(), newTestSumMetrics("TestService", "http.requests",
		map[string]string{"route": "/b"}, 7), nil)

	result, ok, err := repo.GetInstrument(context.Background(), GetInstrumentRequest{
		Application:    app,
		InstrumentName: "http.requests",
	})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "http.requests", result.Instrument.Name)
	assert.Equal(t, pmetric.MetricTypeSum, result.Instrument.Type)
	assert.Equal(t, pmetric.AggregationTemporalityCumulative, result.Instrument.Temporality)
	assert.True(t, result.Instrument.Monotonic)

	require.Len(t, result.Scopes, 2)
	assert.Equal(t, []telemetry.Attribute{{Key: "route", Value: "/a"}}, result.Scopes[0].Attributes)
	require.Len(t, result.Scopes[0].Points, 2)
	// Raw cumulative values are retained, not deltas.
	assert.Equal(t, float64(1), result.Scopes[0].Points[0].Value())
	assert.Equal(t, float64(2), result.Scopes[0].Points[1].Value())
	require.Len(t, result.Scopes[1].Points, 1)
	assert.Equal(t, float64(7), result.Scopes[1].Points[0].Value())
}

func TestGetInstrumentTimeRange(t *testing.T) {
	repo := newTestRepository(t, DefaultConfig())

	// Points end at testBase+1s, +2s, +3s.
	repo.AddMetrics(context.Background(), newTestSumMetrics("TestService", "http.requests",
		nil, 1, 2, 3), nil)

	result, ok, err := repo.GetInstrument(context.Background(), GetInstrumentRequest{
		Application:    testAppKey("TestService"),
		InstrumentName: "http.requests",
		StartTime:      testBase.Add(2 * time.Second),
		EndTime:        testBase.Add(2 * time.Second),
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, result.Scopes, 1)

	// Cumulative points start at testBase, so every point whose end
	// falls at or after the range start overlaps it.
	require.Len(t, result.Scopes[0].Points, 2)
	assert.Equal(t, float64(2), result.Scopes[0].Points[0].Value())
	assert.Equal(t, float64(3), result.Scopes[0].Points[1].Value())
}

func TestGetInstrumentUnknown(t *testing.T) {
	repo := newTestRepository(t, DefaultConfig())

	_, ok, err := repo.GetInstrument(context.Background(), GetInstrumentRequest{
		Application:    testAppKey("TestService"),
		InstrumentName: "nope",
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddMetricsHistogram(t *testing.T) {
	repo := newTestRepository(t, DefaultConfig())

	md := pmetric.NewMetrics()
	rm := md.ResourceMetrics().AppendEmpty()
	setTestResource(rm.Resource().Attributes(), "TestService")
	m := rm.ScopeMetrics().AppendEmpty().Metrics().AppendEmpty()
	m.SetName("http.duration")
	m.SetUnit("ms")
	h := m.SetEmptyHistogram()
	h.SetAggregationTemporality(pmetric.AggregationTemporalityCumulative)
	dp := h.DataPoints().AppendEmpty()
	dp.SetStartTimestamp(pcommon.NewTimestampFromTime(testBase))
	dp.SetTimestamp(pcommon.NewTimestampFromTime(testBase.Add(time.Second)))
	dp.SetCount(6)
	dp.SetSum(123.5)
	dp.ExplicitBounds().FromRaw([]float64{1, 5, 10})
	dp.BucketCounts().FromRaw([]uint64{1, 2, 2, 1})

	var ac AddContext
	repo.AddMetrics(context.Background(), md, &ac)
	assert.Equal(t, 0, ac.FailureCount)

	result, ok, err := repo.GetInstrument(context.Background(), GetInstrumentRequest{
		Application:    testAppKey("TestService"),
		InstrumentName: "http.duration",
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, result.Scopes, 1)
	require.Len(t, result.Scopes[0].Points, 1)

	p := result.Scopes[0].Points[0]
	assert.Equal(t, uint64(6), p.Count)
	require.NotNil(t, p.Histogram)
	assert.Equal(t, []float64{1, 5, 10}, p.Histogram.Bounds)
	assert.Equal(t, []uint64{1, 2, 2, 1}, p.Histogram.BucketCounts)
	assert.True(t, p.Histogram.HasSum)
	assert.Equal(t, 123.5, p.Histogram.Sum)
}

func TestAddMetricsUnsupportedTypeCounted(t *testing.T) {
	repo := newTestRepository(t, DefaultConfig())

	md := pmetric.NewMetrics()
	rm := md.ResourceMetrics().AppendEmpty()
	setTestResource(rm.Resource().Attributes(), "TestService")
	m := rm.ScopeMetrics().AppendEmpty().Metrics().AppendEmpty()
	m.SetName("rpc.duration")
	s := m.SetEmptySummary()
	dp := s.DataPoints().AppendEmpty()
	dp.SetTimestamp(pcommon.NewTimestampFromTime(testBase))

	var ac AddContext
	repo.AddMetrics(context.Background(), md, &ac)
	assert.Equal(t, 1, ac.FailureCount)

	_, ok, err := repo.GetInstrument(context.Background(), GetInstrumentRequest{
		Application:    testAppKey("TestService"),
		InstrumentName: "rpc.duration",
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMetricPointEvictionOldestFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMetricPointCount = 2
	repo := newTestRepository(t, cfg)

	repo.AddMetrics(context.Background(), newTestSumMetrics("TestService", "http.requests",
		nil, 1, 2, 3), nil)

	result, ok, err := repo.GetInstrument(context.Background(), GetInstrumentRequest{
		Application:    testAppKey("TestService"),
		InstrumentName: "http.requests",
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, result.Scopes, 1)
	require.Len(t, result.Scopes[0].Points, 2)
	assert.Equal(t, float64(2), result.Scopes[0].Points[0].Value())
	assert.Equal(t, float64(3), result.Scopes[0].Points[1].Value())
}

func TestGetInstrumentsSummary(t *testing.T) {
	repo := newTestRepository(t, DefaultConfig())
	app := testAppKey("TestService")

	assert.Empty(t, repo.GetInstrumentsSummary(app))

	repo.AddMetrics(context.Background(), newTestSumMetrics("TestService", "zeta", nil, 1), nil)
	repo.AddMetrics(context.Background(), newTestSumMetrics("TestService", "alpha", nil, 1), nil)

	summary := repo.GetInstrumentsSummary(app)
	require.Len(t, summary, 2)
	assert.Equal(t, "alpha", summary[0].Name)
	assert.Equal(t, "zeta", summary[1].Name)
}

func TestMetricPointOutOfOrderEndTimes(t *testing.T) {
	store := newMetricStore(zap.NewNop(), 10)
	app := testAppKey("TestService")
	inst := telemetry.Instrument{Name: "x", Type: pmetric.MetricTypeGauge}

	point := func(end time.Time, v int64) parsedPoint {
		return parsedPoint{point: telemetry.MetricPoint{Start: end, End: end, IntValue: v, Count: 1}}
	}
	store.add(app, inst, []parsedPoint{
		point(testBase.Add(3*time.Second), 3),
		point(testBase.Add(time.Second), 1),
		point(testBase.Add(2*time.Second), 2),
	})

	result, ok, err := store.getInstrument(context.Background(), GetInstrumentRequest{
		Application: app, InstrumentName: "x",
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, result.Scopes, 1)
	require.Len(t, result.Scopes[0].Points, 3)
	assert.Equal(t, int64(1), result.Scopes[0].Points[0].IntValue)
	assert.Equal(t, int64(2), result.Scopes[0].Points[1].IntValue)
	assert.Equal(t, int64(3), result.Scopes[0].Points[2].IntValue)
}
