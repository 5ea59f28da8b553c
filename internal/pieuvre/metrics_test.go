package pieuvre

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumValue(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "unexpected aggregation %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestInstrumentsRecordDataPoints(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	in, err := newInstruments(mp.Meter("pieuvre.prover"))
	require.NoError(t, err)

	ctx := context.Background()
	in.command(ctx, KindCheck, 20*time.Millisecond, true)
	in.command(ctx, KindQuery, 5*time.Millisecond, false)
	in.spawn(ctx, true)
	in.sync(ctx, 2, 3)
	in.sync(ctx, 0, 1)

	got := collectMetrics(t, reader)

	hist, ok := got["pieuvre_command_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
	assert.Len(t, hist.DataPoints, 2)

	assert.Equal(t, int64(2), sumValue(t, got["pieuvre_command_total"]))
	assert.Equal(t, int64(1), sumValue(t, got["pieuvre_prover_spawns_total"]))
	assert.Equal(t, int64(2), sumValue(t, got["pieuvre_sync_undo_total"]))
	assert.Equal(t, int64(4), sumValue(t, got["pieuvre_sync_replay_total"]))
}

func TestInstrumentsSkipEmptySyncCounts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	in, err := newInstruments(mp.Meter("pieuvre.prover"))
	require.NoError(t, err)
	in.sync(context.Background(), 0, 0)

	got := collectMetrics(t, reader)
	assert.NotContains(t, got, "pieuvre_sync_undo_total")
	assert.NotContains(t, got, "pieuvre_sync_replay_total")
}
