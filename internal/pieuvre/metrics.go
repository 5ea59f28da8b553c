package pieuvre

// metrics.go — OpenTelemetry instruments for prover commands and synchronization passes.

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("pieuvre.prover")

type instruments struct {
	commandLatency metric.Float64Histogram
	commandTotal   metric.Int64Counter
	proverSpawns   metric.Int64Counter
	syncUndos      metric.Int64Counter
	syncReplays    metric.Int64Counter
}

var (
	metrics     *instruments
	metricsOnce sync.Once
	metricsErr  error
)

// newInstruments registers the prover instruments on meter.
func newInstruments(meter metric.Meter) (*instruments, error) {
	var (
		in  instruments
		err error
	)

	in.commandLatency, err = meter.Float64Histogram(
		"pieuvre_command_duration_seconds",
		metric.WithDescription("Time from transmitting a prover command to its reply"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	in.commandTotal, err = meter.Int64Counter(
		"pieuvre_command_total",
		metric.WithDescription("Total number of prover commands answered"),
	)
	if err != nil {
		return nil, err
	}

	in.proverSpawns, err = meter.Int64Counter(
		"pieuvre_prover_spawns_total",
		metric.WithDescription("Total number of prover start attempts"),
	)
	if err != nil {
		return nil, err
	}

	in.syncUndos, err = meter.Int64Counter(
		"pieuvre_sync_undo_total",
		metric.WithDescription("Sentences undone by synchronization passes"),
	)
	if err != nil {
		return nil, err
	}

	in.syncReplays, err = meter.Int64Counter(
		"pieuvre_sync_replay_total",
		metric.WithDescription("Sentences replayed by synchronization passes"),
	)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// initMetrics resolves the global meter provider on first use, so a provider
// installed by telemetry.Setup before the first command receives the data.
func initMetrics() (*instruments, error) {
	metricsOnce.Do(func() {
		metrics, metricsErr = newInstruments(otel.GetMeterProvider().Meter("pieuvre.prover"))
	})
	return metrics, metricsErr
}

func recordCommand(ctx context.Context, kind Kind, d time.Duration, success bool) {
	if in, err := initMetrics(); err == nil {
		in.command(ctx, kind, d, success)
	}
}

func recordSpawn(ctx context.Context, success bool) {
	if in, err := initMetrics(); err == nil {
		in.spawn(ctx, success)
	}
}

func recordSync(ctx context.Context, undone, replayed int) {
	if in, err := initMetrics(); err == nil {
		in.sync(ctx, undone, replayed)
	}
}

func (in *instruments) command(ctx context.Context, kind Kind, d time.Duration, success bool) {
	attrs := metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.Bool("success", success),
	)
	in.commandLatency.Record(ctx, d.Seconds(), attrs)
	in.commandTotal.Add(ctx, 1, attrs)
}

func (in *instruments) spawn(ctx context.Context, success bool) {
	in.proverSpawns.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func (in *instruments) sync(ctx context.Context, undone, replayed int) {
	if undone > 0 {
		in.syncUndos.Add(ctx, int64(undone))
	}
	if replayed > 0 {
		in.syncReplays.Add(ctx, int64(replayed))
	}
}

// startSyncSpan opens the span covering one synchronization pass.
func startSyncSpan(ctx context.Context, sessionID string, version int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Session.Synchronize",
		trace.WithAttributes(
			attribute.String("pieuvre.session", sessionID),
			attribute.Int("pieuvre.version", version),
		),
	)
}

func endSyncSpan(span trace.Span, undone, replayed int, err error) {
	span.SetAttributes(
		attribute.Int("pieuvre.undone", undone),
		attribute.Int("pieuvre.replayed", replayed),
		attribute.Bool("pieuvre.success", err == nil),
	)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
