package job_tracer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Metrics groups the job instruments. Instruments are resolved lazily from
// the global meter provider so InitTracer may run before or after first use.
type Metrics struct {
	submitted  otelmetric.Int64Counter
	completed  otelmetric.Int64Counter
	failed     otelmetric.Int64Counter
	duration   otelmetric.Float64Histogram
	queueDepth otelmetric.Int64UpDownCounter
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		m := &Metrics{}
		// names are static and valid, instrument errors are ignored
		m.submitted, _ = meter.Int64Counter("jobs.submitted")
		m.completed, _ = meter.Int64Counter("jobs.completed")
		m.failed, _ = meter.Int64Counter("jobs.failed")
		m.duration, _ = meter.Float64Histogram("jobs.duration_ms", otelmetric.WithUnit("ms"))
		m.queueDepth, _ = meter.Int64UpDownCounter("scheduler.queue_depth")
		metrics = m
	})
	return metrics
}

func (m *Metrics) JobSubmitted(ctx context.Context) {
	m.submitted.Add(ctx, 1)
}

func (m *Metrics) JobFinished(ctx context.Context, failed bool, elapsed time.Duration) {
	attrs := otelmetric.WithAttributes(attribute.Bool("error", failed))
	if failed {
		m.failed.Add(ctx, 1)
	} else {
		m.completed.Add(ctx, 1)
	}
	m.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

func (m *Metrics) QueueDepth(ctx context.Context, delta int64) {
	m.queueDepth.Add(ctx, delta)
}
