// Package observe provides application-wide observability primitives for
// Vigil: OpenTelemetry metrics, tracing helpers, and HTTP middleware that
// ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Vigil metrics.
const meterName = "github.com/proctorly/vigil"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// TickDuration tracks per-tick analysis latency. Use with attribute:
	//   attribute.String("kind", "audio"|"face")
	TickDuration metric.Float64Histogram

	// AlertsEmitted counts violation events that survived deduplication.
	// Use with attributes:
	//   attribute.String("type", ...), attribute.String("severity", ...)
	AlertsEmitted metric.Int64Counter

	// AlertsSuppressed counts condition observations swallowed by an
	// active cooldown window. Use with attribute:
	//   attribute.String("type", ...)
	AlertsSuppressed metric.Int64Counter

	// CalibrationRuns counts calibration attempts. Use with attributes:
	//   attribute.String("preset", ...), attribute.String("status", ...)
	CalibrationRuns metric.Int64Counter

	// TickErrors counts failed analysis ticks by kind.
	TickErrors metric.Int64Counter

	// ActiveSubjects tracks the number of subjects currently monitored.
	ActiveSubjects metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// per-tick analysis work, which is CPU-bound and short.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TickDuration, err = m.Float64Histogram("vigil.tick.duration",
		metric.WithDescription("Latency of one analysis tick by kind."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AlertsEmitted, err = m.Int64Counter("vigil.alerts.emitted",
		metric.WithDescription("Total violation events emitted after deduplication, by type and severity."),
	); err != nil {
		return nil, err
	}
	if met.AlertsSuppressed, err = m.Int64Counter("vigil.alerts.suppressed",
		metric.WithDescription("Total condition observations suppressed by cooldown, by type."),
	); err != nil {
		return nil, err
	}
	if met.CalibrationRuns, err = m.Int64Counter("vigil.calibration.runs",
		metric.WithDescription("Total calibration attempts by preset and status."),
	); err != nil {
		return nil, err
	}
	if met.TickErrors, err = m.Int64Counter("vigil.tick.errors",
		metric.WithDescription("Total failed analysis ticks by kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSubjects, err = m.Int64UpDownCounter("vigil.active_subjects",
		metric.WithDescription("Number of subjects currently monitored."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("vigil.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordAlertEmitted records one emitted violation event.
func (m *Metrics) RecordAlertEmitted(ctx context.Context, violationType, severity string) {
	m.AlertsEmitted.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", violationType),
			attribute.String("severity", severity),
		),
	)
}

// RecordAlertSuppressed records one cooldown suppression.
func (m *Metrics) RecordAlertSuppressed(ctx context.Context, violationType string) {
	m.AlertsSuppressed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", violationType)),
	)
}

// RecordCalibration records one calibration attempt.
func (m *Metrics) RecordCalibration(ctx context.Context, preset, status string) {
	m.CalibrationRuns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("preset", preset),
			attribute.String("status", status),
		),
	)
}

// RecordTick records the duration of one analysis tick.
func (m *Metrics) RecordTick(ctx context.Context, kind string, seconds float64) {
	m.TickDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordTickError records one failed analysis tick.
func (m *Metrics) RecordTickError(ctx context.Context, kind string) {
	m.TickErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
