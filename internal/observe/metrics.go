// Package observe provides application-wide observability primitives for
// mcav: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all mcav metrics.
const meterName = "github.com/MrWong99/mcav"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// BroadcastDuration tracks how long one broadcast tick takes, from
	// audio snapshot to fan-out complete.
	BroadcastDuration metric.Float64Histogram

	// RendererRequestDuration tracks renderer request/response round trips.
	RendererRequestDuration metric.Float64Histogram

	// --- Counters ---

	// FramesProcessed counts audio frames accepted from DJs. Use with
	// attribute: attribute.String("dj_id", ...)
	FramesProcessed metric.Int64Counter

	// FramesDropped counts frames rejected by the rate limiter or failed
	// renderer sends. Use with attribute: attribute.String("reason", ...)
	FramesDropped metric.Int64Counter

	// PatternChanges counts pattern switches. Use with attribute:
	//   attribute.String("pattern", ...)
	PatternChanges metric.Int64Counter

	// DJConnections counts DJ authentication outcomes. Use with attributes:
	//   attribute.String("method", ...), attribute.String("status", ...)
	DJConnections metric.Int64Counter

	// EffectTriggers counts triggered effects. Use with attribute:
	//   attribute.String("effect", ...)
	EffectTriggers metric.Int64Counter

	// RendererReconnects counts successful renderer reconnections.
	RendererReconnects metric.Int64Counter

	// --- Gauges ---

	// ConnectedDJs tracks the number of DJs on the roster.
	ConnectedDJs metric.Int64UpDownCounter

	// ConnectedBrowsers tracks the number of admin browser sockets.
	ConnectedBrowsers metric.Int64UpDownCounter

	// CurrentBPM mirrors the active DJ's reported tempo.
	CurrentBPM metric.Float64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// tickBuckets defines histogram bucket boundaries (in seconds) sized for
// a 16 ms frame budget.
var tickBuckets = []float64{
	0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.033, 0.066, 0.125, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.BroadcastDuration, err = m.Float64Histogram("mcav.broadcast.duration",
		metric.WithDescription("Duration of one broadcast loop tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RendererRequestDuration, err = m.Float64Histogram("mcav.renderer.request.duration",
		metric.WithDescription("Latency of renderer request/response round trips."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("mcav.frames.processed",
		metric.WithDescription("Total audio frames accepted from DJs."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("mcav.frames.dropped",
		metric.WithDescription("Total audio frames dropped, by reason."),
	); err != nil {
		return nil, err
	}
	if met.PatternChanges, err = m.Int64Counter("mcav.pattern.changes",
		metric.WithDescription("Total pattern switches by pattern name."),
	); err != nil {
		return nil, err
	}
	if met.DJConnections, err = m.Int64Counter("mcav.dj.connections",
		metric.WithDescription("Total DJ authentication attempts by method and status."),
	); err != nil {
		return nil, err
	}
	if met.EffectTriggers, err = m.Int64Counter("mcav.effect.triggers",
		metric.WithDescription("Total effect triggers by effect name."),
	); err != nil {
		return nil, err
	}
	if met.RendererReconnects, err = m.Int64Counter("mcav.renderer.reconnects",
		metric.WithDescription("Total successful renderer reconnections."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ConnectedDJs, err = m.Int64UpDownCounter("mcav.connected_djs",
		metric.WithDescription("Number of DJs currently on the roster."),
	); err != nil {
		return nil, err
	}
	if met.ConnectedBrowsers, err = m.Int64UpDownCounter("mcav.connected_browsers",
		metric.WithDescription("Number of connected admin browser sockets."),
	); err != nil {
		return nil, err
	}
	if met.CurrentBPM, err = m.Float64Gauge("mcav.current_bpm",
		metric.WithDescription("Tempo estimate reported by the active DJ."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("mcav.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrame records one accepted audio frame for a DJ.
func (m *Metrics) RecordFrame(ctx context.Context, djID string) {
	m.FramesProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("dj_id", djID)),
	)
}

// RecordDrop records one dropped frame with its reason.
func (m *Metrics) RecordDrop(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordDJConnection records a DJ authentication outcome.
func (m *Metrics) RecordDJConnection(ctx context.Context, method, status string) {
	m.DJConnections.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("status", status),
		),
	)
}

// RecordPatternChange records a pattern switch.
func (m *Metrics) RecordPatternChange(ctx context.Context, pattern string) {
	m.PatternChanges.Add(ctx, 1,
		metric.WithAttributes(attribute.String("pattern", pattern)),
	)
}

// RecordEffect records an effect trigger.
func (m *Metrics) RecordEffect(ctx context.Context, effect string) {
	m.EffectTriggers.Add(ctx, 1,
		metric.WithAttributes(attribute.String("effect", effect)),
	)
}
