// Package observe provides application-wide observability primitives for
// voxguide: OpenTelemetry metrics, tracing helpers, structured logging, and
// HTTP middleware for the diagnostics endpoint.
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

// meterName is the instrumentation scope name used for all voxguide metrics.
const meterName = "github.com/wayfarelabs/voxguide"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ConnectDuration tracks the time from connect() to the connected status,
	// covering transport dial plus capture startup.
	ConnectDuration metric.Float64Histogram

	// --- Counters ---

	// FramesSent counts uplink audio frames handed to the transport.
	FramesSent metric.Int64Counter

	// ChunksPlayed counts reply audio chunks forwarded to the playback
	// scheduler.
	ChunksPlayed metric.Int64Counter

	// StaleDrops counts inbound messages discarded because their response id
	// no longer matched the active response. Use with attribute:
	//   attribute.String("kind", ...) — the wire message type
	StaleDrops metric.Int64Counter

	// BargeIns counts reply interruptions. Use with attribute:
	//   attribute.String("origin", ...) — "transcript", "voice", or "server"
	BargeIns metric.Int64Counter

	// ProtocolErrors counts malformed inbound messages that were absorbed.
	ProtocolErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for session-setup latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ConnectDuration, err = m.Float64Histogram("voxguide.connect.duration",
		metric.WithDescription("Time from connect to the connected status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.FramesSent, err = m.Int64Counter("voxguide.capture.frames_sent",
		metric.WithDescription("Uplink audio frames handed to the transport."),
	); err != nil {
		return nil, err
	}
	if met.ChunksPlayed, err = m.Int64Counter("voxguide.playback.chunks",
		metric.WithDescription("Reply audio chunks forwarded to the playback scheduler."),
	); err != nil {
		return nil, err
	}
	if met.StaleDrops, err = m.Int64Counter("voxguide.session.stale_drops",
		metric.WithDescription("Inbound messages discarded for a stale response id, by message kind."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("voxguide.session.barge_ins",
		metric.WithDescription("Reply interruptions by origin."),
	); err != nil {
		return nil, err
	}
	if met.ProtocolErrors, err = m.Int64Counter("voxguide.session.protocol_errors",
		metric.WithDescription("Malformed inbound messages absorbed without closing the session."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voxguide.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voxguide.http.request.duration",
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

// RecordStaleDrop records one discarded stale message of the given wire kind.
func (m *Metrics) RecordStaleDrop(ctx context.Context, kind string) {
	m.StaleDrops.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordBargeIn records one reply interruption. Origin is "transcript" for
// recognised speech, "voice" for local voice activity, or "server" for a
// backend-initiated cancellation.
func (m *Metrics) RecordBargeIn(ctx context.Context, origin string) {
	m.BargeIns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("origin", origin)),
	)
}
