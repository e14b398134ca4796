// Package observe provides application-wide observability primitives for
// the voice relay: OpenTelemetry metrics, tracing helpers, structured
// logging, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all relay metrics.
const meterName = "github.com/akshaymakw8/Realtime-Voice-Agent"

// Metrics holds all OpenTelemetry metric instruments for the relay.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// BindDuration tracks how long it takes to establish an upstream
	// agent session for a connect or switch request.
	BindDuration metric.Float64Histogram

	// ClientMessages counts inbound client messages. Use with attribute:
	//   attribute.String("type", ...)
	ClientMessages metric.Int64Counter

	// UpstreamEvents counts events received from the realtime API. Use
	// with attribute: attribute.String("type", ...)
	UpstreamEvents metric.Int64Counter

	// AudioChunksForwarded counts audio chunks relayed from clients to
	// the upstream input buffer.
	AudioChunksForwarded metric.Int64Counter

	// SessionErrors counts errors surfaced to clients. Use with attribute:
	//   attribute.String("source", ...) — "client", "upstream", "relay"
	SessionErrors metric.Int64Counter

	// ActiveClients tracks the number of connected websocket clients.
	ActiveClients metric.Int64UpDownCounter

	// ActiveUpstreams tracks the number of live upstream agent sessions.
	ActiveUpstreams metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for session setup and request latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.BindDuration, err = m.Float64Histogram("voicerelay.bind.duration",
		metric.WithDescription("Latency of establishing an upstream agent session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ClientMessages, err = m.Int64Counter("voicerelay.client.messages",
		metric.WithDescription("Total inbound client messages by type."),
	); err != nil {
		return nil, err
	}
	if met.UpstreamEvents, err = m.Int64Counter("voicerelay.upstream.events",
		metric.WithDescription("Total realtime API events by type."),
	); err != nil {
		return nil, err
	}
	if met.AudioChunksForwarded, err = m.Int64Counter("voicerelay.audio.chunks_forwarded",
		metric.WithDescription("Total audio chunks relayed to the upstream input buffer."),
	); err != nil {
		return nil, err
	}
	if met.SessionErrors, err = m.Int64Counter("voicerelay.session.errors",
		metric.WithDescription("Total errors surfaced to clients by source."),
	); err != nil {
		return nil, err
	}

	if met.ActiveClients, err = m.Int64UpDownCounter("voicerelay.active_clients",
		metric.WithDescription("Number of connected websocket clients."),
	); err != nil {
		return nil, err
	}
	if met.ActiveUpstreams, err = m.Int64UpDownCounter("voicerelay.active_upstreams",
		metric.WithDescription("Number of live upstream agent sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voicerelay.http.request.duration",
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

// RecordClientMessage records one inbound client message of the given type.
func (m *Metrics) RecordClientMessage(ctx context.Context, msgType string) {
	m.ClientMessages.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", msgType)),
	)
}

// RecordUpstreamEvent records one realtime API event of the given type.
func (m *Metrics) RecordUpstreamEvent(ctx context.Context, evtType string) {
	m.UpstreamEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", evtType)),
	)
}

// RecordSessionError records one surfaced error from the given source.
func (m *Metrics) RecordSessionError(ctx context.Context, source string) {
	m.SessionErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}
