// Package observe provides application-wide observability primitives for
// Vigil: OpenTelemetry metrics, tracing, context-aware logging and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider], so they can be scraped from /metrics. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Vigil metrics.
const meterName = "github.com/MrWong99/vigil"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// RecognitionDuration tracks how long one listening turn took.
	RecognitionDuration metric.Float64Histogram

	// ResponseDuration tracks responder latency (intent routing plus LLM).
	ResponseDuration metric.Float64Histogram

	// SynthesisDuration tracks text-to-speech latency per speech unit.
	SynthesisDuration metric.Float64Histogram

	// PlaybackDuration tracks how long a clip occupied the output device.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// WakeEvents counts activation gate triggers.
	WakeEvents metric.Int64Counter

	// SoundDetections counts the first loud reading of each run.
	SoundDetections metric.Int64Counter

	// Turns counts listening turns. Use with attribute.String("status", ...).
	Turns metric.Int64Counter

	// StateTransitions counts session state changes. Use with attributes
	// attribute.String("from", ...), attribute.String("to", ...).
	StateTransitions metric.Int64Counter

	// SkippedUnits counts speech units dropped after a synthesis failure.
	SkippedUnits metric.Int64Counter

	// Interrupts counts barge-ins honoured while speaking.
	Interrupts metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes
	// provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes provider and kind.
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes provider and to.
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActivePlayback is 1 while the output device is playing.
	ActivePlayback metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks control server latency by method, matched
	// route and status class.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for voice
// turn latencies, which run longer than network calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}

	hist := func(dst *metric.Float64Histogram, name, desc string) func() error {
		return func() (err error) {
			*dst, err = m.Float64Histogram(name,
				metric.WithDescription(desc),
				metric.WithUnit("s"),
				metric.WithExplicitBucketBoundaries(latencyBuckets...),
			)
			return err
		}
	}
	counter := func(dst *metric.Int64Counter, name, desc string) func() error {
		return func() (err error) {
			*dst, err = m.Int64Counter(name, metric.WithDescription(desc))
			return err
		}
	}

	steps := []func() error{
		hist(&met.RecognitionDuration, "vigil.recognition.duration", "Duration of one listening turn."),
		hist(&met.ResponseDuration, "vigil.response.duration", "Latency of the responder."),
		hist(&met.SynthesisDuration, "vigil.synthesis.duration", "Latency of text-to-speech per speech unit."),
		hist(&met.PlaybackDuration, "vigil.playback.duration", "Time a clip occupied the output device."),
		counter(&met.WakeEvents, "vigil.wake.events", "Total wake events."),
		counter(&met.SoundDetections, "vigil.wake.sound_detections", "Total loud-sound onsets seen while sleeping."),
		counter(&met.Turns, "vigil.session.turns", "Total listening turns by recognition status."),
		counter(&met.StateTransitions, "vigil.session.transitions", "Total session state transitions."),
		counter(&met.SkippedUnits, "vigil.speech.skipped_units", "Total speech units skipped after synthesis failed."),
		counter(&met.Interrupts, "vigil.session.interrupts", "Total barge-ins honoured while speaking."),
		counter(&met.ProviderRequests, "vigil.provider.requests", "Total provider API requests by provider, kind, and status."),
		counter(&met.ProviderErrors, "vigil.provider.errors", "Total provider errors by provider and kind."),
		counter(&met.BreakerTransitions, "vigil.provider.breaker_transitions", "Total circuit breaker state changes by provider."),
		func() (err error) {
			met.ActivePlayback, err = m.Int64UpDownCounter("vigil.playback.active",
				metric.WithDescription("1 while the output device is playing."),
			)
			return err
		},
		func() (err error) {
			met.HTTPRequestDuration, err = m.Float64Histogram("vigil.http.request.duration",
				metric.WithDescription("Control server request latency by method, route and status class."),
				metric.WithUnit("s"),
			)
			return err
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// RecordProviderRequest records a provider request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(Attr("provider", provider), Attr("kind", kind), Attr("status", status)),
	)
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)),
	)
}

// RecordBreakerTransition records a circuit breaker entering state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("to", to)))
}

// RecordTurn records one listening turn outcome.
func (m *Metrics) RecordTurn(ctx context.Context, status string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordTransition records a session state change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1, metric.WithAttributes(Attr("from", from), Attr("to", to)))
}
