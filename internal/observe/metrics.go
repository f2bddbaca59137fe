// Package observe holds the OpenTelemetry plumbing of the voice front end:
// turn-stage metrics, spans per turn and per stage, and the HTTP middleware
// of the health and metrics server.
//
// [InitProvider] installs the global providers and bridges metrics to
// Prometheus. Components take a *[Metrics] through their options; tests
// build one with [NewMetrics] on a private meter provider.
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/vocalis"

// Metrics is the set of instruments recorded by a running front end.
type Metrics struct {
	// ── Turn stages (seconds) ──
	STTDuration       metric.Float64Histogram
	ResponderDuration metric.Float64Histogram
	TTSDuration       metric.Float64Histogram // per sentence
	TimeToFirstAudio  metric.Float64Histogram // reply text to first sentence playing
	UtteranceLength   metric.Float64Histogram

	// ── Counters ──
	Utterances         metric.Int64Counter // outcome=emitted|discarded
	StateTransitions   metric.Int64Counter // from, to
	SkippedUnits       metric.Int64Counter // reason=synthesis|playback
	ProviderErrors     metric.Int64Counter // provider, kind
	BreakerTransitions metric.Int64Counter // provider, from, to

	ActiveSessions      metric.Int64UpDownCounter
	HTTPRequestDuration metric.Float64Histogram // method, path, status
}

var (
	latencyBuckets   = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	utteranceBuckets = []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34}
)

// instruments collects creation errors so NewMetrics reads as a list.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) seconds(name, desc string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if buckets != nil {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := in.meter.Float64Histogram(name, opts...)
	in.errs = append(in.errs, err)
	return h
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.errs = append(in.errs, err)
	return c
}

// NewMetrics creates every instrument on a meter from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		STTDuration:       in.seconds("vocalis.stt.duration", "Latency of utterance transcription.", latencyBuckets),
		ResponderDuration: in.seconds("vocalis.responder.duration", "Latency of the responder backend.", latencyBuckets),
		TTSDuration:       in.seconds("vocalis.tts.duration", "Latency of text-to-speech synthesis per sentence.", latencyBuckets),
		TimeToFirstAudio:  in.seconds("vocalis.tts.first_audio", "Delay from reply text to first audible sentence.", latencyBuckets),
		UtteranceLength:   in.seconds("vocalis.utterance.length", "Audio duration of detected utterances.", utteranceBuckets),

		Utterances:         in.counter("vocalis.utterances", "Detector outcomes (emitted or discarded)."),
		StateTransitions:   in.counter("vocalis.session.transitions", "Session state transitions by source and target state."),
		SkippedUnits:       in.counter("vocalis.tts.skipped", "Sentences skipped by the speech pipeline by reason."),
		ProviderErrors:     in.counter("vocalis.provider.errors", "Provider errors by provider and kind."),
		BreakerTransitions: in.counter("vocalis.breaker.transitions", "Circuit breaker state changes by provider."),

		HTTPRequestDuration: in.seconds("vocalis.http.request.duration", "HTTP request latency by method and path.", nil),
	}
	var err error
	m.ActiveSessions, err = in.meter.Int64UpDownCounter("vocalis.active_sessions",
		metric.WithDescription("Number of live voice sessions."))
	in.errs = append(in.errs, err)

	if err := errors.Join(in.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide Metrics built on the global meter
// provider at first use. Call it after [InitProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordProviderError counts one failed call to a backend of kind.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// RecordBreakerTransition counts a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, from, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordUtterance records a detector outcome. length is ignored for
// discarded utterances.
func (m *Metrics) RecordUtterance(ctx context.Context, emitted bool, length time.Duration) {
	outcome := "discarded"
	if emitted {
		outcome = "emitted"
		m.UtteranceLength.Record(ctx, length.Seconds())
	}
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTransition records a session state change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordSkippedUnit records a sentence the speech pipeline did not play.
func (m *Metrics) RecordSkippedUnit(ctx context.Context, reason string) {
	m.SkippedUnits.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
