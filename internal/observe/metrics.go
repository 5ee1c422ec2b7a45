// Package observe provides the OpenTelemetry metric instruments recorded by
// the call analysis pipeline and the HTTP server.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them to a Prometheus registry so the daemon can serve /metrics.
// Tests use [NewMetrics] with a ManualReader-backed provider.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all callsight metrics.
const meterName = "callsight"

// Stage outcomes recorded on StageRuns.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics holds all metric instruments. The OTel types handle their own
// synchronisation, so a single instance is shared by concurrent sessions.
type Metrics struct {
	// StageDuration tracks adapter latency per stage. Attributes: stage, outcome.
	StageDuration metric.Float64Histogram

	// StageRuns counts settled stages. Attributes: stage, outcome, kind.
	StageRuns metric.Int64Counter

	// SessionDuration tracks whole-call latency. Attribute: status.
	SessionDuration metric.Float64Histogram

	// Sessions counts finished sessions. Attribute: status.
	Sessions metric.Int64Counter

	// ActiveSessions tracks the number of in-flight sessions.
	ActiveSessions metric.Int64UpDownCounter

	// EventsEmitted counts events handed to a sink. Attribute: step.
	EventsEmitted metric.Int64Counter

	// DeliveryFailures counts sink delivery failures.
	DeliveryFailures metric.Int64Counter

	// SegmentFailures counts per-segment transcription failures dropped by
	// speaker aggregation.
	SegmentFailures metric.Int64Counter

	// HTTPRequestDuration tracks API latency. Attributes: method, path, status.
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets covers short regex stages up to long model inference runs.
var stageBuckets = []float64{
	0.005, 0.025, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("callsight.stage.duration",
		metric.WithDescription("Latency of one analysis stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageRuns, err = m.Int64Counter("callsight.stage.runs",
		metric.WithDescription("Settled analysis stages by stage, outcome and error kind."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("callsight.session.duration",
		metric.WithDescription("Latency of a whole call analysis session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("callsight.sessions",
		metric.WithDescription("Finished call analysis sessions by status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("callsight.active_sessions",
		metric.WithDescription("Number of in-flight call analysis sessions."),
	); err != nil {
		return nil, err
	}
	if met.EventsEmitted, err = m.Int64Counter("callsight.events.emitted",
		metric.WithDescription("Pipeline events delivered to a sink by step."),
	); err != nil {
		return nil, err
	}
	if met.DeliveryFailures, err = m.Int64Counter("callsight.events.delivery_failures",
		metric.WithDescription("Pipeline events that could not be delivered."),
	); err != nil {
		return nil, err
	}
	if met.SegmentFailures, err = m.Int64Counter("callsight.segments.failed",
		metric.WithDescription("Speaker segments dropped after a transcription failure."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("callsight.http.request.duration",
		metric.WithDescription("HTTP request latency by method, path and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// RecordStage records one settled stage.
func (m *Metrics) RecordStage(ctx context.Context, stage, outcome, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
	m.StageRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
		attribute.String("kind", kind),
	))
}

// SessionStarted increments the in-flight session gauge.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionFinished decrements the in-flight gauge and records the outcome.
func (m *Metrics) SessionFinished(ctx context.Context, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.ActiveSessions.Add(ctx, -1)
	m.Sessions.Add(ctx, 1, attrs)
	m.SessionDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordEvent counts a delivered event.
func (m *Metrics) RecordEvent(ctx context.Context, step string) {
	if m == nil {
		return
	}
	m.EventsEmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
}

// RecordDeliveryFailure counts an event a sink refused.
func (m *Metrics) RecordDeliveryFailure(ctx context.Context, step string) {
	if m == nil {
		return
	}
	m.DeliveryFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
}

// RecordSegmentFailure counts a dropped speaker segment.
func (m *Metrics) RecordSegmentFailure(ctx context.Context, speakerID string) {
	if m == nil {
		return
	}
	m.SegmentFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("speaker", speakerID)))
}
