// Package observe holds the OpenTelemetry instruments recorded by the server.
//
// Instruments are created from a metric.MeterProvider so tests can inspect
// them with a ManualReader. Every Record method is safe to call on a nil
// *Metrics, which lets components run without metrics wired in.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/satriahrh/careerpilot/server"

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Metrics holds all metric instruments for the application
type Metrics struct {
	InterviewStarts      metric.Int64Counter
	InterviewEnds        metric.Int64Counter
	ActiveInterviews     metric.Int64UpDownCounter
	InterviewConnectTime metric.Float64Histogram
	FramesSent           metric.Int64Counter
	FramesDropped        metric.Int64Counter
	FrameSendFailures    metric.Int64Counter
	ChunksScheduled      metric.Int64Counter
	ChunksSkipped        metric.Int64Counter
	ProviderRequests     metric.Int64Counter
	ProviderDuration     metric.Float64Histogram
	HTTPRequestDuration  metric.Float64Histogram
}

// NewMetrics creates all instruments on the given provider
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.InterviewStarts, err = m.Int64Counter("careerpilot.interview.starts",
		metric.WithDescription("Interview start requests by result."),
	); err != nil {
		return nil, err
	}
	if met.InterviewEnds, err = m.Int64Counter("careerpilot.interview.ends",
		metric.WithDescription("Interviews that reached a terminal status, by status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveInterviews, err = m.Int64UpDownCounter("careerpilot.interview.active",
		metric.WithDescription("Interviews currently in the active status."),
	); err != nil {
		return nil, err
	}
	if met.InterviewConnectTime, err = m.Float64Histogram("careerpilot.interview.connect.duration",
		metric.WithDescription("Time from start request until the live session opened."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("careerpilot.interview.frames.sent",
		metric.WithDescription("Captured audio frames sent to the live session."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("careerpilot.interview.frames.dropped",
		metric.WithDescription("Captured audio frames dropped from the pre-open queue."),
	); err != nil {
		return nil, err
	}
	if met.FrameSendFailures, err = m.Int64Counter("careerpilot.interview.frames.send_failures",
		metric.WithDescription("Failed audio frame sends."),
	); err != nil {
		return nil, err
	}
	if met.ChunksScheduled, err = m.Int64Counter("careerpilot.interview.chunks.scheduled",
		metric.WithDescription("Inbound audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.ChunksSkipped, err = m.Int64Counter("careerpilot.interview.chunks.skipped",
		metric.WithDescription("Inbound audio chunks skipped because they could not be decoded."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("careerpilot.provider.requests",
		metric.WithDescription("Generative AI requests by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderDuration, err = m.Float64Histogram("careerpilot.provider.duration",
		metric.WithDescription("Latency of generative AI requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("careerpilot.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordInterviewStart counts a start request with its result
func (m *Metrics) RecordInterviewStart(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.InterviewStarts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordInterviewOpened records the connect latency and marks the interview active
func (m *Metrics) RecordInterviewOpened(ctx context.Context, connectTime time.Duration) {
	if m == nil {
		return
	}
	m.InterviewConnectTime.Record(ctx, connectTime.Seconds())
	m.ActiveInterviews.Add(ctx, 1)
}

// RecordInterviewEnd counts a terminal status; wasActive releases the active gauge
func (m *Metrics) RecordInterviewEnd(ctx context.Context, status string, wasActive bool) {
	if m == nil {
		return
	}
	m.InterviewEnds.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if wasActive {
		m.ActiveInterviews.Add(ctx, -1)
	}
}

func (m *Metrics) RecordFrameSent(ctx context.Context) {
	if m == nil {
		return
	}
	m.FramesSent.Add(ctx, 1)
}

func (m *Metrics) RecordFrameDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.FramesDropped.Add(ctx, 1)
}

func (m *Metrics) RecordFrameSendFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.FrameSendFailures.Add(ctx, 1)
}

func (m *Metrics) RecordChunkScheduled(ctx context.Context) {
	if m == nil {
		return
	}
	m.ChunksScheduled.Add(ctx, 1)
}

func (m *Metrics) RecordChunkSkipped(ctx context.Context) {
	if m == nil {
		return
	}
	m.ChunksSkipped.Add(ctx, 1)
}

// RecordProviderRequest records one generative AI call
func (m *Metrics) RecordProviderRequest(ctx context.Context, operation, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	m.ProviderRequests.Add(ctx, 1, attrs)
	m.ProviderDuration.Record(ctx, elapsed.Seconds(), attrs)
}
