package eventbus

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// busMetrics holds the OpenTelemetry instruments for one bus.
// A nil *busMetrics is valid and records nothing.
type busMetrics struct {
	subscribed      metric.Int64Counter
	unsubscribed    metric.Int64Counter
	published       metric.Int64Counter
	delivered       metric.Int64Counter
	mismatched      metric.Int64Counter
	faults          metric.Int64Counter
	dropped         metric.Int64Counter
	publishDuration metric.Float64Histogram
}

func newBusMetrics() *busMetrics {
	meter := otel.Meter("eventbus")

	m := &busMetrics{}
	m.subscribed, _ = meter.Int64Counter("eventbus.subscribed",
		metric.WithDescription("Total callbacks subscribed"),
		metric.WithUnit("{callback}"))
	m.unsubscribed, _ = meter.Int64Counter("eventbus.unsubscribed",
		metric.WithDescription("Total callbacks unsubscribed"),
		metric.WithUnit("{callback}"))
	m.published, _ = meter.Int64Counter("eventbus.published",
		metric.WithDescription("Total publish calls"),
		metric.WithUnit("{event}"))
	m.delivered, _ = meter.Int64Counter("eventbus.delivered",
		metric.WithDescription("Total successful callback invocations"),
		metric.WithUnit("{invocation}"))
	m.mismatched, _ = meter.Int64Counter("eventbus.mismatched",
		metric.WithDescription("Total callbacks skipped due to type mismatch"),
		metric.WithUnit("{invocation}"))
	m.faults, _ = meter.Int64Counter("eventbus.faults",
		metric.WithDescription("Total callback panics contained during dispatch"),
		metric.WithUnit("{fault}"))
	m.dropped, _ = meter.Int64Counter("eventbus.dropped",
		metric.WithDescription("Total publishes to topics with no subscribers"),
		metric.WithUnit("{event}"))
	m.publishDuration, _ = meter.Float64Histogram("eventbus.publish.duration",
		metric.WithDescription("Duration of publish calls"),
		metric.WithUnit("s"))
	return m
}

type counterKind int

const (
	counterSubscribed counterKind = iota
	counterUnsubscribed
	counterPublished
	counterDelivered
	counterMismatched
	counterFaults
	counterDropped
)

func (m *busMetrics) add(ctx context.Context, kind counterKind, n int64, topic string) {
	if m == nil || n == 0 {
		return
	}
	var c metric.Int64Counter
	switch kind {
	case counterSubscribed:
		c = m.subscribed
	case counterUnsubscribed:
		c = m.unsubscribed
	case counterPublished:
		c = m.published
	case counterDelivered:
		c = m.delivered
	case counterMismatched:
		c = m.mismatched
	case counterFaults:
		c = m.faults
	case counterDropped:
		c = m.dropped
	}
	if c == nil {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *busMetrics) recordDuration(ctx context.Context, seconds float64, topic string) {
	if m == nil || m.publishDuration == nil {
		return
	}
	m.publishDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("topic", topic)))
}
