// Package observe carries the trade-in service's telemetry: OpenTelemetry
// instruments, spans, context-aware slog loggers, and the HTTP middleware
// tying them to each request.
//
// Instruments are created against a [metric.MeterProvider]. Production code
// uses [DefaultMetrics], which binds to the global provider installed by
// [InitProvider] and is scraped on /metrics. Tests build their own with
// [NewMetrics] and an sdkmetric.ManualReader.
package observe

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/tradein"

// Metrics holds the service's instruments. Attribute keys are listed per
// instrument; keep their values low-cardinality.
type Metrics struct {
	// Turns and TurnDuration cover the per-turn autosave pipeline.
	Turns        metric.Int64Counter
	TurnDuration metric.Float64Histogram

	// FieldsExtracted: field.
	FieldsExtracted metric.Int64Counter

	// LeadCalls: kind (update, submit), status. LeadCallDuration: kind.
	LeadCalls        metric.Int64Counter
	LeadCallDuration metric.Float64Histogram

	// Confirmations: outcome (submitted, incomplete, failed, duplicate).
	Confirmations metric.Int64Counter

	// Quotes: outcome (ok, clarify, not_found, error).
	Quotes metric.Int64Counter

	// ToolCalls: tool, status.
	ToolCalls metric.Int64Counter

	// GridLoads: outcome (ok, error). Counts initial loads and reloads.
	GridLoads metric.Int64Counter

	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration: method, path (route pattern), status.
	HTTPRequestDuration metric.Float64Histogram
}

// callBuckets are histogram bounds in seconds for turns and lead store calls.
var callBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// builder creates instruments on one meter and accumulates the errors.
type builder struct {
	m    metric.Meter
	errs []error
}

func (b *builder) counter(name, desc string) metric.Int64Counter {
	c, err := b.m.Int64Counter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return c
}

func (b *builder) seconds(name, desc string, bounds ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if len(bounds) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(bounds...))
	}
	h, err := b.m.Float64Histogram(name, opts...)
	b.errs = append(b.errs, err)
	return h
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &builder{m: mp.Meter(meterName)}
	m := &Metrics{
		Turns:               b.counter("tradein.turns", "Processed user turns."),
		TurnDuration:        b.seconds("tradein.turn.duration", "Time spent processing one user turn.", callBuckets...),
		FieldsExtracted:     b.counter("tradein.fields_extracted", "Newly collected checklist fields by field."),
		LeadCalls:           b.counter("tradein.lead_calls", "Lead store calls by kind and status."),
		LeadCallDuration:    b.seconds("tradein.lead_call.duration", "Latency of lead store calls.", callBuckets...),
		Confirmations:       b.counter("tradein.confirmations", "Confirmation triggers by outcome."),
		Quotes:              b.counter("tradein.quotes", "Quotes and price lookups by outcome."),
		ToolCalls:           b.counter("tradein.tool.calls", "Tool invocations by tool and status."),
		GridLoads:           b.counter("tradein.grid.loads", "Price grid loads by outcome."),
		HTTPRequestDuration: b.seconds("tradein.http.request.duration", "HTTP request latency by method, route and status."),
	}
	var err error
	m.ActiveSessions, err = b.m.Int64UpDownCounter("tradein.active_sessions",
		metric.WithDescription("Live checklist sessions."))
	b.errs = append(b.errs, err)

	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide instruments bound to
// [otel.GetMeterProvider]. It panics if they cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func with(kv ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(kv...)
}

// RecordTurn counts one processed turn and its duration in seconds.
func (m *Metrics) RecordTurn(ctx context.Context, seconds float64) {
	m.Turns.Add(ctx, 1)
	m.TurnDuration.Record(ctx, seconds)
}

func (m *Metrics) RecordFieldExtracted(ctx context.Context, field string) {
	m.FieldsExtracted.Add(ctx, 1, with(Attr("field", field)))
}

// RecordLeadCall counts a lead store call and records its latency by kind.
func (m *Metrics) RecordLeadCall(ctx context.Context, kind, status string, seconds float64) {
	m.LeadCalls.Add(ctx, 1, with(Attr("kind", kind), Attr("status", status)))
	m.LeadCallDuration.Record(ctx, seconds, with(Attr("kind", kind)))
}

func (m *Metrics) RecordConfirmation(ctx context.Context, outcome string) {
	m.Confirmations.Add(ctx, 1, with(Attr("outcome", outcome)))
}

func (m *Metrics) RecordQuote(ctx context.Context, outcome string) {
	m.Quotes.Add(ctx, 1, with(Attr("outcome", outcome)))
}

func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1, with(Attr("tool", tool), Attr("status", status)))
}

// RecordGridLoad counts a grid load; err decides the outcome.
func (m *Metrics) RecordGridLoad(ctx context.Context, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.GridLoads.Add(ctx, 1, with(Attr("outcome", outcome)))
}
