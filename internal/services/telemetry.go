package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/hanko-field/storefront/internal/services"

var tracer = otel.Tracer(instrumentationName)

// orderMetrics records checkout outcomes. Instruments that fail to register are skipped.
type orderMetrics struct {
	placed   metric.Int64Counter
	failed   metric.Int64Counter
	refunded metric.Int64Counter
}

func newOrderMetrics(meter metric.Meter) orderMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	var m orderMetrics
	if c, err := meter.Int64Counter("orders.placed", metric.WithDescription("Orders committed by payment method")); err == nil {
		m.placed = c
	}
	if c, err := meter.Int64Counter("orders.payment_failed", metric.WithDescription("Gateway payments recorded as failed")); err == nil {
		m.failed = c
	}
	if c, err := meter.Int64Counter("orders.refunded_minor_units", metric.WithDescription("Amount credited to wallets by cancellations and returns")); err == nil {
		m.refunded = c
	}
	return m
}

func (m orderMetrics) recordPlaced(ctx context.Context, method string) {
	if m.placed != nil {
		m.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", method)))
	}
}

func (m orderMetrics) recordPaymentFailed(ctx context.Context, reason string) {
	if m.failed != nil {
		m.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m orderMetrics) recordRefund(ctx context.Context, source string, amount int64) {
	if m.refunded != nil && amount > 0 {
		m.refunded.Add(ctx, amount, metric.WithAttributes(attribute.String("source", source)))
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on the span before ending it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
