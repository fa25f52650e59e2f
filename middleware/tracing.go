package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"mini-jsonrpc/message"
)

const instrumentationName = "mini-jsonrpc"

// TracingOption configures the Tracing middleware.
type TracingOption func(*tracingConfig)

type tracingConfig struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	serviceName    string
}

// WithTracerProvider sets a custom tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(c *tracingConfig) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) TracingOption {
	return func(c *tracingConfig) {
		c.meterProvider = mp
	}
}

// WithServiceName sets the service.name attribute.
func WithServiceName(name string) TracingOption {
	return func(c *tracingConfig) {
		c.serviceName = name
	}
}

// Tracing starts a server span per call and records request count, error count
// and latency.
func Tracing(opts ...TracingOption) Middleware {
	cfg := &tracingConfig{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		serviceName:    "jsonrpc-server",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	tracer := cfg.tracerProvider.Tracer(instrumentationName)
	meter := cfg.meterProvider.Meter(instrumentationName)

	// Instrument creation only fails on invalid names; ours are constant.
	requests, _ := meter.Int64Counter("rpc.server.requests",
		metric.WithDescription("Number of JSON-RPC calls dispatched"),
		metric.WithUnit("{request}"),
	)
	failures, _ := meter.Int64Counter("rpc.server.errors",
		metric.WithDescription("Number of JSON-RPC calls answered with an error"),
		metric.WithUnit("{error}"),
	)
	latency, _ := meter.Float64Histogram("rpc.server.duration",
		metric.WithDescription("Duration of JSON-RPC calls"),
		metric.WithUnit("ms"),
	)

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			attrs := []attribute.KeyValue{
				attribute.String("rpc.system", "jsonrpc"),
				attribute.String("rpc.method", req.Method),
				attribute.String("service.name", cfg.serviceName),
			}

			ctx, span := tracer.Start(ctx, "jsonrpc."+req.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()
			if !req.ID.IsNull() {
				span.SetAttributes(attribute.Int64("rpc.jsonrpc.request_id", req.ID.Int64()))
			}

			requests.Add(ctx, 1, metric.WithAttributes(attrs...))
			start := time.Now()

			resp := next(ctx, req)

			latency.Record(ctx, float64(time.Since(start).Microseconds())/1000,
				metric.WithAttributes(attrs...))

			if resp != nil && resp.Error != nil {
				span.SetStatus(codes.Error, resp.Error.Message)
				span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", resp.Error.Code))
				failures.Add(ctx, 1, metric.WithAttributes(
					append(attrs, attribute.Int("rpc.jsonrpc.error_code", resp.Error.Code))...,
				))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return resp
		}
	}
}
