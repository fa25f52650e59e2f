package middleware

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"mini-jsonrpc/message"
)

// echoHandler answers every call with "ok".
func echoHandler(ctx context.Context, req *message.Request) *message.Response {
	resp, _ := message.NewResponse(req.ID, "ok")
	return resp
}

// slowHandler sleeps 200ms before answering.
func slowHandler(ctx context.Context, req *message.Request) *message.Response {
	time.Sleep(200 * time.Millisecond)
	return echoHandler(ctx, req)
}

func failingHandler(ctx context.Context, req *message.Request) *message.Response {
	return message.NewErrorResponse(req.ID, message.NewInvalidParams("Invalid params"))
}

func panickingHandler(ctx context.Context, req *message.Request) *message.Response {
	panic("boom")
}

func newRequest(id int64, method string) *message.Request {
	return message.NewRequest(message.NewID(id), method, message.Params{})
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := Logging(zap.New(core))(echoHandler)

	resp := handler(context.Background(), newRequest(1, "add"))
	if resp == nil || resp.Error != nil {
		t.Fatalf("expect success, got %+v", resp)
	}

	entries := logs.FilterMessage("call completed").All()
	if len(entries) != 1 {
		t.Fatalf("expect 1 completion log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["method"]; got != "add" {
		t.Fatalf("expect method=add in log, got %v", got)
	}
}

func TestLoggingFailure(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := Logging(zap.New(core))(failingHandler)

	handler(context.Background(), newRequest(2, "add"))

	entries := logs.FilterMessage("call failed").All()
	if len(entries) != 1 {
		t.Fatalf("expect 1 failure log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["code"]; got != int64(message.CodeInvalidParams) {
		t.Fatalf("expect code -32602 in log, got %v", got)
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := Timeout(500 * time.Millisecond)(echoHandler)

	resp := handler(context.Background(), newRequest(1, "add"))
	if resp.Error != nil {
		t.Fatalf("expect no error, got %v", resp.Error)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := Timeout(50 * time.Millisecond)(slowHandler)

	resp := handler(context.Background(), newRequest(3, "add"))
	if resp.Error == nil || resp.Error.Code != message.CodeTimeout {
		t.Fatalf("expect timeout error, got %+v", resp)
	}
	if resp.ID != message.NewID(3) {
		t.Fatalf("expect id 3, got %v", resp.ID)
	}
	if resp.Error.Kind() != message.KindServer {
		t.Fatalf("timeouts are server errors, got %v", resp.Error.Kind())
	}
}

func TestTimeoutRecoversPanic(t *testing.T) {
	handler := Timeout(time.Second)(panickingHandler)

	resp := handler(context.Background(), newRequest(4, "boom"))
	if resp.Error == nil || resp.Error.Code != message.CodeServerError {
		t.Fatalf("expect server error, got %+v", resp)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass, the third is rejected.
	handler := RateLimit(1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), newRequest(int64(i), "add"))
		if resp.Error != nil {
			t.Fatalf("request %d should pass, got error: %v", i, resp.Error)
		}
	}

	resp := handler(context.Background(), newRequest(9, "add"))
	if resp.Error == nil || resp.Error.Code != message.CodeRateLimited {
		t.Fatalf("request 3 should be rate limited, got: %+v", resp)
	}
}

func TestRecover(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := Recover(zap.New(core))(panickingHandler)

	resp := handler(context.Background(), newRequest(5, "boom"))
	if resp == nil || resp.Error == nil {
		t.Fatal("expect an error response")
	}
	if resp.Error.Code != message.CodeServerError {
		t.Fatalf("expect -32000, got %d", resp.Error.Code)
	}
	if resp.Error.Message != "internal server error" {
		t.Fatalf("panic details must not reach the wire, got %q", resp.Error.Message)
	}
	if logs.Len() != 1 {
		t.Fatalf("expect the panic to be logged, got %d entries", logs.Len())
	}
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Request) *message.Response {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	chained := Chain(mark("a"), mark("b"), Logging(zap.NewNop()), Timeout(500*time.Millisecond))
	resp := chained(echoHandler)(context.Background(), newRequest(1, "add"))

	if resp == nil || resp.Error != nil {
		t.Fatalf("expect success, got %+v", resp)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expect outermost first, got %v", order)
	}
}

func TestTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	mw := Tracing(WithTracerProvider(tp), WithMeterProvider(mp), WithServiceName("test"))

	mw(echoHandler)(context.Background(), newRequest(1, "add"))
	mw(failingHandler)(context.Background(), newRequest(2, "add"))

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expect 2 spans, got %d", len(spans))
	}
	if spans[0].Name != "jsonrpc.add" {
		t.Errorf("expect span name jsonrpc.add, got %q", spans[0].Name)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					counts[m.Name] += dp.Value
				}
			}
		}
	}
	if counts["rpc.server.requests"] != 2 {
		t.Errorf("expect 2 requests recorded, got %d", counts["rpc.server.requests"])
	}
	if counts["rpc.server.errors"] != 1 {
		t.Errorf("expect 1 error recorded, got %d", counts["rpc.server.errors"])
	}
}
