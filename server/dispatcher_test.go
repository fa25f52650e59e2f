package server

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"mini-jsonrpc/middleware"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := NewDispatcher(nil, nil)
	must(t, d.Register("add", func(a, b int) int { return a + b }, "a", "b"))
	must(t, d.Register("div", func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		return a / b, nil
	}))
	must(t, d.Register("boom", func() int { panic("boom") }))
	must(t, d.Register("reject", func() error {
		return message.NewInvalidParams("value out of range").WithData("x")
	}))
	must(t, d.Register("typednil", func() error {
		var e *message.Error
		return e
	}))
	must(t, d.Register("nothing", func() {}))
	must(t, d.Register("unencodable", func() any { return make(chan int) }))
	return d
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestDispatch(t *testing.T) {
	d := newTestDispatcher(t)

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"positional",
			`{"jsonrpc":"2.0","method":"add","params":[2,3],"id":1}`,
			`{"jsonrpc":"2.0","id":1,"result":5}`,
		},
		{
			"named",
			`{"jsonrpc":"2.0","method":"add","params":{"b":3,"a":2},"id":2}`,
			`{"jsonrpc":"2.0","id":2,"result":5}`,
		},
		{
			"arity mismatch",
			`{"jsonrpc":"2.0","method":"add","params":[2],"id":3}`,
			`{"jsonrpc":"2.0","id":3,"error":{"code":-32602,"message":"Invalid params: takes 2 positional arguments but 1 were given"}}`,
		},
		{
			"unknown method",
			`{"jsonrpc":"2.0","method":"subtract","params":[],"id":4}`,
			`{"jsonrpc":"2.0","id":4,"error":{"code":-32601,"message":"Method not found"}}`,
		},
		{
			"parse error",
			`not json`,
			`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`,
		},
		{
			"method error",
			`{"jsonrpc":"2.0","method":"div","params":[1,0],"id":5}`,
			`{"jsonrpc":"2.0","id":5,"error":{"code":-32000,"message":"division by zero"}}`,
		},
		{
			"panic",
			`{"jsonrpc":"2.0","method":"boom","id":6}`,
			`{"jsonrpc":"2.0","id":6,"error":{"code":-32000,"message":"internal server error"}}`,
		},
		{
			"protocol error passes through",
			`{"jsonrpc":"2.0","method":"reject","id":7}`,
			`{"jsonrpc":"2.0","id":7,"error":{"code":-32602,"message":"value out of range","data":"x"}}`,
		},
		{
			"typed nil protocol error",
			`{"jsonrpc":"2.0","method":"typednil","id":10}`,
			`{"jsonrpc":"2.0","id":10,"error":{"code":-32000,"message":"internal server error"}}`,
		},
		{
			"no return value",
			`{"jsonrpc":"2.0","method":"nothing","id":8}`,
			`{"jsonrpc":"2.0","id":8,"result":null}`,
		},
		{
			"unencodable result",
			`{"jsonrpc":"2.0","method":"unencodable","id":9}`,
			`{"jsonrpc":"2.0","id":9,"error":{"code":-32000,"message":"result not representable"}}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := d.Dispatch(context.Background(), []byte(tc.in))
			if string(got) != tc.want {
				t.Fatalf("\nexpect %s\ngot    %s", tc.want, got)
			}
		})
	}
}

func TestDispatchInvalidRequestHasNullID(t *testing.T) {
	d := newTestDispatcher(t)

	for _, in := range []string{
		`{"jsonrpc":"1.0","method":"add","params":[1,2],"id":7}`,
		`{"jsonrpc":"2.0","params":[1,2],"id":7}`,
		`{"jsonrpc":"2.0","method":5,"id":7}`,
		`{"jsonrpc":"2.0","method":"add","params":[1,2],"id":"7"}`,
		`[{"jsonrpc":"2.0","method":"add","params":[1,2],"id":7}]`,
		`42`,
	} {
		got := d.Dispatch(context.Background(), []byte(in))
		resp, err := codec.Default.DecodeResponse(got)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if !resp.ID.IsNull() {
			t.Fatalf("%s: expect a null id, got %v", in, resp.ID)
		}
		if !errors.Is(resp.Error, message.ErrInvalidRequest) {
			t.Fatalf("%s: expect an invalid request error, got %+v", in, resp.Error)
		}
	}
}

func TestDispatchNotifications(t *testing.T) {
	d := newTestDispatcher(t)

	calls := 0
	must(t, d.Register("count", func() { calls++ }))

	for _, in := range []string{
		`{"jsonrpc":"2.0","method":"count"}`,
		`{"jsonrpc":"2.0","method":"count","id":null}`,
		`{"jsonrpc":"2.0","method":"missing"}`,
		`{"jsonrpc":"2.0","method":"add","params":[1]}`,
		`{"jsonrpc":"2.0","method":"div","params":[1,0]}`,
		`{"jsonrpc":"2.0","method":"boom"}`,
	} {
		if got := d.Dispatch(context.Background(), []byte(in)); got != nil {
			t.Fatalf("%s: a notification must not be answered, got %s", in, got)
		}
	}
	if calls != 2 {
		t.Fatalf("expect count to run twice, got %d", calls)
	}

	// Malformed envelopes are answered even without an id.
	if got := d.Dispatch(context.Background(), []byte(`{"method":"count"}`)); got == nil {
		t.Fatal("an invalid request must always be answered")
	}
}

func TestDispatchMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	d := NewDispatcher(codec.Default, zap.NewNop())
	must(t, d.Register("hello", func() string { return "Hello, World!" }))
	d.Use(middleware.Logging(zap.New(core)))

	got := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"hello","id":1}`))
	if string(got) != `{"jsonrpc":"2.0","id":1,"result":"Hello, World!"}` {
		t.Fatalf("unexpected response %s", got)
	}
	if logs.FilterMessage("call completed").Len() != 1 {
		t.Fatalf("expect the call to be logged, got %v", logs.All())
	}
}

func TestDispatcherMethods(t *testing.T) {
	d := NewDispatcher(nil, nil)
	must(t, d.RegisterMethod("echo", MethodFunc(func(_ context.Context, p message.Params) (any, error) {
		return p.Positional, nil
	})))
	if err := d.Register("echo", func() {}); err == nil {
		t.Fatal("expect duplicate registration to fail")
	}
	if names := d.Methods(); len(names) != 1 || names[0] != "echo" {
		t.Fatalf("unexpected methods %v", names)
	}

	got := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"echo","params":[1,"a"],"id":1}`))
	if string(got) != `{"jsonrpc":"2.0","id":1,"result":[1,"a"]}` {
		t.Fatalf("unexpected response %s", got)
	}
}
