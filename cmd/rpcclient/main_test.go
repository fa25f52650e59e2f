package main

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"mini-jsonrpc/message"
	"mini-jsonrpc/server"
)

func TestParseParams(t *testing.T) {
	p, err := parseParams([]string{"2", "John Doe", `{"x":1}`}, false)
	if err != nil {
		t.Fatal(err)
	}
	if p.Shape() != message.ShapePositional || p.Len() != 3 {
		t.Fatalf("unexpected params %+v", p)
	}
	if string(p.Positional[0]) != "2" || string(p.Positional[1]) != `"John Doe"` || string(p.Positional[2]) != `{"x":1}` {
		t.Fatalf("unexpected values %q", p.Positional)
	}

	p, err = parseParams([]string{"a=5", "b=three"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if p.Shape() != message.ShapeNamed || string(p.Named["a"]) != "5" || string(p.Named["b"]) != `"three"` {
		t.Fatalf("unexpected named params %+v", p.Named)
	}

	if _, err := parseParams([]string{"oops"}, true); err == nil {
		t.Fatal("expect an error for an argument without =")
	}
}

func TestRun(t *testing.T) {
	s := server.New(server.WithConcurrent(true), server.WithMaxRequestsPerConn(0))
	for name, fn := range map[string]any{
		"hello": func() string { return "Hello, World!" },
		"greet": func(name string) string { return "Hello, " + name + "!" },
		"add":   func(a, b float64) float64 { return a + b },
		"sub":   func(a, b float64) float64 { return a - b },
		"mul":   func(a, b float64) float64 { return a * b },
		"div":   func(a, b float64) float64 { return a / b },
	} {
		if err := s.Register(name, fn); err != nil {
			t.Fatal(err)
		}
	}
	ln, err := s.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.Serve(ln)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	}()

	portStr := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

	var out bytes.Buffer
	if err := run([]string{"--host", "127.0.0.1", "--port", portStr}, &out); err != nil {
		t.Fatal(err)
	}
	want := "Hello, World!\nHello, John Doe!\n5\n2\n12\n5\n"
	if out.String() != want {
		t.Fatalf("expect %q, got %q", want, out.String())
	}

	out.Reset()
	if err := run([]string{"--port", portStr, "add", "40", "2"}, &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "42\n" {
		t.Fatalf("expect 42, got %q", out.String())
	}
}
