package test

import (
	"context"
	"testing"

	"mini-jsonrpc/client"
	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"mini-jsonrpc/protocol"
	"mini-jsonrpc/server"
)

func setupBench(b *testing.B, framing protocol.Framing, keepAlive bool, opts ...server.Option) *client.Client {
	b.Helper()
	addr := startServer(b, append(opts, server.WithFraming(framing))...)
	cli := client.Dial(addr, client.WithFraming(framing), client.WithKeepAlive(keepAlive))
	b.Cleanup(func() { cli.Close() })
	return cli
}

// Serial calls on one persistent connection.
func BenchmarkSerialCall(b *testing.B) {
	for _, framing := range []protocol.Framing{protocol.FramingLine, protocol.FramingLength} {
		b.Run(framing.String(), func(b *testing.B) {
			cli := setupBench(b, framing, true, server.WithMaxRequestsPerConn(0))
			ctx := context.Background()
			var sum int

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := cli.Call(ctx, "add", &sum, 1, 2); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// One connection per call, the way the reference peers talk.
func BenchmarkLegacyCall(b *testing.B) {
	cli := setupBench(b, protocol.FramingLegacy, false)
	ctx := context.Background()
	var sum int

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := cli.Call(ctx, "add", &sum, 1, 2); err != nil {
			b.Fatal(err)
		}
	}
}

// Parallel clients, one connection each, against a concurrent server.
func BenchmarkConcurrentCall(b *testing.B) {
	addr := startServer(b, server.WithConcurrent(true), server.WithMaxRequestsPerConn(0))

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		cli := client.Dial(addr, client.WithKeepAlive(true))
		defer cli.Close()
		ctx := context.Background()
		var sum int
		for pb.Next() {
			if err := cli.Call(ctx, "add", &sum, 1, 2); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// Codec only, no network.
func BenchmarkCodec(b *testing.B) {
	params, err := message.PositionalParams(1, 2)
	if err != nil {
		b.Fatal(err)
	}
	req := message.NewRequest(message.NewID(1), "add", params)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, _ := codec.Default.Encode(req)
		codec.Default.DecodeRequest(data)
	}
}

// Dispatch only, no network.
func BenchmarkDispatch(b *testing.B) {
	d := server.NewDispatcher(nil, nil)
	if err := d.Register("add", func(a, b int) int { return a + b }); err != nil {
		b.Fatal(err)
	}
	raw := []byte(`{"jsonrpc":"2.0","method":"add","params":[1,2],"id":1}`)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Dispatch(ctx, raw)
	}
}
