// Package middleware wraps the server's method invocation with cross-cutting
// behavior: logging, panic recovery, timeouts, rate limiting and tracing.
//
// A handler always produces a response envelope; the dispatcher decides whether
// it goes on the wire (notifications are answered by nobody).
package middleware

import (
	"context"

	"mini-jsonrpc/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) *message.Response

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one. The first middleware is the outermost:
//
//	Chain(A, B, C)(h) == A(B(C(h)))
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
