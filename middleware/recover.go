package middleware

import (
	"context"

	"go.uber.org/zap"

	"mini-jsonrpc/message"
)

// Recover turns a panic into a -32000 server error. The panic value and stack
// are logged; the wire only sees a generic message.
func Recover(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (resp *message.Response) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("method panicked",
						zap.String("method", req.Method),
						zap.Any("panic", r),
						zap.StackSkip("stack", 1),
					)
					resp = message.NewErrorResponse(req.ID, panicError())
				}
			}()
			return next(ctx, req)
		}
	}
}

func panicError() *message.Error {
	return message.NewServerError("internal server error")
}
