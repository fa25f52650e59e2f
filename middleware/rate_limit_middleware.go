package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"mini-jsonrpc/message"
)

// RateLimit rejects calls above r per second (token bucket with the given burst)
// with a -32002 server error.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if !limiter.Allow() {
				return message.NewErrorResponse(req.ID, &message.Error{
					Code:    message.CodeRateLimited,
					Message: "rate limit exceeded",
				})
			}
			return next(ctx, req)
		}
	}
}
