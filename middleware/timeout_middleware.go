package middleware

import (
	"context"
	"fmt"
	"time"

	"mini-jsonrpc/message"
)

// Timeout answers with a -32001 server error when the call takes longer than
// timeout. The method keeps running in the background and sees ctx canceled.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Response, 1)
			go func() {
				// Nobody above us can recover a panic on this goroutine.
				defer func() {
					if r := recover(); r != nil {
						done <- message.NewErrorResponse(req.ID, panicError())
					}
				}()
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.NewErrorResponse(req.ID, &message.Error{
					Code:    message.CodeTimeout,
					Message: fmt.Sprintf("request timed out after %s", timeout),
				})
			}
		}
	}
}
