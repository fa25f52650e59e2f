package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"mini-jsonrpc/protocol"
)

// retryable reports whether err means the connection died under us, so that a
// fresh connection has a fair chance of succeeding.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch {
	case errors.Is(err, protocol.ErrMessageTooLarge):
		return false
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ENOTCONN):
		return true
	}
	// Timeouts are not retried: the server may already be executing the call.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
