// Package transport implements the client side of a single TCP connection.
//
// A Conn carries one exchange at a time: write one framed request, read one framed
// response. By default every exchange runs on a fresh connection that is closed
// afterwards, matching servers that answer one request per connection;
// WithKeepAlive reuses the connection for servers that keep it open. When the connection turns out to be dead (reset by the peer, broken
// pipe, closed before replying) it is re-dialed exactly once and the exchange is
// retried once. A second failure is returned wrapped in ErrTransport.
//
//	Send ──write──▶ conn ──read──▶ reply
//	  │ failure
//	  └──▶ drop conn ──dial──▶ write ──read──▶ reply | ErrTransport
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"mini-jsonrpc/protocol"
)

var (
	// ErrTransport marks failures of the connection itself, as opposed to
	// protocol errors carried inside a response.
	ErrTransport = errors.New("transport failure")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("transport: connection closed")
)

// DialFunc opens a fresh connection. It is called lazily and on every reconnect.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Option configures a Conn.
type Option func(*Conn)

// WithFraming sets how messages are delimited. Must match the server.
func WithFraming(f protocol.Framing) Option {
	return func(c *Conn) {
		c.framing = f
	}
}

// WithMaxMessageSize bounds the size of a reply.
func WithMaxMessageSize(n int) Option {
	return func(c *Conn) {
		c.maxSize = n
	}
}

// WithTimeout bounds each exchange when the context carries no deadline.
// Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Conn) {
		c.timeout = d
	}
}

// WithKeepAlive keeps the connection open between exchanges. Only use it
// against servers that serve several requests per connection, otherwise the
// first exchange after the server hangs up is spent on a reconnect and a
// notification can be lost. Ignored for legacy framing.
func WithKeepAlive(on bool) Option {
	return func(c *Conn) {
		c.keepAlive = on
	}
}

// WithLogger sets the logger for connection events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Conn) {
		c.logger = l
	}
}

// Conn manages one TCP connection to a server.
type Conn struct {
	dial      DialFunc
	framing   protocol.Framing
	maxSize   int
	timeout   time.Duration
	keepAlive bool
	logger    *zap.Logger

	mu     sync.Mutex // one exchange at a time; guards the fields below
	conn   net.Conn
	reader protocol.Reader
	closed bool
}

// NewConn creates a Conn that dials with dial. No connection is opened yet.
func NewConn(dial DialFunc, opts ...Option) *Conn {
	c := &Conn{
		dial:    dial,
		framing: protocol.FramingLine,
		maxSize: protocol.DefaultMaxMessageSize,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial creates a Conn for a fixed TCP address. The connection is opened lazily.
func Dial(addr string, opts ...Option) *Conn {
	var d net.Dialer
	return NewConn(func(ctx context.Context) (net.Conn, error) {
		return d.DialContext(ctx, "tcp", addr)
	}, opts...)
}

// Connect opens the connection now instead of on the first Send.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if err := c.ensure(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// Send transmits body as one message and blocks for one complete reply.
func (c *Conn) Send(ctx context.Context, body []byte) ([]byte, error) {
	return c.do(ctx, body, true)
}

// Post transmits body as one message without waiting for a reply.
// It is used for notifications, which the server never answers.
func (c *Conn) Post(ctx context.Context, body []byte) error {
	_, err := c.do(ctx, body, false)
	return err
}

func (c *Conn) do(ctx context.Context, body []byte, wantReply bool) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	reply, err := c.exchange(ctx, body, wantReply)
	if err == nil {
		return reply, nil
	}
	c.drop()
	if !retryable(ctx, err) {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	c.logger.Warn("connection lost, reconnecting", zap.Error(err))

	reply, err = c.exchange(ctx, body, wantReply)
	if err != nil {
		c.drop()
		return nil, fmt.Errorf("%w: retry after reconnect: %w", ErrTransport, err)
	}
	return reply, nil
}

// exchange runs one write (and optionally one read) on the current connection,
// dialing first if there is none.
func (c *Conn) exchange(ctx context.Context, body []byte, wantReply bool) ([]byte, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	conn := c.conn

	deadline, ok := ctx.Deadline()
	if !ok && c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	// Unblock the socket if the context is canceled mid-exchange. The callback
	// may fire after drop, so it must not touch c.conn.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := c.framing.WriteMessage(conn, body); err != nil {
		return nil, err
	}

	var reply []byte
	if wantReply {
		var err error
		reply, err = c.reader.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
	}

	if !c.keepAlive || !c.framing.MultiMessage() {
		c.drop()
	}
	return reply, nil
}

func (c *Conn) ensure(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.logger.Debug("connected", zap.Stringer("remote", conn.RemoteAddr()))
	c.conn = conn
	c.reader = c.framing.NewReader(conn, c.maxSize)
	return nil
}

// drop closes the current connection, if any, so the next exchange dials afresh.
func (c *Conn) drop() {
	if c.conn == nil {
		return
	}
	c.conn.Close()
	c.conn = nil
	c.reader = nil
}

// Close closes the connection. Closing twice, or closing a Conn that never
// connected, is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
