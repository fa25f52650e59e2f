// Package client invokes JSON-RPC methods on a remote server by name.
//
//	c := client.Dial("127.0.0.1:8000")
//	defer c.Close()
//
//	var sum int
//	err := c.Call(ctx, "add", &sum, 2, 3)
//
// Protocol errors come back as *message.Error and can be told apart with
// errors.Is against the kind sentinels in package message. Connection failures
// wrap transport.ErrTransport.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/message"
	"mini-jsonrpc/protocol"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/transport"
)

// ErrInvalidResponse is returned when the server's reply cannot be matched to
// the request: malformed, or carrying a different id.
var ErrInvalidResponse = errors.New("rpc: invalid response")

// Option configures a Client.
type Option func(*options)

type options struct {
	codec      codec.Codec
	logger     *zap.Logger
	framing    protocol.Framing
	timeout    time.Duration
	maxSize    int
	keepAlive  bool
	balanceKey string
}

// WithCodec replaces the JSON codec.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithLogger sets the client logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFraming selects the wire framing. Must match the server.
func WithFraming(f protocol.Framing) Option {
	return func(o *options) {
		o.framing = f
	}
}

// WithTimeout bounds each call whose context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithMaxMessageSize bounds the size of a response.
func WithMaxMessageSize(n int) Option {
	return func(o *options) {
		o.maxSize = n
	}
}

// WithKeepAlive reuses one connection across calls. The server must keep
// connections open (server.WithMaxRequestsPerConn(0)); by default every call
// uses a fresh connection.
func WithKeepAlive(on bool) Option {
	return func(o *options) {
		o.keepAlive = on
	}
}

// WithBalanceKey sets the key handed to key-aware balancers by Discover.
func WithBalanceKey(key string) Option {
	return func(o *options) {
		o.balanceKey = key
	}
}

func buildOptions(opts []Option) options {
	o := options{
		codec:   codec.Default,
		logger:  zap.NewNop(),
		framing: protocol.FramingLine,
		maxSize: protocol.DefaultMaxMessageSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) transportOptions() []transport.Option {
	return []transport.Option{
		transport.WithFraming(o.framing),
		transport.WithTimeout(o.timeout),
		transport.WithMaxMessageSize(o.maxSize),
		transport.WithKeepAlive(o.keepAlive),
		transport.WithLogger(o.logger),
	}
}

// Client is a JSON-RPC client bound to one server connection. Calls are
// serialized on the connection; a Client is safe for concurrent use.
type Client struct {
	conn   *transport.Conn
	codec  codec.Codec
	logger *zap.Logger
	seq    atomic.Int64 // last id issued; the first call uses 1
	res    *resolver    // set by Discover
}

// Dial creates a client for the server at addr. The connection is opened on
// the first call.
func Dial(addr string, opts ...Option) *Client {
	o := buildOptions(opts)
	return newClient(transport.Dial(addr, o.transportOptions()...), o)
}

// New creates a client over an existing transport connection. Only the codec
// and logger options apply; framing, sizes and keep-alive belong to conn.
func New(conn *transport.Conn, opts ...Option) *Client {
	return newClient(conn, buildOptions(opts))
}

// Discover creates a client for service. The endpoint list is cached and kept
// current by watching reg; every (re)connect lets bal pick from it, so a retry
// after a failed server can land on a healthy one. A failed dial refreshes the
// cache from reg before the retry.
func Discover(ctx context.Context, reg registry.Registry, service string, bal loadbalance.Balancer, opts ...Option) (*Client, error) {
	o := buildOptions(opts)
	res, err := newResolver(ctx, reg, service, o.logger)
	if err != nil {
		return nil, fmt.Errorf("rpc: discover %s: %w", service, err)
	}
	if bal == nil {
		bal = &loadbalance.RoundRobinBalancer{}
	}

	var d net.Dialer
	dial := func(ctx context.Context) (net.Conn, error) {
		eps, err := res.endpoints(ctx)
		if err != nil {
			return nil, err
		}
		ep, err := bal.Pick(o.balanceKey, eps)
		if err != nil {
			return nil, err
		}
		if ep.Framing != "" && ep.Framing != o.framing.String() {
			o.logger.Warn("endpoint framing differs",
				zap.String("addr", ep.Addr),
				zap.String("endpoint", ep.Framing),
				zap.Stringer("client", o.framing),
			)
		}
		o.logger.Debug("dialing endpoint",
			zap.String("service", service),
			zap.String("addr", ep.Addr),
			zap.String("balancer", bal.Name()),
		)
		conn, err := d.DialContext(ctx, "tcp", ep.Addr)
		if err != nil {
			res.refresh(ctx)
			return nil, err
		}
		return conn, nil
	}
	c := newClient(transport.NewConn(dial, o.transportOptions()...), o)
	c.res = res
	return c, nil
}

func newClient(conn *transport.Conn, o options) *Client {
	return &Client{
		conn:   conn,
		codec:  o.codec,
		logger: o.logger,
	}
}

// Call invokes method with positional arguments and decodes the result into
// reply. reply may be nil to discard the result.
func (c *Client) Call(ctx context.Context, method string, reply any, args ...any) error {
	params, err := message.PositionalParams(args...)
	if err != nil {
		return fmt.Errorf("rpc: %s: %w", method, err)
	}
	return c.Invoke(ctx, method, params, reply)
}

// CallNamed invokes method with named arguments.
func (c *Client) CallNamed(ctx context.Context, method string, reply any, kwargs map[string]any) error {
	params, err := message.NamedParams(kwargs)
	if err != nil {
		return fmt.Errorf("rpc: %s: %w", method, err)
	}
	return c.Invoke(ctx, method, params, reply)
}

// Invoke is the generic entry point behind Call and CallNamed: it sends params
// in whatever shape they were built and waits for the response.
func (c *Client) Invoke(ctx context.Context, method string, params message.Params, reply any) error {
	id := message.NewID(c.seq.Add(1))
	body, err := c.codec.Encode(message.NewRequest(id, method, params))
	if err != nil {
		return fmt.Errorf("rpc: encode %s: %w", method, err)
	}

	raw, err := c.conn.Send(ctx, body)
	if err != nil {
		return err
	}

	resp, err := c.codec.DecodeResponse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	if resp.ID != id {
		// The server answers envelopes it could not read with a null id.
		if resp.ID.IsNull() && resp.Error != nil {
			return resp.Error
		}
		return fmt.Errorf("%w: id %s does not match request id %s", ErrInvalidResponse, resp.ID, id)
	}
	if resp.Error != nil {
		c.logger.Debug("call failed", zap.String("method", method), zap.Stringer("id", id), zap.Error(resp.Error))
		return resp.Error
	}

	if reply == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, reply); err != nil {
		return fmt.Errorf("rpc: decode result of %s: %w", method, err)
	}
	return nil
}

// Notify sends a notification. The server runs the method but never answers,
// so errors raised by the method are not observable. No id is consumed.
func (c *Client) Notify(ctx context.Context, method string, args ...any) error {
	params, err := message.PositionalParams(args...)
	if err != nil {
		return fmt.Errorf("rpc: %s: %w", method, err)
	}
	body, err := c.codec.Encode(message.NewRequest(message.NullID, method, params))
	if err != nil {
		return fmt.Errorf("rpc: encode %s: %w", method, err)
	}
	return c.conn.Post(ctx, body)
}

// Method returns a handle for repeated calls to one method.
func (c *Client) Method(name string) Func {
	return Func{client: c, method: name}
}

// Close closes the connection and stops following the registry. It is safe
// to call more than once.
func (c *Client) Close() error {
	if c.res != nil {
		c.res.close()
	}
	return c.conn.Close()
}

// Func is a remote method bound to a client.
type Func struct {
	client *Client
	method string
}

// Name returns the remote method name.
func (f Func) Name() string {
	return f.method
}

func (f Func) Call(ctx context.Context, reply any, args ...any) error {
	return f.client.Call(ctx, f.method, reply, args...)
}

func (f Func) CallNamed(ctx context.Context, reply any, kwargs map[string]any) error {
	return f.client.CallNamed(ctx, f.method, reply, kwargs)
}

func (f Func) Notify(ctx context.Context, args ...any) error {
	return f.client.Notify(ctx, f.method, args...)
}
