// Package server implements the JSON-RPC server: a method registry with
// reflection binding, the dispatcher and the connection loop.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (reads framed messages)
//	  → Dispatcher.Dispatch: DecodeRequest → middleware chain → method → Encode
//	  → write response (nothing for notifications)
//
// By default connections are served one at a time, one request each, the way
// the reference peers expect. WithConcurrent and WithMaxRequestsPerConn relax
// both limits.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/middleware"
	"mini-jsonrpc/protocol"
	"mini-jsonrpc/registry"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCodec replaces the JSON codec.
func WithCodec(c codec.Codec) Option {
	return func(s *Server) {
		s.codec = c
	}
}

// WithFraming selects the wire framing. Defaults to protocol.FramingLine.
func WithFraming(f protocol.Framing) Option {
	return func(s *Server) {
		s.framing = f
	}
}

// WithMaxMessageSize bounds incoming messages. Defaults to protocol.DefaultMaxMessageSize.
func WithMaxMessageSize(n int) Option {
	return func(s *Server) {
		s.maxSize = n
	}
}

// WithIOTimeout bounds each read and each write on a connection. Zero disables
// deadlines.
func WithIOTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.ioTimeout = d
	}
}

// WithConcurrent serves each connection on its own goroutine.
func WithConcurrent(on bool) Option {
	return func(s *Server) {
		s.concurrent = on
	}
}

// WithMaxRequestsPerConn sets how many requests a connection may carry before
// the server closes it. Zero means until the peer closes. Legacy framing always
// uses one.
func WithMaxRequestsPerConn(n int) Option {
	return func(s *Server) {
		s.maxRequests = n
	}
}

// WithRegistry announces the server under service when Serve starts and
// withdraws it on Shutdown. advertise is the routable address to publish; when
// empty the listener address is used.
func WithRegistry(reg registry.Registry, service, advertise string, ttl time.Duration) Option {
	return func(s *Server) {
		s.registry = reg
		s.service = service
		s.advertise = advertise
		s.ttl = ttl
	}
}

// Server accepts TCP connections and answers JSON-RPC requests on them.
type Server struct {
	dispatcher  *Dispatcher
	codec       codec.Codec
	logger      *zap.Logger
	framing     protocol.Framing
	maxSize     int
	ioTimeout   time.Duration
	concurrent  bool
	maxRequests int
	middlewares []middleware.Middleware

	registry  registry.Registry
	service   string
	advertise string
	ttl       time.Duration

	ctx    context.Context // canceled when Shutdown gives up waiting
	cancel context.CancelFunc

	mu         sync.Mutex
	listener   net.Listener
	registered string // address announced in the registry
	conns      map[net.Conn]struct{}

	wg       sync.WaitGroup // Serve loop and connection goroutines
	shutdown atomic.Bool    // set before the listener is closed so Accept errors read as clean
}

// New creates a server with an empty method registry.
func New(opts ...Option) *Server {
	s := &Server{
		codec:       codec.Default,
		logger:      zap.NewNop(),
		framing:     protocol.FramingLine,
		maxSize:     protocol.DefaultMaxMessageSize,
		maxRequests: 1,
		ttl:         10 * time.Second,
		conns:       make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.framing == protocol.FramingLegacy {
		s.maxRequests = 1
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.dispatcher = NewDispatcher(s.codec, s.logger)
	return s
}

// Register exposes fn under name. See NewFuncMethod for accepted signatures.
func (s *Server) Register(name string, fn any, paramNames ...string) error {
	return s.dispatcher.Register(name, fn, paramNames...)
}

// RegisterMethod exposes a hand-written Method under name.
func (s *Server) RegisterMethod(name string, m Method) error {
	return s.dispatcher.RegisterMethod(name, m)
}

// Use appends a middleware. Middlewares run in the order they are added and
// must be added before Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
	s.dispatcher.Use(s.middlewares...)
}

// Dispatcher exposes the request dispatcher, for embedding the server's
// methods behind another transport.
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Listen opens a TCP listener with address reuse enabled, so a restarted
// server can bind while old connections linger in TIME_WAIT.
func (s *Server) Listen(network, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(context.Background(), network, addr)
	if err != nil {
		return nil, fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return ln, nil
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := s.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections on ln until Shutdown, after which it returns nil.
// Any other accept failure is returned.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if err := s.announce(ln.Addr()); err != nil {
		ln.Close()
		return err
	}

	s.logger.Info("serving",
		zap.Stringer("addr", ln.Addr()),
		zap.Stringer("framing", s.framing),
		zap.Bool("concurrent", s.concurrent),
	)

	for {
		conn, err := ln.Accept()
		if err != nil {
			// Shutdown closes the listener, which surfaces here as an error.
			if s.shutdown.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("rpc: accept: %w", err)
		}

		if !s.track(conn) {
			continue
		}
		if !s.concurrent {
			s.handleConn(conn)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn serves requests on one connection until the peer closes, the
// request limit is reached or the server shuts down.
func (s *Server) handleConn(conn net.Conn) {
	defer s.untrack(conn)
	logger := s.logger.With(zap.Stringer("remote", conn.RemoteAddr()))
	reader := s.framing.NewReader(conn, s.maxSize)

	for served := 0; s.maxRequests <= 0 || served < s.maxRequests; served++ {
		if s.shutdown.Load() {
			return
		}
		if s.ioTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.ioTimeout))
		}
		raw, err := reader.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.shutdown.Load() {
				logger.Debug("read failed", zap.Error(err))
			}
			return
		}

		reply := s.dispatcher.Dispatch(s.ctx, raw)
		if reply == nil {
			continue
		}
		if s.ioTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.ioTimeout))
		}
		if err := s.framing.WriteMessage(conn, reply); err != nil {
			logger.Debug("write failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) announce(addr net.Addr) error {
	if s.registry == nil {
		return nil
	}
	advertise := s.advertise
	if advertise == "" {
		advertise = addr.String()
	}
	ep := registry.Endpoint{Addr: advertise, Framing: s.framing.String()}
	if err := s.registry.Register(s.ctx, s.service, ep, s.ttl); err != nil {
		return fmt.Errorf("rpc: register %s: %w", s.service, err)
	}
	s.mu.Lock()
	s.registered = advertise
	s.mu.Unlock()
	return nil
}

// Shutdown stops the server gracefully:
//  1. withdraw the registry entry so clients stop picking this server
//  2. set the shutdown flag, then close the listener
//  3. wake connections blocked waiting for a request and wait for in-flight ones
//
// If ctx ends first, remaining connections are closed and ctx.Err() returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	registered := s.registered
	s.registered = ""
	s.mu.Unlock()
	if registered != "" {
		if err := s.registry.Deregister(ctx, s.service, registered); err != nil {
			s.logger.Warn("deregister failed", zap.String("service", s.service), zap.Error(err))
		}
	}

	s.mu.Lock()
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}
	// An expired read deadline only affects connections waiting for input; a
	// request already read still gets its reply.
	for conn := range s.conns {
		conn.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

// track records conn for Shutdown. It refuses, and closes, connections
// accepted after shutdown began.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		conn.Close()
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	conn.Close()
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}
