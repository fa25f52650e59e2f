package server

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"mini-jsonrpc/middleware"
)

// Dispatcher turns one raw request into at most one raw response.
//
//	raw ─▶ DecodeRequest ─▶ middleware chain ─▶ invoke ─▶ Encode ─▶ raw | nil
//
// Parse errors and invalid requests are always answered, with a null id. Every
// other outcome is answered only when the request carries an id.
type Dispatcher struct {
	methods *methodRegistry
	codec   codec.Codec
	handler middleware.HandlerFunc
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher with an empty method registry.
func NewDispatcher(cdc codec.Codec, logger *zap.Logger) *Dispatcher {
	if cdc == nil {
		cdc = codec.Default
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		methods: newMethodRegistry(),
		codec:   cdc,
		logger:  logger,
	}
	d.Use()
	return d
}

// Use rebuilds the handler chain with mws, outermost first, inside a recover
// guard that keeps a panicking method from taking the server down. It must be
// called before dispatching starts.
func (d *Dispatcher) Use(mws ...middleware.Middleware) {
	chain := append([]middleware.Middleware{middleware.Recover(d.logger)}, mws...)
	d.handler = middleware.Chain(chain...)(d.invoke)
}

// Register adds fn under name. See NewFuncMethod for the accepted signatures.
func (d *Dispatcher) Register(name string, fn any, paramNames ...string) error {
	m, err := NewFuncMethod(fn, paramNames...)
	if err != nil {
		return err
	}
	return d.methods.add(name, m)
}

// RegisterMethod adds a hand-written Method under name.
func (d *Dispatcher) RegisterMethod(name string, m Method) error {
	return d.methods.add(name, m)
}

// Methods lists the registered method names in no particular order.
func (d *Dispatcher) Methods() []string {
	return d.methods.names()
}

// Dispatch processes one request payload. A nil return means nothing is sent back.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) []byte {
	req, err := d.codec.DecodeRequest(raw)
	if err != nil {
		var rpcErr *message.Error
		if !errors.As(err, &rpcErr) {
			rpcErr = message.NewParseError("Parse error")
		}
		// The id of a rejected envelope is never trusted, even if one was readable.
		return d.encode(message.NewErrorResponse(message.NullID, rpcErr))
	}

	resp := d.handler(ctx, req)
	if req.IsNotification() || resp == nil {
		return nil
	}
	return d.encode(resp)
}

// invoke is the innermost handler: lookup, bind, call, map the outcome.
func (d *Dispatcher) invoke(ctx context.Context, req *message.Request) *message.Response {
	m, ok := d.methods.lookup(req.Method)
	if !ok {
		return message.NewErrorResponse(req.ID, message.NewMethodNotFound("Method not found"))
	}

	result, err := m.Call(ctx, req.Params)
	if err != nil {
		return message.NewErrorResponse(req.ID, d.mapError(req, err))
	}

	resp, err := message.NewResponse(req.ID, result)
	if err != nil {
		d.logger.Error("result not representable", zap.String("method", req.Method), zap.Error(err))
		return message.NewErrorResponse(req.ID, message.NewServerError("result not representable"))
	}
	return resp
}

func (d *Dispatcher) mapError(req *message.Request, err error) *message.Error {
	var rpcErr *message.Error
	isRPC := errors.As(err, &rpcErr)
	switch {
	case IsBindError(err):
		return message.NewInvalidParams("Invalid params: " + err.Error())
	case isRPC && rpcErr != nil:
		return rpcErr
	case isRPC:
		// A typed nil *message.Error inside a non-nil error; err.Error() would panic.
		d.logger.Warn("method returned a nil *message.Error", zap.String("method", req.Method))
		return message.NewServerError("internal server error")
	default:
		d.logger.Debug("method failed", zap.String("method", req.Method), zap.Error(err))
		return message.NewServerError(err.Error())
	}
}

func (d *Dispatcher) encode(resp *message.Response) []byte {
	data, err := d.codec.Encode(resp)
	if err != nil {
		d.logger.Error("failed to encode response", zap.Error(err))
		return nil
	}
	return data
}
