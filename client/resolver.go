package client

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"mini-jsonrpc/registry"
)

// resolver keeps the endpoint list of one service current by following the
// registry's watch stream, so picking an endpoint on reconnect does not cost a
// registry round trip.
type resolver struct {
	reg     registry.Registry
	service string
	logger  *zap.Logger
	cancel  context.CancelFunc

	mu  sync.RWMutex
	eps []registry.Endpoint
}

func newResolver(ctx context.Context, reg registry.Registry, service string, logger *zap.Logger) (*resolver, error) {
	eps, err := reg.Discover(ctx, service)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &resolver{
		reg:     reg,
		service: service,
		logger:  logger,
		cancel:  cancel,
		eps:     eps,
	}
	updates := reg.Watch(watchCtx, service)
	go func() {
		for eps := range updates {
			r.set(eps)
		}
	}()
	return r, nil
}

func (r *resolver) set(eps []registry.Endpoint) {
	r.mu.Lock()
	r.eps = eps
	r.mu.Unlock()
	r.logger.Debug("endpoints updated", zap.String("service", r.service), zap.Int("count", len(eps)))
}

// endpoints returns the cached list, asking the registry only when the cache
// is empty.
func (r *resolver) endpoints(ctx context.Context) ([]registry.Endpoint, error) {
	r.mu.RLock()
	eps := r.eps
	r.mu.RUnlock()
	if len(eps) > 0 {
		return eps, nil
	}
	return r.refresh(ctx)
}

// refresh replaces the cache with a fresh registry read. It is used after a
// dial failure, when the watch may not have caught up with a departed server.
func (r *resolver) refresh(ctx context.Context) ([]registry.Endpoint, error) {
	eps, err := r.reg.Discover(ctx, r.service)
	if err != nil {
		r.set(nil)
		return nil, err
	}
	r.set(eps)
	return eps, nil
}

func (r *resolver) close() {
	r.cancel()
}
