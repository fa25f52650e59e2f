package loadbalance

import (
	"sync/atomic"

	"mini-jsonrpc/registry"
)

// RoundRobinBalancer cycles through the endpoints in order.
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

func (b *RoundRobinBalancer) Pick(_ string, eps []registry.Endpoint) (registry.Endpoint, error) {
	if len(eps) == 0 {
		return registry.Endpoint{}, ErrNoEndpoints
	}
	i := (b.counter.Add(1) - 1) % uint64(len(eps))
	return eps[i], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "round_robin"
}
