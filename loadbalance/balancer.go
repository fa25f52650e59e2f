// Package loadbalance picks the endpoint a client dials when it discovers
// servers through a registry.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity servers
//   - WeightedRandom:  servers of different capacity, by Endpoint.Weight
//   - ConsistentHash:  sticky placement of a key on one server
package loadbalance

import (
	"errors"
	"fmt"

	"mini-jsonrpc/registry"
)

// ErrNoEndpoints is returned when Pick is given an empty list.
var ErrNoEndpoints = errors.New("loadbalance: no endpoints available")

// Balancer selects one endpoint out of the currently known ones. The key is
// only meaningful to key-aware strategies; others ignore it. Implementations
// must be safe for concurrent use.
type Balancer interface {
	Pick(key string, eps []registry.Endpoint) (registry.Endpoint, error)
	Name() string
}

// New returns the strategy registered under name.
func New(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(), nil
	default:
		return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
	}
}
