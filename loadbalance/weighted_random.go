package loadbalance

import (
	"math/rand/v2"

	"mini-jsonrpc/registry"
)

// WeightedRandomBalancer picks an endpoint with probability proportional to
// its weight. Endpoints without a positive weight count as weight 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(_ string, eps []registry.Endpoint) (registry.Endpoint, error) {
	if len(eps) == 0 {
		return registry.Endpoint{}, ErrNoEndpoints
	}

	total := 0
	for _, ep := range eps {
		total += weight(ep)
	}

	r := rand.IntN(total)
	for _, ep := range eps {
		r -= weight(ep)
		if r < 0 {
			return ep, nil
		}
	}
	return eps[len(eps)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "weighted_random"
}

func weight(ep registry.Endpoint) int {
	if ep.Weight <= 0 {
		return 1
	}
	return ep.Weight
}
