package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"mini-jsonrpc/registry"
)

const defaultReplicas = 100

// ConsistentHashBalancer maps keys onto a hash ring of endpoints, so the same
// key lands on the same endpoint for as long as the endpoint set is stable.
// Each endpoint occupies many virtual nodes to even out the distribution.
//
//	         0
//	       ╱   ╲
//	  B ●         ● A
//	    │  key ◆──►  (clockwise to the next node: A)
//	  C ●         ● A'
//	       ╲   ╱
//
// The ring is rebuilt lazily whenever Pick sees a different endpoint set.
type ConsistentHashBalancer struct {
	replicas int

	mu    sync.Mutex
	sig   string
	ring  []uint32
	nodes map[uint32]registry.Endpoint
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{replicas: defaultReplicas}
}

func (b *ConsistentHashBalancer) Pick(key string, eps []registry.Endpoint) (registry.Endpoint, error) {
	if len(eps) == 0 {
		return registry.Endpoint{}, ErrNoEndpoints
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if sig := signature(eps); sig != b.sig {
		b.rebuild(eps)
		b.sig = sig
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) rebuild(eps []registry.Endpoint) {
	b.ring = make([]uint32, 0, len(eps)*b.replicas)
	b.nodes = make(map[uint32]registry.Endpoint, len(eps)*b.replicas)
	for _, ep := range eps {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", ep.Addr, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = ep
		}
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

func (b *ConsistentHashBalancer) Name() string {
	return "consistent_hash"
}

// signature identifies an endpoint set independent of order.
func signature(eps []registry.Endpoint) string {
	addrs := make([]string, len(eps))
	for i, ep := range eps {
		addrs[i] = ep.Addr
	}
	sort.Strings(addrs)
	return strings.Join(addrs, ",")
}
