package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRegistry keeps endpoints in process memory. Entries never expire; ttl
// is accepted for interface compatibility only.
type MemoryRegistry struct {
	mu       sync.Mutex
	services map[string]map[string]Endpoint
	watchers map[string][]chan []Endpoint
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		services: make(map[string]map[string]Endpoint),
		watchers: make(map[string][]chan []Endpoint),
	}
}

func (r *MemoryRegistry) Register(_ context.Context, service string, ep Endpoint, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	eps, ok := r.services[service]
	if !ok {
		eps = make(map[string]Endpoint)
		r.services[service] = eps
	}
	eps[ep.Addr] = ep
	r.notifyLocked(service)
	return nil
}

func (r *MemoryRegistry) Deregister(_ context.Context, service, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if eps, ok := r.services[service]; ok {
		delete(eps, addr)
		if len(eps) == 0 {
			delete(r.services, service)
		}
	}
	r.notifyLocked(service)
	return nil
}

func (r *MemoryRegistry) Discover(_ context.Context, service string) ([]Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	eps := r.snapshotLocked(service)
	if len(eps) == 0 {
		return nil, ErrNoEndpoints
	}
	return eps, nil
}

// Watch delivers the current list immediately, then the latest list after
// each change. Slow readers only ever see the most recent list.
func (r *MemoryRegistry) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	r.mu.Lock()
	ch <- r.snapshotLocked(service)
	r.watchers[service] = append(r.watchers[service], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		ws := r.watchers[service]
		for i, w := range ws {
			if w == ch {
				r.watchers[service] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

func (r *MemoryRegistry) snapshotLocked(service string) []Endpoint {
	eps := make([]Endpoint, 0, len(r.services[service]))
	for _, ep := range r.services[service] {
		eps = append(eps, ep)
	}
	sort.Slice(eps, func(i, j int) bool { return eps[i].Addr < eps[j].Addr })
	return eps
}

func (r *MemoryRegistry) notifyLocked(service string) {
	eps := r.snapshotLocked(service)
	for _, ch := range r.watchers[service] {
		select {
		case <-ch:
		default:
		}
		ch <- eps
	}
}
