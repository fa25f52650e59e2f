// Package registry announces servers under a service name and lets clients
// discover them.
//
// Two implementations are provided: EtcdRegistry, backed by etcd leases, and
// MemoryRegistry, an in-process table for tests and single-host setups.
package registry

import (
	"context"
	"errors"
	"time"
)

// ErrNoEndpoints is returned by Discover when nothing is registered under a service.
var ErrNoEndpoints = errors.New("registry: no endpoints")

// Endpoint is one announced server instance.
type Endpoint struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight,omitempty"`  // relative weight for load balancing
	Version string `json:"version,omitempty"`
	Framing string `json:"framing,omitempty"` // wire framing the server speaks
}

// Registry is implemented by service directories.
type Registry interface {
	// Register announces ep under service. An entry with a positive ttl
	// disappears if the announcer stops renewing it.
	Register(ctx context.Context, service string, ep Endpoint, ttl time.Duration) error
	Deregister(ctx context.Context, service, addr string) error
	Discover(ctx context.Context, service string) ([]Endpoint, error)
	// Watch emits the full endpoint list after every change until ctx is done.
	Watch(ctx context.Context, service string) <-chan []Endpoint
}
