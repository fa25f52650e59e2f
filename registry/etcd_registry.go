package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// DefaultPrefix is the key namespace used by EtcdRegistry.
//
//	Key:   {prefix}{service}/{addr}
//	Value: JSON-encoded Endpoint
const DefaultPrefix = "/mini-jsonrpc/"

// EtcdOption configures an EtcdRegistry.
type EtcdOption func(*etcdOptions)

type etcdOptions struct {
	prefix      string
	dialTimeout time.Duration
	logger      *zap.Logger
}

// WithPrefix overrides the key namespace.
func WithPrefix(prefix string) EtcdOption {
	return func(o *etcdOptions) {
		o.prefix = prefix
	}
}

// WithDialTimeout bounds the initial connection to etcd.
func WithDialTimeout(d time.Duration) EtcdOption {
	return func(o *etcdOptions) {
		o.dialTimeout = d
	}
}

// WithLogger sets the logger used by the registry and the etcd client.
func WithLogger(logger *zap.Logger) EtcdOption {
	return func(o *etcdOptions) {
		o.logger = logger
	}
}

// EtcdRegistry implements Registry on etcd v3. Registrations are attached to a
// lease kept alive in the background, so a crashed server's entries expire on
// their own.
type EtcdRegistry struct {
	client *clientv3.Client
	prefix string
	logger *zap.Logger

	mu     sync.Mutex
	leases map[string]registration // key -> lease and keepalive cancel
}

type registration struct {
	lease  clientv3.LeaseID
	cancel context.CancelFunc
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, opts ...EtcdOption) (*EtcdRegistry, error) {
	o := etcdOptions{
		prefix:      DefaultPrefix,
		dialTimeout: 5 * time.Second,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: o.dialTimeout,
		Logger:      o.logger.Named("etcd"),
	})
	if err != nil {
		return nil, fmt.Errorf("registry: connect etcd: %w", err)
	}
	return &EtcdRegistry{
		client: c,
		prefix: o.prefix,
		logger: o.logger,
		leases: make(map[string]registration),
	}, nil
}

func (r *EtcdRegistry) key(service, addr string) string {
	return r.servicePrefix(service) + addr
}

func (r *EtcdRegistry) servicePrefix(service string) string {
	return r.prefix + service + "/"
}

// Register puts ep under a lease of ttl (rounded up to whole seconds, at
// least one) and renews the lease until Deregister or Close.
func (r *EtcdRegistry) Register(ctx context.Context, service string, ep Endpoint, ttl time.Duration) error {
	seconds := int64((ttl + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	lease, err := r.client.Grant(ctx, seconds)
	if err != nil {
		return fmt.Errorf("registry: grant lease: %w", err)
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}

	key := r.key(service, ep.Addr)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("registry: put %s: %w", key, err)
	}

	// The keepalive outlives ctx, which only bounds the registration itself.
	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("registry: keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
		r.logger.Debug("lease keepalive stopped", zap.String("key", key))
	}()

	r.mu.Lock()
	if old, ok := r.leases[key]; ok {
		old.cancel()
	}
	r.leases[key] = registration{lease: lease.ID, cancel: cancel}
	r.mu.Unlock()

	r.logger.Info("endpoint registered", zap.String("service", service), zap.String("addr", ep.Addr))
	return nil
}

// Deregister deletes the entry and stops renewing its lease.
func (r *EtcdRegistry) Deregister(ctx context.Context, service, addr string) error {
	key := r.key(service, addr)

	r.mu.Lock()
	reg, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if ok {
		reg.cancel()
		if _, err := r.client.Revoke(ctx, reg.lease); err != nil {
			r.logger.Warn("lease revoke failed", zap.String("key", key), zap.Error(err))
		}
	}
	if _, err := r.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("registry: delete %s: %w", key, err)
	}
	return nil
}

// Discover lists every endpoint under service. Malformed entries are skipped.
func (r *EtcdRegistry) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, r.servicePrefix(service), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("registry: get %s: %w", service, err)
	}

	eps := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			r.logger.Warn("skipping malformed endpoint", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		eps = append(eps, ep)
	}
	if len(eps) == 0 {
		return nil, ErrNoEndpoints
	}
	return eps, nil
}

// Watch re-reads the full list whenever anything under service changes,
// including lease expirations. The channel closes when ctx is done.
func (r *EtcdRegistry) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	go func() {
		defer close(ch)
		for range r.client.Watch(ctx, r.servicePrefix(service), clientv3.WithPrefix()) {
			eps, err := r.Discover(ctx, service)
			if err != nil && !errors.Is(err, ErrNoEndpoints) {
				r.logger.Warn("watch refresh failed", zap.String("service", service), zap.Error(err))
				continue
			}
			select {
			case ch <- eps:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Close stops all keepalives and closes the etcd client. Registered entries
// expire once their leases run out.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for key, reg := range r.leases {
		reg.cancel()
		delete(r.leases, key)
	}
	r.mu.Unlock()
	return r.client.Close()
}
