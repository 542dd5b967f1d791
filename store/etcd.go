package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/passkit/gemtot/beacon"
	"github.com/passkit/gemtot/config"
)

// EtcdStore keeps each configuration as a JSON value under
// /<namespace>/store/<name>.
//
// Thread-safety: All methods are safe for concurrent use.
type EtcdStore struct {
	kv        clientv3.KV
	client    io.Closer
	namespace string
	seed      bool
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// EtcdOption configures an EtcdStore.
type EtcdOption func(*EtcdStore)

// WithoutEtcdSeed makes Load report ErrNotFound for missing stores.
func WithoutEtcdSeed() EtcdOption {
	return func(s *EtcdStore) {
		s.seed = false
	}
}

// NewEtcdStore connects to the cluster described by cfg and verifies
// connectivity with a read.
func NewEtcdStore(ctx context.Context, cfg *config.EtcdConfig, logger *slog.Logger, opts ...EtcdOption) (*EtcdStore, error) {
	if cfg == nil || len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.GetDialTimeout(),
	}

	tlsConfig, err := clientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}
	clientCfg.TLS = tlsConfig

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, cfg.GetDialTimeout())
	defer cancel()

	if _, err := cli.Get(checkCtx, "health-check"); err != nil {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return newEtcdStore(cli, cli, cfg.GetNamespace(), logger, opts...), nil
}

// newEtcdStore builds a store over kv. closer is closed by Close and may be
// nil.
func newEtcdStore(kv clientv3.KV, closer io.Closer, namespace string, logger *slog.Logger, opts ...EtcdOption) *EtcdStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &EtcdStore{
		kv:        kv,
		client:    closer,
		namespace: namespace,
		seed:      true,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the etcd key of the named store.
func (s *EtcdStore) Key(name string) string {
	return path.Join("/", s.namespace, "store", name)
}

// Load implements Store. A missing configuration is seeded in a transaction
// that only writes when the key does not exist yet.
func (s *EtcdStore) Load(ctx context.Context, name string) (beacon.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return beacon.Config{}, ErrClosed
	}

	key := s.Key(name)
	resp, err := s.kv.Get(ctx, key)
	if err != nil {
		return beacon.Config{}, fmt.Errorf("failed to read store %s: %w", name, err)
	}

	if len(resp.Kvs) == 0 {
		if !s.seed {
			return beacon.Config{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}

		cfg := beacon.Default()
		data, err := json.Marshal(cfg)
		if err != nil {
			return beacon.Config{}, fmt.Errorf("failed to marshal beacon config: %w", err)
		}

		txn, err := s.kv.Txn(ctx).
			If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
			Then(clientv3.OpPut(key, string(data))).
			Commit()
		if err != nil {
			return beacon.Config{}, fmt.Errorf("failed to seed store %s: %w", name, err)
		}
		if txn.Succeeded {
			s.logger.Info("seeded beacon store", "store", name, "key", key)
			return cfg, nil
		}

		// Another loader seeded the key first.
		if resp, err = s.kv.Get(ctx, key); err != nil {
			return beacon.Config{}, fmt.Errorf("failed to read store %s: %w", name, err)
		}
		if len(resp.Kvs) == 0 {
			return beacon.Config{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
	}

	var cfg beacon.Config
	if err := json.Unmarshal(resp.Kvs[0].Value, &cfg); err != nil {
		return beacon.Config{}, fmt.Errorf("%w %q: %v", ErrInvalidConfig, name, err)
	}
	return checkLoaded(name, cfg)
}

// Save implements Store.
func (s *EtcdStore) Save(ctx context.Context, name string, cfg beacon.Config) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	key := s.Key(name)
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal beacon config: %w", err)
	}

	resp, err := s.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read store %s: %w", name, err)
	}
	if len(resp.Kvs) > 0 {
		var old beacon.Config
		if json.Unmarshal(resp.Kvs[0].Value, &old) == nil && old == cfg {
			return nil
		}
	}

	if _, err := s.kv.Put(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to write store %s: %w", name, err)
	}
	return nil
}

// Close closes the etcd client.
func (s *EtcdStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
