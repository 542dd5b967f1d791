// Package store persists beacon configurations.
//
// A Store holds one beacon.Config per store name. The SDK uses a single
// store named "iBeacon". Back ends are a YAML file per store, a Redis hash,
// an etcd key and an in-memory map. Stores seed a missing configuration with
// defaults the first time it is loaded, and skip writes that would not
// change the stored value.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/passkit/gemtot/beacon"
	"github.com/passkit/gemtot/config"
)

// DefaultName is the store name holding the SDK's beacon.
const DefaultName = "iBeacon"

var (
	// ErrNotFound indicates no configuration exists and seeding is disabled.
	ErrNotFound = errors.New("beacon configuration not found")

	// ErrInvalidConfig indicates a stored configuration failed validation.
	ErrInvalidConfig = errors.New("invalid stored beacon configuration")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store is closed")
)

// Store loads and saves beacon configurations. Implementations are safe for
// concurrent use.
type Store interface {
	// Load returns the configuration held under name. A missing configuration
	// is seeded with defaults unless the store was created without seeding.
	Load(ctx context.Context, name string) (beacon.Config, error)

	// Save writes cfg under name. Saving a value equal to the stored one is a
	// no-op.
	Save(ctx context.Context, name string, cfg beacon.Config) error

	// Close releases the back end.
	Close() error
}

// Update loads the configuration under name, applies fn and saves the result
// if it validates. Update is not atomic across processes.
func Update(ctx context.Context, s Store, name string, fn func(*beacon.Config) error) (beacon.Config, error) {
	cfg, err := s.Load(ctx, name)
	if err != nil {
		return beacon.Config{}, err
	}
	if err := fn(&cfg); err != nil {
		return beacon.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return beacon.Config{}, err
	}
	if err := s.Save(ctx, name, cfg); err != nil {
		return beacon.Config{}, err
	}
	return cfg, nil
}

// Open creates the store selected by settings.
func Open(ctx context.Context, settings *config.Settings, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sc := settings.GetStore()

	switch sc.GetType() {
	case config.StoreFile:
		opts := []FileOption{WithFileLogger(logger)}
		if sc.Defaults != "" {
			opts = append(opts, WithDefaultsFile(sc.Defaults))
		}
		return NewFileStore(sc.GetDir(), opts...)
	case config.StoreRedis:
		rc := sc.GetRedis()
		return NewRedisStore(ctx, RedisOptions{
			URL:    rc.GetURL(),
			Prefix: rc.GetPrefix(),
			Logger: logger,
		})
	case config.StoreEtcd:
		return NewEtcdStore(ctx, sc.GetEtcd(), logger)
	case config.StoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", sc.Type)
	}
}

func checkLoaded(name string, cfg beacon.Config) (beacon.Config, error) {
	if err := cfg.Validate(); err != nil {
		return beacon.Config{}, fmt.Errorf("%w %q: %v", ErrInvalidConfig, name, err)
	}
	return cfg, nil
}
