package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/passkit/gemtot/beacon"
)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// Prefix namespaces store keys as <prefix>:store:<name>. Default: gemtot
	Prefix string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration

	// NoSeed makes Load report ErrNotFound for missing stores.
	NoSeed bool

	Logger *slog.Logger
}

// seedScript writes every field of a new hash at once and leaves an existing
// hash untouched. Returns 1 when the hash was created.
var seedScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`)

// configFields are written by every Save and must all be present on Load.
var configFields = []string{"name", "uuid", "major", "minor", "power", "broadcasting"}

// RedisStore keeps each configuration in a Redis hash.
type RedisStore struct {
	client *redis.Client
	prefix string
	seed   bool
	logger *slog.Logger
}

// NewRedisClient parses opts, connects and pings the server.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if opts.TLS != nil {
		redisOpts.TLSConfig = opts.TLS
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisStore connects to Redis and returns a store.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client, err := NewRedisClient(ctx, opts)
	if err != nil {
		return nil, err
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "gemtot"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		seed:   !opts.NoSeed,
		logger: logger,
	}, nil
}

// Key returns the hash key of the named store.
func (s *RedisStore) Key(name string) string {
	return fmt.Sprintf("%s:store:%s", s.prefix, name)
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, name string) (beacon.Config, error) {
	key := s.Key(name)

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return beacon.Config{}, fmt.Errorf("failed to read store %s: %w", name, err)
	}

	if len(fields) == 0 {
		if !s.seed {
			return beacon.Config{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		cfg := beacon.Default()
		created, err := seedScript.Run(ctx, s.client, []string{key}, encodeFields(cfg)...).Int()
		if err != nil {
			return beacon.Config{}, fmt.Errorf("failed to seed store %s: %w", name, err)
		}
		if created == 1 {
			s.logger.Info("seeded beacon store", "store", name, "key", key)
			return cfg, nil
		}
		if fields, err = s.client.HGetAll(ctx, key).Result(); err != nil {
			return beacon.Config{}, fmt.Errorf("failed to read store %s: %w", name, err)
		}
	}

	cfg, err := decodeFields(fields)
	if err != nil {
		return beacon.Config{}, fmt.Errorf("%w %q: %v", ErrInvalidConfig, name, err)
	}
	return checkLoaded(name, cfg)
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, name string, cfg beacon.Config) error {
	key := s.Key(name)

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read store %s: %w", name, err)
	}
	if old, err := decodeFields(fields); err == nil && len(fields) > 0 && old == cfg {
		return nil
	}

	if err := s.client.HSet(ctx, key, encodeFields(cfg)...).Err(); err != nil {
		return fmt.Errorf("failed to write store %s: %w", name, err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// encodeFields flattens cfg into HSET field-value pairs.
func encodeFields(cfg beacon.Config) []interface{} {
	return []interface{}{
		"name", cfg.Name,
		"uuid", cfg.UUID,
		"major", strconv.FormatUint(uint64(cfg.Major), 10),
		"minor", strconv.FormatUint(uint64(cfg.Minor), 10),
		"power", strconv.Itoa(int(cfg.Power)),
		"broadcasting", strconv.FormatBool(cfg.Broadcasting),
	}
}

func decodeFields(fields map[string]string) (beacon.Config, error) {
	for _, f := range configFields {
		if _, ok := fields[f]; !ok {
			return beacon.Config{}, fmt.Errorf("missing field %q", f)
		}
	}

	cfg := beacon.Config{
		Name: fields["name"],
		UUID: fields["uuid"],
	}

	if v, ok := fields["major"]; ok {
		major, err := beacon.ParseMajor(v)
		if err != nil {
			return beacon.Config{}, err
		}
		cfg.Major = major
	}
	if v, ok := fields["minor"]; ok {
		minor, err := beacon.ParseMinor(v)
		if err != nil {
			return beacon.Config{}, err
		}
		cfg.Minor = minor
	}
	if v, ok := fields["power"]; ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return beacon.Config{}, fmt.Errorf("%w: %q", beacon.ErrInvalidPower, v)
		}
		if cfg.Power, err = beacon.CheckPower(p); err != nil {
			return beacon.Config{}, err
		}
	}
	if v, ok := fields["broadcasting"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return beacon.Config{}, fmt.Errorf("invalid broadcasting flag %q", v)
		}
		cfg.Broadcasting = b
	}
	return cfg, nil
}
