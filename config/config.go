// Package config provides loading and parsing of gemtot.yaml runtime settings.
// Settings select the configuration store, the notifier and the health
// endpoint used by the SDK and the gemtot command.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store back ends.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreEtcd   = "etcd"
	StoreMemory = "memory"
)

// Notifier back ends.
const (
	NotifyLocal = "local"
	NotifyRedis = "redis"
)

// Environment overrides applied by Load and Default.
const (
	EnvStore         = "GEMTOT_STORE"
	EnvRedisURL      = "GEMTOT_REDIS_URL"
	EnvEtcdEndpoints = "GEMTOT_ETCD_ENDPOINTS"
)

// Settings represents a gemtot.yaml file.
type Settings struct {
	// LogLevel is one of debug, info, warn, error. Default: info
	LogLevel string `yaml:"log_level,omitempty"`

	// DeviceName replaces the name used when the beacon name is cleared.
	DeviceName string `yaml:"device_name,omitempty"`

	Store  *StoreConfig  `yaml:"store,omitempty"`
	Notify *NotifyConfig `yaml:"notify,omitempty"`
	Serve  *ServeConfig  `yaml:"serve,omitempty"`
}

// StoreConfig selects and configures the beacon configuration store.
type StoreConfig struct {
	// Type is file, redis, etcd or memory. Default: file
	Type string `yaml:"type,omitempty"`

	// Name is the store holding the beacon. Default: iBeacon
	Name string `yaml:"name,omitempty"`

	// Dir is the file store directory. Default: $HOME/.gemtot
	Dir string `yaml:"dir,omitempty"`

	// Defaults is an optional YAML file seeding a new file store.
	Defaults string `yaml:"defaults,omitempty"`

	Redis *RedisConfig `yaml:"redis,omitempty"`
	Etcd  *EtcdConfig  `yaml:"etcd,omitempty"`
}

// RedisConfig configures the Redis store and notifier.
type RedisConfig struct {
	// URL is the connection string. Default: redis://localhost:6379
	URL string `yaml:"url,omitempty"`

	// Prefix is prepended to every key and channel. Default: gemtot
	Prefix string `yaml:"prefix,omitempty"`
}

// EtcdConfig configures the etcd store.
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints,omitempty"`

	// Namespace is the key prefix. Default: gemtot
	Namespace string `yaml:"namespace,omitempty"`

	// DialTimeout as a Go duration string. Default: 5s
	DialTimeout string `yaml:"dial_timeout,omitempty"`

	TLS *TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig holds client certificate paths.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`
	CAFile   string `yaml:"ca_file,omitempty"`
}

// NotifyConfig selects the broadcast status notifier.
type NotifyConfig struct {
	// Type is local or redis. Default: local
	Type string `yaml:"type,omitempty"`
}

// ServeConfig configures the gRPC health endpoint.
type ServeConfig struct {
	// Port to listen on. Default: 50051
	Port int `yaml:"port,omitempty"`

	// GracefulTimeout as a Go duration string. Default: 30s
	GracefulTimeout string `yaml:"graceful_timeout,omitempty"`

	// PollInterval is how often broadcast status is mirrored into health.
	// Default: 1s
	PollInterval string `yaml:"poll_interval,omitempty"`

	TLSCertFile string `yaml:"tls_cert_file,omitempty"`
	TLSKeyFile  string `yaml:"tls_key_file,omitempty"`
}

// Default returns settings with every section populated with defaults and
// environment overrides applied.
func Default() *Settings {
	s := &Settings{}
	s.applyEnv()
	return s
}

// GetLevel maps LogLevel to a slog level.
func (s *Settings) GetLevel() slog.Level {
	if s == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetStore returns the store section, never nil.
func (s *Settings) GetStore() *StoreConfig {
	if s == nil || s.Store == nil {
		return &StoreConfig{}
	}
	return s.Store
}

// GetNotify returns the notify section, never nil.
func (s *Settings) GetNotify() *NotifyConfig {
	if s == nil || s.Notify == nil {
		return &NotifyConfig{}
	}
	return s.Notify
}

// GetServe returns the serve section, never nil.
func (s *Settings) GetServe() *ServeConfig {
	if s == nil || s.Serve == nil {
		return &ServeConfig{}
	}
	return s.Serve
}

// GetType returns the store type or the default value.
func (c *StoreConfig) GetType() string {
	if c == nil || c.Type == "" {
		return StoreFile
	}
	return c.Type
}

// GetName returns the store name or the default value.
func (c *StoreConfig) GetName() string {
	if c == nil || c.Name == "" {
		return "iBeacon"
	}
	return c.Name
}

// GetDir returns the file store directory or the default value.
func (c *StoreConfig) GetDir() string {
	if c != nil && c.Dir != "" {
		return c.Dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gemtot"
	}
	return filepath.Join(home, ".gemtot")
}

// GetRedis returns the redis section, never nil.
func (c *StoreConfig) GetRedis() *RedisConfig {
	if c == nil || c.Redis == nil {
		return &RedisConfig{}
	}
	return c.Redis
}

// GetEtcd returns the etcd section, never nil.
func (c *StoreConfig) GetEtcd() *EtcdConfig {
	if c == nil || c.Etcd == nil {
		return &EtcdConfig{}
	}
	return c.Etcd
}

// GetURL returns the Redis URL or the default value.
func (c *RedisConfig) GetURL() string {
	if c == nil || c.URL == "" {
		return "redis://localhost:6379"
	}
	return c.URL
}

// GetPrefix returns the Redis key prefix or the default value.
func (c *RedisConfig) GetPrefix() string {
	if c == nil || c.Prefix == "" {
		return "gemtot"
	}
	return c.Prefix
}

// GetNamespace returns the etcd namespace or the default value.
func (c *EtcdConfig) GetNamespace() string {
	if c == nil || c.Namespace == "" {
		return "gemtot"
	}
	return c.Namespace
}

// GetDialTimeout parses the dial timeout and returns a duration.
// Returns the default value if not set or invalid.
func (c *EtcdConfig) GetDialTimeout() time.Duration {
	return parseDuration(c.dialTimeout(), 5*time.Second)
}

func (c *EtcdConfig) dialTimeout() string {
	if c == nil {
		return ""
	}
	return c.DialTimeout
}

// GetType returns the notifier type or the default value.
func (c *NotifyConfig) GetType() string {
	if c == nil || c.Type == "" {
		return NotifyLocal
	}
	return c.Type
}

// GetPort returns the listen port or the default value.
func (c *ServeConfig) GetPort() int {
	if c == nil || c.Port == 0 {
		return 50051
	}
	return c.Port
}

// GetGracefulTimeout parses the graceful timeout and returns a duration.
// Returns the default value if not set or invalid.
func (c *ServeConfig) GetGracefulTimeout() time.Duration {
	if c == nil {
		return 30 * time.Second
	}
	return parseDuration(c.GracefulTimeout, 30*time.Second)
}

// GetPollInterval parses the poll interval and returns a duration.
// Returns the default value if not set or invalid.
func (c *ServeConfig) GetPollInterval() time.Duration {
	if c == nil {
		return time.Second
	}
	return parseDuration(c.PollInterval, time.Second)
}

// GetTLSCertFile returns the TLS certificate path, empty when unset.
func (c *ServeConfig) GetTLSCertFile() string {
	if c == nil {
		return ""
	}
	return c.TLSCertFile
}

// GetTLSKeyFile returns the TLS key path, empty when unset.
func (c *ServeConfig) GetTLSKeyFile() string {
	if c == nil {
		return ""
	}
	return c.TLSKeyFile
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Validate checks enumerated values and required fields.
func (s *Settings) Validate() error {
	store := s.GetStore()
	switch store.GetType() {
	case StoreFile, StoreMemory:
	case StoreRedis:
	case StoreEtcd:
		if len(store.GetEtcd().Endpoints) == 0 {
			return fmt.Errorf("etcd store requires at least one endpoint")
		}
		if tls := store.GetEtcd().TLS; tls != nil && tls.Enabled {
			if tls.CertFile == "" || tls.KeyFile == "" || tls.CAFile == "" {
				return fmt.Errorf("etcd TLS requires cert_file, key_file and ca_file")
			}
		}
	default:
		return fmt.Errorf("unknown store type %q", store.Type)
	}

	switch s.GetNotify().GetType() {
	case NotifyLocal, NotifyRedis:
	default:
		return fmt.Errorf("unknown notify type %q", s.GetNotify().Type)
	}

	if port := s.GetServe().GetPort(); port < 0 || port > 65535 {
		return fmt.Errorf("invalid serve port %d", port)
	}
	return nil
}

// applyEnv overlays environment overrides.
func (s *Settings) applyEnv() {
	if v := os.Getenv(EnvStore); v != "" {
		if s.Store == nil {
			s.Store = &StoreConfig{}
		}
		s.Store.Type = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		if s.Store == nil {
			s.Store = &StoreConfig{}
		}
		if s.Store.Redis == nil {
			s.Store.Redis = &RedisConfig{}
		}
		s.Store.Redis.URL = v
	}
	if v := os.Getenv(EnvEtcdEndpoints); v != "" {
		if s.Store == nil {
			s.Store = &StoreConfig{}
		}
		if s.Store.Etcd == nil {
			s.Store.Etcd = &EtcdConfig{}
		}
		endpoints := strings.Split(v, ",")
		for i, ep := range endpoints {
			endpoints[i] = strings.TrimSpace(ep)
		}
		s.Store.Etcd.Endpoints = endpoints
	}
}

// Load reads and parses a gemtot.yaml file from the given path.
// If the path is a directory, it looks for gemtot.yaml or gemtot.yml in that directory.
// Environment overrides are applied and the result is validated.
func Load(path string) (*Settings, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		configPath = ""
		for _, name := range []string{"gemtot.yaml", "gemtot.yml"} {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("no gemtot.yaml or gemtot.yml found in %s", path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	settings.applyEnv()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return &settings, nil
}
