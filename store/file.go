package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/passkit/gemtot/beacon"
)

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithDefaultsFile seeds new stores from a YAML file instead of
// beacon.Default.
func WithDefaultsFile(path string) FileOption {
	return func(s *FileStore) {
		s.defaults = path
	}
}

// WithoutSeed makes Load report ErrNotFound for missing stores.
func WithoutSeed() FileOption {
	return func(s *FileStore) {
		s.seed = false
	}
}

// WithFileLogger sets the logger.
func WithFileLogger(logger *slog.Logger) FileOption {
	return func(s *FileStore) {
		s.logger = logger
	}
}

// FileStore keeps each configuration in <dir>/<name>.yaml.
type FileStore struct {
	dir      string
	defaults string
	seed     bool
	logger   *slog.Logger

	mu sync.Mutex
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store directory cannot be empty")
	}
	s := &FileStore{dir: dir, seed: true, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return s, nil
}

// Dir returns the directory holding the store files.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the file holding the named store.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, name+".yaml")
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, name string) (beacon.Config, error) {
	if err := ctx.Err(); err != nil {
		return beacon.Config{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.read(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		if !s.seed {
			return beacon.Config{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		cfg, err = s.seedConfig()
		if err != nil {
			return beacon.Config{}, err
		}
		if err := s.write(s.Path(name), cfg); err != nil {
			return beacon.Config{}, err
		}
		s.logger.Info("seeded beacon store", "store", name, "path", s.Path(name))
	} else if err != nil {
		return beacon.Config{}, err
	}

	return checkLoaded(name, cfg)
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, name string, cfg beacon.Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(name)
	if old, err := s.read(path); err == nil && old == cfg {
		return nil
	}
	return s.write(path, cfg)
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) seedConfig() (beacon.Config, error) {
	if s.defaults == "" {
		return beacon.Default(), nil
	}
	cfg, err := s.read(s.defaults)
	if err != nil {
		return beacon.Config{}, fmt.Errorf("failed to read defaults file: %w", err)
	}
	return cfg, nil
}

func (s *FileStore) read(path string) (beacon.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return beacon.Config{}, err
	}

	var cfg beacon.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return beacon.Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// write replaces path atomically through a temporary file in the same
// directory.
func (s *FileStore) write(path string, cfg beacon.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal beacon config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".gemtot-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
