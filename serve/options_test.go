package serve

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/passkit/gemtot/config"
)

func TestWithPort(t *testing.T) {
	cfg := DefaultConfig()
	opt := WithPort(8080)
	opt(cfg)

	assert.Equal(t, 8080, cfg.Port)
}

func TestWithGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	opt := WithGracefulShutdown(60 * time.Second)
	opt(cfg)

	assert.Equal(t, 60*time.Second, cfg.GracefulTimeout)
}

func TestWithTLS(t *testing.T) {
	cfg := DefaultConfig()
	opt := WithTLS("/etc/certs/server.crt", "/etc/certs/server.key")
	opt(cfg)

	assert.Equal(t, "/etc/certs/server.crt", cfg.TLSCertFile)
	assert.Equal(t, "/etc/certs/server.key", cfg.TLSKeyFile)
}

func TestMultipleOptions(t *testing.T) {
	cfg := DefaultConfig()
	logger := slog.Default()

	opts := []Option{
		WithPort(9090),
		WithGracefulShutdown(45 * time.Second),
		WithPollInterval(250 * time.Millisecond),
		WithTLS("cert.pem", "key.pem"),
		WithLogger(logger),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 45*time.Second, cfg.GracefulTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "cert.pem", cfg.TLSCertFile)
	assert.Equal(t, "key.pem", cfg.TLSKeyFile)
	assert.Same(t, logger, cfg.Logger)
}

func TestFromSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := FromSettings(nil)
		assert.Equal(t, 50051, cfg.Port)
		assert.Equal(t, 30*time.Second, cfg.GracefulTimeout)
		assert.Equal(t, time.Second, cfg.PollInterval)
		assert.Empty(t, cfg.TLSCertFile)
	})

	t.Run("explicit", func(t *testing.T) {
		cfg := FromSettings(&config.ServeConfig{
			Port:            6000,
			GracefulTimeout: "5s",
			PollInterval:    "100ms",
			TLSCertFile:     "cert.pem",
			TLSKeyFile:      "key.pem",
		})
		assert.Equal(t, 6000, cfg.Port)
		assert.Equal(t, 5*time.Second, cfg.GracefulTimeout)
		assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
		assert.Equal(t, "cert.pem", cfg.TLSCertFile)
		assert.Equal(t, "key.pem", cfg.TLSKeyFile)
	})
}
