package serve

import (
	"log/slog"
	"time"
)

// Option is a functional option for configuring a Server.
type Option func(*Config)

// WithPort sets the TCP port for the gRPC server.
// Use port 0 to automatically select an available port.
func WithPort(port int) Option {
	return func(c *Config) {
		c.Port = port
	}
}

// WithGracefulShutdown sets the maximum duration to wait for active
// requests to complete during graceful shutdown.
// After this timeout, the server will force shutdown.
func WithGracefulShutdown(timeout time.Duration) Option {
	return func(c *Config) {
		c.GracefulTimeout = timeout
	}
}

// WithPollInterval sets how often Watch samples the broadcaster.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = d
	}
}

// WithTLS enables TLS encryption for the gRPC server.
// If either path is empty, TLS will be disabled.
//
// Example:
//
//	serve.NewServer(nil, serve.WithTLS("/etc/certs/server.crt", "/etc/certs/server.key"))
func WithTLS(certFile, keyFile string) Option {
	return func(c *Config) {
		c.TLSCertFile = certFile
		c.TLSKeyFile = keyFile
	}
}

// WithLogger sets the logger for lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
