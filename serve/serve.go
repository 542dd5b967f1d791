package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/passkit/gemtot/config"
)

// ServiceName is the health service reflecting the beacon's broadcast status.
const ServiceName = "gemtot.Beacon"

// Config holds serve configuration.
// It defines the server's network settings, the broadcast status polling
// interval, graceful shutdown behavior, and optional TLS settings.
type Config struct {
	// Port is the TCP port on which the gRPC server listens.
	// Default: 50051
	Port int

	// GracefulTimeout is the maximum duration to wait for active requests
	// to complete during graceful shutdown.
	// Default: 30 seconds
	GracefulTimeout time.Duration

	// PollInterval is how often Watch samples the broadcaster.
	// Default: 1 second
	PollInterval time.Duration

	// TLSCertFile is the path to the TLS certificate file.
	// If empty, TLS is disabled.
	TLSCertFile string

	// TLSKeyFile is the path to the TLS private key file.
	// If empty, TLS is disabled.
	TLSKeyFile string

	// Logger receives lifecycle messages. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns default serve configuration.
// These defaults are suitable for local development and testing.
func DefaultConfig() *Config {
	return &Config{
		Port:            50051,
		GracefulTimeout: 30 * time.Second,
		PollInterval:    time.Second,
	}
}

// FromSettings builds a Config from the serve section of the SDK settings.
func FromSettings(sc *config.ServeConfig) *Config {
	return &Config{
		Port:            sc.GetPort(),
		GracefulTimeout: sc.GetGracefulTimeout(),
		PollInterval:    sc.GetPollInterval(),
		TLSCertFile:     sc.GetTLSCertFile(),
		TLSKeyFile:      sc.GetTLSKeyFile(),
	}
}

// Server wraps a gRPC server with lifecycle management.
// It handles server initialization, startup, graceful shutdown,
// and health check registration.
type Server struct {
	grpcServer   *grpc.Server
	listener     net.Listener
	config       *Config
	healthServer *health.Server
	logger       *slog.Logger
}

// NewServer creates a new gRPC server with the provided configuration.
// It sets up the gRPC server with appropriate options (e.g., TLS)
// and registers the health check service. Options are applied on top of
// a copy of cfg.
func NewServer(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		c := *cfg
		cfg = &c
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Create listener
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", cfg.Port, err)
	}

	// Build gRPC server options
	var serverOpts []grpc.ServerOption

	// Configure TLS if cert and key are provided
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			listener.Close()
			return nil, fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}

	// Create gRPC server
	grpcServer := grpc.NewServer(serverOpts...)

	// Create and register health check service. The beacon service is not
	// serving until Watch sees it broadcasting.
	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	return &Server{
		grpcServer:   grpcServer,
		listener:     listener,
		config:       cfg,
		healthServer: healthServer,
		logger:       logger,
	}, nil
}

// GRPCServer returns the underlying gRPC server.
// This allows callers to register additional services.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// HealthServer returns the health check server.
// This allows callers to set service health status.
func (s *Server) HealthServer() *health.Server {
	return s.healthServer
}

// Serve starts the gRPC server and blocks until shutdown.
// It handles graceful shutdown on SIGINT/SIGTERM signals.
// The context can be used to initiate shutdown programmatically.
func (s *Server) Serve(ctx context.Context) error {
	// Create error channel for serve errors
	errCh := make(chan error, 1)

	// Start serving in a goroutine
	go func() {
		if err := s.grpcServer.Serve(s.listener); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	s.logger.Info("health server listening", "port", s.Port())

	// Wait for shutdown signal, context cancellation, or error
	select {
	case <-ctx.Done():
		// Context cancelled - graceful shutdown
		s.GracefulStop()
		return ctx.Err()
	case sig := <-sigCh:
		// Signal received - graceful shutdown
		s.logger.Info("received signal, shutting down gracefully", "signal", sig.String())
		s.GracefulStop()
		return nil
	case err := <-errCh:
		// Server error
		return err
	}
}

// Stop immediately stops the gRPC server.
// Active RPCs will be terminated abruptly.
// This should only be used when graceful shutdown is not required.
func (s *Server) Stop() {
	s.healthServer.Shutdown()
	s.grpcServer.Stop()
}

// GracefulStop gracefully stops the gRPC server.
// It stops accepting new connections and waits for active RPCs
// to complete within the configured timeout period.
func (s *Server) GracefulStop() {
	// Report NOT_SERVING to health watchers before draining
	s.healthServer.Shutdown()

	// Create a timeout context for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.config.GracefulTimeout)
	defer cancel()

	// Channel to signal graceful stop completion
	done := make(chan struct{})

	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	// Wait for graceful stop or timeout
	select {
	case <-done:
		// Graceful stop completed
		s.logger.Info("server stopped gracefully")
	case <-ctx.Done():
		// Timeout - force stop
		s.logger.Warn("graceful shutdown timeout, forcing stop",
			"timeout", s.config.GracefulTimeout)
		s.grpcServer.Stop()
	}
}

// Port returns the port the server is listening on.
// This is useful when using port 0 to get an available port.
func (s *Server) Port() int {
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.config.Port
}
