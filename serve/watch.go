package serve

import (
	"context"
	"time"

	"google.golang.org/grpc/health/grpc_health_v1"
)

// StatusReporter reports whether the beacon is on air.
type StatusReporter interface {
	Status() bool
}

// Watch mirrors r's broadcast status into the ServiceName health service
// until ctx is done. A zero interval uses the configured PollInterval.
func (s *Server) Watch(ctx context.Context, r StatusReporter, interval time.Duration) {
	if interval <= 0 {
		interval = s.config.PollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := s.update(r.Status(), nil)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last = s.update(r.Status(), &last)
		}
	}
}

func (s *Server) update(broadcasting bool, last *bool) bool {
	if last != nil && *last == broadcasting {
		return broadcasting
	}

	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if broadcasting {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus(ServiceName, status)
	s.logger.Debug("beacon health updated", "service", ServiceName, "status", status.String())
	return broadcasting
}
