package handler

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/rl1809/marketplace/internal/port"
)

// ServiceName is the gRPC health service name reported for the marketplace API.
const ServiceName = "marketplace.v1.Marketplace"

// HealthReporter mirrors store reachability into the standard gRPC health service.
type HealthReporter struct {
	server   *health.Server
	checks   map[string]port.Pinger
	interval time.Duration
	logger   *slog.Logger
}

func NewHealthReporter(checks map[string]port.Pinger, interval time.Duration, logger *slog.Logger) *HealthReporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthReporter{
		server:   health.NewServer(),
		checks:   checks,
		interval: interval,
		logger:   logger,
	}
}

// NewGRPCServer registers health and reflection on a new server.
func NewGRPCServer(h *HealthReporter, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	grpc_health_v1.RegisterHealthServer(s, h.server)
	reflection.Register(s)
	return s
}

// Check pings every store once and publishes the aggregate status.
func (h *HealthReporter) Check(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	for name, p := range h.checks {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := p.Ping(pctx)
		cancel()
		if err != nil {
			h.logger.Warn("health check failed", "store", name, "error", err)
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
	return status
}

// Run refreshes the status until ctx is done, then reports NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context) {
	h.Check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}
