// Package grpc exposes the standard gRPC health service so orchestrators can
// check the marketplace alongside its HTTP API.
package grpc

import (
	"context"
	"log/slog"
	"net"
	"sort"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	defaultCheckInterval = 5 * time.Second
	checkTimeout         = 2 * time.Second
)

// PingFunc reports whether a dependency is reachable.
type PingFunc func(ctx context.Context) error

// HealthServer serves grpc.health.v1. Each named check is reported as its own
// service; the overall status ("") is SERVING only while every check passes.
type HealthServer struct {
	server   *grpc.Server
	health   *health.Server
	checks   map[string]PingFunc
	interval time.Duration
	logger   *slog.Logger
}

func NewHealthServer(checks map[string]PingFunc, interval time.Duration, logger *slog.Logger) *HealthServer {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(srv)

	s := &HealthServer{
		server:   srv,
		health:   hs,
		checks:   checks,
		interval: interval,
		logger:   logger,
	}
	s.setAll(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *HealthServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Watch runs every check once per interval until ctx is done.
func (s *HealthServer) Watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runChecks(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runChecks(ctx)
		}
	}
}

func (s *HealthServer) runChecks(ctx context.Context) {
	overall := healthpb.HealthCheckResponse_SERVING
	for _, name := range s.names() {
		pctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := s.checks[name](pctx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = status
			s.logger.Warn("health check failed", "check", name, "error", err)
		}
		s.health.SetServingStatus(name, status)
	}
	s.health.SetServingStatus("", overall)
}

func (s *HealthServer) setAll(status healthpb.HealthCheckResponse_ServingStatus) {
	for name := range s.checks {
		s.health.SetServingStatus(name, status)
	}
	s.health.SetServingStatus("", status)
}

func (s *HealthServer) names() []string {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GracefulStop reports NOT_SERVING to watchers and drains the server.
func (s *HealthServer) GracefulStop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
