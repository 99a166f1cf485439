// Package health serves the standard gRPC health checking protocol for the
// data server, so orchestrators that speak grpc.health.v1 can probe it.
//
// Status follows the storage backend: a background loop pings it and flips
// both the overall status ("") and the ServiceName entry between SERVING and
// NOT_SERVING.
package health

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the service name reported next to the overall status.
const ServiceName = "clusterdata.DataService"

// Server is a gRPC server exposing only health and reflection.
type Server struct {
	grpcServer   *grpc.Server
	healthServer *health.Server
	ping         func(context.Context) error
	interval     time.Duration
	logger       *slog.Logger
}

// New creates a health server driven by ping. The status starts as
// NOT_SERVING until the first probe succeeds.
func New(ping func(context.Context) error, interval time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	s := &Server{
		grpcServer:   grpcServer,
		healthServer: healthServer,
		ping:         ping,
		interval:     interval,
		logger:       logger,
	}
	s.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc health server listening", "address", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// Run probes the backend immediately and then every interval until ctx is
// done.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Probe pings the backend once and updates the reported status.
func (s *Server) Probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	if err := s.ping(ctx); err != nil {
		s.logger.Warn("storage health check failed", "error", err)
		s.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
}

func (s *Server) setStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.healthServer.SetServingStatus("", status)
	s.healthServer.SetServingStatus(ServiceName, status)
}

// Stop marks every service NOT_SERVING and stops the server gracefully.
func (s *Server) Stop() {
	s.healthServer.Shutdown()
	s.grpcServer.GracefulStop()
}
