package grpchealth

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/resilience"
)

// Server exposes the standard gRPC health service. Each registered breaker
// appears as a service named after it, NOT_SERVING while the breaker is open.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// New creates a health server with the overall status SERVING
func New(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		logger: logger,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	return s
}

// Track publishes the current state of b under its name
func (s *Server) Track(b *resilience.Breaker) {
	s.health.SetServingStatus(b.Name(), status(b.State()))
}

// BreakerStateChanged matches resilience.Settings.OnStateChange
func (s *Server) BreakerStateChanged(name string, _, to resilience.State) {
	s.health.SetServingStatus(name, status(to))
}

// Serve listens on addr until ctx is cancelled, then drains gracefully
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is cancelled
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	s.logger.Info("Starting gRPC health server", zap.String("addr", lis.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpc.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	}
}

func status(state resilience.State) healthpb.HealthCheckResponse_ServingStatus {
	if state == resilience.StateOpen {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
