package grpcapi

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"voice-command-pipeline/internal/observability"
	"voice-command-pipeline/internal/observability/logging"
	"voice-command-pipeline/internal/observability/metrics"
)

// ServiceName is the health service name reported for the listening pipeline.
const ServiceName = "voice.pipeline.Listener"

// Server is the gRPC surface: a health service mirroring whether the
// pipeline is listening, plus reflection.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	ready    func() bool
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	serving bool
	synced  bool
}

// New creates the server. ready reports whether the pipeline is listening.
func New(ready func() bool) *Server {
	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.ObserveUnary(metrics.DefaultMetrics, ready)),
		grpc.ChainStreamInterceptor(observability.ObserveStream(metrics.DefaultMetrics, ready)),
	)

	// Register gRPC health check service
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	s := &Server{
		grpc:     g,
		health:   hs,
		ready:    ready,
		interval: 500 * time.Millisecond,
		logger:   logging.WithComponent("grpc"),
	}
	s.Sync()
	return s
}

// Sync copies the pipeline state into the health service.
func (s *Server) Sync() {
	serving := s.ready != nil && s.ready()

	s.mu.Lock()
	changed := !s.synced || serving != s.serving
	s.serving = serving
	s.synced = true
	s.mu.Unlock()
	if !changed {
		return
	}

	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
	s.logger.Info().Str("service", ServiceName).Str("status", st.String()).Msg("Health status changed")
}

// Run serves on addr until ctx is done, keeping the health status in sync.
func (s *Server) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server started")
		errCh <- s.grpc.Serve(lis)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			return err
		case <-ticker.C:
			s.Sync()
		case <-ctx.Done():
			s.logger.Info().Msg("Shutting down gRPC server")
			s.health.Shutdown()
			s.grpc.GracefulStop()
			return nil
		}
	}
}
