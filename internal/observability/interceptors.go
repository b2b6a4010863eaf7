package observability

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"voice-command-pipeline/internal/observability/logging"
	"voice-command-pipeline/internal/observability/metrics"
)

// ObserveUnary counts unary calls such as health checks and logs them with
// the caller and whether the pipeline was listening when they were answered.
func ObserveUnary(m *metrics.Metrics, listening func() bool) grpc.UnaryServerInterceptor {
	logger := logging.WithComponent("grpc")
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		e := callEvent(ctx, logger.Debug(), m, info.FullMethod, err, time.Since(start))
		e.Bool("listening", listening != nil && listening()).Msg("Health call")
		return resp, err
	}
}

// ObserveStream does the same for streams, which for this server are health
// watches held open by voice clients.
func ObserveStream(m *metrics.Metrics, listening func() bool) grpc.StreamServerInterceptor {
	logger := logging.WithComponent("grpc")
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		e := callEvent(ss.Context(), logger.Info(), m, info.FullMethod, err, time.Since(start))
		e.Bool("listening", listening != nil && listening()).Msg("Health watch ended")
		return err
	}
}

func callEvent(ctx context.Context, e *zerolog.Event, m *metrics.Metrics, fullMethod string, err error, d time.Duration) *zerolog.Event {
	code := status.Code(err).String()
	m.RecordGRPCCall(fullMethod, code, d.Seconds())

	service, rpc := SplitMethod(fullMethod)
	e = e.Str("service", service).Str("rpc", rpc).Str("code", code).Dur("duration", d)
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		e = e.Str("client", p.Addr.String())
	}
	return e
}

// SplitMethod splits "/pkg.Service/Method" into its service and method.
func SplitMethod(fullMethod string) (service, rpc string) {
	name := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "unknown", name
}
