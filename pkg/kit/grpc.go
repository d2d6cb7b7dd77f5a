package kit

import (
	"context"
	"errors"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewHealthGRPCServer returns a gRPC server exposing the standard health
// protocol, instrumented with per-RPC prometheus metrics.
func NewHealthGRPCServer(reg prometheus.Registerer) (*grpc.Server, *health.Server) {
	metrics := grpc_prometheus.NewServerMetrics()

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(metrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(metrics.StreamServerInterceptor()),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	metrics.InitializeMetrics(srv)
	if reg != nil {
		reg.MustRegister(metrics)
	}
	return srv, hs
}

// WatchReadiness flips the health status of service according to probe
// until ctx is cancelled.
func WatchReadiness(ctx context.Context, hs *health.Server, service string, every time.Duration, probe func(context.Context) error, log *zap.Logger) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, every)
		defer cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err := probe(pctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			log.Warn("readiness probe failed", zap.String("service", service), zap.Error(err))
		}
		hs.SetServingStatus(service, status)
		if service != "" {
			hs.SetServingStatus("", status)
		}
	}

	check()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			check()
		}
	}
}

func RunGRPCServer(ctx context.Context, addr string, srv *grpc.Server, log *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("grpc server starting", zap.String("addr", addr))
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		log.Info("grpc server shutting down", zap.String("addr", addr))
		srv.GracefulStop()
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
