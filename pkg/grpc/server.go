// Package grpc runs the internal gRPC endpoint. It serves the standard
// grpc.health.v1.Health service, reporting NOT_SERVING while the
// storefront's dependencies are unreachable, so load balancers and
// orchestrators can check it.
//
//	srv := grpc.New(database.Ping)
//	if err := srv.Start(config.GRPCPort()); err != nil { ... }
//	defer srv.Stop()
package grpc

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/metrics"
)

var (
	rpcHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "grpc",
		Name:      "handled_total",
		Help:      "gRPC calls completed, by method and code.",
	}, []string{"method", "code"})

	rpcDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Subsystem: "grpc",
		Name:      "handling_seconds",
		Help:      "gRPC handling latency.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"method"})
)

func init() {
	metrics.MustRegister(rpcHandled, rpcDuration)
}

func recoveryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("grpc: panic recovered", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
			err = status.Error(codes.Internal, "internal server error")
		}
	}()
	return handler(ctx, req)
}

func observeInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)

	rpcHandled.WithLabelValues(info.FullMethod, code.String()).Inc()
	rpcDuration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
	logger.Debug("grpc: request", "method", info.FullMethod, "code", code.String(), "duration_ms", time.Since(start).Milliseconds())
	return resp, err
}

// HealthCheck reports whether the service can do useful work.
type HealthCheck func(ctx context.Context) error

const pingTimeout = 2 * time.Second

type healthServer struct {
	grpc_health_v1.UnimplementedHealthServer
	check HealthCheck
}

func (h *healthServer) status(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if h.check == nil {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := h.check(ctx); err != nil {
		logger.Warn("grpc: health check failing", "error", err)
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

// Check answers for the whole server ("") and for the storefront service
// name; anything else is NotFound, as the health protocol requires.
func (h *healthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if s := req.GetService(); s != "" && s != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", s)
	}
	return &grpc_health_v1.HealthCheckResponse{Status: h.status(ctx)}, nil
}

func (h *healthServer) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	return stream.Send(&grpc_health_v1.HealthCheckResponse{Status: h.status(stream.Context())})
}

// ServiceName is the health service name the storefront answers to.
const ServiceName = "storefront"

type Server struct {
	srv *grpc.Server
	lis net.Listener
}

func New(check HealthCheck) *Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(recoveryInterceptor, observeInterceptor),
		grpc.MaxRecvMsgSize(4<<20),
		grpc.MaxSendMsgSize(4<<20),
	)
	grpc_health_v1.RegisterHealthServer(srv, &healthServer{check: check})
	reflection.Register(srv)
	return &Server{srv: srv}
}

// Start listens on port and serves in the background.
func (s *Server) Start(port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("grpc: listen on :%s: %w", port, err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener in the background.
func (s *Server) Serve(lis net.Listener) error {
	s.lis = lis
	logger.Info("grpc: serving", "addr", lis.Addr().String())
	go func() {
		if err := s.srv.Serve(lis); err != nil {
			logger.Error("grpc: serve stopped", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight calls.
func (s *Server) Stop() {
	if s == nil || s.srv == nil {
		return
	}
	logger.Info("grpc: shutting down")
	s.srv.GracefulStop()
}
