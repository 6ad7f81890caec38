package transport

import (
	"log/slog"
	"net"
	"sync"

	"github.com/Harshitk-cp/sketchhive/internal/config"
	"github.com/Harshitk-cp/sketchhive/internal/health"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name reported through the gRPC health service
const ServiceName = "sketchhive.Canvas"

// GRPCServer serves the standard health protocol for orchestrators
type GRPCServer struct {
	log        *slog.Logger
	cfg        config.GRPCConfig
	mu         sync.Mutex
	server     *grpc.Server
	health     *grpchealth.Server
	middleware []grpc.UnaryServerInterceptor
}

// NewGRPCServer creates a new gRPC server
func NewGRPCServer(log *slog.Logger, cfg config.GRPCConfig) *GRPCServer {
	s := &GRPCServer{
		log:        log,
		cfg:        cfg,
		health:     grpchealth.NewServer(),
		middleware: make([]grpc.UnaryServerInterceptor, 0),
	}
	s.SetStatus(health.StatusDown)
	return s
}

// Use adds middleware to the server
func (s *GRPCServer) Use(middleware grpc.UnaryServerInterceptor) {
	s.middleware = append(s.middleware, middleware)
}

// SetStatus maps a checker status onto the gRPC serving status. A degraded
// service still serves.
func (s *GRPCServer) SetStatus(status health.Status) {
	serving := healthpb.HealthCheckResponse_SERVING
	if status == health.StatusDown {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", serving)
	s.health.SetServingStatus(ServiceName, serving)
}

// Serve starts the gRPC server
func (s *GRPCServer) Serve(listener net.Listener) error {
	defaultMiddleware := []grpc.UnaryServerInterceptor{
		grpc_ctxtags.UnaryServerInterceptor(),
		grpc_recovery.UnaryServerInterceptor(),
	}
	allMiddleware := append(defaultMiddleware, s.middleware...)

	server := grpc.NewServer(
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(allMiddleware...)),
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
			grpc_ctxtags.StreamServerInterceptor(),
			grpc_recovery.StreamServerInterceptor(),
		)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    s.cfg.KeepAliveTime,
			Timeout: s.cfg.KeepAliveTimeout,
		}),
		grpc.MaxConcurrentStreams(uint32(s.cfg.MaxConcurrentStreams)),
	)

	healthpb.RegisterHealthServer(server, s.health)

	// Register reflection service for gRPC CLI and debugging
	reflection.Register(server)

	s.mu.Lock()
	s.server = server
	s.mu.Unlock()

	s.log.Info("Starting gRPC server", "address", listener.Addr().String())
	return server.Serve(listener)
}

// GracefulStop marks the service as not serving and drains connections
func (s *GRPCServer) GracefulStop() {
	s.health.Shutdown()

	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server != nil {
		server.GracefulStop()
	}
}
