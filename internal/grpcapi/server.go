package grpcapi

import (
	"context"
	"errors"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Services is the set of domain services bookkeepd exposes health
// readiness for. A future wire protocol can register its own service
// implementations against the same *grpc.Server via GetGRPCServer.
type Services struct {
	Ready func() bool
}

// Server wraps a *grpc.Server, publishing a standard grpc_health_v1
// service and server reflection the way operators already expect to
// probe any gRPC service, matching the configuration/lifecycle shape of
// an explicitly constructed server (no package-level singleton).
type Server struct {
	mu sync.RWMutex

	grpcServer *grpc.Server
	health     *health.Server
	config     *ServerConfig
	listener   net.Listener
	running    bool
}

// NewServer creates a gRPC server registered with health and reflection
// services, reporting NOT_SERVING until MarkServing is called.
func NewServer(cfg *ServerConfig, svcs Services) (*Server, error) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.MaxSendMsgSize),
	)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	s := &Server{
		grpcServer: grpcServer,
		health:     healthSrv,
		config:     cfg,
	}
	if svcs.Ready != nil && svcs.Ready() {
		s.MarkServing()
	}
	return s, nil
}

// MarkServing flips the health service to SERVING for all services.
func (s *Server) MarkServing() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// MarkNotServing flips the health service to NOT_SERVING, e.g. during a
// graceful drain before shutdown.
func (s *Server) MarkNotServing() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
}

// Start listens and serves; it blocks until the server stops or errors.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	return s.grpcServer.Serve(listener)
}

// StartAsync starts the server in a goroutine and returns immediately.
func (s *Server) StartAsync(onError func(error)) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	go func() {
		if err := s.grpcServer.Serve(listener); err != nil && onError != nil {
			onError(err)
		}
	}()
	return nil
}

// Stop gracefully stops the server, waiting for in-flight RPCs to finish.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.MarkNotServing()
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
	s.running = false
}

// Address returns the address the server is listening on, or "" if not
// yet started.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GetGRPCServer returns the underlying *grpc.Server so additional
// services can be registered before Start is called.
func (s *Server) GetGRPCServer() *grpc.Server {
	return s.grpcServer
}
