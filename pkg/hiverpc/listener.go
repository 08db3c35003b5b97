package hiverpc

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/arlenko/cellhive/pkg/txsupervisor"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// Config holds the gRPC listener's tunables.
type Config struct {
	Host string
	Port int

	MaxConcurrentRPCs int
	KeepAliveInterval time.Duration
	KeepAliveTimeout  time.Duration
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:              "0.0.0.0",
		Port:              9443,
		MaxConcurrentRPCs: 100,
		KeepAliveInterval: 30 * time.Second,
		KeepAliveTimeout:  10 * time.Second,
	}
}

// Server exposes a Supervisor and a ParticipantHandler over gRPC.
type Server struct {
	cfg        *Config
	grpcServer *grpc.Server
	listener   net.Listener

	mu      sync.Mutex
	started bool
}

// NewServer builds a Server registering both the coordinator-facing
// TransactionSupervisor service and the participant-facing
// TransactionParticipant service against the given core instances.
func NewServer(cfg *Config, sup *txsupervisor.Supervisor, handler *txsupervisor.ParticipantHandler) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	grpcServer := grpc.NewServer(
		grpc.MaxConcurrentStreams(uint32(cfg.MaxConcurrentRPCs)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.KeepAliveInterval,
			Timeout: cfg.KeepAliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             cfg.KeepAliveInterval / 2,
			PermitWithoutStream: true,
		}),
	)

	supSrv := &supervisorServer{sup: sup}
	supDesc := supervisorServiceDesc(supSrv)
	grpcServer.RegisterService(&supDesc, supSrv)

	partSrv := &participantServer{handler: handler}
	partDesc := participantServiceDesc(partSrv)
	grpcServer.RegisterService(&partDesc, partSrv)

	return &Server{cfg: cfg, grpcServer: grpcServer}
}

// Start begins listening and serving in a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("hiverpc: server already started")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("hiverpc: listen on %s: %w", addr, err)
	}
	s.listener = listener

	go func() {
		_ = s.grpcServer.Serve(listener)
	}()

	s.started = true
	return nil
}

// Stop gracefully stops the server, falling back to a hard stop after
// 30 seconds.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(30 * time.Second):
		s.grpcServer.Stop()
	}

	s.started = false
}

// Addr returns the server's listen address, or nil if not started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
