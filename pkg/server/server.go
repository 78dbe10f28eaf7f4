package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/config"
	"github.com/amdinfer/amdinfer/pkg/metrics"
	"github.com/amdinfer/amdinfer/pkg/registry"
	"github.com/amdinfer/amdinfer/pkg/telemetry"
)

// version is the server's reported build version. Overridden at link
// time in production builds; left as a constant here since this tree
// has no release pipeline of its own.
const version = "0.1.0"

// Metadata is the wire form of spec.md §6 server metadata (supplemented
// from original_source/'s server_metadata.hpp per SPEC_FULL.md).
type Metadata struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Extensions []string `json:"extensions"`
}

// Server hosts the HTTP, gRPC, and WebSocket transports in front of a
// single registry.Registry, grounded on the teacher's Router
// (pkg/router/router.go). startHttp/startGrpc/stopHttp/stopGrpc are
// idempotent (spec.md §6 "Exit/return contract of the server process").
type Server struct {
	cfg      *config.Config
	registry *registry.Registry
	metrics  *metrics.Metrics
	tracer   *telemetry.Provider

	broadcaster *Broadcaster

	httpMu     sync.Mutex
	httpSrv    *http.Server
	httpWg     sync.WaitGroup
	grpcMu     sync.Mutex
	grpcSrv    *grpc.Server
	grpcWg     sync.WaitGroup

	pollStop chan struct{}
	pollWg   sync.WaitGroup
}

// New builds a Server backed by a fresh registry over pool. tracer may
// be nil, in which case no spans are started anywhere in the pipeline
// (spec.md §4.8).
func New(cfg *config.Config, pool *buffer.MemoryPool, tracer *telemetry.Provider) *Server {
	m := metrics.New()
	return &Server{
		cfg:         cfg,
		registry:    registry.New(pool, m, tracer),
		metrics:     m,
		tracer:      tracer,
		broadcaster: NewBroadcaster(),
	}
}

// Registry exposes the underlying endpoint manager, e.g. for the
// in-process native Client implementation.
func (s *Server) Registry() *registry.Registry { return s.registry }

// Metrics exposes the Prometheus collectors, e.g. for the /metrics route.
func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

// Metadata reports the server's name/version/extensions.
func (s *Server) Metadata() Metadata {
	return Metadata{Name: "amdinfer", Version: version, Extensions: []string{"websocket", "grpc-json"}}
}

// StartHTTP starts the HTTP+WebSocket listener as a background thread.
// Calling it again while already running is a no-op.
func (s *Server) StartHTTP() error {
	s.httpMu.Lock()
	defer s.httpMu.Unlock()
	if s.httpSrv != nil {
		return nil
	}

	mux := http.NewServeMux()
	s.registerHTTP(mux)
	mux.Handle("/metrics", s.metrics.Handler())

	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.HTTPPort),
		Handler: mux,
	}

	addr := s.httpSrv.Addr
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.httpSrv = nil
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.httpWg.Add(1)
	go func() {
		defer s.httpWg.Done()
		_ = s.httpSrv.Serve(ln)
	}()

	s.startPoller()
	return nil
}

// StopHTTP joins the HTTP listener thread. Calling it when not running
// is a no-op.
func (s *Server) StopHTTP() error {
	s.httpMu.Lock()
	defer s.httpMu.Unlock()
	if s.httpSrv == nil {
		return nil
	}
	s.stopPoller()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpSrv.Shutdown(ctx)
	s.httpWg.Wait()
	s.httpSrv = nil
	return err
}

// StartGRPC starts the gRPC listener as a background thread.
func (s *Server) StartGRPC() error {
	s.grpcMu.Lock()
	defer s.grpcMu.Unlock()
	if s.grpcSrv != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.GRPCPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.grpcSrv = grpc.NewServer()
	s.registerGRPC(s.grpcSrv)

	s.grpcWg.Add(1)
	go func() {
		defer s.grpcWg.Done()
		_ = s.grpcSrv.Serve(ln)
	}()
	return nil
}

// StopGRPC joins the gRPC listener thread.
func (s *Server) StopGRPC() error {
	s.grpcMu.Lock()
	defer s.grpcMu.Unlock()
	if s.grpcSrv == nil {
		return nil
	}
	s.grpcSrv.GracefulStop()
	s.grpcWg.Wait()
	s.grpcSrv = nil
	return nil
}

// startPoller launches the dashboard broadcast loop (spec.md §9 queue
// depth), ticking at cfg.Server.PollInterval.
func (s *Server) startPoller() {
	s.pollStop = make(chan struct{})
	s.pollWg.Add(1)
	go func() {
		defer s.pollWg.Done()
		interval := s.cfg.Server.PollInterval
		if interval <= 0 {
			interval = 500 * time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.pollStop:
				return
			case <-ticker.C:
				s.broadcaster.Broadcast(snapshot(s.registry, s.metrics))
			}
		}
	}()
}

func (s *Server) stopPoller() {
	if s.pollStop == nil {
		return
	}
	close(s.pollStop)
	s.pollWg.Wait()
	s.pollStop = nil
}
