// Package server provides server lifecycle management.
//
// gRPC (health and reflection) and the HTTP API share one port through cmux:
// connections announcing an HTTP/2 gRPC content type go to the gRPC server,
// everything else to the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/solatis/segmentkeeper/internal/core/config"
)

// shutdownTimeout bounds graceful shutdown before connections are forced closed.
const shutdownTimeout = 30 * time.Second

// Server manages the shared listener and both protocol servers.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	http     *http.Server
	listener net.Listener
	config   *config.ServerConfig
	logger   *slog.Logger
}

// New creates a server for handler. The listener is bound by Start.
func New(cfg *config.ServerConfig, handler http.Handler, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &Server{
		grpc:   grpcServer,
		health: healthServer,
		http: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			// handlers are bounded by the request timeout middleware;
			// the write timeout leaves room to send the error body
			WriteTimeout: cfg.RequestTimeout + 5*time.Second,
			ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		config: cfg,
		logger: logger,
	}, nil
}

// Listen binds the configured address. Start calls it when needed; tests
// call it directly to learn the port.
func (s *Server) Listen() (net.Addr, error) {
	if s.listener != nil {
		return s.listener.Addr(), nil
	}
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	s.listener = listener
	return listener.Addr(), nil
}

// Start serves until the listener is closed by Shutdown.
// Returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	if _, err := s.Listen(); err != nil {
		return err
	}

	m := cmux.New(s.listener)
	grpcLis := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpLis := m.Match(cmux.Any())

	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	errc := make(chan error, 3)
	go func() { errc <- s.grpc.Serve(grpcLis) }()
	go func() { errc <- s.http.Serve(httpLis) }()
	go func() { errc <- m.Serve() }()
	s.logger.Info("server started", "addr", s.listener.Addr().String())

	// the first return decides; later ones come from the shutdown cascade
	err := <-errc
	if isClosedErr(err) {
		return nil
	}
	return err
}

// Shutdown marks the server not serving, drains HTTP and gRPC, then closes
// the listener. Forced stop after shutdownTimeout or when ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	httpErr := s.http.Shutdown(ctx)

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	var err error
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpc.Stop()
		err = fmt.Errorf("graceful shutdown timeout, forced stop: %w", ctx.Err())
	}

	if s.listener != nil {
		_ = s.listener.Close()
	}
	if httpErr != nil && err == nil {
		err = httpErr
	}
	return err
}

// isClosedErr reports errors that only mean the listener was closed.
func isClosedErr(err error) bool {
	if err == nil ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, http.ErrServerClosed) ||
		errors.Is(err, grpc.ErrServerStopped) ||
		errors.Is(err, cmux.ErrListenerClosed) ||
		errors.Is(err, cmux.ErrServerClosed) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}
