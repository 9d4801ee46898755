package promexport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ShutdownTimeout bounds how long in-flight scrapes may take once the run
// is over.
const ShutdownTimeout = 5 * time.Second

// Server serves /metrics.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger
}

// Listen binds addr and prepares a server for exporter alongside the Go
// runtime and process collectors. Binding up front reports a busy port
// before the run starts.
func Listen(addr string, exporter *Exporter, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(exporter); err != nil {
		return nil, fmt.Errorf("failed to register exporter: %w", err)
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(logger),
	}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return &Server{
		httpServer: &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		listener:   ln,
		logger:     logger.Named("promexport"),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve handles scrapes until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(s.listener)
	}()
	s.logger.Info("serving metrics", zap.String("addr", "http://"+s.Addr()+"/metrics"))

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop metrics server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Serve exports the collector behind exporter on addr until ctx is done.
func Serve(ctx context.Context, addr string, exporter *Exporter, logger *zap.Logger) error {
	s, err := Listen(addr, exporter, logger)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}
