// Package api serves the loopback control surface: daemon status and
// queue reads, manual actions, the WebSocket event stream, and
// Prometheus exposition. The listener refuses non-loopback addresses.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/delivery"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/events"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/metrics"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/queue"
)

// shutdownTimeout bounds the graceful drain at the end of a run.
const shutdownTimeout = 5 * time.Second

// Resumer triggers an immediate delivery for the head queue event.
type Resumer interface {
	ResumeNow(ctx context.Context) (*queue.RateLimitEvent, delivery.Result, error)
}

// Config wires a Server.
type Config struct {
	Addr           string
	Store          *queue.Store
	Hub            *events.Hub
	Resumer        Resumer
	HeartbeatFile  string
	MetricsEnabled bool
	StartedAt      time.Time
	PID            int
}

// Server is the loopback control server.
type Server struct {
	cfg  Config
	echo *echo.Echo

	mu       sync.Mutex
	listener net.Listener
}

// NewServer builds the router. Run binds and serves it.
func NewServer(cfg Config) *Server {
	e := echo.New()
	e.Use(securityHeaders())

	s := &Server{cfg: cfg, echo: e}

	e.GET("/healthz", s.healthHandler)
	e.GET("/api/v1/status", s.statusHandler)
	e.GET("/api/v1/queue", s.queueHandler)
	e.POST("/api/v1/actions/resume-now", s.resumeNowHandler)
	e.POST("/api/v1/actions/clear", s.clearHandler)
	e.GET("/ws", s.wsHandler)
	if cfg.MetricsEnabled {
		e.GET("/metrics", s.metricsHandler)
	}
	return s
}

// Run serves until ctx is cancelled, then drains connections. The
// bound listener keeps the process anchored under service managers.
func (s *Server) Run(ctx context.Context) error {
	if err := ensureLoopback(s.cfg.Addr); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("binding control server: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Control server listening", "addr", ln.Addr().String())
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Warn("Control server shutdown error", "error", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("control server: %w", err)
	}
}

// Addr returns the bound listen address, or "" before Run binds it.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) metricsHandler(c *echo.Context) error {
	metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

// ensureLoopback rejects listen addresses that would expose the
// control surface beyond the local host.
func ensureLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("server address %q is not loopback", addr)
	}
	return nil
}
