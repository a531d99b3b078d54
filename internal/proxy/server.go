package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/time/rate"

	"hostgate/internal/metrics"
	"hostgate/internal/pool"
	"hostgate/internal/transport"
)

// Server is the dispatch loop: it accepts client connections in sequence
// and submits one handler job per connection to the worker pool. Submission
// is fire-and-forget; the loop keeps accepting while jobs run.
type Server struct {
	cfg     Config
	pool    *pool.Pool
	logger  *slog.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter

	ln net.Listener
}

// NewServer creates a Server. The metrics parameter is optional.
func NewServer(cfg Config, p *pool.Pool, logger *slog.Logger, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		pool:    p,
		logger:  logger.With("component", "dispatch"),
		metrics: m,
	}
	if cfg.AcceptPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptPerSecond), 1)
		s.logger.Info("accept rate limiter enabled", "per_second", cfg.AcceptPerSecond)
	}
	return s
}

// Listen binds the configured address. It must be called before Serve.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.ListenAddr, err)
	}
	s.ln = ln
	s.logger.Info("listening proxy", "addr", ln.Addr().String(), "target", s.cfg.TargetAddr)
	return nil
}

// Addr reports the bound listener address, useful when listening on :0.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until the listener is closed. Each accepted
// connection gets its own Config copy and Handler; the pool isolates job
// panics from the accept loop and from other jobs.
func (s *Server) Serve() error {
	for {
		if s.limiter != nil {
			_ = s.limiter.Wait(context.Background())
		}

		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept", "err", err)
			continue
		}

		if s.metrics != nil {
			s.metrics.ConnectionsAccepted.Inc()
		}

		handler := NewHandler(s.cfg, s.logger, s.metrics)
		client := transport.New(conn, s.cfg.ReadTimeout, s.cfg.WriteTimeout)
		s.pool.Submit(func() { handler.Handle(client) })
	}
}

// Close stops the listener; a running Serve returns once its pending accept
// fails. In-flight jobs are unaffected and drain via the pool.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}
