package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"hostgate/internal/config"
	"hostgate/internal/metrics"
	"hostgate/internal/ops"
	"hostgate/internal/pool"
	"hostgate/internal/proxy"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("hostgate"),
		kong.Description("Transparent single-target reverse proxy with Host rewriting."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() ops.Version { return ops.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newPool,
			newProxyServer,
			ops.NewHealthHandler,
			ops.NewEcho,
		),
		fx.Invoke(warnConfigPermissions, startProxy, startOps),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newPool(cfg *config.Config, logger *slog.Logger) *pool.Pool {
	return pool.New(cfg.Proxy.Workers, logger)
}

func newProxyServer(cfg *config.Config, p *pool.Pool, logger *slog.Logger, m *metrics.Metrics) *proxy.Server {
	return proxy.NewServer(cfg.ProxyValue(), p, logger, m)
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startProxy(lc fx.Lifecycle, s *proxy.Server, p *pool.Pool, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := s.Listen(); err != nil {
				return err
			}
			go func() {
				if err := s.Serve(); err != nil {
					logger.Error("proxy serve error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			logger.Info("shutting down proxy")
			if err := s.Close(); err != nil {
				return err
			}
			// Let queued and in-flight connection jobs finish.
			p.Close()
			return nil
		},
	})
}

func startOps(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	if !cfg.Ops.Enabled {
		logger.Info("ops server disabled")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Ops.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting ops server", "addr", addr)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("ops server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down ops server")
			return e.Shutdown(ctx)
		},
	})
}
