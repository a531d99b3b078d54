// Package ops serves the operational HTTP endpoints: liveness, proxy
// status, and Prometheus metrics. It runs beside the TCP proxy and never
// touches proxied traffic.
package ops

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hostgate/internal/config"
	"hostgate/internal/metrics"
	"hostgate/internal/middleware"
)

// NewEcho builds the ops server with routes and middleware registered.
func NewEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, health *HealthHandler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// The ops surface serves tiny local responses; short timeouts are fine.
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 10 * time.Second
	e.Server.IdleTimeout = 60 * time.Second
	e.Server.ReadHeaderTimeout = 5 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.SecurityHeaders())

	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(
			m.Registry,
			promhttp.HandlerOpts{},
		)))
	}

	return e
}
