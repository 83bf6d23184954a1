package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nextjs-proxy-go/internal/config"
	"nextjs-proxy-go/internal/metrics"
	"nextjs-proxy-go/internal/tunnel"
)

// RegisterRoutes wires all route handlers onto the Echo instance. The dev
// tunnel routes exist only when dev mode is enabled; in production the
// asset prefixes are expected to be handled by a reverse proxy in front of
// this server.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, page *RenderHandler, health *HealthHandler, relay *tunnel.Relay, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/status", health.Status)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(
			promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		))
	}

	if cfg.Dev.Enabled {
		// Exact HMR route wins over the wildcard asset prefix.
		e.GET(cfg.Dev.HMRPath, relay.WebSocket)
		for _, prefix := range cfg.Dev.PathPrefixes {
			e.Any(prefix, relay.HTTP)
			e.Any(prefix+"/*", relay.HTTP)
		}
	}

	e.GET("/*", page.Handle)
}
