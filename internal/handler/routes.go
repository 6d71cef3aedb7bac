// Package handler contains the echo handlers and route registration.
package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront-proxy/internal/config"
	"storefront-proxy/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// API paths go to the proxy; every other path falls through to static files.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, proxy *ProxyHandler, health *HealthHandler, static *StaticHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any(cfg.Server.APIPrefix+"*", proxy.Handle)
	e.Any("/*", static.Handle)
}
