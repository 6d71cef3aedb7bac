package handler

import (
	"io"
	"log/slog"
	"testing"

	"storefront-proxy/internal/client"
	"storefront-proxy/internal/config"
	"storefront-proxy/internal/router"
	"storefront-proxy/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig returns a fully defaulted config whose three routes point at origin.
func testConfig(origin string) *config.Config {
	enabled := true
	return &config.Config{
		Server: config.ServerConfig{APIPrefix: "/api/", Profile: config.ProfileFull},
		Upstream: config.UpstreamConfig{
			TimeoutSeconds: 2,
			UserAgent:      "storefront-proxy/test",
		},
		Routes: []config.RouteConfig{
			{Prefix: "/api/product", Origin: origin},
			{Prefix: "/api/inventory", Origin: origin},
			{Prefix: "/api/order", Origin: origin},
		},
		Static: config.StaticConfig{Enabled: &enabled, Root: "."},
		CORS: config.CORSConfig{
			AllowOrigin:  "*",
			AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
			AllowHeaders: "Content-Type, Authorization",
		},
		Metrics: config.MetricsConfig{Path: "/metrics"},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) *router.Router {
	t.Helper()
	r, err := router.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("router.NewFromConfig: %v", err)
	}
	return r
}

func newTestProxyHandler(t *testing.T, cfg *config.Config) *ProxyHandler {
	t.Helper()
	logger := discardLogger()
	r := newTestRouter(t, cfg)
	svc := service.NewProxyService(r, client.NewUpstreamClient(cfg, logger, nil), cfg, logger, nil)
	return NewProxyHandler(svc, logger)
}
