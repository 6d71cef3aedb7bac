package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront-proxy/internal/config"
	"storefront-proxy/internal/router"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	router  *router.Router
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, r *router.Router, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, router: r, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type routeStatus struct {
	Prefix string `json:"prefix"`
	Origin string `json:"origin"`
}

type proxyStatus struct {
	Status         string        `json:"status"`
	Version        string        `json:"version"`
	Profile        string        `json:"profile"`
	StaticEnabled  bool          `json:"static_enabled"`
	TimeoutSeconds int           `json:"timeout_seconds"`
	Routes         []routeStatus `json:"routes"`
}

// Status returns proxy status information, including the route table in match order.
func (h *HealthHandler) Status(c echo.Context) error {
	routes := h.router.Routes()
	out := proxyStatus{
		Status:         "ok",
		Version:        string(h.version),
		Profile:        h.cfg.Server.Profile,
		StaticEnabled:  h.cfg.StaticEnabled(),
		TimeoutSeconds: h.cfg.Upstream.TimeoutSeconds,
		Routes:         make([]routeStatus, 0, len(routes)),
	}
	for _, r := range routes {
		out.Routes = append(out.Routes, routeStatus{Prefix: r.Prefix, Origin: r.Origin})
	}
	return c.JSON(http.StatusOK, out)
}
