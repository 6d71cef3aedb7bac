package handler

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/labstack/echo/v4"

	"storefront-proxy/internal/config"
)

// StaticHandler serves files for non-API paths from a root directory.
type StaticHandler struct {
	fsys    fs.FS
	enabled bool
	noCache bool
	logger  *slog.Logger
}

// NewStaticHandler creates a StaticHandler rooted at cfg.Static.Root.
func NewStaticHandler(cfg *config.Config, logger *slog.Logger) *StaticHandler {
	return &StaticHandler{
		fsys:    os.DirFS(cfg.Static.Root),
		enabled: cfg.StaticEnabled(),
		noCache: cfg.Static.NoCache,
		logger:  logger.With("component", "static_handler"),
	}
}

// Handle serves GET and HEAD from the root directory; directories resolve to
// index.html. Other methods, or any method when serving is disabled, get 405.
func (h *StaticHandler) Handle(c echo.Context) error {
	method := c.Request().Method
	if !h.enabled || (method != http.MethodGet && method != http.MethodHead) {
		h.logger.Debug("rejecting non-API request", "method", method, "path", c.Request().URL.Path)
		return c.JSON(http.StatusMethodNotAllowed, map[string]string{
			"error": http.StatusText(http.StatusMethodNotAllowed),
		})
	}

	if h.noCache {
		c.Response().Header().Set(echo.HeaderCacheControl, "no-store, no-cache, must-revalidate")
	}

	return echo.StaticFileHandler(fsPath(c.Request().URL.Path), h.fsys)(c)
}

// fsPath converts a URL path into an fs.FS name that cannot escape the root.
func fsPath(urlPath string) string {
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" {
		return "."
	}
	return name
}
