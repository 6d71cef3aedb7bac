package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront-proxy/internal/config"
)

// CORS returns an Echo middleware that sets the three CORS headers on every
// response, error paths included, and answers preflight OPTIONS requests on
// any path with 200 and no body.
func CORS(cfg config.CORSConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, cfg.AllowOrigin)
			h.Set(echo.HeaderAccessControlAllowMethods, cfg.AllowMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, cfg.AllowHeaders)

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
