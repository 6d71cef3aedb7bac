package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// NewErrorHandler returns an echo.HTTPErrorHandler that renders every error as
// {"error": <message>}. Errors that are not *echo.HTTPError become 500s.
func NewErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := "Internal server error: " + err.Error()

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = fmt.Sprint(he.Message)
			if he.Internal != nil {
				logger.Debug("http error", "code", code, "internal", he.Internal)
			}
		} else {
			logger.Error("unhandled error", "err", err, "path", c.Request().URL.Path)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, map[string]string{"error": msg})
		}
		if err != nil {
			logger.Error("writing error response", "err", err)
		}
	}
}
