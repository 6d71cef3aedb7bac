package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"storefront-proxy/internal/model"
	"storefront-proxy/internal/router"
	"storefront-proxy/internal/service"
)

// ErrLengthRequired is returned for API requests whose body has no declared length.
var ErrLengthRequired = errors.New("request body without Content-Length is not supported")

// ProxyHandler forwards API requests to the backend services.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle forwards the request upstream and writes the translated result.
// Every outcome is written as a JSON response; nothing propagates past this boundary.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	body, err := readBody(req)
	if err != nil {
		return h.mapError(c, err)
	}

	pr := &model.ProxyRequest{
		Ctx:        req.Context(),
		Method:     req.Method,
		RequestURI: requestURI(req),
		Header:     req.Header,
		Body:       body,
	}

	result, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}

	return h.writeResult(c, pr, result)
}

func (h *ProxyHandler) writeResult(c echo.Context, pr *model.ProxyRequest, result *model.ProxyResult) error {
	switch result.Kind {
	case model.ResultUnreachable:
		h.logger.Warn("upstream unreachable",
			"method", pr.Method,
			"path", pr.RequestURI,
			"reason", result.Message,
		)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "Service unavailable: " + result.Message,
		})

	case model.ResultUpstreamError:
		h.logger.Warn("upstream error response",
			"method", pr.Method,
			"path", pr.RequestURI,
			"status", result.StatusCode,
		)

	default:
		h.logger.Debug("upstream response",
			"method", pr.Method,
			"path", pr.RequestURI,
			"status", result.StatusCode,
			"bytes", len(result.Body),
		)
	}

	for key, vals := range result.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}
	return c.Blob(result.StatusCode, echo.MIMEApplicationJSON, result.Body)
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	if errors.Is(err, router.ErrRouteNotFound) {
		h.logger.Info("no route for API path", "path", c.Request().URL.Path)
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "API endpoint not found",
		})
	}

	if errors.Is(err, ErrLengthRequired) {
		return c.JSON(http.StatusLengthRequired, map[string]string{
			"error": http.StatusText(http.StatusLengthRequired),
		})
	}

	// Body limit and similar middleware errors keep their own status.
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	h.logger.Error("proxy error",
		"err", err,
		"path", c.Request().URL.Path,
	)
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": "Internal server error: " + err.Error(),
	})
}

// readBody reads exactly Content-Length bytes. A zero length means bodyless;
// an unknown length (chunked framing) is rejected.
func readBody(req *http.Request) ([]byte, error) {
	if req.ContentLength < 0 || slices.Contains(req.TransferEncoding, "chunked") {
		return nil, ErrLengthRequired
	}
	if req.ContentLength == 0 || req.Body == nil {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, req.ContentLength))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if int64(len(body)) < req.ContentLength {
		return nil, fmt.Errorf("read request body: %w", io.ErrUnexpectedEOF)
	}
	return body, nil
}

// requestURI returns the origin-form path and query as received.
func requestURI(req *http.Request) string {
	if strings.HasPrefix(req.RequestURI, "/") {
		return req.RequestURI
	}
	return req.URL.RequestURI()
}
