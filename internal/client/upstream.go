// Package client provides the outbound HTTP client used to reach backend services.
package client

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"storefront-proxy/internal/config"
	"storefront-proxy/internal/metrics"
)

// UpstreamClient sends exactly one request per call to a backend origin.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient whose calls are bounded by the
// configured upstream timeout. The metrics parameter is optional; pass nil to
// disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	timeout := time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second

	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: timeout,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes req and returns the raw response. Errors are transport-level
// failures only; any response that arrives is returned, whatever its status.
// The caller is responsible for closing the response body.
func (c *UpstreamClient) Do(req *http.Request) (*http.Response, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"url", req.URL.Redacted(),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return resp, nil
}
