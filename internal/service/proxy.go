// Package service implements the core forwarding logic: route resolution,
// the single outbound call, and classification of its outcome.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"storefront-proxy/internal/client"
	"storefront-proxy/internal/config"
	"storefront-proxy/internal/metrics"
	"storefront-proxy/internal/model"
	"storefront-proxy/internal/router"
)

// relayedResponseHeaders are the only upstream response headers passed to the client.
// Content-Type is never relayed; API responses are always application/json.
var relayedResponseHeaders = []string{
	"Cache-Control",
	"Location",
}

// Outcome labels that have no model.ResultKind.
const (
	outcomeNotFound = "not_found"
	outcomeInternal = "internal"
)

// ProxyService forwards API requests to the backend selected by the router.
type ProxyService struct {
	router    *router.Router
	client    *client.UpstreamClient
	userAgent string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(r *router.Router, c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		router:    r,
		client:    c,
		userAgent: cfg.Upstream.UserAgent,
		logger:    logger.With("component", "proxy_service"),
		metrics:   m,
	}
}

// Forward resolves the target backend for pr and issues exactly one outbound call.
//
// Transport failures and upstream error statuses are reported in the result,
// not as errors. The returned error is router.ErrRouteNotFound when no route
// matches, or an internal failure that prevented a result from being produced.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResult, error) {
	target, route, err := s.router.TargetURL(pr.RequestURI)
	if err != nil {
		s.record("none", outcomeNotFound)
		return nil, err
	}

	var body io.Reader
	if len(pr.Body) > 0 {
		body = bytes.NewReader(pr.Body)
	}

	req, err := http.NewRequestWithContext(pr.Ctx, pr.Method, target, body)
	if err != nil {
		s.record(route.Prefix, outcomeInternal)
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = s.outboundHeaders(pr.Header)

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"path", pr.RequestURI,
		"target", route.Origin,
	)

	resp, err := s.client.Do(req)
	if err != nil {
		result := &model.ProxyResult{
			Kind:    model.ResultUnreachable,
			Message: unreachableReason(err),
		}
		s.record(route.Prefix, result.Kind.String())
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()

	result := s.readResponse(resp)
	s.record(route.Prefix, result.Kind.String())
	return result, nil
}

// readResponse reads the upstream body in full. A failed read of an error
// response falls back to a synthesized body built from the status line; a
// failed read of a 2xx response is a transport failure.
func (s *ProxyService) readResponse(resp *http.Response) *model.ProxyResult {
	result := &model.ProxyResult{
		Kind:       model.ResultSuccess,
		StatusCode: resp.StatusCode,
		Header:     filterResponseHeaders(resp.Header),
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Kind = model.ResultUpstreamError
	}

	data, err := io.ReadAll(resp.Body)
	if err == nil {
		result.Body = data
		return result
	}

	if result.Kind == model.ResultSuccess {
		s.logger.Warn("reading upstream body", "err", err, "status", resp.StatusCode)
		return &model.ProxyResult{Kind: model.ResultUnreachable, Message: unreachableReason(err)}
	}

	s.logger.Warn("reading upstream error body", "err", err, "status", resp.StatusCode)
	result.Body = fallbackBody(resp)
	return result
}

// outboundHeaders returns the headers sent upstream: the inbound Content-Type and a fixed User-Agent.
func (s *ProxyService) outboundHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	if ct := src.Get("Content-Type"); ct != "" {
		dst.Set("Content-Type", ct)
	}
	if s.userAgent != "" {
		dst.Set("User-Agent", s.userAgent)
	}
	return dst
}

func (s *ProxyService) record(route, outcome string) {
	if s.metrics != nil {
		s.metrics.ProxyOutcomes.WithLabelValues(route, outcome).Inc()
	}
}

func filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for _, key := range relayedResponseHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[key] = vals
		}
	}
	return dst
}

// fallbackBody renders {"error": "HTTP <code>: <reason>"} from the status line alone.
func fallbackBody(resp *http.Response) []byte {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	data, _ := json.Marshal(map[string]string{
		"error": fmt.Sprintf("HTTP %d: %s", resp.StatusCode, reason),
	})
	return data
}

// unreachableReason extracts a short, client-safe description of a transport failure.
func unreachableReason(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "request canceled"
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return "connection closed mid-response"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Error()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return opErr.Err.Error()
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}

	return err.Error()
}
