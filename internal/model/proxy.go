// Package model defines shared types for the proxy.
package model

import (
	"context"
	"net/http"
)

// ProxyRequest represents one inbound API request to be forwarded upstream.
// Body is read fully before forwarding; nil means the request is bodyless.
type ProxyRequest struct {
	Ctx        context.Context
	Method     string
	RequestURI string // path plus raw query, exactly as received
	Header     http.Header
	Body       []byte
}

// ResultKind tags the variant held by a ProxyResult.
type ResultKind int

const (
	// ResultSuccess is a 2xx upstream response.
	ResultSuccess ResultKind = iota
	// ResultUpstreamError is a non-2xx upstream response that was received intact.
	ResultUpstreamError
	// ResultUnreachable is a transport-level failure (refused, DNS, timeout, reset).
	ResultUnreachable
)

// String returns the outcome label used in logs and metrics.
func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultUpstreamError:
		return "upstream_error"
	case ResultUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// ProxyResult is the normalized outcome of one forwarded request.
// StatusCode, Header and Body are set for Success and UpstreamError;
// Message is set for Unreachable.
type ProxyResult struct {
	Kind       ResultKind
	StatusCode int
	Header     http.Header
	Body       []byte
	Message    string
}
