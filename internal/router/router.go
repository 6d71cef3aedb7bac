// Package router resolves API request paths to backend origins.
package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"storefront-proxy/internal/config"
)

// ErrRouteNotFound is returned when no configured prefix matches a path.
var ErrRouteNotFound = errors.New("API endpoint not found")

// Route maps a path prefix to a backend origin (scheme://host:port).
type Route struct {
	Prefix string
	Origin string
}

// Router is an immutable prefix table. It is safe for concurrent use.
type Router struct {
	routes []Route // longest prefix first
}

// New builds a Router from routes. Empty and duplicate prefixes are rejected.
func New(routes []Route) (*Router, error) {
	sorted := make([]Route, 0, len(routes))
	seen := make(map[string]bool, len(routes))
	for _, r := range routes {
		if r.Prefix == "" {
			return nil, fmt.Errorf("route to %q has an empty prefix", r.Origin)
		}
		if seen[r.Prefix] {
			return nil, fmt.Errorf("duplicate route prefix %q", r.Prefix)
		}
		seen[r.Prefix] = true
		sorted = append(sorted, r)
	}

	// Longest prefix wins; equal lengths are ordered lexically so the
	// table does not depend on declaration order.
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i].Prefix) != len(sorted[j].Prefix) {
			return len(sorted[i].Prefix) > len(sorted[j].Prefix)
		}
		return sorted[i].Prefix < sorted[j].Prefix
	})

	return &Router{routes: sorted}, nil
}

// NewFromConfig builds a Router from the configured route table.
func NewFromConfig(cfg *config.Config) (*Router, error) {
	routes := make([]Route, 0, len(cfg.Routes))
	for _, r := range cfg.Routes {
		routes = append(routes, Route{Prefix: r.Prefix, Origin: r.Origin})
	}
	return New(routes)
}

// Resolve returns the route whose prefix is the longest match for path.
// Any query string is ignored for matching.
func (r *Router) Resolve(path string) (Route, error) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	for _, route := range r.routes {
		if strings.HasPrefix(path, route.Prefix) {
			return route, nil
		}
	}
	return Route{}, ErrRouteNotFound
}

// TargetURL resolves requestURI and returns origin + requestURI, with path and
// query preserved verbatim.
func (r *Router) TargetURL(requestURI string) (string, Route, error) {
	route, err := r.Resolve(requestURI)
	if err != nil {
		return "", Route{}, err
	}
	return route.Origin + requestURI, route, nil
}

// Routes returns a copy of the table in match order.
func (r *Router) Routes() []Route {
	return append([]Route(nil), r.routes...)
}

// Prefixes returns the configured prefixes in match order.
func (r *Router) Prefixes() []string {
	out := make([]string, len(r.routes))
	for i, route := range r.routes {
		out[i] = route.Prefix
	}
	return out
}
