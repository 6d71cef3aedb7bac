package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"storefront-proxy/internal/metrics"
)

// requestSeries returns the label sets and values of storefront_proxy_http_requests_total.
func requestSeries(t *testing.T, m *metrics.Metrics) []map[string]string {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	var out []map[string]string
	for _, f := range families {
		if f.GetName() != "storefront_proxy_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if metric.GetCounter().GetValue() != 1 {
				t.Errorf("counter %v = %v, want 1", labels, metric.GetCounter().GetValue())
			}
			out = append(out, labels)
		}
	}
	return out
}

func TestMetricsMiddleware_Labels(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		handler    echo.HandlerFunc
		wantMethod string
		wantStatus string
		wantPath   string
	}{
		{
			name:   "ok",
			method: http.MethodGet,
			target: "/api/product/42",
			handler: func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			},
			wantMethod: "GET", wantStatus: "200", wantPath: "/api/product",
		},
		{
			name:   "written upstream status",
			method: http.MethodPost,
			target: "/api/order",
			handler: func(c echo.Context) error {
				return c.JSONBlob(http.StatusServiceUnavailable, []byte(`{"error":"Service unavailable: timed out"}`))
			},
			wantMethod: "POST", wantStatus: "503", wantPath: "/api/order",
		},
		{
			name:   "http error",
			method: http.MethodGet,
			target: "/api/product/missing",
			handler: func(c echo.Context) error {
				return echo.NewHTTPError(http.StatusNotFound, "API endpoint not found")
			},
			wantMethod: "GET", wantStatus: "404", wantPath: "/api/product",
		},
		{
			name:   "plain error counts as 500",
			method: http.MethodDelete,
			target: "/api/order/7",
			handler: func(c echo.Context) error {
				return errors.New("boom")
			},
			wantMethod: "DELETE", wantStatus: "500", wantPath: "/api/order",
		},
		{
			name:   "non-standard method",
			method: "XYZZY",
			target: "/api/product/test",
			handler: func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			},
			wantMethod: "other", wantPath: "/api/product",
		},
		{
			name:   "static path",
			method: http.MethodGet,
			target: "/index.html",
			handler: func(c echo.Context) error {
				return c.HTML(http.StatusOK, "<h1>shop</h1>")
			},
			wantMethod: "GET", wantStatus: "200", wantPath: "other",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New("/api/product", "/api/order")

			e := echo.New()
			e.Use(MetricsMiddleware(m))
			e.Any("/*", tt.handler)

			req := httptest.NewRequest(tt.method, tt.target, nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			series := requestSeries(t, m)
			if len(series) != 1 {
				t.Fatalf("series = %v, want exactly one", series)
			}
			got := series[0]
			if got["method"] != tt.wantMethod {
				t.Errorf("method = %q, want %q", got["method"], tt.wantMethod)
			}
			if tt.wantStatus != "" && got["status_code"] != tt.wantStatus {
				t.Errorf("status_code = %q, want %q", got["status_code"], tt.wantStatus)
			}
			if got["path_prefix"] != tt.wantPath {
				t.Errorf("path_prefix = %q, want %q", got["path_prefix"], tt.wantPath)
			}
		})
	}
}

func TestMetricsMiddleware_RecordsDurationAndInFlight(t *testing.T) {
	m := metrics.New("/api/product")

	var inFlight float64
	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/healthz", func(c echo.Context) error {
		families, err := m.Registry.Gather()
		if err != nil {
			return err
		}
		for _, f := range families {
			if f.GetName() == "storefront_proxy_http_requests_in_flight" {
				inFlight = f.GetMetric()[0].GetGauge().GetValue()
			}
		}
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if inFlight != 1 {
		t.Errorf("in-flight during request = %v, want 1", inFlight)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		switch f.GetName() {
		case "storefront_proxy_http_request_duration_seconds":
			for _, metric := range f.GetMetric() {
				for _, lp := range metric.GetLabel() {
					if lp.GetName() == "path_prefix" && lp.GetValue() == "/healthz" && metric.GetHistogram().GetSampleCount() == 1 {
						found = true
					}
				}
			}
		case "storefront_proxy_http_requests_in_flight":
			if v := f.GetMetric()[0].GetGauge().GetValue(); v != 0 {
				t.Errorf("in-flight after request = %v, want 0", v)
			}
		}
	}
	if !found {
		t.Error("expected one duration sample with path_prefix=/healthz")
	}
}

func TestMetricsMiddleware_RouterNotFound(t *testing.T) {
	m := metrics.New("/api/product")

	e := echo.New()
	e.Use(MetricsMiddleware(m))

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	series := requestSeries(t, m)
	if len(series) != 1 || series[0]["path_prefix"] != "other" || series[0]["status_code"] != "404" {
		t.Errorf("series = %v, want one with path_prefix=other status_code=404", series)
	}
}
