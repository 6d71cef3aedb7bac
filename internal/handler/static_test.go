package handler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
)

// newStaticEcho serves a temp dir with index.html, app.js and a secret file
// placed beside (outside) the root.
func newStaticEcho(t *testing.T, enabled, noCache bool) *echo.Echo {
	t.Helper()
	parent := t.TempDir()
	root := filepath.Join(parent, "www")
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(root, "index.html"):        "<h1>shop</h1>",
		filepath.Join(root, "app.js"):            "console.log(1)",
		filepath.Join(root, "sub", "index.html"): "<h1>sub</h1>",
		filepath.Join(parent, "secret.txt"):      "top secret",
	}
	for p, data := range files {
		if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := testConfig("http://backend:9001")
	cfg.Static.Enabled = &enabled
	cfg.Static.Root = root
	cfg.Static.NoCache = noCache

	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(discardLogger())
	e.Any("/*", NewStaticHandler(cfg, discardLogger()).Handle)
	return e
}

func TestStaticHandler_ServesFiles(t *testing.T) {
	e := newStaticEcho(t, true, false)

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/", http.StatusOK, "<h1>shop</h1>"},
		{"/app.js", http.StatusOK, "console.log(1)"},
		{"/sub/", http.StatusOK, "<h1>sub</h1>"},
		{"/missing.css", http.StatusNotFound, ""},
		{"/../secret.txt", http.StatusNotFound, ""},
		{"/%2e%2e/secret.txt", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestStaticHandler_NoCache(t *testing.T) {
	e := newStaticEcho(t, true, true)

	req := httptest.NewRequest(http.MethodGet, "/app.js", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if cc := rec.Header().Get(echo.HeaderCacheControl); cc != "no-store, no-cache, must-revalidate" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
}

func TestStaticHandler_MethodNotAllowed(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		method  string
	}{
		{"POST with static enabled", true, http.MethodPost},
		{"DELETE with static enabled", true, http.MethodDelete},
		{"GET with static disabled", false, http.MethodGet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newStaticEcho(t, tt.enabled, false)
			req := httptest.NewRequest(tt.method, "/index.html", nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
			}
			if got := decodeError(t, rec.Body.Bytes()); got != "Method Not Allowed" {
				t.Errorf("error = %q, want %q", got, "Method Not Allowed")
			}
		})
	}
}

func TestFSPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/", "."},
		{"", "."},
		{"/index.html", "index.html"},
		{"/sub/", "sub"},
		{"/../../etc/passwd", "etc/passwd"},
		{"/a/../b.js", "b.js"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := fsPath(tt.in); got != tt.want {
				t.Errorf("fsPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
