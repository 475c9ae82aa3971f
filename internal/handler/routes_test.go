package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"replay-proxy/internal/metrics"
	"replay-proxy/internal/middleware"
	"replay-proxy/internal/model"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	upstream, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	})

	env := newTestEnv(t, testConfig(upstream.URL, t.TempDir(), model.ModeBoth), nil)
	admin := NewAdminHandler(env.cfg, env.svc, env.store, "test")
	m := metrics.New()

	e := echo.New()
	e.Use(middleware.RequestIndex(env.seq))
	e.Use(middleware.MetricsMiddleware(m))
	RegisterRoutes(e, env.cfg, env.handler, admin, m)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"GET healthz", http.MethodGet, "/__proxy/healthz", "", http.StatusOK, `"ok"`},
		{"GET status", http.MethodGet, "/__proxy/status", "", http.StatusOK, `"mode":"both"`},
		{"GET mode", http.MethodGet, "/__proxy/mode", "", http.StatusOK, `"mode":"both"`},
		{"GET root is proxied", http.MethodGet, "/", "", http.StatusOK, `{"path":"/"}`},
		{"GET deep path is proxied", http.MethodGet, "/v1/widgets/3?x=1", "", http.StatusOK, `{"path":"/v1/widgets/3"}`},
		{"POST is proxied", http.MethodPost, "/v1/widgets", `{"name":"w"}`, http.StatusOK, `{"path":"/v1/widgets"}`},
		{"unknown admin path is proxied", http.MethodGet, "/__proxy/other", "", http.StatusOK, `{"path":"/__proxy/other"}`},
		{"GET metrics", http.MethodGet, "/__proxy/metrics", "", http.StatusOK, "replay_proxy_http_requests_total"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = http.NoBody
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRegisterRoutes_MetricsDisabled(t *testing.T) {
	env := newTestEnv(t, testConfig("http://127.0.0.1:1", t.TempDir(), model.ModeReplayOnly), nil)
	env.cfg.Metrics.Enabled = false
	admin := NewAdminHandler(env.cfg, env.svc, env.store, "test")

	e := echo.New()
	RegisterRoutes(e, env.cfg, env.handler, admin, metrics.New())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/__proxy/metrics", http.NoBody))

	// Without the metrics route the path falls through to the proxy, which
	// has no fixture for it in replay-only mode.
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}
