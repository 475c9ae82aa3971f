package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestStripHopByHop(t *testing.T) {
	e := echo.New()
	e.Use(StripHopByHop())

	var got http.Header
	e.GET("/test", func(c echo.Context) error {
		got = c.Request().Header.Clone()
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Proxy-Authorization", "Basic abc")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := got.Get("Connection"); v != "" {
		t.Errorf("Connection header should be stripped, got %q", v)
	}
	if v := got.Get("Proxy-Authorization"); v != "" {
		t.Errorf("Proxy-Authorization header should be stripped, got %q", v)
	}
	if v := got.Get("Accept"); v != "application/json" {
		t.Errorf("Accept = %q, want it kept", v)
	}
	if v := rec.Header().Get("X-Frame-Options"); v != "" {
		t.Errorf("no response headers should be added, got X-Frame-Options=%q", v)
	}
}
