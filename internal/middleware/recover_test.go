package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"replay-proxy/internal/reqctx"
)

func TestRecover_DoubleEndIsLoggedAsProtocolViolation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	e := echo.New()
	e.Use(Recover(logger))
	e.GET("/test", func(c echo.Context) error {
		res := reqctx.NewResponse(c.Response())
		_ = res.Text("once").End()
		_ = res.End()
		return nil
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d (already sent)", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "once" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "once")
	}
	out := buf.String()
	if !strings.Contains(out, "protocol violation") || !strings.Contains(out, "level=ERROR") {
		t.Errorf("log = %q, want an ERROR protocol violation", out)
	}
	if !strings.Contains(out, "stack=") {
		t.Errorf("log = %q, want a stack trace", out)
	}
}

func TestRecover_PanicBeforeResponse(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	e := echo.New()
	e.Use(Recover(logger))
	e.GET("/test", func(c echo.Context) error {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("log = %q, want panic recovered", buf.String())
	}
}
