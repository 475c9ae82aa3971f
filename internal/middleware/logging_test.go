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

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	e := echo.New()
	e.Use(RequestIndex(reqctx.NewSequencer()))
	e.Use(RequestLogger(logger))
	e.GET("/test", func(c echo.Context) error {
		SetOutcome(c, "replayed")
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test?x=1", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	line := buf.String()
	for _, want := range []string{"index=1", "method=GET", `path="/test?x=1"`, "status=200", "bytes_out=2", "outcome=replayed", "duration_ms="} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q does not contain %q", line, want)
		}
	}
}

func TestRequestLogger_ServerErrorsLogAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	e := echo.New()
	e.Use(RequestLogger(logger))
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusBadGateway, "upstream down")
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("log line %q is not at WARN", buf.String())
	}
}
