package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"replay-proxy/internal/reqctx"
)

func TestRequestIndex_AssignsIncreasingIndexes(t *testing.T) {
	e := echo.New()
	e.Use(RequestIndex(reqctx.NewSequencer()))

	var mu sync.Mutex
	seen := make(map[uint64]bool)
	ids := make(map[string]bool)
	e.GET("/test", func(c echo.Context) error {
		mu.Lock()
		seen[Index(c)] = true
		ids[CorrelationID(c)] = true
		mu.Unlock()
		return c.NoContent(http.StatusNoContent)
	})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", http.NoBody))
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Fatalf("got %d distinct indexes, want 50", len(seen))
	}
	for i := uint64(1); i <= 50; i++ {
		if !seen[i] {
			t.Errorf("index %d was never assigned", i)
		}
	}
	if len(ids) != 50 {
		t.Errorf("got %d distinct correlation ids, want 50", len(ids))
	}
	for id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("correlation id %q is not a UUID: %v", id, err)
		}
	}
}

func TestRequestIndex_AddsNoResponseHeaders(t *testing.T) {
	e := echo.New()
	e.Use(RequestIndex(reqctx.NewSequencer()))
	e.GET("/test", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	if len(rec.Header()) != 0 {
		t.Errorf("response headers = %v, want none", rec.Header())
	}
}

func TestContextGetters_Unset(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", http.NoBody), httptest.NewRecorder())

	if got := Index(c); got != 0 {
		t.Errorf("Index() = %d, want 0", got)
	}
	if got := CorrelationID(c); got != "" {
		t.Errorf("CorrelationID() = %q, want empty", got)
	}
	if got := Outcome(c); got != "" {
		t.Errorf("Outcome() = %q, want empty", got)
	}
}
