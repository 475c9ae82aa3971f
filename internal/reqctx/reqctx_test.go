package reqctx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_ResolvesAbsoluteURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/widgets?x=1&y=%2F", strings.NewReader(`{}`))
	req.Host = "localhost:8000"

	rc, err := New(req, 7, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, uint64(7), rc.Index)
	assert.Equal(t, http.MethodPost, rc.Method)
	assert.Equal(t, "http://localhost:8000/v1/widgets?x=1&y=%2F", rc.URL.String())
	assert.Equal(t, "/v1/widgets", rc.URL.Path)
	assert.Equal(t, "x=1&y=%2F", rc.URL.RawQuery)
	assert.Equal(t, "POST /v1/widgets?x=1&y=%2F", rc.Target())
	assert.Equal(t, int64(2), rc.ContentLength)
	assert.NotNil(t, rc.Context())
}

func TestNew_MissingHost(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/widgets", http.NoBody)
	req.Host = ""

	_, err := New(req, 1, discardLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingHost))
}

func TestNew_BadHost(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/widgets", http.NoBody)
	req.Host = "bad host:%%"

	_, err := New(req, 1, discardLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadURL)
}

func TestSequencer_ConcurrentUnique(t *testing.T) {
	seq := NewSequencer()
	const workers, per = 8, 250

	var mu sync.Mutex
	seen := make(map[uint64]bool, workers*per)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range per {
				n := seq.Next()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*per)
	assert.True(t, seen[1])
	assert.True(t, seen[workers*per])
}

func TestResponse_Chain(t *testing.T) {
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	err := res.Status(http.StatusCreated).Set("X-Fixture", "a").Add("X-Fixture", "b").WriteString("hello ").WriteString("world").End()
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"a", "b"}, rec.Header().Values("X-Fixture"))
	assert.Equal(t, "hello world", rec.Body.String())
	assert.True(t, res.Ended())
	assert.Equal(t, int64(11), res.BytesWritten())
}

func TestResponse_DefaultStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	require.NoError(t, res.End())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, res.HeadersSent())
}

func TestResponse_JSONAndText(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, NewResponse(rec).JSONBytes([]byte(`{"ok":true}`)).End())
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	require.NoError(t, NewResponse(rec).Text("plain").End())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "plain", rec.Body.String())
}

func TestResponse_EndTwicePanics(t *testing.T) {
	res := NewResponse(httptest.NewRecorder())
	require.NoError(t, res.End())

	assert.PanicsWithValue(t, ErrAlreadyEnded, func() { _ = res.End() })
}

func TestResponse_WriteAfterEndPanics(t *testing.T) {
	res := NewResponse(httptest.NewRecorder())
	require.NoError(t, res.End())

	assert.PanicsWithValue(t, ErrAlreadyEnded, func() { res.WriteString("late") })
	assert.PanicsWithValue(t, ErrAlreadyEnded, func() { _, _ = res.Writer().Write([]byte("late")) })
}

func TestResponse_StatusAfterHeadersSent(t *testing.T) {
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	res.WriteString("partial").Status(http.StatusTeapot).Set("X-Late", "1").WriteString(" body")

	assert.ErrorIs(t, res.Err(), ErrHeadersSent)
	assert.ErrorIs(t, res.End(), ErrHeadersSent)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Late"))
	assert.Equal(t, "partial body", rec.Body.String())
}

func TestResponse_WriterFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	res := NewResponse(rec)

	n, err := io.Copy(res.Writer(), strings.NewReader("streamed"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.True(t, rec.Flushed)
	require.NoError(t, res.End())
	assert.Equal(t, "streamed", rec.Body.String())
}
