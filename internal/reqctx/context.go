// Package reqctx holds the per-request state of the proxy: the request
// context built on arrival and the response wrapper that enforces a single
// completion.
package reqctx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

var (
	// ErrMissingHost is returned when the request carries no Host header,
	// so no absolute URL can be built.
	ErrMissingHost = errors.New("request has no Host header; cannot resolve an absolute URL")
	// ErrBadURL is returned when the request target cannot be parsed.
	ErrBadURL = errors.New("request URL cannot be parsed")
)

// Sequencer hands out monotonically increasing request indexes.
// It is safe for concurrent use.
type Sequencer struct {
	n atomic.Uint64
}

// NewSequencer returns a Sequencer whose first index is 1.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Next returns the next request index.
func (s *Sequencer) Next() uint64 {
	return s.n.Add(1)
}

// Context is the proxy's view of one inbound request. It is owned by the
// goroutine serving the request.
type Context struct {
	Index         uint64
	Method        string
	URL           *url.URL // absolute
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
	RemoteAddr    string
	Start         time.Time

	ctx    context.Context
	logger *slog.Logger
}

// New builds a Context for r. The URL is resolved against the Host header;
// a request without one is rejected with ErrMissingHost.
func New(r *http.Request, index uint64, logger *slog.Logger) (*Context, error) {
	if r.Host == "" {
		return nil, ErrMissingHost
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	u, err := url.Parse(scheme + "://" + r.Host + r.URL.RequestURI())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadURL, err)
	}

	body := r.Body
	if body == nil {
		body = http.NoBody
	}

	return &Context{
		Index:         index,
		Method:        r.Method,
		URL:           u,
		Header:        r.Header,
		Body:          body,
		ContentLength: r.ContentLength,
		RemoteAddr:    r.RemoteAddr,
		Start:         time.Now(),
		ctx:           r.Context(),
		logger:        logger.With("index", index),
	}, nil
}

// Context returns the request's context. It is canceled when the client
// connection closes.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Elapsed returns the time since the request arrived.
func (c *Context) Elapsed() time.Duration {
	return time.Since(c.Start)
}

// Log writes a message tagged with the request index and elapsed time.
func (c *Context) Log(msg string, args ...any) {
	c.logger.Info(msg, append(args, "elapsed_ms", c.Elapsed().Milliseconds())...)
}

// Target returns the request line used in logs and error messages,
// e.g. "GET /v1/widgets?x=1".
func (c *Context) Target() string {
	return c.Method + " " + c.URL.RequestURI()
}
