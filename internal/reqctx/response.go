package reqctx

import (
	"errors"
	"io"
	"net/http"
)

var (
	// ErrAlreadyEnded is the panic value raised when a response is completed
	// or written to a second time. It means two code paths both believe they
	// own the response.
	ErrAlreadyEnded = errors.New("response already ended")
	// ErrHeadersSent is recorded when status or headers are changed after
	// they were flushed to the client.
	ErrHeadersSent = errors.New("response headers already sent")
)

// Response wraps the outbound http.ResponseWriter. Setters return the
// Response so calls can be chained; the first write error is kept and
// reported by End and Err.
type Response struct {
	w           http.ResponseWriter
	status      int
	headersSent bool
	ended       bool
	written     int64
	err         error
}

// NewResponse wraps w. The status defaults to 200 until Status is called.
func NewResponse(w http.ResponseWriter) *Response {
	return &Response{w: w, status: http.StatusOK}
}

// Status sets the status code sent with the headers.
func (r *Response) Status(code int) *Response {
	r.mustBeOpen()
	if r.headersSent {
		r.fail(ErrHeadersSent)
		return r
	}
	r.status = code
	return r
}

// Set replaces a response header.
func (r *Response) Set(key, value string) *Response {
	r.mustBeOpen()
	if r.headersSent {
		r.fail(ErrHeadersSent)
		return r
	}
	r.w.Header().Set(key, value)
	return r
}

// Add appends a value to a response header.
func (r *Response) Add(key, value string) *Response {
	r.mustBeOpen()
	if r.headersSent {
		r.fail(ErrHeadersSent)
		return r
	}
	r.w.Header().Add(key, value)
	return r
}

// Header exposes the pending header map for bulk edits. Changes made after
// the headers were sent have no effect.
func (r *Response) Header() http.Header {
	return r.w.Header()
}

// Write sends p, flushing the status line and headers first if needed.
func (r *Response) Write(p []byte) *Response {
	r.mustBeOpen()
	_, _ = r.write(p)
	return r
}

// WriteString is Write for strings.
func (r *Response) WriteString(s string) *Response {
	return r.Write([]byte(s))
}

// JSONBytes sends an already encoded JSON document.
func (r *Response) JSONBytes(b []byte) *Response {
	if r.w.Header().Get("Content-Type") == "" {
		r.Set("Content-Type", "application/json; charset=utf-8")
	}
	return r.Write(b)
}

// Text sends s as text/plain.
func (r *Response) Text(s string) *Response {
	if r.w.Header().Get("Content-Type") == "" {
		r.Set("Content-Type", "text/plain; charset=utf-8")
	}
	return r.WriteString(s)
}

// Writer returns an io.Writer for streaming a body. Each write is flushed
// to the client when the underlying writer supports it.
func (r *Response) Writer() io.Writer {
	return streamWriter{r}
}

// End completes the response. Calling End twice panics with ErrAlreadyEnded.
func (r *Response) End() error {
	r.mustBeOpen()
	r.sendHeaders()
	r.ended = true
	return r.err
}

// Err returns the first error recorded by the response.
func (r *Response) Err() error {
	return r.err
}

// HeadersSent reports whether the status line has been written.
func (r *Response) HeadersSent() bool {
	return r.headersSent
}

// Ended reports whether End has been called.
func (r *Response) Ended() bool {
	return r.ended
}

// BytesWritten returns the number of body bytes sent so far.
func (r *Response) BytesWritten() int64 {
	return r.written
}

func (r *Response) write(p []byte) (int, error) {
	r.sendHeaders()
	n, err := r.w.Write(p)
	r.written += int64(n)
	if err != nil {
		r.fail(err)
	}
	return n, err
}

func (r *Response) sendHeaders() {
	if r.headersSent {
		return
	}
	r.headersSent = true
	r.w.WriteHeader(r.status)
}

func (r *Response) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Response) mustBeOpen() {
	if r.ended {
		panic(ErrAlreadyEnded)
	}
}

type streamWriter struct {
	r *Response
}

func (s streamWriter) Write(p []byte) (int, error) {
	s.r.mustBeOpen()
	n, err := s.r.write(p)
	if err == nil {
		if f, ok := s.r.w.(http.Flusher); ok {
			f.Flush()
		}
	}
	return n, err
}
