// Package model defines shared types for the proxy.
package model

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Mode controls which request paths the proxy may take.
type Mode string

const (
	// ModeBoth replays matching fixtures and records everything else.
	ModeBoth Mode = "both"
	// ModeReplayOnly answers from fixtures only; a miss is a 500.
	ModeReplayOnly Mode = "replay-only"
	// ModeRecordOnly always forwards and records, never replays.
	ModeRecordOnly Mode = "record-only"
)

// ParseMode converts a config or API value into a Mode. The empty string
// selects ModeBoth.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeBoth:
		return ModeBoth, nil
	case ModeReplayOnly, ModeRecordOnly:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown proxy mode %q (want both, replay-only or record-only)", s)
}

// Replays reports whether fixtures are consulted in this mode.
func (m Mode) Replays() bool { return m != ModeRecordOnly }

// Records reports whether misses may be forwarded and recorded in this mode.
func (m Mode) Records() bool { return m != ModeReplayOnly }

// ProxyRequest represents a client request to be forwarded upstream.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	URL           *url.URL
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// CapturedResponse is the copy of an upstream response kept for recording.
// Body is decoded unless Header still carries a Content-Encoding.
type CapturedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Upstream   string
	Duration   time.Duration
}

// hopByHopHeaders apply to a single connection and are never forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// RemoveHopByHop deletes hop-by-hop headers from h, including any header
// named in a Connection header.
func RemoveHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}
