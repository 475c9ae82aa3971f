package service

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"replay-proxy/internal/client"
	"replay-proxy/internal/config"
	"replay-proxy/internal/fixture"
	"replay-proxy/internal/metrics"
	"replay-proxy/internal/model"
	"replay-proxy/internal/reqctx"
	"replay-proxy/internal/stream"
)

// Forwarder relays a request to the upstream origin, streams the response
// back to the client and records it as a fixture.
type Forwarder struct {
	client     *client.UpstreamClient
	serializer *fixture.Serializer
	baseURL    *url.URL
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewForwarder creates a Forwarder for the configured upstream.
// The metrics parameter is optional.
func NewForwarder(c *client.UpstreamClient, s *fixture.Serializer, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Forwarder, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}

	return &Forwarder{
		client:     c,
		serializer: s,
		baseURL:    u,
		logger:     logger.With("component", "forwarder"),
		metrics:    m,
	}, nil
}

// Forward sends rc upstream and relays the response through res. The body
// is decoded once; one copy is re-encoded for the client and the other is
// captured and written as a fixture. res is ended only after the fixture is
// on disk. It returns the fixture path.
func (f *Forwarder) Forward(rc *reqctx.Context, res *reqctx.Response) (string, error) {
	target := f.upstreamURL(rc.URL)

	header := rc.Header.Clone()
	model.RemoveHopByHop(header)
	header.Del("Host")

	start := time.Now()
	resp, err := f.client.DoStream(&model.ProxyRequest{
		Ctx:           rc.Context(),
		Method:        rc.Method,
		URL:           target,
		Header:        header,
		Body:          rc.Body,
		ContentLength: rc.ContentLength,
	})
	if err != nil {
		return "", fmt.Errorf("forward %s: %w", rc.Target(), err)
	}
	defer func() { _ = resp.Body.Close() }()
	duration := time.Since(start)

	encoding, decode := contentCoding(rc.Method, resp)
	body := io.Reader(resp.Body)
	if decode {
		dec, err := stream.NewDecoder(encoding, resp.Body)
		if err != nil {
			return "", err
		}
		defer func() { _ = dec.Close() }()
		body = dec
	}

	res.Status(resp.StatusCode)
	out := res.Header()
	for k, vs := range resp.Header {
		out[k] = append([]string(nil), vs...)
	}
	model.RemoveHopByHop(out)
	// Sent chunked: the re-encoded length may differ from the upstream's,
	// and a recording fault after the body still needs room for its marker.
	out.Del("Content-Length")

	var captured bytes.Buffer
	tee := stream.NewTee(body, 2)
	var g errgroup.Group
	g.Go(tee.Run)
	g.Go(func() error {
		return relay(tee.Branch(0), res, encoding, decode)
	})
	g.Go(func() error {
		src := tee.Branch(1)
		if _, err := captured.ReadFrom(src); err != nil {
			_ = src.CloseWithError(err)
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("relay upstream body: %w", err)
	}

	capturedHeader := resp.Header.Clone()
	if decode {
		capturedHeader.Del("Content-Encoding")
	}
	path, err := f.serializer.Serialize(rc.Context(), rc, &model.CapturedResponse{
		StatusCode: resp.StatusCode,
		Header:     capturedHeader,
		Body:       captured.Bytes(),
		Upstream:   target.Redacted(),
		Duration:   duration,
	})
	if err != nil {
		return "", fmt.Errorf("record fixture: %w", err)
	}
	if f.metrics != nil {
		f.metrics.FixturesWritten.Inc()
	}
	rc.Log("recorded fixture",
		"status", resp.StatusCode,
		"bytes", captured.Len(),
		"fixture", path,
	)

	return path, res.End()
}

// upstreamURL keeps the request's path and raw query on the upstream origin.
func (f *Forwarder) upstreamURL(in *url.URL) *url.URL {
	u := *f.baseURL
	u.Path = in.Path
	u.RawPath = in.RawPath
	u.RawQuery = in.RawQuery
	u.Fragment = ""
	return &u
}

// contentCoding returns the response's Content-Encoding and whether the
// proxy decodes it. Stacked or unknown codings, and bodies that cannot be
// present, pass through untouched.
func contentCoding(method string, resp *model.ProxyResponse) (string, bool) {
	codings := resp.Header.Values("Content-Encoding")
	if len(codings) != 1 || !stream.Supported(codings[0]) {
		return "", false
	}
	if method == http.MethodHead || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotModified {
		return "", false
	}
	return codings[0], true
}

// relay copies the decoded body to the client, re-encoding it when the
// upstream sent it encoded. On failure src is closed so the tee stops.
func relay(src *io.PipeReader, res *reqctx.Response, encoding string, encode bool) error {
	var dst io.Writer = res.Writer()
	var enc io.WriteCloser
	if encode {
		var err error
		if enc, err = stream.NewEncoder(encoding, dst); err != nil {
			_ = src.CloseWithError(err)
			return err
		}
		dst = enc
	}

	_, err := io.Copy(dst, src)
	if err == nil && enc != nil {
		err = enc.Close()
	}
	if err != nil {
		_ = src.CloseWithError(err)
	}
	return err
}
