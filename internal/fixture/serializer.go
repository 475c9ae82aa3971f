package fixture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/renameio/v2"

	"replay-proxy/internal/config"
	"replay-proxy/internal/model"
	"replay-proxy/internal/reqctx"
)

// Naming selects the file name layout of recorded fixtures.
type Naming string

const (
	// NamingArrival prefixes names with the request index, so fixtures sort
	// in recording order.
	NamingArrival Naming = "arrival"
	// NamingPath leads with the path, so fixtures for one endpoint sort
	// together and the index only breaks ties.
	NamingPath Naming = "path"
)

// maxNameBytes keeps generated names under common file system limits.
const maxNameBytes = 240

// volatileHeaders are response headers that differ on every call and are
// not stored in fixtures.
var volatileHeaders = map[string]bool{
	"Age":                   true,
	"Alt-Svc":               true,
	"Cache-Control":         true,
	"Connection":            true,
	"Content-Length":        true,
	"Date":                  true,
	"Etag":                  true,
	"Expires":               true,
	"Keep-Alive":            true,
	"Last-Modified":         true,
	"Pragma":                true,
	"Server-Timing":         true,
	"Set-Cookie":            true,
	"Traceparent":           true,
	"Tracestate":            true,
	"Transfer-Encoding":     true,
	"Via":                   true,
	"X-Amzn-Requestid":      true,
	"X-Amzn-Trace-Id":       true,
	"X-Cloud-Trace-Context": true,
	"X-Correlation-Id":      true,
	"X-Request-Id":          true,
}

// Serializer turns captured upstream responses into fixture files.
type Serializer struct {
	dir    string
	naming Naming
	logger *slog.Logger
	now    func() time.Time
}

// NewSerializer creates a Serializer writing into the configured fixtures directory.
func NewSerializer(cfg *config.Config, logger *slog.Logger) *Serializer {
	return &Serializer{
		dir:    cfg.Fixtures.Dir,
		naming: Naming(cfg.Fixtures.Naming),
		logger: logger.With("component", "serializer"),
		now:    time.Now,
	}
}

// Serialize writes a fixture answering rc's method, path and query with the
// captured response, and returns the path of the new file. A fixture with
// the same name is replaced.
func (s *Serializer) Serialize(ctx context.Context, rc *reqctx.Context, cr *model.CapturedResponse) (string, error) {
	t := NewTemplate(rc, cr, s.now())
	t.name = FileName(s.naming, rc.Index, rc.Method, rc.URL.EscapedPath(), rc.URL.RawQuery)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return "", fmt.Errorf("encode fixture %s: %w", t.name, err)
	}

	path, err := s.write(ctx, t.name, buf.Bytes())
	if err != nil {
		return "", err
	}
	s.logger.Debug("fixture written", "index", rc.Index, "path", path, "bytes", buf.Len())
	return path, nil
}

// NewTemplate builds the fixture for a captured exchange.
func NewTemplate(rc *reqctx.Context, cr *model.CapturedResponse, at time.Time) *Template {
	t := &Template{
		Request: Predicate{
			Method: rc.Method,
			Path:   rc.URL.Path,
			Query:  rc.URL.RawQuery,
		},
		Response: Reply{
			Status:  cr.StatusCode,
			Headers: reproducibleHeaders(cr.Header),
		},
		Recorded: &Provenance{
			Index:      rc.Index,
			At:         at.UTC(),
			Upstream:   cr.Upstream,
			DurationMS: cr.Duration.Milliseconds(),
		},
	}

	switch body := cr.Body; {
	case len(body) == 0:
	case compactJSON(body):
		t.Response.Body = json.RawMessage(body)
	case utf8.Valid(body):
		text := string(body)
		t.Response.BodyText = &text
	default:
		t.Response.BodyBase64 = body
	}
	return t
}

// compactJSON reports whether body is JSON that replays byte for byte after
// being stored indented. Other JSON is kept as text.
func compactJSON(body []byte) bool {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return false
	}
	return bytes.Equal(buf.Bytes(), body)
}

// reproducibleHeaders drops headers that change from call to call.
func reproducibleHeaders(h http.Header) Headers {
	out := make(Headers, len(h))
	for k, vs := range h {
		ck := http.CanonicalHeaderKey(k)
		if volatileHeaders[ck] || strings.HasPrefix(ck, "X-B3-") {
			continue
		}
		out[ck] = append([]string(nil), vs...)
	}
	return out
}

// FileName builds the fixture file name for a request. The path uses its
// escaped form with '/' replaced by '|'; the query keeps its leading '?'.
func FileName(naming Naming, index uint64, method, escapedPath, rawQuery string) string {
	target := escapedPath
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	target = strings.ReplaceAll(target, "/", "|")
	target = shorten(target)
	method = strings.ToLower(method)

	if naming == NamingPath {
		return fmt.Sprintf("%s.%s %05d.json", target, method, index)
	}
	return fmt.Sprintf("%05d %s.%s.json", index, target, method)
}

// shorten truncates over-long targets and appends a checksum of the full
// target so distinct requests keep distinct names.
func shorten(target string) string {
	const limit = maxNameBytes - 32 // room for index, method and extension
	if len(target) <= limit {
		return target
	}
	sum := fmt.Sprintf("~%08x", crc32.ChecksumIEEE([]byte(target)))
	cut := strings.ToValidUTF8(target[:limit-len(sum)], "")
	return cut + sum
}

// write stores data under name atomically, so the dispatcher never loads a
// half-written fixture.
func (s *Serializer) write(ctx context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create fixtures dir: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("write fixture %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	if err := renameio.WriteFile(path, data, 0o644, renameio.WithTempDir(s.dir)); err != nil {
		return "", fmt.Errorf("write fixture %s: %w", name, err)
	}
	return path, nil
}
