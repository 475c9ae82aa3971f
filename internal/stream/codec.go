package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// ErrCorrupt marks an encoded body that could not be decoded.
var ErrCorrupt = errors.New("corrupt encoded body")

// Supported reports whether the proxy can decode and re-encode the given
// Content-Encoding value.
func Supported(encoding string) bool {
	switch normalize(encoding) {
	case "gzip", "x-gzip", "deflate":
		return true
	}
	return false
}

func normalize(encoding string) string {
	return strings.ToLower(strings.TrimSpace(encoding))
}

// NewDecoder returns a reader yielding the decoded content of r. The
// compression header is read lazily, so an empty body (HEAD, 204, 304)
// decodes to an empty stream instead of failing.
func NewDecoder(encoding string, r io.Reader) (io.ReadCloser, error) {
	enc := normalize(encoding)
	if !Supported(enc) {
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
	return &decoder{enc: enc, src: r}, nil
}

type decoder struct {
	enc     string
	src     io.Reader
	once    sync.Once
	r       io.ReadCloser
	initErr error
}

func (d *decoder) Read(p []byte) (int, error) {
	d.once.Do(func() {
		br := bufio.NewReader(d.src)
		if _, err := br.Peek(1); errors.Is(err, io.EOF) {
			d.r = io.NopCloser(eofReader{})
			return
		}
		switch d.enc {
		case "deflate":
			d.r, d.initErr = zlib.NewReader(br)
		default:
			d.r, d.initErr = gzip.NewReader(br)
		}
		if d.initErr != nil {
			d.initErr = fmt.Errorf("%s decode: %w: %w", d.enc, ErrCorrupt, d.initErr)
		}
	})
	if d.initErr != nil {
		return 0, d.initErr
	}
	n, err := d.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = fmt.Errorf("%s decode: %w: %w", d.enc, ErrCorrupt, err)
	}
	return n, err
}

func (d *decoder) Close() error {
	if d.r == nil || d.initErr != nil {
		return nil
	}
	return d.r.Close()
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// NewEncoder returns a writer that compresses into w with the given
// Content-Encoding. The compressor starts on the first Write; Close flushes
// the trailer, or writes an empty frame when nothing was written.
func NewEncoder(encoding string, w io.Writer) (io.WriteCloser, error) {
	enc := normalize(encoding)
	if !Supported(enc) {
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
	return &encoder{enc: enc, dst: w}, nil
}

type encoder struct {
	enc string
	dst io.Writer
	w   io.WriteCloser
}

func (e *encoder) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	e.start()
	return e.w.Write(p)
}

func (e *encoder) Close() error {
	e.start()
	return e.w.Close()
}

func (e *encoder) start() {
	if e.w != nil {
		return
	}
	if e.enc == "deflate" {
		e.w = zlib.NewWriter(e.dst)
	} else {
		e.w = gzip.NewWriter(e.dst)
	}
}
