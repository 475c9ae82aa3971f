// Package stream provides the byte-stream plumbing used when relaying an
// upstream response: a fan-out tee and content-encoding codecs.
package stream

import (
	"errors"
	"io"
)

const chunkSize = 32 * 1024

// Tee fans one source out to several independent readers. Each chunk read
// from the source is written to every branch before the next read, so the
// slowest branch paces the source and neither branch buffers unboundedly.
type Tee struct {
	src     io.Reader
	readers []*io.PipeReader
	writers []*io.PipeWriter
}

// NewTee creates a tee with n branches over src. Run must be called for any
// branch to make progress.
func NewTee(src io.Reader, n int) *Tee {
	t := &Tee{src: src}
	for range n {
		pr, pw := io.Pipe()
		t.readers = append(t.readers, pr)
		t.writers = append(t.writers, pw)
	}
	return t
}

// Branch returns the i-th reader. A consumer that stops early should call
// CloseWithError so Run unblocks and the other branches see the failure.
func (t *Tee) Branch(i int) *io.PipeReader {
	return t.readers[i]
}

// Run pumps the source into every branch until EOF or the first error.
// On EOF every branch sees io.EOF; on failure every branch sees the error.
func (t *Tee) Run() error {
	buf := make([]byte, chunkSize)
	for {
		n, err := t.src.Read(buf)
		if n > 0 {
			for _, w := range t.writers {
				if _, werr := w.Write(buf[:n]); werr != nil {
					t.closeAll(werr)
					return werr
				}
			}
		}
		if errors.Is(err, io.EOF) {
			t.closeAll(nil)
			return nil
		}
		if err != nil {
			t.closeAll(err)
			return err
		}
	}
}

func (t *Tee) closeAll(err error) {
	for _, w := range t.writers {
		_ = w.CloseWithError(err)
	}
}
