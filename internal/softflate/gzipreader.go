package softflate

import (
	"bytes"
	"io"

	kgzip "github.com/klauspost/compress/gzip"
)

// newMultistreamGzipReader wraps klauspost/compress/gzip's reader, which
// — like the stdlib package it mirrors — transparently concatenates
// consecutive gzip members into one logical stream (Multistream defaults
// to true). This is what lets the software fallback satisfy this module's// 2 for gzip framing.
func newMultistreamGzipReader(framed []byte) (io.ReadCloser, error) {
	return kgzip.NewReader(bytes.NewReader(framed))
}
