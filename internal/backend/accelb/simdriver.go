package accelb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/adler32"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/uuxo/zlib-accel/internal/format"
)

// SimDriver is a software-simulated stand-in for the real IAA driver.
type SimDriver struct {
	FailNext map[sessionKey]bool
}

func NewSimDriver() *SimDriver {
	return &SimDriver{FailNext: make(map[sessionKey]bool)}
}

func (d *SimDriver) OpenSession(framing format.Framing) (Session, error) {
	key := sessionKey{framing}
	if d.FailNext[key] {
		delete(d.FailNext, key)
		return nil, fmt.Errorf("simulated IAA job-open failure")
	}
	return &simSession{framing: framing}, nil
}

type simSession struct {
	framing format.Framing
}

func (s *simSession) Close() error { return nil }

func (s *simSession) Compress(input, output []byte, windowBits, level int, prependEmptyBlock, gzipExtra bool) (int, int, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, defaultIfZero(level))
	if err != nil {
		return 0, 0, err
	}
	if _, err := w.Write(input); err != nil {
		return 0, 0, err
	}
	if err := w.Close(); err != nil {
		return 0, 0, err
	}
	payload := buf.Bytes()

	var out bytes.Buffer
	switch s.framing {
	case format.Raw:
		if prependEmptyBlock {
			out.Write(format.EmptyBlockSentinel[:])
		}
		out.Write(payload)
	case format.Zlib:
		out.Write(zlibHeader(windowBits, level))
		out.Write(payload)
		var sum [4]byte
		binary.BigEndian.PutUint32(sum[:], adler32.Checksum(input))
		out.Write(sum[:])
	case format.Gzip:
		out.Write(gzipHeader(gzipExtra, uint32(len(input)), uint32(len(payload))))
		if prependEmptyBlock {
			out.Write(format.EmptyBlockSentinel[:])
		}
		out.Write(payload)
		var trailer [8]byte
		binary.LittleEndian.PutUint32(trailer[0:4], crc32.ChecksumIEEE(input))
		binary.LittleEndian.PutUint32(trailer[4:8], uint32(len(input)))
		out.Write(trailer[:])
	default:
		return 0, 0, fmt.Errorf("accelb sim: unsupported framing %v", s.framing)
	}

	if out.Len() > len(output) {
		return 0, 0, fmt.Errorf("accelb sim: output buffer too small")
	}
	n := copy(output, out.Bytes())
	return len(input), n, nil
}

// Decompress decodes exactly one deflate stream starting at the framing
// header (ignoring any trailing bytes from a second, concatenated
// stream — ACCEL-B never looks past the first one).
// If the decoded output does not fit in the caller's buffer the result
// is partial and EndOfStream is false.
func (s *simSession) Decompress(input, output []byte, windowBits int) (int, int, bool, error) {
	body := input
	hdr := format.HeaderLength(s.framing, false)
	if hdr > len(body) {
		return 0, 0, false, fmt.Errorf("accelb sim: input shorter than framing header")
	}
	body = body[hdr:]
	if format.HasEmptyBlockSentinel(body) {
		body = body[len(format.EmptyBlockSentinel):]
	}

	r := flate.NewReader(bytes.NewReader(body))
	defer r.Close()
	var out bytes.Buffer
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, 0, false, err
		}
		if out.Len() > len(output) {
			// Partial: caller's buffer can't hold the full result.
			n := copy(output, out.Bytes())
			return len(input), n, false, nil
		}
	}
	if out.Len() > len(output) {
		n := copy(output, out.Bytes())
		return len(input), n, false, nil
	}
	n := copy(output, out.Bytes())
	return len(input), n, true, nil
}

func defaultIfZero(level int) int {
	if level <= 0 {
		return 6
	}
	return level
}

func zlibHeader(windowBits, level int) []byte {
	cinfo := byte(7)
	if windowBits >= 8 && windowBits <= 15 {
		cinfo = byte(windowBits - 8)
	}
	cmf := cinfo<<4 | 8
	var flevel byte
	switch {
	case level < 2:
		flevel = 0
	case level < 6:
		flevel = 1
	case level == 6:
		flevel = 2
	default:
		flevel = 3
	}
	flg := flevel << 6
	check := uint16(cmf)<<8 | uint16(flg)
	if rem := check % 31; rem != 0 {
		flg += byte(31 - rem)
	}
	return []byte{cmf, flg}
}

func gzipHeader(extra bool, sourceLen, payloadLen uint32) []byte {
	h := make([]byte, 10)
	h[0], h[1], h[2] = 0x1F, 0x8B, 0x08
	if extra {
		h[3] |= 0x04
		h = append(h, format.BuildExtraSubfield(sourceLen, payloadLen)...)
	}
	return h
}
