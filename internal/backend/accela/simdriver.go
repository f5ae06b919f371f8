package accela

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

// SimDriver is a software-simulated stand-in for the real QAT driver,
// good enough to exercise the dispatch core's decision logic and the
// on-wire byte layout (empty-block sentinel, gzip extra subfield) without
// real hardware. It never fails unless told to, via FailNext.
type SimDriver struct {
	// FailNext, if set, makes the next OpenSession call for the matching
	// key fail once, then clears itself. Used by tests to exercise
	// fall-through behavior.
	FailNext map[sessionKey]bool
}

// NewSimDriver returns a SimDriver with no forced failures armed.
func NewSimDriver() *SimDriver {
	return &SimDriver{FailNext: make(map[sessionKey]bool)}
}

func (d *SimDriver) OpenSession(framing format.Framing, gzipExtra bool) (Session, error) {
	key := sessionKey{framing, gzipExtra}
	if d.FailNext[key] {
		delete(d.FailNext, key)
		return nil, fmt.Errorf("simulated QAT session-open failure")
	}
	return &simSession{framing: framing, gzipExtra: gzipExtra}, nil
}

type simSession struct {
	framing   format.Framing
	gzipExtra bool
}

func (s *simSession) Close() error { return nil }

func (s *simSession) Compress(input, output []byte, windowBits, level int, prependEmptyBlock, poll bool) (int, int, error) {
	payload, err := deflateRaw(input, level)
	if err != nil {
		return 0, 0, err
	}

	var buf bytes.Buffer
	switch s.framing {
	case format.Raw:
		if prependEmptyBlock {
			buf.Write(format.EmptyBlockSentinel[:])
		}
		buf.Write(payload)
	case format.Zlib:
		buf.Write(zlibHeader(windowBits, level))
		buf.Write(payload)
		var sum [4]byte
		binary.BigEndian.PutUint32(sum[:], adler32.Checksum(input))
		buf.Write(sum[:])
	case format.Gzip:
		buf.Write(gzipHeader(s.gzipExtra, uint32(len(input)), uint32(len(payload))))
		if prependEmptyBlock {
			buf.Write(format.EmptyBlockSentinel[:])
		}
		buf.Write(payload)
		var trailer [8]byte
		binary.LittleEndian.PutUint32(trailer[0:4], crc32.ChecksumIEEE(input))
		binary.LittleEndian.PutUint32(trailer[4:8], uint32(len(input)))
		buf.Write(trailer[:])
	default:
		return 0, 0, fmt.Errorf("accela sim: unsupported framing %v", s.framing)
	}

	if buf.Len() > len(output) {
		return 0, 0, fmt.Errorf("accela sim: output buffer too small (%d < %d)", len(output), buf.Len())
	}
	n := copy(output, buf.Bytes())
	return len(input), n, nil
}

// Decompress always completes in one call: end-of-stream is
// always true on success.
func (s *simSession) Decompress(input, output []byte, windowBits int, detectExtra, poll bool) (int, int, bool, error) {
	body := input
	consumed := len(input)
	if detectExtra {
		sub, ok := format.DetectExtraSubfield(input)
		if !ok {
			return 0, 0, false, fmt.Errorf("accela sim: extra subfield requested but absent")
		}
		start := format.HeaderLength(format.Gzip, true)
		end := start + int(sub.PayloadLength)
		if end > len(input) {
			return 0, 0, false, fmt.Errorf("accela sim: declared payload length exceeds input")
		}
		body = input[start:end]
		// Only the one member covered by the declared payload range was
		// decoded; anything past its trailer belongs to the next member
		// and must stay in the caller's buffer for the next fill.
		consumed = end + format.TrailerLength(format.Gzip)
		if consumed > len(input) {
			consumed = len(input)
		}
	} else {
		hdr := format.HeaderLength(s.framing, false)
		if hdr > len(input) {
			return 0, 0, false, fmt.Errorf("accela sim: input shorter than framing header")
		}
		body = input[hdr:]
		if tlr := format.TrailerLength(s.framing); tlr > 0 && tlr <= len(body) {
			body = body[:len(body)-tlr]
		}
	}
	if format.HasEmptyBlockSentinel(body) {
		body = body[len(format.EmptyBlockSentinel):]
	}

	out, err := inflateRaw(body, len(output))
	if err != nil {
		return 0, 0, false, err
	}
	if len(out) > len(output) {
		return 0, 0, false, fmt.Errorf("accela sim: output buffer too small")
	}
	n := copy(output, out)
	return consumed, n, true, nil
}

func deflateRaw(input []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(input); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflateRaw(payload []byte, hint int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(payload))
	defer r.Close()
	out := make([]byte, 0, hint)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// zlibHeader builds the 2-byte RFC1950 header for the given window/level.
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
	check := (uint16(cmf)<<8 | uint16(flg))
	rem := check % 31
	if rem != 0 {
		flg += byte(31 - rem)
	}
	return []byte{cmf, flg}
}

// gzipHeader builds a minimal RFC1952 header, optionally carrying the
// custom QZ extra subfield.
func gzipHeader(extra bool, sourceLen, payloadLen uint32) []byte {
	h := make([]byte, 10)
	h[0], h[1], h[2] = 0x1F, 0x8B, 0x08
	if extra {
		h[3] |= 0x04
		h = append(h, format.BuildExtraSubfield(sourceLen, payloadLen)...)
	}
	return h
}
