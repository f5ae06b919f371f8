// Package softflate is the software deflate fallback every other back-end
// falls through to. It wraps klauspost/compress's flate/zlib/gzip
// implementations — a faster drop-in for the stdlib compress family —
// behind the same init/process/end/reset shape the classical streaming
// library exposes, so the dispatch core can treat it as just another
// backend.Backend-shaped collaborator.
//
// Unlike the real zlib, klauspost/compress (like the Go stdlib it mirrors)
// exposes a batch Writer/Reader, not an incremental, flush-granular state
// machine. DeflateStream and InflateStream bridge that gap by buffering
// accumulated input and only materializing real compressed/decompressed
// bytes once enough of the stream is available — compress at Finish,
// decompress as soon as a complete framed stream (or, for Gzip, run of
// concatenated members) has arrived. This reproduces the documented
// return codes for every caller in this module, which only ever
// drives flush in the patterns this module's callers use, without literally
// reimplementing zlib's block-by-block incremental encoder.
package softflate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/adler32"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
	kzlib "github.com/klauspost/compress/zlib"

	"github.com/uuxo/zlib-accel/internal/format"
)

// Code mirrors the classical streaming library's return codes.
type Code int

const (
	OK Code = iota
	StreamEnd
	BufError
	DataError
)

func (c Code) String() string {
	switch c {
	case StreamEnd:
		return "STREAM_END"
	case BufError:
		return "BUF_ERROR"
	case DataError:
		return "DATA_ERROR"
	default:
		return "OK"
	}
}

// FlushMode mirrors the subset of flush modes this module's callers use.
type FlushMode int

const (
	NoFlush FlushMode = iota
	SyncFlush
	Finish
)

// DeflateStream is the software compress direction's streaming state.
type DeflateStream struct {
	framing    format.Framing
	windowBits int
	level      int

	pending bytes.Buffer // raw input accumulated, not yet compressed
	out     bytes.Buffer // compressed bytes produced, not yet drained

	totalIn  uint64
	totalOut uint64
	finished bool
}

// NewDeflate starts a fresh compress-direction stream.
func NewDeflate(framing format.Framing, windowBits, level int) *DeflateStream {
	if level <= 0 {
		level = 6
	}
	return &DeflateStream{framing: framing, windowBits: windowBits, level: level}
}

// Reset clears accumulated state, keeping the configured framing/level —
// matches the classical API's cheap stream-reuse reset.
func (s *DeflateStream) Reset() {
	s.pending.Reset()
	s.out.Reset()
	s.totalIn, s.totalOut = 0, 0
	s.finished = false
}

// TotalIn and TotalOut report cumulative byte counts across every Process
// call since the last Reset/construction.
func (s *DeflateStream) TotalIn() uint64  { return s.totalIn }
func (s *DeflateStream) TotalOut() uint64 { return s.totalOut }

// Process consumes input (accumulating it) and drains up to len(output)
// compressed bytes into output, compressing the whole accumulated input
// once flush is Finish. Returns the code, bytes consumed from input, and
// bytes written into output.
func (s *DeflateStream) Process(input []byte, output []byte, flush FlushMode) (Code, int, int, error) {
	if s.finished && s.out.Len() == 0 {
		return StreamEnd, 0, 0, nil
	}

	consumed := len(input)
	s.pending.Write(input)
	s.totalIn += uint64(consumed)

	if flush == Finish && !s.finished {
		compressed, err := compressAll(s.pending.Bytes(), s.framing, s.windowBits, s.level)
		if err != nil {
			return DataError, consumed, 0, err
		}
		s.out.Write(compressed)
		s.finished = true
	}

	produced := 0
	if s.out.Len() > 0 {
		n := copy(output, s.out.Bytes())
		produced = n
		s.out.Next(n)
		s.totalOut += uint64(n)
	}

	switch {
	case s.finished && s.out.Len() == 0:
		return StreamEnd, consumed, produced, nil
	case s.finished && s.out.Len() > 0:
		return BufError, consumed, produced, nil
	default:
		return OK, consumed, produced, nil
	}
}

func compressAll(input []byte, f format.Framing, windowBits, level int) ([]byte, error) {
	payload, err := deflateRawAt(input, level)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	switch f {
	case format.Raw:
		buf.Write(payload)
	case format.Zlib:
		buf.Write(zlibHeaderBytes(windowBits, level))
		buf.Write(payload)
		var sum [4]byte
		binary.BigEndian.PutUint32(sum[:], adler32.Checksum(input))
		buf.Write(sum[:])
	case format.Gzip:
		buf.Write(gzipHeaderBytes())
		buf.Write(payload)
		var trailer [8]byte
		binary.LittleEndian.PutUint32(trailer[0:4], crc32.ChecksumIEEE(input))
		binary.LittleEndian.PutUint32(trailer[4:8], uint32(len(input)))
		buf.Write(trailer[:])
	default:
		return nil, fmt.Errorf("softflate: invalid framing")
	}
	return buf.Bytes(), nil
}

func deflateRawAt(input []byte, level int) ([]byte, error) {
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

func zlibHeaderBytes(windowBits, level int) []byte {
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

func gzipHeaderBytes() []byte {
	return []byte{0x1F, 0x8B, 0x08, 0x00, 0, 0, 0, 0, 0, 0xFF}
}

// InflateStream is the software decompress direction's streaming state.
type InflateStream struct {
	framing    format.Framing
	windowBits int

	pending bytes.Buffer // framed compressed input accumulated so far
	out     bytes.Buffer // decoded bytes produced, not yet drained

	totalIn  uint64
	totalOut uint64
	done     bool
}

// NewInflate starts a fresh decompress-direction stream.
func NewInflate(framing format.Framing, windowBits int) *InflateStream {
	return &InflateStream{framing: framing, windowBits: windowBits}
}

// Reset clears accumulated state, keeping the configured framing.
func (s *InflateStream) Reset() {
	s.pending.Reset()
	s.out.Reset()
	s.totalIn, s.totalOut = 0, 0
	s.done = false
}

func (s *InflateStream) TotalIn() uint64  { return s.totalIn }
func (s *InflateStream) TotalOut() uint64 { return s.totalOut }

// Process consumes input and attempts to decode the accumulated
// compressed bytes. If the data accumulated so far does not yet form a
// complete stream, it returns OK with zero bytes produced ("need more
// input"), never an error. Returns DataError only for a corrupt stream
// that cannot be decoded regardless of how much more data arrives.
func (s *InflateStream) Process(input []byte, output []byte, flush FlushMode) (Code, int, int, error) {
	consumed := len(input)
	s.pending.Write(input)
	s.totalIn += uint64(consumed)

	if s.out.Len() == 0 && !s.done {
		decoded, complete, err := decodeAvailable(s.pending.Bytes(), s.framing)
		if err != nil {
			return DataError, consumed, 0, err
		}
		if complete {
			s.out.Write(decoded)
			s.done = true
		}
	}

	produced := 0
	if s.out.Len() > 0 {
		n := copy(output, s.out.Bytes())
		produced = n
		s.out.Next(n)
		s.totalOut += uint64(n)
	}

	switch {
	case s.done && s.out.Len() == 0:
		return StreamEnd, consumed, produced, nil
	case s.done && s.out.Len() > 0:
		return BufError, consumed, produced, nil
	default:
		return OK, consumed, produced, nil
	}
}

// decodeAvailable attempts to fully decode framed, which may be a
// truncated prefix of the eventual complete stream. complete reports
// whether framed held enough bytes to decode cleanly; err is non-nil only
// for genuinely corrupt (not merely incomplete) data.
func decodeAvailable(framed []byte, f format.Framing) (decoded []byte, complete bool, err error) {
	if len(framed) == 0 {
		return nil, false, nil
	}

	var r io.ReadCloser
	switch f {
	case format.Raw:
		r = flate.NewReader(bytes.NewReader(framed))
	case format.Zlib:
		zr, zerr := kzlib.NewReader(bytes.NewReader(framed))
		if zerr != nil {
			if isIncomplete(zerr) {
				return nil, false, nil
			}
			return nil, false, zerr
		}
		r = zr
	case format.Gzip:
		gr, gerr := newMultistreamGzipReader(framed)
		if gerr != nil {
			if isIncomplete(gerr) {
				return nil, false, nil
			}
			return nil, false, gerr
		}
		r = gr
	default:
		return nil, false, fmt.Errorf("softflate: invalid framing")
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		if isIncomplete(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return out, true, nil
}

func isIncomplete(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// CompressBuffer is the one-shot, bounded-buffer software compressor used
// by internal/dispatch's utility API and by the compressed-file
// writer's fallback path.
func CompressBuffer(input []byte, f format.Framing, windowBits, level int) ([]byte, error) {
	return compressAll(input, f, windowBits, level)
}

// UncompressBuffer is the one-shot, bounded-buffer software decompressor.
// It returns an error if framed does not hold a complete stream.
func UncompressBuffer(framed []byte, f format.Framing) ([]byte, error) {
	decoded, complete, err := decodeAvailable(framed, f)
	if err != nil {
		return nil, err
	}
	if !complete {
		return nil, fmt.Errorf("softflate: incomplete stream")
	}
	return decoded, nil
}
