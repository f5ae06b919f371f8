// Package format classifies the deflate-family framing implied by a
// window-bits integer and knows the handful of byte layouts the dispatch
// core needs to recognize: the zlib header's window field, and the custom
// gzip "QZ" extra subfield that pre-declares source/payload lengths.
package format

import "encoding/binary"

// Framing identifies which outer wrapper a deflate payload uses.
type Framing int

const (
	Invalid Framing = iota
	Raw
	Zlib
	Gzip
)

func (f Framing) String() string {
	switch f {
	case Raw:
		return "raw"
	case Zlib:
		return "zlib"
	case Gzip:
		return "gzip"
	default:
		return "invalid"
	}
}

// Classify maps a zlib-style windowBits value to its framing, per:
// -15..-8 -> Raw, 8..15 -> Zlib, 24..31 -> Gzip, else Invalid.
func Classify(windowBits int) Framing {
	switch {
	case windowBits >= -15 && windowBits <= -8:
		return Raw
	case windowBits >= 8 && windowBits <= 15:
		return Zlib
	case windowBits >= 24 && windowBits <= 31:
		return Gzip
	default:
		return Invalid
	}
}

// extraSubfieldHeaderLen is the additional header bytes the custom gzip
// extra subfield occupies, beyond the base 10-byte gzip header.
const extraSubfieldHeaderLen = 14

// HeaderLength returns the framing header size in bytes. gzipExtra adds
// the 14-byte QZ subfield for Gzip framing only.
func HeaderLength(f Framing, gzipExtra bool) int {
	switch f {
	case Zlib:
		return 2
	case Gzip:
		if gzipExtra {
			return 10 + extraSubfieldHeaderLen
		}
		return 10
	default:
		return 0
	}
}

// TrailerLength returns the framing trailer size in bytes.
func TrailerLength(f Framing) int {
	switch f {
	case Zlib:
		return 4
	case Gzip:
		return 8
	default:
		return 0
	}
}

// ExtractZlibWindow reads the encoded window size out of a zlib header's
// first byte (the high nibble of CMF), returning windowSize+8. If fewer
// than one byte is available it conservatively returns 15 (32 KiB, the
// largest possible window).
func ExtractZlibWindow(b []byte) int {
	if len(b) < 1 {
		return 15
	}
	return int(b[0]>>4) + 8
}

// extraMagic are the two "subfield ID" bytes ('Q','Z') the custom gzip
// extra subfield is tagged with.
var extraMagic = [2]byte{'Q', 'Z'}

// ExtraSubfield is the parsed content of the custom gzip extra subfield:
// the raw (uncompressed) source length and the raw deflate payload length
// that follow the gzip header, pre-declared so a bulk decompressor can
// skip a length-discovery pass.
type ExtraSubfield struct {
	SourceLength  uint32
	PayloadLength uint32
}

// DetectExtraSubfield parses the 24-byte gzip-header-plus-subfield prefix
// It requires at least 24 bytes, the gzip magic/method
// at offset 0..2, FLG.FEXTRA (bit 2 of byte 3) set, and the fixed
// XLEN/SI1/SI2/subfield-length bytes at offsets 10..15. Returns ok=false
// if any of those do not match.
func DetectExtraSubfield(b []byte) (sub ExtraSubfield, ok bool) {
	if len(b) < 24 {
		return ExtraSubfield{}, false
	}
	if b[0] != 0x1F || b[1] != 0x8B || b[2] != 0x08 {
		return ExtraSubfield{}, false
	}
	if b[3]&0x04 == 0 {
		return ExtraSubfield{}, false
	}
	if b[10] != 0x0C || b[11] != 0x00 {
		return ExtraSubfield{}, false
	}
	if b[12] != extraMagic[0] || b[13] != extraMagic[1] {
		return ExtraSubfield{}, false
	}
	if b[14] != 0x08 || b[15] != 0x00 {
		return ExtraSubfield{}, false
	}
	sub.SourceLength = binary.LittleEndian.Uint32(b[16:20])
	sub.PayloadLength = binary.LittleEndian.Uint32(b[20:24])
	return sub, true
}

// BuildExtraSubfield writes the 14-byte QZ extra subfield (bytes 10..23
// of the enclosing gzip header) encoding sourceLength/payloadLength.
// Callers are responsible for setting FLG.FEXTRA in the base gzip header
// and for placing this immediately after it.
func BuildExtraSubfield(sourceLength, payloadLength uint32) []byte {
	b := make([]byte, extraSubfieldHeaderLen)
	b[0] = 0x0C
	b[1] = 0x00
	b[2] = extraMagic[0]
	b[3] = extraMagic[1]
	b[4] = 0x08
	b[5] = 0x00
	binary.LittleEndian.PutUint32(b[6:10], sourceLength)
	binary.LittleEndian.PutUint32(b[10:14], payloadLength)
	return b
}

// EmptyBlockSentinel is the 5-byte stored-empty-block marker ACCEL-B (and
// optionally ACCEL-A) may prepend immediately after the framing header for
// Raw/Gzip framing, used to recognize output it produced.
var EmptyBlockSentinel = [5]byte{0x00, 0x00, 0x00, 0xFF, 0xFF}

// HasEmptyBlockSentinel reports whether b starts with the sentinel.
func HasEmptyBlockSentinel(b []byte) bool {
	if len(b) < len(EmptyBlockSentinel) {
		return false
	}
	for i, c := range EmptyBlockSentinel {
		if b[i] != c {
			return false
		}
	}
	return true
}
