// Package backend defines the dispatch core's view of a back-end: a
// capability predicate plus compress/decompress entry points. Both
// accelerator adapters (internal/backend/accela, internal/backend/accelb)
// satisfy it, and tests substitute stub back-ends that fail on command.
// The software fallback (internal/softflate) does not implement it; the
// dispatch core calls that package directly.
package backend

import "github.com/uuxo/zlib-accel/internal/format"

// Path identifies which back-end actually served a call or stream. Once a
// stream's Path becomes Software it is sticky: see dispatch.Core's
// DeflateProcess and InflateProcess.
type Path int

const (
	Undefined Path = iota
	Software
	AccelA
	AccelB
)

func (p Path) String() string {
	switch p {
	case Software:
		return "software"
	case AccelA:
		return "accel-a"
	case AccelB:
		return "accel-b"
	default:
		return "undefined"
	}
}

// CompressInput bundles the parameters a compress call needs to evaluate
// capability and, if eligible, execute.
type CompressInput struct {
	Framing           format.Framing
	WindowBits        int
	Input             []byte
	OutputCap         int
	GzipExtra         bool // pre-declare lengths via the custom extra subfield
	PrependEmptyBlock bool
}

// CompressOutput is what a back-end reports after a successful Compress.
type CompressOutput struct {
	Output      []byte
	ConsumedIn  int
	ProducedOut int
}

// DecompressInput bundles the parameters a decompress call needs.
type DecompressInput struct {
	Framing     format.Framing
	WindowBits  int
	Input       []byte
	OutputCap   int
	DetectExtra bool
}

// DecompressOutput is what a back-end reports after a Decompress attempt.
type DecompressOutput struct {
	Output      []byte
	ConsumedIn  int
	ProducedOut int
	EndOfStream bool
}

// Backend is the capability surface the dispatch core (internal/dispatch)
// arbitrates between.
type Backend interface {
	// Path identifies this back-end for sticky-path bookkeeping and logs.
	Path() Path

	// SupportsCompress reports whether this back-end can legally attempt
	// the given compress call.
	SupportsCompress(in CompressInput) bool

	// SupportsDecompress reports whether this back-end can legally attempt
	// the given decompress call, including the decompressibility
	// heuristics (encoded zlib window size, empty-block sentinel probe).
	SupportsDecompress(in DecompressInput) bool

	// Compress executes a compress call already approved by
	// SupportsCompress. A non-nil error is an accelerator-runtime failure
	//: the caller falls through to software.
	Compress(in CompressInput) (CompressOutput, error)

	// Decompress executes a decompress call already approved by
	// SupportsDecompress.
	Decompress(in DecompressInput) (DecompressOutput, error)
}
