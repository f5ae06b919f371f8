// Package accela adapts the large-bulk hardware accelerator (ACCEL-A,
// modeled on Intel QAT) to the backend.Backend surface. It supports all
// three framings, decompresses in a single call (end-of-stream is always
// reported true), and can pre-declare source/payload lengths
// via the custom gzip extra subfield so a bulk decompressor never has to
// re-scan for them.
//
// The real accelerator SDK is an external, opaque black box — this
// package only defines the Driver seam it would sit behind, plus a
// software-simulated Driver (SimDriver) good enough to exercise the
// dispatch core and its tests without real hardware.
package accela

import (
	"errors"
	"fmt"

	"github.com/uuxo/zlib-accel/internal/backend"
	"github.com/uuxo/zlib-accel/internal/format"
	"github.com/uuxo/zlib-accel/internal/sessions"
)

// HWBufferSize is the accelerator's one-shot bounded buffer size, modeled
// on the original's QZ_HW_BUFF_MAX_SZ. Non-raw input larger than this may
// only be attempted when chunking is allowed.
const HWBufferSize = 512 * 1024

// ErrNoSession is returned when session creation fails; the caller must
// route the request to software.
var ErrNoSession = errors.New("accela: session unavailable")

// sessionKey identifies one lazily-created accelerator session: one per
// framing, plus a separate slot for gzip with the extra subfield enabled
// (the original keeps qzSession_gzip and qzSession_gzip_ext distinct).
type sessionKey struct {
	framing   format.Framing
	gzipExtra bool
}

// Session is one opaque accelerator session handle, as the real SDK would
// expose it. poll mirrors qat_periodical_polling: true selects busy-poll
// completion waiting, false an interrupt-driven wait; the simulated
// driver ignores it since it has no asynchronous completion to wait on.
type Session interface {
	Compress(input, output []byte, windowBits, level int, prependEmptyBlock, poll bool) (consumedIn, producedOut int, err error)
	Decompress(input, output []byte, windowBits int, detectExtra, poll bool) (consumedIn, producedOut int, endOfStream bool, err error)
	Close() error
}

// Driver creates accelerator sessions. A real driver wraps the vendor
// SDK's session-open call; SimDriver below is a software stand-in.
type Driver interface {
	OpenSession(framing format.Framing, gzipExtra bool) (Session, error)
}

// Adapter implements backend.Backend over a Driver, with a per-Adapter
// session cache. Adapter is not safe for concurrent use by two
// goroutines sharing the same stream; the dispatch core already
// serializes calls per stream.
type Adapter struct {
	driver          Driver
	sessions        *sessions.Cache[sessionKey, Session]
	chunkingAllowed func() bool
	level           func() int
	poll            func() bool
}

// New returns an Adapter backed by driver. chunkingAllowed, level, and
// poll are read on every call so they track live configuration
// (qat_compression_allow_chunking, qat_compression_level,
// qat_periodical_polling). poll may be nil, meaning interrupt-driven
// waiting is always requested.
func New(driver Driver, chunkingAllowed func() bool, level func() int, poll func() bool) *Adapter {
	if poll == nil {
		poll = func() bool { return false }
	}
	return &Adapter{
		driver:          driver,
		sessions:        sessions.New[sessionKey, Session](),
		chunkingAllowed: chunkingAllowed,
		level:           level,
		poll:            poll,
	}
}

func (a *Adapter) Path() backend.Path { return backend.AccelA }

// SupportsCompress implements the predicate: framing must classify
// to Raw/Zlib/Gzip; for non-raw framing, input larger than the hardware
// buffer is only eligible when chunking is allowed.
func (a *Adapter) SupportsCompress(in backend.CompressInput) bool {
	if in.Framing == format.Invalid {
		return false
	}
	if in.Framing != format.Raw && len(in.Input) > HWBufferSize && !a.chunkingAllowed() {
		return false
	}
	return true
}

// SupportsDecompress mirrors SupportsCompress; ACCEL-A imposes no extra
// decompressibility heuristic beyond the shared capability predicate.
func (a *Adapter) SupportsDecompress(in backend.DecompressInput) bool {
	if in.Framing == format.Invalid {
		return false
	}
	if in.Framing != format.Raw && len(in.Input) > HWBufferSize && !a.chunkingAllowed() {
		return false
	}
	return true
}

func (a *Adapter) session(framing format.Framing, gzipExtra bool) (Session, error) {
	key := sessionKey{framing, gzipExtra}
	s, err := a.sessions.GetOrCreate(key, func() (Session, error) {
		return a.driver.OpenSession(framing, gzipExtra)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	return s, nil
}

// Compress prepends the 5-byte empty-block sentinel for Raw/Gzip when
// requested (never for Zlib — its header already carries the window) and,
// in gzip-extra mode, inserts the 14-byte QZ subfield between the base
// gzip header and the payload.
func (a *Adapter) Compress(in backend.CompressInput) (backend.CompressOutput, error) {
	sess, err := a.session(in.Framing, in.GzipExtra)
	if err != nil {
		return backend.CompressOutput{}, err
	}

	prepend := in.PrependEmptyBlock && in.Framing != format.Zlib
	out := make([]byte, in.OutputCap)
	consumed, produced, err := sess.Compress(in.Input, out, in.WindowBits, a.level(), prepend, a.poll())
	if err != nil {
		return backend.CompressOutput{}, fmt.Errorf("accela compress: %w", err)
	}
	return backend.CompressOutput{
		Output:      out[:produced],
		ConsumedIn:  consumed,
		ProducedOut: produced,
	}, nil
}

// Decompress always completes in one call: partial decompression is not
// possible on this back-end, so EndOfStream is always true on success. If
// DetectExtra is requested and the subfield is absent, this is an error
//. After a zlib-framing decompression that somehow returns
// end-of-stream false (a driver anomaly, since ACCEL-A is documented as
// always single-shot), the zlib session is evicted per the documented
// workaround — the accelerator retains stale state with no partial-reset
// operation, so the only mitigation is to tear down and recreate.
func (a *Adapter) Decompress(in backend.DecompressInput) (backend.DecompressOutput, error) {
	if in.DetectExtra {
		if _, ok := format.DetectExtraSubfield(in.Input); !ok {
			return backend.DecompressOutput{}, fmt.Errorf("accela decompress: gzip extra subfield required but absent")
		}
	}

	sess, err := a.session(in.Framing, in.DetectExtra)
	if err != nil {
		return backend.DecompressOutput{}, err
	}

	out := make([]byte, in.OutputCap)
	consumed, produced, eos, err := sess.Decompress(in.Input, out, in.WindowBits, in.DetectExtra, a.poll())
	if err != nil {
		if in.Framing == format.Zlib {
			a.sessions.Evict(sessionKey{format.Zlib, in.DetectExtra})
		}
		return backend.DecompressOutput{}, fmt.Errorf("accela decompress: %w", err)
	}
	if !eos && in.Framing == format.Zlib {
		a.sessions.Evict(sessionKey{format.Zlib, in.DetectExtra})
	}
	return backend.DecompressOutput{
		Output:      out[:produced],
		ConsumedIn:  consumed,
		ProducedOut: produced,
		EndOfStream: eos,
	}, nil
}

// Close tears down every session this adapter has opened.
func (a *Adapter) Close() { a.sessions.Close() }
