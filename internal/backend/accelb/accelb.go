// Package accelb adapts the small random-access hardware accelerator
// (ACCEL-B, modeled on Intel IAA) to the backend.Backend surface. Unlike
// ACCEL-A it is bounded to small buffers (≤2MiB each way) and to a
// narrow zlib window, but can run many short jobs with much lower
// per-call overhead — the profile IAA's in-memory analytics engine is
// built for.
package accelb

import (
	"errors"
	"fmt"

	"github.com/uuxo/zlib-accel/internal/backend"
	"github.com/uuxo/zlib-accel/internal/format"
	"github.com/uuxo/zlib-accel/internal/sessions"
)

// MaxBufferSize bounds both input and output length, modeled on
// the original's MAX_BUFFER_SIZE (2 << 20).
const MaxBufferSize = 2 << 20

// MaxZlibWindowBits bounds the back-reference window this accelerator can
// decompress: an encoded window size of more than 12 bits (>4KiB) is
// rejected by the decompressibility predicate.
const MaxZlibWindowBits = 12

// ErrNoSession is returned when session/job creation fails; the caller
// must route the request to software.
var ErrNoSession = errors.New("accelb: job unavailable")

type sessionKey struct {
	framing format.Framing
}

// Session is one opaque accelerator job handle, as the real SDK (qpl_job)
// would expose it.
type Session interface {
	Compress(input, output []byte, windowBits, level int, prependEmptyBlock, gzipExtra bool) (consumedIn, producedOut int, err error)
	Decompress(input, output []byte, windowBits int) (consumedIn, producedOut int, endOfStream bool, err error)
	Close() error
}

// Driver creates accelerator jobs.
type Driver interface {
	OpenSession(framing format.Framing) (Session, error)
}

// Adapter implements backend.Backend over a Driver.
type Adapter struct {
	driver              Driver
	sessions            *sessions.Cache[sessionKey, Session]
	emptyBlockMarkerOn  func() bool
}

// New returns an Adapter backed by driver. emptyBlockMarkerOn reads the
// iaa_prepend_empty_block knob live.
func New(driver Driver, emptyBlockMarkerOn func() bool) *Adapter {
	return &Adapter{
		driver:             driver,
		sessions:           sessions.New[sessionKey, Session](),
		emptyBlockMarkerOn: emptyBlockMarkerOn,
	}
}

func (a *Adapter) Path() backend.Path { return backend.AccelB }

// SupportsCompress implements the capability predicate: framing must
// be valid and both lengths must fit in MaxBufferSize.
func (a *Adapter) SupportsCompress(in backend.CompressInput) bool {
	if in.Framing == format.Invalid {
		return false
	}
	return len(in.Input) <= MaxBufferSize && in.OutputCap <= MaxBufferSize
}

// SupportsDecompress layers the decompressibility predicate on top
// of the shared capability predicate: for Zlib framing the encoded window
// must be ≤12 bits; for Raw/Gzip, when the empty-block marker option is
// on, the sentinel must be present right after the framing header — when
// the option is off this predicate is optimistic (the real call may still
// fail at runtime, per spec).
func (a *Adapter) SupportsDecompress(in backend.DecompressInput) bool {
	if in.Framing == format.Invalid {
		return false
	}
	if len(in.Input) > MaxBufferSize || in.OutputCap > MaxBufferSize {
		return false
	}
	switch in.Framing {
	case format.Zlib:
		return format.ExtractZlibWindow(in.Input) <= MaxZlibWindowBits
	case format.Raw, format.Gzip:
		if !a.emptyBlockMarkerOn() {
			return true
		}
		hdr := format.HeaderLength(in.Framing, false)
		if hdr > len(in.Input) {
			return false
		}
		return format.HasEmptyBlockSentinel(in.Input[hdr:])
	default:
		return false
	}
}

func (a *Adapter) session(framing format.Framing) (Session, error) {
	key := sessionKey{framing}
	s, err := a.sessions.GetOrCreate(key, func() (Session, error) {
		return a.driver.OpenSession(framing)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	return s, nil
}

// Compress may optionally prepend the 5-byte empty-block sentinel for Raw
// and Gzip framing, and supports the same gzip-extra pre-declared-length
// mode as ACCEL-A so the compressed-file writer can use either back-end
// interchangeably for that purpose.
func (a *Adapter) Compress(in backend.CompressInput) (backend.CompressOutput, error) {
	sess, err := a.session(in.Framing)
	if err != nil {
		return backend.CompressOutput{}, err
	}
	prepend := in.PrependEmptyBlock && in.Framing != format.Zlib
	out := make([]byte, in.OutputCap)
	consumed, produced, err := sess.Compress(in.Input, out, in.WindowBits, 0, prepend, in.GzipExtra)
	if err != nil {
		return backend.CompressOutput{}, fmt.Errorf("accelb compress: %w", err)
	}
	return backend.CompressOutput{Output: out[:produced], ConsumedIn: consumed, ProducedOut: produced}, nil
}

// Decompress may report a partial result (EndOfStream false), in which
// case the caller must treat this session's stream as unusable and fall
// through to software for the remainder. On a genuine end of
// stream, the reported consumed-bytes count from the underlying job is
// known to be wrong; it is overwritten here with the full input length,
// which has the side effect of dropping any second stream concatenated
// onto the first.
func (a *Adapter) Decompress(in backend.DecompressInput) (backend.DecompressOutput, error) {
	sess, err := a.session(in.Framing)
	if err != nil {
		return backend.DecompressOutput{}, err
	}
	out := make([]byte, in.OutputCap)
	consumed, produced, eos, err := sess.Decompress(in.Input, out, in.WindowBits)
	if err != nil {
		return backend.DecompressOutput{}, fmt.Errorf("accelb decompress: %w", err)
	}
	if eos {
		consumed = len(in.Input) // workaround: reported total_in is wrong at EOS.
	}
	return backend.DecompressOutput{
		Output:      out[:produced],
		ConsumedIn:  consumed,
		ProducedOut: produced,
		EndOfStream: eos,
	}, nil
}

// Close tears down every job this adapter has opened.
func (a *Adapter) Close() { a.sessions.Close() }
